package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/partwheel/garsync/internal/models"
	"github.com/partwheel/garsync/internal/shared"
)

// CursorRepository persists per-scope sync progress markers.
type CursorRepository struct {
	db *sql.DB
}

// NewCursorRepository creates a new CursorRepository with the given database connection
func NewCursorRepository(db *sql.DB) *CursorRepository {
	return &CursorRepository{db: db}
}

// Load returns the cursor for a scope. A scope that has never completed a
// pass gets a zeroed cursor anchored at the epoch, which makes the first
// pass cover everything.
func (r *CursorRepository) Load(scope string) (models.SyncCursor, error) {
	var cursor models.SyncCursor
	err := r.db.QueryRow(
		"SELECT scope, last_date_updated, range_from, range_to, committed_at FROM sync_cursors WHERE scope = ?",
		scope,
	).Scan(&cursor.Scope, &cursor.LastDateUpdated, &cursor.RangeFrom, &cursor.RangeTo, &cursor.CommittedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return models.SyncCursor{Scope: scope, LastDateUpdated: time.Unix(0, 0).UTC()}, nil
	}
	if err != nil {
		return models.SyncCursor{}, fmt.Errorf("%w: failed to load cursor %q: %v", shared.ErrStorage, scope, err)
	}

	return cursor, nil
}

// Commit atomically replaces the cursor for its scope. A crash during the
// commit leaves either the previous cursor or the new one visible, never a
// partial mix.
func (r *CursorRepository) Commit(cursor models.SyncCursor) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: failed to begin cursor commit: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO sync_cursors (scope, last_date_updated, range_from, range_to, committed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET
			last_date_updated = excluded.last_date_updated,
			range_from = excluded.range_from,
			range_to = excluded.range_to,
			committed_at = excluded.committed_at
	`

	_, err = tx.Exec(query,
		cursor.Scope,
		cursor.LastDateUpdated,
		cursor.RangeFrom,
		cursor.RangeTo,
		cursor.CommittedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to commit cursor %q: %v", shared.ErrStorage, cursor.Scope, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit cursor %q: %v", shared.ErrStorage, cursor.Scope, err)
	}

	return nil
}
