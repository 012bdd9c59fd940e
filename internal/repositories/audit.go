package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/partwheel/garsync/internal/models"
	"github.com/partwheel/garsync/internal/shared"
)

// AuditRepository records sync attempts. Every attempt appends to the
// immutable sync_audit log and refreshes the per-user sync_status row in the
// same transaction.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository with the given database connection
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append writes one audit entry and updates the user's latest status. A
// missing ID gets a generated one; a zero CreatedAt gets the current time.
func (r *AuditRepository) Append(entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = shared.GenerateID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: failed to begin audit append: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO sync_audit (id, user_id, deal_id, garage_id, result, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		entry.ID,
		entry.UserID,
		entry.DealID,
		entry.GarageID,
		entry.Result,
		entry.Error,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to append audit entry: %v", shared.ErrStorage, err)
	}

	statusQuery := `
		INSERT INTO sync_status (user_id, deal_id, garage_id, last_result, last_error, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			deal_id = excluded.deal_id,
			garage_id = excluded.garage_id,
			last_result = excluded.last_result,
			last_error = excluded.last_error,
			last_synced_at = excluded.last_synced_at
	`

	_, err = tx.Exec(statusQuery,
		entry.UserID,
		entry.DealID,
		entry.GarageID,
		entry.Result,
		entry.Error,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to update sync status: %v", shared.ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to append audit entry: %v", shared.ErrStorage, err)
	}

	return nil
}

// History returns the most recent audit entries for a user, newest first.
func (r *AuditRepository) History(userID int64, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		"SELECT id, user_id, deal_id, garage_id, result, error, created_at FROM sync_audit WHERE user_id = ? ORDER BY created_at DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query audit history: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.DealID, &e.GarageID, &e.Result, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan audit entry: %v", shared.ErrStorage, err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read audit history: %v", shared.ErrStorage, err)
	}

	return entries, nil
}
