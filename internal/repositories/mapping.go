package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/partwheel/garsync/internal/models"
	"github.com/partwheel/garsync/internal/shared"
)

// MappingRepository persists garage record -> CRM deal links.
//
// The garage record id is the upsert key: recording the same pair twice only
// refreshes last_synced_at, it never creates a second row.
type MappingRepository struct {
	db *sql.DB
}

// NewMappingRepository creates a new MappingRepository with the given database connection
func NewMappingRepository(db *sql.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// Lookup returns the deal id mapped to a garage record, if any.
func (r *MappingRepository) Lookup(garageID int64) (int64, bool, error) {
	var dealID int64
	err := r.db.QueryRow(
		"SELECT deal_id FROM deal_mappings WHERE garage_id = ?", garageID,
	).Scan(&dealID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: failed to look up mapping for record %d: %v", shared.ErrStorage, garageID, err)
	}
	return dealID, true, nil
}

// Record upserts the mapping after a successful CRM write. Idempotent.
func (r *MappingRepository) Record(garageID, userID, dealID int64) error {
	query := `
		INSERT INTO deal_mappings (garage_id, user_id, deal_id, last_synced_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(garage_id) DO UPDATE SET
			user_id = excluded.user_id,
			deal_id = excluded.deal_id,
			last_synced_at = excluded.last_synced_at
	`

	_, err := r.db.Exec(query, garageID, userID, dealID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: failed to record mapping %d -> deal %d: %v", shared.ErrStorage, garageID, dealID, err)
	}

	return nil
}

// List returns all mappings, ordered by garage record id.
func (r *MappingRepository) List() ([]models.DealMapping, error) {
	rows, err := r.db.Query(
		"SELECT garage_id, user_id, deal_id, last_synced_at FROM deal_mappings ORDER BY garage_id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query mappings: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var mappings []models.DealMapping
	for rows.Next() {
		var m models.DealMapping
		if err := rows.Scan(&m.GarageID, &m.UserID, &m.DealID, &m.LastSyncedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan mapping: %v", shared.ErrStorage, err)
		}
		mappings = append(mappings, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return mappings, nil
}

// Count returns the number of mapped records.
func (r *MappingRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM deal_mappings").Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: failed to count mappings: %v", shared.ErrStorage, err)
	}
	return count, nil
}
