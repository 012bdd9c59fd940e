package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/partwheel/garsync/internal/models"
	"github.com/partwheel/garsync/internal/shared"
)

// GarageRepository caches raw source records locally so sync-only passes can
// run without touching the source API.
type GarageRepository struct {
	db *sql.DB
}

// NewGarageRepository creates a new GarageRepository with the given database connection
func NewGarageRepository(db *sql.DB) *GarageRepository {
	return &GarageRepository{db: db}
}

// Upsert inserts or replaces the cache entry for a record, keyed by record id.
func (r *GarageRepository) Upsert(record models.GarageRecord) error {
	raw := string(record.Raw)
	if raw == "" {
		raw = "{}"
	}

	query := `
		INSERT INTO garage (id, user_id, name, comment, year, vin, frame, mileage,
			manufacturer_id, manufacturer, model_id, model, modification_id, modification,
			date_updated, vehicle_reg_plate, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			comment = excluded.comment,
			year = excluded.year,
			vin = excluded.vin,
			frame = excluded.frame,
			mileage = excluded.mileage,
			manufacturer_id = excluded.manufacturer_id,
			manufacturer = excluded.manufacturer,
			model_id = excluded.model_id,
			model = excluded.model,
			modification_id = excluded.modification_id,
			modification = excluded.modification,
			date_updated = excluded.date_updated,
			vehicle_reg_plate = excluded.vehicle_reg_plate,
			raw_json = excluded.raw_json
	`

	_, err := r.db.Exec(query,
		record.ID,
		record.UserID,
		record.Name,
		record.Comment,
		record.Year,
		record.VIN,
		record.Frame,
		record.Mileage,
		record.ManufacturerID,
		record.Manufacturer,
		record.ModelID,
		record.Model,
		record.ModificationID,
		record.Modification,
		record.DateUpdated,
		record.VehicleRegPlate,
		raw,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert garage record %d: %v", shared.ErrStorage, record.ID, err)
	}

	return nil
}

// ListRange returns cached records whose date_updated falls within [from, to],
// optionally restricted to one user, ordered by record id ascending so passes
// process records deterministically.
func (r *GarageRepository) ListRange(from, to time.Time, userID int64) ([]models.GarageRecord, error) {
	query := `
		SELECT id, user_id, name, comment, year, vin, frame, mileage,
			manufacturer_id, manufacturer, model_id, model, modification_id, modification,
			date_updated, vehicle_reg_plate, raw_json
		FROM garage
		WHERE datetime(date_updated) >= datetime(?) AND datetime(date_updated) <= datetime(?)
	`
	args := []any{from.Format(shared.APITimeLayout), to.Format(shared.APITimeLayout)}

	if userID != 0 {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	query += " ORDER BY id ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query garage cache: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var records []models.GarageRecord
	for rows.Next() {
		record, err := scanGarageRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return records, nil
}

// Get retrieves one cached record by id.
func (r *GarageRepository) Get(id int64) (models.GarageRecord, error) {
	query := `
		SELECT id, user_id, name, comment, year, vin, frame, mileage,
			manufacturer_id, manufacturer, model_id, model, modification_id, modification,
			date_updated, vehicle_reg_plate, raw_json
		FROM garage
		WHERE id = ?
	`

	rows, err := r.db.Query(query, id)
	if err != nil {
		return models.GarageRecord{}, fmt.Errorf("%w: failed to query garage record %d: %v", shared.ErrStorage, id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.GarageRecord{}, fmt.Errorf("%w: failed to read garage record %d: %v", shared.ErrStorage, id, err)
		}
		return models.GarageRecord{}, fmt.Errorf("%w: garage record %d not in cache", shared.ErrStorage, id)
	}

	return scanGarageRow(rows)
}

func scanGarageRow(rows *sql.Rows) (models.GarageRecord, error) {
	var (
		record models.GarageRecord
		raw    string
	)

	err := rows.Scan(
		&record.ID,
		&record.UserID,
		&record.Name,
		&record.Comment,
		&record.Year,
		&record.VIN,
		&record.Frame,
		&record.Mileage,
		&record.ManufacturerID,
		&record.Manufacturer,
		&record.ModelID,
		&record.Model,
		&record.ModificationID,
		&record.Modification,
		&record.DateUpdated,
		&record.VehicleRegPlate,
		&raw,
	)
	if err != nil {
		return models.GarageRecord{}, fmt.Errorf("%w: failed to scan garage record: %v", shared.ErrStorage, err)
	}

	record.Raw = []byte(raw)
	return record, nil
}
