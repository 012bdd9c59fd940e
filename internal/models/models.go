package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// GarageRecord is an immutable snapshot of one vehicle entry from the ABCP
// garage endpoint. Raw keeps the untouched API payload for the local cache.
type GarageRecord struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"userId"`
	Name            string          `json:"name"`
	Comment         string          `json:"comment"`
	Year            int             `json:"year"`
	VIN             string          `json:"vin"`
	Frame           string          `json:"frame"`
	Mileage         int             `json:"mileage"`
	ManufacturerID  int64           `json:"manufacturerId"`
	Manufacturer    string          `json:"manufacturer"`
	ModelID         int64           `json:"modelId"`
	Model           string          `json:"model"`
	ModificationID  int64           `json:"modificationId"`
	Modification    string          `json:"modification"`
	DateUpdated     string          `json:"dateUpdated"`
	VehicleRegPlate string          `json:"vehicleRegPlate"`
	Raw             json.RawMessage `json:"-"`
}

// DealFields is the mapped CRM representation of one garage record.
// Fields keys are Bitrix24 user-field codes.
type DealFields struct {
	Title  string
	Fields map[string]string
}

// DealMapping links a garage record to the CRM deal created for it.
// One garage record maps to at most one deal; Record upserts never duplicate.
type DealMapping struct {
	GarageID     int64
	UserID       int64
	DealID       int64
	LastSyncedAt time.Time
}

// SyncCursor records, per scope, the highest processed record timestamp and
// the boundaries of the last successfully completed pass. Committed only
// after a pass finishes without a fatal error.
type SyncCursor struct {
	Scope           string
	LastDateUpdated time.Time
	RangeFrom       time.Time
	RangeTo         time.Time
	CommittedAt     time.Time
}

// GlobalScope is the cursor scope for passes without a user filter.
const GlobalScope = "global"

// CursorScope returns the cursor scope key for an optional user filter.
func CursorScope(userID int64) string {
	if userID == 0 {
		return GlobalScope
	}
	return "user:" + strconv.FormatInt(userID, 10)
}

// AuditEntry is one row of the append-only sync attempt log.
type AuditEntry struct {
	ID        string
	UserID    int64
	DealID    int64
	GarageID  int64
	Result    string
	Error     string
	CreatedAt time.Time
}

// Audit results.
const (
	ResultCreated = "created"
	ResultUpdated = "updated"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

// Mode selects which phases a pass executes.
type Mode int

const (
	ModeStoreAndSync Mode = iota // fetch into cache, then sync to the CRM
	ModeStoreOnly                // warm the local cache, no CRM calls
	ModeSyncOnly                 // sync the cached records, no source fetch
)

// IncludesStore reports whether the pass fetches source records into the cache.
func (m Mode) IncludesStore() bool { return m != ModeSyncOnly }

// IncludesSync reports whether the pass writes to the CRM.
func (m Mode) IncludesSync() bool { return m != ModeStoreOnly }

func (m Mode) String() string {
	switch m {
	case ModeStoreOnly:
		return "store-only"
	case ModeSyncOnly:
		return "sync-only"
	default:
		return "store+sync"
	}
}

// RunRequest describes one engine invocation. Not persisted.
type RunRequest struct {
	From   time.Time
	To     time.Time
	UserID int64 // 0 means all users
	Mode   Mode
}

// Outcome classifies how a pass ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCompletedWithSkips
	OutcomeFatalAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompletedWithSkips:
		return "completed-with-skips"
	case OutcomeFatalAborted:
		return "fatal-aborted"
	default:
		return "completed"
	}
}

// PassResult summarizes one pass for the run loop.
type PassResult struct {
	Outcome Outcome
	Stored  int   // records upserted into the local cache
	Created int   // CRM deals created
	Updated int   // CRM deals updated
	Skipped int   // record-level skips (mapping or permanent API errors)
	Retried int   // transient retries performed
	Err     error // set when Outcome is OutcomeFatalAborted
}
