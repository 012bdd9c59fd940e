package models

import (
	"encoding/json"
	"testing"
)

func TestGarageRecordJSON(t *testing.T) {
	payload := `{
		"id": 42,
		"userId": 7,
		"name": "Daily driver",
		"year": 2018,
		"vin": "WVWZZZ1KZAW000001",
		"manufacturerId": 471,
		"manufacturer": "Volkswagen",
		"modelId": 6829,
		"model": "Golf",
		"dateUpdated": "2024-03-10 12:00:00",
		"vehicleRegPlate": "A123BC161"
	}`

	var record GarageRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		t.Fatalf("failed to unmarshal record: %v", err)
	}

	if record.ID != 42 || record.UserID != 7 {
		t.Errorf("unexpected ids: %+v", record)
	}
	if record.Manufacturer != "Volkswagen" || record.ModelID != 6829 {
		t.Errorf("unexpected vehicle fields: %+v", record)
	}
	if record.DateUpdated != "2024-03-10 12:00:00" {
		t.Errorf("unexpected timestamp %q", record.DateUpdated)
	}
}

func TestCursorScope(t *testing.T) {
	if got := CursorScope(0); got != GlobalScope {
		t.Errorf("expected global scope for user 0, got %q", got)
	}
	if got := CursorScope(7); got != "user:7" {
		t.Errorf("expected user:7, got %q", got)
	}
}

func TestMode(t *testing.T) {
	tests := []struct {
		mode  Mode
		store bool
		sync  bool
		str   string
	}{
		{ModeStoreAndSync, true, true, "store+sync"},
		{ModeStoreOnly, true, false, "store-only"},
		{ModeSyncOnly, false, true, "sync-only"},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if tt.mode.IncludesStore() != tt.store {
				t.Errorf("IncludesStore: expected %v", tt.store)
			}
			if tt.mode.IncludesSync() != tt.sync {
				t.Errorf("IncludesSync: expected %v", tt.sync)
			}
			if tt.mode.String() != tt.str {
				t.Errorf("String: expected %q, got %q", tt.str, tt.mode.String())
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeCompleted.String() != "completed" {
		t.Errorf("unexpected %q", OutcomeCompleted.String())
	}
	if OutcomeCompletedWithSkips.String() != "completed-with-skips" {
		t.Errorf("unexpected %q", OutcomeCompletedWithSkips.String())
	}
	if OutcomeFatalAborted.String() != "fatal-aborted" {
		t.Errorf("unexpected %q", OutcomeFatalAborted.String())
	}
}
