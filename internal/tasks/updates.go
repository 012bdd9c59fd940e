package tasks

import (
	"fmt"

	"github.com/partwheel/garsync/internal/shared"
)

// ProgressUpdate represents a progress event during a sync pass.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
}

// Operation phase enumeration
type Phase int

const (
	FetchSource Phase = iota
	StoreCache
	SyncDeals
	CommitCursor
)

func (p Phase) String() string {
	switch p {
	case FetchSource:
		return "fetch_source"
	case StoreCache:
		return "store_cache"
	case SyncDeals:
		return "sync_deals"
	case CommitCursor:
		return "commit_cursor"
	default:
		return ""
	}
}

func fetchSliceUpdate(step, total int, slice shared.DateRange) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching garage records %s to %s...", slice.From.Format("2006-01-02"), slice.To.Format("2006-01-02")),
	}
}

func storeCacheUpdate(step, total, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StoreCache,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Caching %d garage records...", count),
	}
}

func syncDealsUpdate(step, total int, garageID int64) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncDeals,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Syncing garage record %d...", garageID),
	}
}

func commitCursorUpdate(scope string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CommitCursor,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Committing cursor for %s...", scope),
	}
}
