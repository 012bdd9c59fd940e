// package services defines interfaces for the external HTTP collaborators
//
// ABCP (parts-catalog source), Bitrix24 (CRM sink)
package services

import (
	"context"
	"errors"
	"net/url"
	"os"
	"syscall"
	"time"

	"github.com/partwheel/garsync/internal/models"
)

// SourceClient fetches garage records from the external parts-catalog API.
type SourceClient interface {
	// ListGarageRecords returns all records updated within [from, to],
	// optionally restricted to one user (userID 0 means all users).
	// An empty interval is a nil slice, not an error.
	ListGarageRecords(ctx context.Context, from, to time.Time, userID int64) ([]models.GarageRecord, error)
}

// CRMClient writes mapped records into the CRM.
//
// Both methods classify failures as transient (shared.ErrTransientAPI),
// permanent (shared.ErrPermanentAPI) or auth (shared.ErrAuthFailed) so the
// sync engine can decide between retry, skip and abort.
type CRMClient interface {
	// CreateDeal creates a deal from the field set and returns its id.
	CreateDeal(ctx context.Context, fields models.DealFields) (int64, error)

	// UpdateDeal overwrites the mapped fields of an existing deal.
	UpdateDeal(ctx context.Context, dealID int64, fields models.DealFields) error
}

// isTimeoutOrConnError reports whether err is a network-level failure worth
// retrying: timeouts, refused or reset connections, cancelled deadlines.
func isTimeoutOrConnError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout() || urlErr.Temporary()
	}
	return false
}
