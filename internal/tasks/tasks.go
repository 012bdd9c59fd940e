package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"

	"github.com/partwheel/garsync/internal/models"
	"github.com/partwheel/garsync/internal/services"
	"github.com/partwheel/garsync/internal/shared"
)

// GarageStore is the slice of the garage cache the engine needs.
type GarageStore interface {
	Upsert(record models.GarageRecord) error
	ListRange(from, to time.Time, userID int64) ([]models.GarageRecord, error)
}

// MappingStore looks up and records garage record to deal links.
type MappingStore interface {
	Lookup(garageID int64) (int64, bool, error)
	Record(garageID, userID, dealID int64) error
}

// CursorStore persists pass progress markers.
type CursorStore interface {
	Load(scope string) (models.SyncCursor, error)
	Commit(cursor models.SyncCursor) error
}

// AuditStore records per-record sync attempts.
type AuditStore interface {
	Append(entry models.AuditEntry) error
}

// RetryPolicy bounds the exponential backoff applied to transient API errors.
type RetryPolicy struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultRetryPolicy returns the retry bounds used when the configuration
// leaves them unset.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   4,
		Initial:    500 * time.Millisecond,
		Max:        8 * time.Second,
		Multiplier: 2.0,
	}
}

// SyncEngine defines the sync pass operation.
type SyncEngine interface {
	// RunPass executes one pass over the requested date range: fetch source
	// records into the cache, then create or update the matching CRM deals.
	// Fatal errors (storage, authentication) abort the pass; record-level
	// failures are skipped and audited.
	RunPass(ctx context.Context, req models.RunRequest, progress chan<- ProgressUpdate) (*models.PassResult, error)
}

// GarageEngine implements SyncEngine against the ABCP garage endpoint and the
// Bitrix24 CRM.
type GarageEngine struct {
	source   services.SourceClient
	crm      services.CRMClient
	mapper   *Mapper
	garage   GarageStore
	mappings MappingStore
	cursors  CursorStore
	audit    AuditStore
	retry    RetryPolicy
	logger   *log.Logger
}

// NewGarageEngine creates a GarageEngine with the provided clients and stores.
func NewGarageEngine(
	source services.SourceClient,
	crm services.CRMClient,
	mapper *Mapper,
	garage GarageStore,
	mappings MappingStore,
	cursors CursorStore,
	audit AuditStore,
	retry RetryPolicy,
	logger *log.Logger,
) *GarageEngine {
	if retry.Attempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &GarageEngine{
		source:   source,
		crm:      crm,
		mapper:   mapper,
		garage:   garage,
		mappings: mappings,
		cursors:  cursors,
		audit:    audit,
		retry:    retry,
		logger:   logger,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *GarageEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// RunPass executes one store and sync pass.
//
// The store phase fetches the source records year slice by year slice into
// the local cache; the sync phase then iterates the cache, never the API, so
// store-only and sync-only modes stay independent. The cursor is committed
// only after a sync phase finishes, so an interrupted pass leaves the
// previous cursor intact and the next pass re-covers the same range.
func (e *GarageEngine) RunPass(ctx context.Context, req models.RunRequest, progress chan<- ProgressUpdate) (*models.PassResult, error) {
	if req.To.Before(req.From) {
		return nil, fmt.Errorf("%w: range end %s before start %s", shared.ErrInvalidArgument,
			req.To.Format(shared.APITimeLayout), req.From.Format(shared.APITimeLayout))
	}

	result := &models.PassResult{}
	scope := models.CursorScope(req.UserID)

	logger := shared.WithLogger(e.logger, "scope", scope, "mode", req.Mode.String())
	logger.Info("starting pass",
		"from", req.From.Format(shared.APITimeLayout),
		"to", req.To.Format(shared.APITimeLayout))

	if req.Mode.IncludesStore() {
		if err := e.storePhase(ctx, req, result, progress, logger); err != nil {
			return e.abort(result, err, logger)
		}
	}

	if req.Mode.IncludesSync() {
		latest, err := e.syncPhase(ctx, req, result, progress, logger)
		if err != nil {
			return e.abort(result, err, logger)
		}

		e.sendProgress(progress, commitCursorUpdate(scope))
		if err := e.commitCursor(scope, req, latest); err != nil {
			return e.abort(result, err, logger)
		}
	}

	if result.Skipped > 0 {
		result.Outcome = models.OutcomeCompletedWithSkips
	}

	logger.Info("pass finished",
		"outcome", result.Outcome.String(),
		"stored", result.Stored,
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"retried", result.Retried)

	return result, nil
}

// abort finalizes a fatally failed pass.
func (e *GarageEngine) abort(result *models.PassResult, err error, logger *log.Logger) (*models.PassResult, error) {
	result.Outcome = models.OutcomeFatalAborted
	result.Err = err
	logger.Error("pass aborted", "error", err)
	return result, err
}

// storePhase fetches source records into the local cache. The range is split
// into year slices so large histories stay within the API's response limits.
// A slice that fails with a non-fatal error is skipped; the remaining slices
// still run.
func (e *GarageEngine) storePhase(ctx context.Context, req models.RunRequest, result *models.PassResult, progress chan<- ProgressUpdate, logger *log.Logger) error {
	slices := shared.SliceByYears(req.From, req.To)

	for i, slice := range slices {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pass interrupted: %w", err)
		}

		e.sendProgress(progress, fetchSliceUpdate(i+1, len(slices), slice))

		records, err := withRetry(ctx, e, result, func() ([]models.GarageRecord, error) {
			return e.source.ListGarageRecords(ctx, slice.From, slice.To, req.UserID)
		})
		if err != nil {
			if isFatal(err) {
				return err
			}
			logger.Warn("skipping fetch slice",
				"from", slice.From.Format(shared.APITimeLayout),
				"to", slice.To.Format(shared.APITimeLayout),
				"error", err)
			result.Skipped++
			continue
		}

		e.sendProgress(progress, storeCacheUpdate(i+1, len(slices), len(records)))

		for _, record := range records {
			if err := e.garage.Upsert(record); err != nil {
				return err
			}
			result.Stored++
		}
	}

	return nil
}

// syncPhase pushes cached records to the CRM. Returns the latest update
// timestamp among the processed records for the cursor commit.
func (e *GarageEngine) syncPhase(ctx context.Context, req models.RunRequest, result *models.PassResult, progress chan<- ProgressUpdate, logger *log.Logger) (time.Time, error) {
	var latest time.Time

	records, err := e.garage.ListRange(req.From, req.To, req.UserID)
	if err != nil {
		return latest, err
	}

	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return latest, fmt.Errorf("pass interrupted: %w", err)
		}

		e.sendProgress(progress, syncDealsUpdate(i+1, len(records), record.ID))

		if err := e.syncRecord(ctx, record, result); err != nil {
			if isFatal(err) {
				return latest, err
			}

			logger.Warn("skipping record", "garage_id", record.ID, "error", err)
			result.Skipped++
			e.appendAudit(models.AuditEntry{
				UserID:   record.UserID,
				GarageID: record.ID,
				Result:   models.ResultError,
				Error:    err.Error(),
			}, logger)
			continue
		}

		if updated, err := shared.ParseDate(record.DateUpdated); err == nil && updated.After(latest) {
			latest = updated
		}
	}

	return latest, nil
}

// syncRecord creates or updates the deal for one cached record.
func (e *GarageEngine) syncRecord(ctx context.Context, record models.GarageRecord, result *models.PassResult) error {
	fields, err := e.mapper.Map(record)
	if err != nil {
		return err
	}

	dealID, found, err := e.mappings.Lookup(record.ID)
	if err != nil {
		return err
	}

	if found {
		_, err = withRetry(ctx, e, result, func() (struct{}, error) {
			return struct{}{}, e.crm.UpdateDeal(ctx, dealID, fields)
		})
		if err != nil {
			return err
		}
		result.Updated++
		e.appendAudit(models.AuditEntry{
			UserID:   record.UserID,
			DealID:   dealID,
			GarageID: record.ID,
			Result:   models.ResultUpdated,
		}, e.logger)
		return nil
	}

	dealID, err = withRetry(ctx, e, result, func() (int64, error) {
		return e.crm.CreateDeal(ctx, fields)
	})
	if err != nil {
		return err
	}

	if err := e.mappings.Record(record.ID, record.UserID, dealID); err != nil {
		return err
	}

	result.Created++
	e.appendAudit(models.AuditEntry{
		UserID:   record.UserID,
		DealID:   dealID,
		GarageID: record.ID,
		Result:   models.ResultCreated,
	}, e.logger)
	return nil
}

// commitCursor records the completed range so restarts know where the last
// successful pass ended.
func (e *GarageEngine) commitCursor(scope string, req models.RunRequest, latest time.Time) error {
	cursor, err := e.cursors.Load(scope)
	if err != nil {
		return err
	}

	if latest.After(cursor.LastDateUpdated) {
		cursor.LastDateUpdated = latest
	}
	cursor.Scope = scope
	cursor.RangeFrom = req.From
	cursor.RangeTo = req.To
	cursor.CommittedAt = time.Now().UTC()

	return e.cursors.Commit(cursor)
}

// withRetry runs op, retrying transient API errors with exponential backoff.
// Any other error aborts the retry loop immediately.
func withRetry[T any](ctx context.Context, e *GarageEngine, result *models.PassResult, op func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.retry.Initial
	bo.MaxInterval = e.retry.Max
	bo.Multiplier = e.retry.Multiplier

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		if attempt > 1 {
			result.Retried++
		}
		value, err := op()
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, shared.ErrTransientAPI) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(e.retry.Attempts)))
}

// appendAudit logs audit failures instead of failing the pass; the audit
// trail is advisory.
func (e *GarageEngine) appendAudit(entry models.AuditEntry, logger *log.Logger) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Append(entry); err != nil {
		logger.Warn("failed to record audit entry", "garage_id", entry.GarageID, "error", err)
	}
}

// isFatal reports whether an error must abort the whole pass. Storage and
// auth failures qualify, as do configuration errors surfaced by a client at
// call time: a run with no credentials must not count every record as a
// skip and then commit the cursor over an unsynced range.
func isFatal(err error) bool {
	return errors.Is(err, shared.ErrStorage) ||
		errors.Is(err, shared.ErrAuthFailed) ||
		errors.Is(err, shared.ErrConfig) ||
		errors.Is(err, shared.ErrMissingCredentials)
}
