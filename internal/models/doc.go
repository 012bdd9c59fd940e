// Package models defines domain entities and transfer values for the
// ABCP → Bitrix24 garage sync service.
//
// The package contains two categories of types:
//
// 1. External snapshots: read-only inputs owned by the source API
//   - [GarageRecord] : one vehicle entry from the ABCP garage endpoint
//
// 2. Local state and transfer values:
//   - [DealFields] : the mapped CRM field set for one record
//   - [DealMapping] : durable link from a garage record to its CRM deal
//   - [SyncCursor] : durable marker of sync progress, one per scope
//   - [AuditEntry] : one row of the append-only sync attempt log
//   - [RunRequest] / [PassResult] : one engine invocation and its outcome
//
// SyncCursor and DealMapping are the only state that must survive process
// restarts; everything else is reconstructible from the source API.
package models
