// Package repositories implements the SQLite state store behind the sync.
//
// Durable state is what makes repeated passes idempotent:
//   - [GarageRepository] : local cache of source records, upserted by id
//   - [MappingRepository] : garage record -> CRM deal links (the upsert key)
//   - [CursorRepository] : per-scope sync progress markers, committed atomically
//   - [AuditRepository] : append-only attempt log plus a latest-status row per user
//
// Exactly one in-process actor touches the store at a time, so repositories
// do no locking of their own; crash-atomicity of cursor commits comes from
// SQLite transactions. Every failure is wrapped with shared.ErrStorage,
// which the sync engine treats as pass-fatal.
package repositories
