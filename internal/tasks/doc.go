// package tasks implements the garage to CRM sync passes.
//
// The core abstraction is SyncEngine, which runs one pass over a date range:
// fetch garage records into the local cache, map them to deal fields, and
// create or update the matching CRM deals. Scheduler wraps the engine for
// continuous operation. Operations emit progress updates via channels for
// non-blocking status reporting to the CLI layer.
package tasks
