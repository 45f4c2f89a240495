// Package store provides durable persistence for the dive log.
//
// SQLite with WAL mode backs the store; the schema is embedded and applied
// idempotently on Open. Writes follow the single-writer model: the import
// loop is the only writer during a session, and idempotent inserts
// (ON CONFLICT DO NOTHING) make re-imports safe.
//
// The reconciliation layers depend on the narrow query surface defined here
// (fingerprint lookup, time-window lookup, per-device last fingerprint)
// and never issue raw SQL of their own.
package store
