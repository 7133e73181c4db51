// Package store provides a SQLite-backed journal of specification exports.
//
// Every export a session produces can be appended to the journal. A row
// holds the canonical JSON, its fingerprint and a seq assigned by SQLite.
//
// # Guarantees
//
// Idempotent appends:
//   - UNIQUE(session_id, fingerprint)
//   - appending an export the session already journaled returns the
//     existing seq
//
// Logical ordering:
//   - all ordering uses seq, never timestamps
//   - queries end in ORDER BY seq ASC so results are identical across runs
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: Wait for locks up to 5 seconds (WithBusyTimeout)
//   - foreign_keys=ON: Enforce referential integrity
//
// Older journals are upgraded on Open by the migrations newer than their
// PRAGMA user_version.
//
// Fingerprints are computed by ir.Fingerprint.
package store
