// Package store provides SQLite-backed durable storage for the
// governance audit trail.
//
// The store holds missions, runs, the per-run hash-chained event log,
// and raw telemetry samples. The event log is append-only:
//   - Events: one row per governance event, PK (run_id, seq)
//   - Each event's hash covers {seq, run_id, ts, type, payload, prev_hash}
//     via canonical JSON and SHA-256 (internal/canon)
//   - prev_hash links each event to its predecessor; seq 1 links to the
//     zero hash
//
// Ordering uses seq (a per-run logical clock), never timestamps; the
// stored ts is monotonic-anchored for audit display only.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//   - SetMaxOpenConns(1): single writer, no SQLITE_BUSY surprises
package store
