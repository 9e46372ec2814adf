// Package repositories implements SQLite persistence for task history.
//
// Every repository handles CRUD operations with atomic sequence generation for human-readable ordering.
// Records are soft deleted via deleted_at timestamps and excluded from queries by default.
//
// Key Implementations:
//   - [TaskRepository] : terminal task snapshots with their items, listed newest first
//
// Sequence numbers provide stable ordering (e.g., task #42) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
