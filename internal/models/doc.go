// Package models defines the domain records and persistence interfaces for the download orchestrator.
//
// The package contains three categories of types:
//
// 1. State machine enums with explicit transition tables
//   - [TaskStatus] : initializing → fetching → downloading → completed | failed
//   - [ItemStatus] : pending → checking → (skipped | downloading → completed | failed)
//
// 2. Views handed across component boundaries
//   - [Task] : aggregate task state with counters derived from its items
//   - [Item] : one fetchable unit with byte-level progress
//   - [Snapshot] : a consistent copy of a task and its items
//   - [Message] : a live update (status_update or progress_update) built from a snapshot
//
// 3. Persistent entities
//   - [TaskRecord] : terminal snapshot stored as task history
//
// Persistent entities implement the Model interface; the Repository[T] interface defines standard CRUD operations.
package models
