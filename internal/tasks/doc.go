// Package tasks orchestrates download tasks from submission to completion with live progress.
//
// # Components
//
//  1. [Registry] : process-wide task and item state behind one mutex
//     - Tasks move initializing → fetching → downloading → completed | failed
//     - Items move pending → checking → (skipped | downloading → completed | failed)
//     - Counters are recomputed from item statuses on every mutation
//
//  2. [WorkerPool] : bounded workers, one fetch per item
//     - Duplicate lookup through dedupe.Index when the task skips duplicates
//     - Proxy endpoint from proxy.Pool, marked failed when the fetch fails
//     - Output filename from the provider or the newest file carrying the content id
//
//  3. [Bridge] : hands publish requests from workers to one control loop
//     - Requests for the same task are coalesced; snapshots are taken at delivery time
//     - Subscribers get an initial status_update, progress updates, and heartbeats
//     - Failing subscribers are dropped; all are closed after a terminal snapshot
//
//  4. [Orchestrator] : resolves, registers, downloads, archives and persists a task
//
// # Error Handling
//
// Only resolution failures fail a task. A failed item keeps its error message and never aborts
// its siblings. Duplicate lookup errors count as a miss.
package tasks
