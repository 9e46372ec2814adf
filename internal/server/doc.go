// Package server provides HTTP routing, middleware, and the download API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so wildcards such as
// {id} are read with [http.Request.PathValue].
//
// # API
//
// [API] exposes task submission, status, file and archive downloads, the text progress log, and
// proxy pool controls under /api. Errors are JSON objects with a single "error" key:
//   - 400 for invalid input or targets
//   - 404 for unknown tasks or files that are not outputs of the task
//   - 503 once the orchestrator has stopped
//
// # Live Updates
//
// /ws/{id} upgrades to a WebSocket and /api/stream/{id} streams Server-Sent Events. Both relay
// the bridge's messages for one task: an initial status_update, progress updates, and heartbeats,
// ending after the terminal snapshot. A task known only from history gets one status_update.
package server
