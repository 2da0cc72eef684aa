// Package http exposes the shell core over a JSON API.
//
// Routes:
//   - GET  /health, /boot, /theme, /events, /apps, /apps/:name
//   - POST /apps/:name/{load,activate,deactivate,unload}
//   - POST /events/:event, /theme
//
// Responses carry "success" and, on failure, "error". Lifecycle errors map
// to 404 (unknown app), 409 (wrong state) and 424 (missing or circular
// dependency). /boot answers 503 once a fatal boot error is recorded.
package http
