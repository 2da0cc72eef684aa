// Package main is the entry point for the Mizu OS shell server.
//
// The server owns the shell core (event bus, app registry and loader, boot
// sequence, error handler) and exposes it to the browser front-end.
//
// Architecture:
//
//	Browser (DOM, CSS, app UIs) ⇄ HTTP + WebSocket ⇄ Shell core ⇄ State store (SQLite)
//
// The server provides:
//   - REST API for app lifecycle and event publishing
//   - WebSocket stream of every bus event
//   - Boot status and error history for the failure overlay
//   - Prometheus metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - config/system.json and config/modules.json for the shell itself
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -config ./config -apps ./apps
//
//	# Development mode (console logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown; persistent app state is saved
package main
