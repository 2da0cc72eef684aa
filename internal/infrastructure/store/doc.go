// Package store provides the shell's key/value state store.
//
// The store is the server-side counterpart of browser localStorage: flat
// string keys, opaque byte values, last write wins.
//
// Features:
//   - In-memory store for tests and ephemeral shells
//   - SQLite store (modernc.org/sqlite, no cgo) for durable state
//   - Prefix listing for key families such as mizu-editor-*
//   - Helpers for the well-known keys (system config, theme, app state)
//
// Example Usage:
//
//	s, err := store.Open(ctx, cfg.Store, logger)
//	defer s.Close()
//	err = s.Set(ctx, store.ThemeKey, []byte("dark"))
//	theme, err := store.Theme(ctx, s, "light")
package store
