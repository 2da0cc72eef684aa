// Package config provides process and shell configuration.
//
// Process settings (ports, log level, bus limits, store DSN) come from the
// environment through envconfig. Shell settings come from two documents in
// the config directory:
//
//   - system.json: version, theme, default app, persistent apps, styles and
//     the system components the boot sequence starts
//   - modules.json: app manifests to register and globs to discover more
//
// Both documents may also be YAML or TOML when named accordingly.
//
// Stored system config:
//
// After the first boot the shell keeps a copy of system.json in the state
// store and boots from that copy for as long as its version matches the
// version of the file on disk. Edits to components, defaultApp,
// persistentApps or styles take effect only once the file's version string
// changes; the stored copy is then replaced by the file. A theme chosen at
// runtime is stored separately and survives such a replacement.
package config
