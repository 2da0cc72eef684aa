// Package apps is the static catalog of applications compiled into the
// shell.
//
// Each app is a small Go type that reacts to bus events through the
// app-scoped bus view it receives at construction, so unloading an app
// removes every handler it installed. The UIs themselves live in the
// browser; these types hold the state the shell needs to keep and restore.
//
// Built-in apps:
//   - music: persistent and stateful; keeps its playlist across unloads
//   - spreadsheet: raw cell values
//   - diagram: nodes and connections
//   - editor: documents saved under mizu-editor-* in the state store
//   - diagnostics: headless service publishing diagnostics:sample
//
// Example Usage:
//
//	catalog := apps.NewCatalog(apps.Options{Bus: bus})
//	seeder := registry.NewSeeder(reg, catalog, cfg.Shell.AppsDir, logger)
package apps
