// Package types provides shared data structures for the shell core.
//
// This package defines the types exchanged between the registry, the
// loader, the boot sequence and the HTTP layer, so those packages can
// depend on a common vocabulary without depending on each other.
//
// Core Types:
//   - Status: App lifecycle status and its legal transitions
//   - Kind: Loader flavour selected from manifest flags
//   - AppInfo: Read-only view of a loaded app
//   - RegistryStats, LoaderStats, BusStats: Component statistics
//
// Request Types:
//   - EmitRequest: Publish an event over HTTP
//   - WSMessage: WebSocket frames exchanged with the browser
package types
