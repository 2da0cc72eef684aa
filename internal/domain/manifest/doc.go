// Package manifest models application manifests and how they are fetched.
//
// A manifest is a small JSON (or YAML/TOML) document naming an app, its
// entry point, its dependencies and the flags that decide which loader
// runs it. Validation is limited to the presence of name and entry/main.
//
// Components:
//   - Manifest: the descriptor and its loader Kind
//   - HTTPFetcher, FileFetcher, MultiFetcher: document retrieval
//   - Cache: URL-keyed memoization used by the registry
package manifest
