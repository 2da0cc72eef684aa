// Package registry tracks which applications the shell knows about.
//
// Each registration binds an app name to its manifest, a constructor and a
// lifecycle status. The loader moves the status along as instances come
// and go; the registry only enforces that every move is legal.
//
// Components:
//   - AppRegistry: registrations, status machine and statistics
//   - Seeder: registers apps from modules.json entries, the built-in
//     catalog, or manifests discovered on disk with doublestar globs
//
// Status machine:
//
//	unregistered -> registered -> loaded -> active <-> hidden
//	loaded|active|hidden -> unloaded -> loaded
//
// Example Usage:
//
//	reg := registry.New(registry.Options{Manifests: cache, Logger: log})
//	err := reg.RegisterApp(ctx, "music", "apps/music/manifest.json", music.New)
//	r, ok := reg.Get("music")
//	active := reg.List(types.StatusActive)
package registry
