// Package loader runs application instances for the shell.
//
// AppLoader turns registrations into live instances and moves them through
// the lifecycle. Which loader handles an app is picked by LoaderFactory from
// the manifest flags, in the order system, service, widget, persistent, web.
//
// Features:
//   - Lazy, memoized loading; concurrent LoadApp calls share one load
//   - Dependency resolution with circular dependency detection
//   - Single foreground app; persistent apps are hidden instead of destroyed
//   - State capture through the StatefulApp capability and the state store
//   - Lifecycle events on the bus (app:loaded, app:activated, app:shown,
//     app:hidden, app:deactivated, app:unloaded, app:error)
//
// Example Usage:
//
//	l := loader.New(loader.Options{Registry: reg, Bus: bus, Store: st})
//	err := l.ActivateApp(ctx, "music")
//	err = l.ActivateApp(ctx, "editor") // music keeps playing, hidden
//	err = l.DeactivateApp(ctx, "editor")
package loader
