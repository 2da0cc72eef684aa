// Package eventbus provides the shell's in-process publish/subscribe bus.
//
// Apps, the loader and the boot sequence coordinate exclusively through
// named events. Subscriptions may be tagged with an app ID so that all of
// an app's handlers disappear with a single CleanupApp call when the app
// is deactivated.
//
// Delivery rules:
//   - Emit snapshots the subscriber list, then invokes handlers in
//     subscription order on the caller's goroutine
//   - Errors and panics are contained per handler and re-published as
//     ErrorEvent; failures inside ErrorEvent handlers are only logged
//   - Handlers slower than Options.SlowHandler are reported, not cancelled
//   - Each event accepts at most Options.MaxSubscribers subscriptions;
//     extra subscriptions are refused with a warning and a no-op Token
//
// Example Usage:
//
//	bus := eventbus.New(eventbus.Options{Logger: logger})
//	tok := bus.On("theme:changed", func(e eventbus.Event) error {
//	    return apply(e.Data)
//	}, eventbus.ForApp("editor"))
//	bus.Emit("theme:changed", "dark")
//	bus.CleanupApp("editor")
package eventbus
