// Package fault defines the shell's error taxonomy and its error handler.
//
// Errors are caught at the boundary of each operation and then either
// swallowed with a warning, returned to abort a larger operation (boot),
// or published on the bus. The Handler covers all three: it logs through
// zap, keeps a bounded history, publishes system:error, and flags fatal
// boot failures for the UI overlay.
//
// Guard and Go are the counterparts of a browser's global error and
// unhandledrejection listeners: they recover panics from synchronous calls
// and goroutines and report them as UncaughtError.
package fault
