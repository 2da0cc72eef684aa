// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Every shell component receives a named child logger from Component so
// the event bus, loader, registry and boot sequence can be told apart:
//
//	logger := logging.NewOrNop(logging.DefaultConfig())
//	bus := eventbus.New(eventbus.Options{Logger: logger.Component("eventbus")})
//	logger.Info("Shell starting", zap.String("port", "8000"))
package logging
