// Package shell assembles the Mizu OS core and drives its boot.
//
// A Shell owns one of each core component and registers the four boot
// phases:
//   - config: shell files, stored system config, theme
//   - styles: stylesheet list for the front-end
//   - system: one step per component declared in system.json
//   - apps: seeding, persistent flags, autoload and the default app
//
// Example Usage:
//
//	sh, err := shell.New(ctx, cfg, logger, metrics)
//	if err != nil {
//	    return err
//	}
//	defer sh.Close(ctx)
//	if err := sh.Boot(ctx); err != nil {
//	    // the fault handler already holds the fatal record
//	}
package shell
