// Package boot brings the shell up in a fixed order.
//
// A Sequence runs four phases, config, styles, system and apps. Within a
// phase, steps run in dependency order as computed by the
// DependencyManager. Each finished step is marked loaded so later steps,
// and the app loader, can check for it.
//
// Failure semantics:
//   - The first failing step aborts the rest of the sequence
//   - The failure is wrapped in a fault.BootError naming phase and step
//   - It is reported to the error handler as fatal and published as
//     boot:failed
//   - Each step runs under its own timeout; the step context is cancelled
//     when the timeout fires
//
// Example Usage:
//
//	deps := boot.NewDependencyManager()
//	seq := boot.NewSequence(boot.Options{Deps: deps, Bus: bus, Errors: errs})
//	seq.Add(boot.Step{Name: "config", Phase: boot.PhaseConfig, Run: loadConfig})
//	seq.Add(boot.Step{Name: "launcher", Phase: boot.PhaseSystem, DependsOn: []string{"statusbar"}, Run: startLauncher})
//	err := seq.Execute(ctx)
package boot
