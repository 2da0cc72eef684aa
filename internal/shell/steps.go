package shell

import (
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/domain/boot"
	"github.com/mizuos/shell/internal/infrastructure/config"
	"github.com/mizuos/shell/internal/infrastructure/store"
)

// Fixed step names
const (
	StepShellConfig = "shell-config"
	StepTheme       = "theme"
	StepStyles      = "styles"
	StepSeedApps    = "seed-apps"
	StepAutoload    = "autoload"
	StepDefaultApp  = "default-app"
)

func (s *Shell) addFixedSteps() error {
	steps := []boot.Step{
		{Name: StepShellConfig, Phase: boot.PhaseConfig, Run: s.loadConfig},
		{Name: StepTheme, Phase: boot.PhaseConfig, DependsOn: []string{StepShellConfig}, Run: s.loadTheme},
		{Name: StepStyles, Phase: boot.PhaseStyles, DependsOn: []string{StepTheme}, Run: s.loadStyles},
		{Name: StepSeedApps, Phase: boot.PhaseApps, DependsOn: []string{StepShellConfig}, Run: s.seedApps},
		{Name: StepAutoload, Phase: boot.PhaseApps, DependsOn: []string{StepSeedApps}, Run: s.autoload},
		{Name: StepDefaultApp, Phase: boot.PhaseApps, DependsOn: []string{StepAutoload}, Run: s.openDefaultApp},
	}
	for _, step := range steps {
		if err := s.Sequence.Add(step); err != nil {
			return fmt.Errorf("register boot step %s: %w", step.Name, err)
		}
	}
	return nil
}

// loadConfig reads system and modules files, then reconciles the system
// file with the copy kept in the store.
func (s *Shell) loadConfig(ctx context.Context) error {
	files, err := config.LoadShellFiles(ctx, s.fetcher, s.cfg.Shell)
	if err != nil {
		return err
	}

	system, reset, err := store.LoadSystemConfig(ctx, s.Store, files.System)
	if err != nil {
		return err
	}
	if reset {
		s.logger.Info("Stored system config replaced", zap.String("version", system.Version))
	}

	if err := s.addComponentSteps(system.Components); err != nil {
		return err
	}

	s.mu.Lock()
	s.files = files
	s.system = system
	s.mu.Unlock()

	s.Bus.Emit(ConfigLoadedEvent, system)
	return nil
}

// addComponentSteps registers one system-phase step per component. Steps
// that already exist from an earlier run are left alone.
func (s *Shell) addComponentSteps(components []config.ComponentSpec) error {
	for _, c := range components {
		name := c.Name
		step := boot.Step{
			Name:      name,
			Phase:     boot.PhaseSystem,
			DependsOn: c.DependsOn,
			Run: func(ctx context.Context) error {
				s.Bus.Emit(ComponentReadyEvent, name)
				return nil
			},
		}
		if err := s.Sequence.Add(step); err != nil && !errors.Is(err, boot.ErrDuplicate) {
			return fmt.Errorf("component %s: %w", name, err)
		}
	}
	return nil
}

func (s *Shell) loadTheme(ctx context.Context) error {
	theme, err := store.Theme(ctx, s.Store, s.System().Theme)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.theme = theme
	s.mu.Unlock()
	return nil
}

// loadStyles resolves stylesheet paths against the config directory.
// Generating or injecting CSS is the front-end's job.
func (s *Shell) loadStyles(ctx context.Context) error {
	system := s.System()
	styles := make([]string, 0, len(system.Styles)+1)
	if theme := s.Theme(); theme != "" {
		styles = append(styles, path.Join("themes", theme+".css"))
	}
	for _, st := range system.Styles {
		styles = append(styles, config.Resolve(s.cfg.Shell.ConfigDir, st))
	}

	s.mu.Lock()
	s.styles = styles
	s.mu.Unlock()

	s.Bus.Emit(StylesLoadedEvent, styles)
	return nil
}

func (s *Shell) seedApps(ctx context.Context) error {
	s.mu.RLock()
	modules := s.files.Modules
	s.mu.RUnlock()

	res, err := s.seeder.Seed(ctx, modules)
	if err != nil {
		return err
	}
	s.logger.Info("Apps seeded",
		zap.Int("registered", len(res.Registered)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)),
	)

	for _, name := range s.System().PersistentApps {
		if err := s.Registry.MarkPersistent(name); err != nil {
			s.logger.Warn("Persistent app not registered", zap.String("app", name))
		}
	}
	return nil
}

// autoload loads apps flagged autoload in modules.json. A failing app is
// reported by the loader and does not stop the boot.
func (s *Shell) autoload(ctx context.Context) error {
	s.mu.RLock()
	entries := s.files.Modules.Apps
	s.mu.RUnlock()

	for _, e := range entries {
		if !e.Autoload {
			continue
		}
		if _, err := s.Loader.LoadApp(ctx, e.Name); err != nil {
			s.logger.Warn("Autoload failed", zap.String("app", e.Name), zap.Error(err))
		}
	}
	return nil
}

func (s *Shell) openDefaultApp(ctx context.Context) error {
	name := s.System().DefaultApp
	if name == "" {
		return nil
	}
	if err := s.Loader.ActivateApp(ctx, name); err != nil {
		s.logger.Warn("Default app did not open", zap.String("app", name), zap.Error(err))
	}
	return nil
}
