package shell

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/apps"
	"github.com/mizuos/shell/internal/domain/boot"
	"github.com/mizuos/shell/internal/domain/eventbus"
	"github.com/mizuos/shell/internal/domain/fault"
	"github.com/mizuos/shell/internal/domain/loader"
	"github.com/mizuos/shell/internal/domain/manifest"
	"github.com/mizuos/shell/internal/domain/registry"
	"github.com/mizuos/shell/internal/infrastructure/config"
	"github.com/mizuos/shell/internal/infrastructure/logging"
	"github.com/mizuos/shell/internal/infrastructure/monitoring"
	"github.com/mizuos/shell/internal/infrastructure/store"
)

// Shell events
const (
	ConfigLoadedEvent   = "config:loaded"
	ThemeChangedEvent   = "theme:changed"
	StylesLoadedEvent   = "styles:loaded"
	ComponentReadyEvent = "component:ready"
)

// Shell wires the core components together
type Shell struct {
	Bus       *eventbus.Bus
	Errors    *fault.Handler
	Store     store.Store
	Manifests *manifest.Cache
	Registry  *registry.AppRegistry
	Loader    *loader.AppLoader
	Deps      *boot.DependencyManager
	Sequence  *boot.Sequence
	Catalog   *apps.Catalog
	Metrics   *monitoring.Metrics

	cfg     *config.Config
	fetcher config.Fetcher
	seeder  *registry.Seeder
	logger  *zap.Logger

	mu     sync.RWMutex
	files  *config.ShellFiles
	system config.SystemFile
	theme  string
	styles []string
	unhook eventbus.Token
}

// New builds every component and registers the boot steps. Nothing is
// loaded until Boot runs.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics) (*Shell, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.Nop()
	}

	bus := eventbus.New(eventbus.Options{
		MaxSubscribers: cfg.Bus.MaxSubscribers,
		SlowHandler:    cfg.Bus.SlowHandler,
		Logger:         logger.Component("eventbus"),
		Metrics:        metrics,
	})

	errs := fault.NewHandler(fault.Options{
		Logger:  logger.Component("errors"),
		Bus:     bus,
		Metrics: metrics,
	})

	st, err := store.Open(ctx, cfg.Store, logger.Component("store"))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	fetcher := manifest.NewMultiFetcher(
		manifest.NewHTTPFetcher(cfg.Shell.FetchTimeout),
		&manifest.FileFetcher{},
	)
	manifests := manifest.NewCache(fetcher, logger.Component("manifest"))

	reg := registry.New(registry.Options{
		Manifests: manifests,
		Bus:       bus,
		Logger:    logger.Component("registry"),
		Metrics:   metrics,
	})

	catalog := apps.NewCatalog(apps.Options{
		Bus:                 bus,
		DiagnosticsInterval: cfg.Shell.DiagnosticsInterval,
	})

	deps := boot.NewDependencyManager()

	ldr := loader.New(loader.Options{
		Registry:   reg,
		Bus:        bus,
		Store:      st,
		Factory:    loader.NewLoaderFactory(),
		Components: deps,
		Errors:     errs,
		Logger:     logger.Component("loader"),
		Metrics:    metrics,

		LoadTimeout: cfg.Shell.LoadTimeout,
	})

	seq := boot.NewSequence(boot.Options{
		Deps:        deps,
		Bus:         bus,
		Errors:      errs,
		StepTimeout: cfg.Boot.StepTimeout,
		Logger:      logger.Component("boot"),
		Metrics:     metrics,
	})

	s := &Shell{
		Bus:       bus,
		Errors:    errs,
		Store:     st,
		Manifests: manifests,
		Registry:  reg,
		Loader:    ldr,
		Deps:      deps,
		Sequence:  seq,
		Catalog:   catalog,
		Metrics:   metrics,
		cfg:       cfg,
		fetcher:   fetcher,
		seeder:    registry.NewSeeder(reg, catalog, cfg.Shell.AppsDir, logger.Component("seeder")),
		logger:    logger.Component("shell"),
		system:    config.DefaultSystemFile(),
	}
	s.unhook = errs.Install(bus)

	if err := s.addFixedSteps(); err != nil {
		st.Close()
		return nil, err
	}
	return s, nil
}

// Boot runs the boot sequence. Components declared in system.json are only
// known once the config phase has read it, so their steps are added then.
func (s *Shell) Boot(ctx context.Context) error {
	s.logger.Info("Booting shell")
	return s.Sequence.Execute(ctx)
}

// System returns the effective system config
func (s *Shell) System() config.SystemFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.system
}

// Theme returns the active theme name
func (s *Shell) Theme() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

// Styles returns the stylesheets the front-end should load
func (s *Shell) Styles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.styles...)
}

// SetTheme stores theme and announces it
func (s *Shell) SetTheme(ctx context.Context, theme string) error {
	if theme == "" {
		return fmt.Errorf("theme name is required")
	}
	if err := store.SetTheme(ctx, s.Store, theme); err != nil {
		return fmt.Errorf("set theme: %w", err)
	}
	s.mu.Lock()
	s.theme = theme
	s.mu.Unlock()

	s.Bus.Emit(ThemeChangedEvent, theme)
	return nil
}

// Close unloads every app and releases the store. Persistent app state is
// saved on the way out.
func (s *Shell) Close(ctx context.Context) error {
	s.Loader.UnloadAll(ctx)
	s.unhook.Unsubscribe()
	if err := s.Store.Close(); err != nil {
		return fmt.Errorf("close state store: %w", err)
	}
	s.logger.Info("Shell closed")
	return nil
}
