package registry

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/domain/app"
	"github.com/mizuos/shell/internal/domain/manifest"
	"github.com/mizuos/shell/internal/infrastructure/config"
)

// Catalog is the static table of app constructors compiled into the shell
type Catalog interface {
	Names() []string
	Factory(name string) (app.Factory, bool)
	Manifest(name string) (*manifest.Manifest, bool)
}

// SeedResult reports what a seeding pass did
type SeedResult struct {
	Registered []string `json:"registered"`
	Skipped    []string `json:"skipped,omitempty"`
	Failed     []string `json:"failed,omitempty"`
}

func (r *SeedResult) merge(o SeedResult) {
	r.Registered = append(r.Registered, o.Registered...)
	r.Skipped = append(r.Skipped, o.Skipped...)
	r.Failed = append(r.Failed, o.Failed...)
}

// Seeder populates the registry from the catalog and manifests
type Seeder struct {
	registry *AppRegistry
	catalog  Catalog
	appsDir  string
	logger   *zap.Logger
}

// NewSeeder creates a seeder that discovers manifests under appsDir
func NewSeeder(registry *AppRegistry, catalog Catalog, appsDir string, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{
		registry: registry,
		catalog:  catalog,
		appsDir:  appsDir,
		logger:   logger,
	}
}

// Seed registers the built-in catalog, then modules.json entries, then
// anything the discovery globs find. Later sources override earlier ones.
func (s *Seeder) Seed(ctx context.Context, modules config.ModulesFile) (SeedResult, error) {
	var result SeedResult
	result.merge(s.SeedBuiltIns())
	result.merge(s.SeedModules(ctx, modules.Apps))

	found, err := s.Discover(ctx, modules.Discover)
	if err != nil {
		return result, err
	}
	result.merge(found)

	s.logger.Info("Seeding complete",
		zap.Int("registered", len(result.Registered)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// SeedBuiltIns registers every catalog app with its compiled-in manifest
func (s *Seeder) SeedBuiltIns() SeedResult {
	var result SeedResult
	for _, name := range s.catalog.Names() {
		m, _ := s.catalog.Manifest(name)
		factory, _ := s.catalog.Factory(name)
		if err := s.registry.RegisterBuiltIn(m, factory); err != nil {
			s.logger.Warn("Failed to register built-in app", zap.String("app", name), zap.Error(err))
			result.Failed = append(result.Failed, name)
			continue
		}
		result.Registered = append(result.Registered, name)
	}
	return result
}

// SeedModules registers the apps listed in modules.json. Entries without a
// manifest URL use the catalog's built-in manifest.
func (s *Seeder) SeedModules(ctx context.Context, entries []config.ModuleEntry) SeedResult {
	var result SeedResult
	for _, entry := range entries {
		factory, ok := s.catalog.Factory(entry.Name)
		if !ok {
			s.logger.Warn("No constructor for module", zap.String("app", entry.Name))
			result.Skipped = append(result.Skipped, entry.Name)
			continue
		}

		var err error
		if entry.Manifest != "" {
			err = s.registry.RegisterApp(ctx, entry.Name, entry.Manifest, factory)
		} else {
			m, _ := s.catalog.Manifest(entry.Name)
			err = s.registry.RegisterBuiltIn(m, factory)
		}
		if err != nil {
			s.logger.Warn("Failed to register module", zap.String("app", entry.Name), zap.Error(err))
			result.Failed = append(result.Failed, entry.Name)
			continue
		}
		result.Registered = append(result.Registered, entry.Name)
	}
	return result
}

// Discover globs appsDir with doublestar patterns such as
// "**/manifest.{json,yaml,toml}" and registers every manifest whose name
// has a constructor in the catalog
func (s *Seeder) Discover(ctx context.Context, patterns []string) (SeedResult, error) {
	var result SeedResult
	if len(patterns) == 0 {
		return result, nil
	}
	if s.registry.manifests == nil {
		return result, fmt.Errorf("discover: no manifest cache configured")
	}

	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return result, fmt.Errorf("discover: %w: %q", doublestar.ErrBadPattern, p)
		}
	}

	if _, err := os.Stat(s.appsDir); os.IsNotExist(err) {
		s.logger.Warn("Apps directory not found", zap.String("dir", s.appsDir))
		return result, nil
	}

	fsys := os.DirFS(s.appsDir)
	seen := make(map[string]struct{})
	var matches []string
	for _, p := range patterns {
		found, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return result, fmt.Errorf("discover %q: %w", p, err)
		}
		for _, f := range found {
			if _, dup := seen[f]; !dup {
				seen[f] = struct{}{}
				matches = append(matches, f)
			}
		}
	}
	sort.Strings(matches)

	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		url := path.Join(s.appsDir, match)
		m, err := s.registry.manifests.Load(ctx, url)
		if err != nil {
			s.logger.Warn("Failed to load discovered manifest", zap.String("path", url), zap.Error(err))
			result.Failed = append(result.Failed, url)
			continue
		}

		factory, ok := s.catalog.Factory(m.Name)
		if !ok {
			s.logger.Debug("Skipping manifest without constructor", zap.String("app", m.Name), zap.String("path", url))
			result.Skipped = append(result.Skipped, m.Name)
			continue
		}

		if err := s.registry.RegisterApp(ctx, m.Name, url, factory); err != nil {
			result.Failed = append(result.Failed, url)
			continue
		}
		result.Registered = append(result.Registered, m.Name)
	}

	return result, nil
}
