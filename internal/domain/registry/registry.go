package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/domain/app"
	"github.com/mizuos/shell/internal/domain/manifest"
	"github.com/mizuos/shell/internal/infrastructure/monitoring"
	"github.com/mizuos/shell/internal/shared/types"
)

var (
	ErrNotRegistered     = errors.New("app not registered")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInUse             = errors.New("app is loaded")
	ErrEmptyName         = errors.New("app name is required")
	ErrNilFactory        = errors.New("app factory is required")
)

// RegisteredEvent is published after every successful registration
const RegisteredEvent = "app:registered"

// Registration is one registered app. Only Status changes after creation;
// re-registering replaces the whole entry.
type Registration struct {
	Name         string             `json:"name"`
	ManifestURL  string             `json:"manifest_url,omitempty"`
	Manifest     *manifest.Manifest `json:"manifest"`
	Factory      app.Factory        `json:"-"`
	Status       types.Status       `json:"status"`
	RegisteredAt time.Time          `json:"registered_at"`
}

// Publisher is the part of the event bus the registry needs
type Publisher interface {
	Emit(event string, data interface{}) int
}

// Options configures an AppRegistry
type Options struct {
	Manifests *manifest.Cache
	Bus       Publisher
	Logger    *zap.Logger
	Metrics   *monitoring.Metrics
}

// AppRegistry holds app registrations keyed by name
type AppRegistry struct {
	mu          sync.RWMutex
	apps        map[string]*Registration
	lastUpdated time.Time

	manifests *manifest.Cache
	bus       Publisher
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

// New creates an empty registry
func New(opts Options) *AppRegistry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &AppRegistry{
		apps:      make(map[string]*Registration),
		manifests: opts.Manifests,
		bus:       opts.Bus,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// RegisterApp fetches the manifest at manifestURL (once per URL) and
// registers factory under name
func (r *AppRegistry) RegisterApp(ctx context.Context, name, manifestURL string, factory app.Factory) error {
	if name == "" {
		return ErrEmptyName
	}
	if factory == nil {
		return fmt.Errorf("register %s: %w", name, ErrNilFactory)
	}
	if r.manifests == nil {
		return fmt.Errorf("register %s: no manifest cache configured", name)
	}

	m, err := r.manifests.Load(ctx, manifestURL)
	if err != nil {
		return err
	}
	if m.Name != name {
		r.logger.Warn("Manifest name differs from registration name",
			zap.String("app", name),
			zap.String("manifest_name", m.Name),
			zap.String("url", manifestURL),
		)
	}

	r.register(name, manifestURL, m.Clone(), factory)
	return nil
}

// RegisterBuiltIn registers an app whose manifest is compiled in
func (r *AppRegistry) RegisterBuiltIn(m *manifest.Manifest, factory app.Factory) error {
	if m == nil {
		return fmt.Errorf("register built-in: %w", manifest.ErrMissingName)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("register built-in %s: %w", m.Name, err)
	}
	if factory == nil {
		return fmt.Errorf("register %s: %w", m.Name, ErrNilFactory)
	}

	r.register(m.Name, "", m.Clone(), factory)
	return nil
}

// register stores the entry. An app that is already registered keeps its
// status so a live instance is not orphaned; the new manifest and factory
// take effect on its next load.
func (r *AppRegistry) register(name, url string, m *manifest.Manifest, factory app.Factory) {
	now := time.Now()
	reg := &Registration{
		Name:         name,
		ManifestURL:  url,
		Manifest:     m,
		Factory:      factory,
		Status:       types.StatusRegistered,
		RegisteredAt: now,
	}

	r.mu.Lock()
	prev, existed := r.apps[name]
	if existed {
		reg.Status = prev.Status
	}
	r.apps[name] = reg
	r.lastUpdated = now
	total := len(r.apps)
	snap := *reg
	r.mu.Unlock()

	r.metrics.SetAppsRegistered(total)
	if !existed {
		r.metrics.RecordTransition(name, string(types.StatusRegistered))
	}

	r.logger.Info("App registered",
		zap.String("app", name),
		zap.String("kind", string(m.Kind())),
		zap.Bool("replaced", existed),
	)
	if r.bus != nil {
		r.bus.Emit(RegisteredEvent, snap)
	}
}

// Get returns a copy of the registration for name
func (r *AppRegistry) Get(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.apps[name]
	if !ok {
		return Registration{}, false
	}
	return *reg, true
}

// Status returns the lifecycle status of name; unknown apps are unregistered
func (r *AppRegistry) Status(name string) types.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if reg, ok := r.apps[name]; ok {
		return reg.Status
	}
	return types.StatusUnregistered
}

// List returns registrations sorted by name, optionally filtered to the
// given statuses
func (r *AppRegistry) List(statuses ...types.Status) []Registration {
	r.mu.RLock()
	out := make([]Registration, 0, len(r.apps))
	for _, reg := range r.apps {
		if len(statuses) == 0 || containsStatus(statuses, reg.Status) {
			out = append(out, *reg)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetStatus moves name to status, returning the previous status.
// Setting the current status again is a no-op.
func (r *AppRegistry) SetStatus(name string, status types.Status) (types.Status, error) {
	r.mu.Lock()
	reg, ok := r.apps[name]
	if !ok {
		r.mu.Unlock()
		return types.StatusUnregistered, fmt.Errorf("%s: %w", name, ErrNotRegistered)
	}
	from := reg.Status
	if from == status {
		r.mu.Unlock()
		return from, nil
	}
	if !from.CanTransition(status) {
		r.mu.Unlock()
		return from, fmt.Errorf("%s: %w: %s -> %s", name, ErrInvalidTransition, from, status)
	}
	reg.Status = status
	r.lastUpdated = time.Now()
	r.mu.Unlock()

	r.metrics.RecordTransition(name, string(status))
	r.logger.Debug("App status changed",
		zap.String("app", name),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
	)
	return from, nil
}

// MarkPersistent flags name's manifest persistent, as system.json's
// persistentApps list does. The change applies from the app's next load.
func (r *AppRegistry) MarkPersistent(name string) error {
	r.mu.Lock()
	reg, ok := r.apps[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", name, ErrNotRegistered)
	}
	if !reg.Manifest.Persistent {
		m := reg.Manifest.Clone()
		m.Persistent = true
		reg.Manifest = m
		r.lastUpdated = time.Now()
	}
	r.mu.Unlock()
	return nil
}

// Unregister removes name. Apps holding a live instance must be unloaded
// first.
func (r *AppRegistry) Unregister(name string) error {
	r.mu.Lock()
	reg, ok := r.apps[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", name, ErrNotRegistered)
	}
	if reg.Status == types.StatusLoaded || reg.Status.IsMounted() {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", name, ErrInUse)
	}
	delete(r.apps, name)
	r.lastUpdated = time.Now()
	total := len(r.apps)
	r.mu.Unlock()

	r.metrics.SetAppsRegistered(total)
	r.logger.Info("App unregistered", zap.String("app", name))
	return nil
}

// Stats returns registry statistics
func (r *AppRegistry) Stats() types.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byStatus := make(map[types.Status]int)
	categories := make(map[string]int)
	for _, reg := range r.apps {
		byStatus[reg.Status]++
		category := reg.Manifest.Category
		if category == "" {
			category = "uncategorized"
		}
		categories[category]++
	}

	var lastUpdated *time.Time
	if !r.lastUpdated.IsZero() {
		t := r.lastUpdated
		lastUpdated = &t
	}

	cached := 0
	if r.manifests != nil {
		cached = r.manifests.Len()
	}

	return types.RegistryStats{
		TotalApps:      len(r.apps),
		ByStatus:       byStatus,
		Categories:     categories,
		CachedManifest: cached,
		LastUpdated:    lastUpdated,
	}
}

func containsStatus(statuses []types.Status, s types.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
