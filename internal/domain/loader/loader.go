package loader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mizuos/shell/internal/domain/app"
	"github.com/mizuos/shell/internal/domain/eventbus"
	"github.com/mizuos/shell/internal/domain/fault"
	"github.com/mizuos/shell/internal/domain/manifest"
	"github.com/mizuos/shell/internal/domain/registry"
	"github.com/mizuos/shell/internal/infrastructure/monitoring"
	"github.com/mizuos/shell/internal/infrastructure/store"
	"github.com/mizuos/shell/internal/shared/types"
)

// Lifecycle events
const (
	LoadedEvent      = "app:loaded"
	ActivatedEvent   = "app:activated"
	ShownEvent       = "app:shown"
	HiddenEvent      = "app:hidden"
	DeactivatedEvent = "app:deactivated"
	UnloadedEvent    = "app:unloaded"
	ErrorEvent       = "app:error"
)

// DefaultLoadTimeout bounds a shared load once its callers have gone
const DefaultLoadTimeout = 30 * time.Second

var (
	ErrNotLoaded   = errors.New("app not loaded")
	ErrNotActive   = errors.New("app not active")
	ErrNotStateful = errors.New("app does not support state capture")
)

// Components reports system components brought up by the boot sequence.
// Manifest dependencies that are not registered apps are looked up here.
type Components interface {
	IsLoaded(name string) bool
}

// Options configures an AppLoader
type Options struct {
	Registry   *registry.AppRegistry
	Bus        *eventbus.Bus
	Store      store.Store
	Factory    *LoaderFactory
	Components Components
	Errors     *fault.Handler
	Logger     *zap.Logger
	Metrics    *monitoring.Metrics

	// LoadTimeout bounds one load. The load runs detached from the
	// caller's cancellation since other callers may be waiting on it.
	LoadTimeout time.Duration
}

type instance struct {
	id       string
	name     string
	app      app.App
	manifest *manifest.Manifest
	loader   Loader
	mounted  bool
	visible  bool
	loadedAt time.Time
}

// AppLoader owns every live app instance
type AppLoader struct {
	// lifecycle serialises activate, deactivate, unload and state capture.
	// App hooks run while it is held.
	lifecycle sync.Mutex

	mu         sync.RWMutex
	instances  map[string]*instance
	foreground string

	group       singleflight.Group
	loadTimeout time.Duration

	registry   *registry.AppRegistry
	bus        *eventbus.Bus
	store      store.Store
	factory    *LoaderFactory
	components Components
	errors     *fault.Handler
	logger     *zap.Logger
	metrics    *monitoring.Metrics
}

// New creates an AppLoader. Registry and Bus are required.
func New(opts Options) *AppLoader {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.Factory == nil {
		opts.Factory = NewLoaderFactory()
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	return &AppLoader{
		instances:   make(map[string]*instance),
		loadTimeout: opts.LoadTimeout,
		registry:   opts.Registry,
		bus:        opts.Bus,
		store:      opts.Store,
		factory:    opts.Factory,
		components: opts.Components,
		errors:     opts.Errors,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
}

// pending is an event or failure produced under the lifecycle lock and
// published after it is released
type pending struct {
	event string
	data  interface{}

	app string
	op  string
	err error
}

type batch []pending

func (b *batch) emit(event string, data interface{}) {
	*b = append(*b, pending{event: event, data: data})
}

func (b *batch) fail(appName, op string, err error) {
	*b = append(*b, pending{app: appName, op: op, err: err})
}

func (l *AppLoader) publish(b batch) {
	for _, p := range b {
		if p.err != nil {
			l.fail(p.app, p.op, p.err)
			continue
		}
		l.bus.Emit(p.event, p.data)
	}
}

// fail reports err through the error handler and the bus
func (l *AppLoader) fail(appName, op string, err error) {
	if l.errors != nil {
		l.errors.Handle(err, zap.String("app", appName), zap.String("op", op))
	} else {
		l.logger.Error("App operation failed", zap.String("app", appName), zap.String("op", op), zap.Error(err))
	}
	l.bus.Emit(ErrorEvent, types.AppError{App: appName, Op: op, Error: err.Error()})
}

// LoadApp returns the instance for name, loading it and its dependencies
// first if needed. Concurrent calls for the same name share one load.
func (l *AppLoader) LoadApp(ctx context.Context, name string) (app.App, error) {
	if inst, ok := l.get(name); ok {
		return inst.app, nil
	}

	var order []string
	if err := l.resolve(name, nil, make(map[string]bool), &order); err != nil {
		err = &fault.LoadError{App: name, Op: "load", Err: err}
		l.fail(name, "load", err)
		return nil, err
	}

	var out app.App
	for _, n := range order {
		a, err := l.loadOne(ctx, n)
		if err != nil {
			return nil, err
		}
		out = a
	}
	return out, nil
}

// resolve appends name and its app dependencies to order, dependencies
// first. stack holds the apps currently being resolved; meeting one of
// them again is a cycle.
func (l *AppLoader) resolve(name string, stack []string, done map[string]bool, order *[]string) error {
	for i, n := range stack {
		if n == name {
			path := append(append([]string{}, stack[i:]...), name)
			return &fault.CircularDependencyError{Path: path}
		}
	}
	if done[name] {
		return nil
	}

	reg, ok := l.registry.Get(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, registry.ErrNotRegistered)
	}

	stack = append(stack[:len(stack):len(stack)], name)
	var missing []string
	for _, dep := range reg.Manifest.Dependencies {
		if _, ok := l.registry.Get(dep); !ok {
			if l.components == nil || !l.components.IsLoaded(dep) {
				missing = append(missing, dep)
			}
			continue
		}
		if err := l.resolve(dep, stack, done, order); err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		return &fault.DependencyError{For: name, Missing: missing}
	}

	done[name] = true
	*order = append(*order, name)
	return nil
}

func (l *AppLoader) loadOne(ctx context.Context, name string) (app.App, error) {
	if inst, ok := l.get(name); ok {
		return inst.app, nil
	}

	// The load is shared; each caller only stops waiting on its own ctx.
	ch := l.group.DoChan(name, func() (interface{}, error) {
		if inst, ok := l.get(name); ok {
			return inst.app, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.loadTimeout)
		defer cancel()
		return l.instantiate(loadCtx, name)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(app.App), nil
	case <-ctx.Done():
		return nil, &fault.LoadError{App: name, Op: "load", Err: ctx.Err()}
	}
}

func (l *AppLoader) instantiate(ctx context.Context, name string) (app.App, error) {
	reg, ok := l.registry.Get(name)
	if !ok {
		err := &fault.LoadError{App: name, Op: "load", Err: registry.ErrNotRegistered}
		l.fail(name, "load", err)
		return nil, err
	}

	ldr := l.factory.For(reg.Manifest)
	inst := &instance{
		id:       uuid.NewString(),
		name:     name,
		manifest: reg.Manifest,
		loader:   ldr,
	}
	scope := l.bus.Scope(name)
	env := app.Env{
		Name:       name,
		InstanceID: inst.id,
		Manifest:   reg.Manifest,
		Bus:        scope,
		Store:      l.store,
		Logger:     l.logger.With(zap.String("app", name)),
		Errors:     l.errors,
	}

	start := time.Now()
	a, err := construct(ctx, ldr, reg.Factory, env)
	if err != nil {
		scope.Close()
		err = &fault.LoadError{App: name, Op: "load", Err: err}
		l.fail(name, "load", err)
		return nil, err
	}
	inst.app = a
	inst.loadedAt = time.Now()

	if ldr.Retain() {
		if _, ok := a.(app.StatefulApp); ok {
			if restored, err := l.restoreState(ctx, inst); err != nil {
				l.logger.Warn("Failed to restore app state", zap.String("app", name), zap.Error(err))
			} else if restored {
				l.logger.Debug("App state restored", zap.String("app", name))
			}
		}
	}

	l.mu.Lock()
	l.instances[name] = inst
	l.mu.Unlock()

	l.setStatus(name, types.StatusLoaded)
	l.metrics.RecordAppLoad(name, string(ldr.Kind()), time.Since(start))
	l.syncMetrics()
	l.logger.Info("App loaded",
		zap.String("app", name),
		zap.String("instance_id", inst.id),
		zap.String("kind", string(ldr.Kind())),
		zap.Duration("duration", time.Since(start)),
	)

	info, _ := l.Info(name)
	l.bus.Emit(LoadedEvent, info)
	return a, nil
}

func construct(ctx context.Context, ldr Loader, factory app.Factory, env app.Env) (a app.App, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &fault.PanicError{Where: "load " + env.Name, Value: r}
		}
	}()
	return ldr.Load(ctx, factory, env)
}

// ActivateApp brings name to the screen, loading it if needed. Activating
// the visible app again hides it. Other foreground apps are deactivated
// first, so persistent ones end up hidden and the rest are destroyed.
func (l *AppLoader) ActivateApp(ctx context.Context, name string) error {
	if _, err := l.LoadApp(ctx, name); err != nil {
		return err
	}

	var b batch
	l.lifecycle.Lock()
	err := l.activateLocked(ctx, name, &b)
	l.lifecycle.Unlock()

	l.publish(b)
	return err
}

func (l *AppLoader) activateLocked(ctx context.Context, name string, b *batch) error {
	inst, ok := l.get(name)
	if !ok {
		return fmt.Errorf("activate %s: %w", name, ErrNotLoaded)
	}

	if inst.mounted && inst.visible {
		l.hideLocked(inst, b)
		return nil
	}

	if inst.loader.Foreground() {
		l.yieldForegroundLocked(ctx, name, b)
	}

	first := !inst.mounted
	if err := hook(inst, "show", func() {
		if s, ok := inst.app.(app.Shower); ok {
			s.Show()
		}
	}); err != nil {
		b.fail(name, "show", err)
	}

	l.mu.Lock()
	inst.mounted = true
	inst.visible = true
	if inst.loader.Foreground() {
		l.foreground = name
	}
	l.mu.Unlock()

	l.setStatus(name, types.StatusActive)
	l.syncMetrics()

	info, _ := l.Info(name)
	if first {
		l.logger.Info("App activated", zap.String("app", name))
		b.emit(ActivatedEvent, info)
	} else {
		l.logger.Debug("App shown", zap.String("app", name))
		b.emit(ShownEvent, info)
	}
	return nil
}

// yieldForegroundLocked deactivates every other mounted foreground app
// that is still visible or cannot be kept hidden
func (l *AppLoader) yieldForegroundLocked(ctx context.Context, except string, b *batch) {
	l.mu.RLock()
	var others []*instance
	for n, inst := range l.instances {
		if n == except || !inst.mounted || !inst.loader.Foreground() {
			continue
		}
		if inst.visible || !inst.loader.Retain() {
			others = append(others, inst)
		}
	}
	l.mu.RUnlock()

	sort.Slice(others, func(i, j int) bool { return others[i].name < others[j].name })
	for _, inst := range others {
		l.deactivateLocked(ctx, inst, b)
	}
}

func (l *AppLoader) hideLocked(inst *instance, b *batch) {
	if err := hook(inst, "hide", func() {
		if h, ok := inst.app.(app.Hider); ok {
			h.Hide()
		}
	}); err != nil {
		b.fail(inst.name, "hide", err)
	}

	l.mu.Lock()
	inst.visible = false
	if l.foreground == inst.name {
		l.foreground = ""
	}
	l.mu.Unlock()

	l.setStatus(inst.name, types.StatusHidden)
	info, _ := l.Info(inst.name)
	b.emit(HiddenEvent, info)
}

// DeactivateApp takes name off the screen. Persistent apps have their
// state captured and stay mounted, hidden; other apps are destroyed and
// their bus subscriptions removed.
func (l *AppLoader) DeactivateApp(ctx context.Context, name string) error {
	var b batch
	l.lifecycle.Lock()
	inst, ok := l.get(name)
	var err error
	switch {
	case !ok:
		err = fmt.Errorf("deactivate %s: %w", name, ErrNotLoaded)
	case !l.isMounted(inst):
		err = fmt.Errorf("deactivate %s: %w", name, ErrNotActive)
	default:
		l.deactivateLocked(ctx, inst, &b)
	}
	l.lifecycle.Unlock()

	l.publish(b)
	return err
}

func (l *AppLoader) deactivateLocked(ctx context.Context, inst *instance, b *batch) {
	if !inst.loader.Retain() {
		info := l.destroyLocked(inst, b)
		l.logger.Info("App deactivated", zap.String("app", inst.name), zap.Bool("destroyed", true))
		b.emit(DeactivatedEvent, info)
		return
	}

	if err := l.saveState(ctx, inst); err != nil && !errors.Is(err, ErrNotStateful) {
		b.fail(inst.name, "save-state", err)
	}
	if l.isVisible(inst) {
		l.hideLocked(inst, b)
	}

	l.syncMetrics()
	l.logger.Info("App deactivated", zap.String("app", inst.name), zap.Bool("destroyed", false))
	info, _ := l.Info(inst.name)
	b.emit(DeactivatedEvent, info)
}

// destroyLocked runs the teardown hooks, drops every bus subscription the
// app holds and forgets the instance. It returns the final AppInfo.
func (l *AppLoader) destroyLocked(inst *instance, b *batch) types.AppInfo {
	if l.isVisible(inst) {
		if err := hook(inst, "hide", func() {
			if h, ok := inst.app.(app.Hider); ok {
				h.Hide()
			}
		}); err != nil {
			b.fail(inst.name, "hide", err)
		}
	}
	if err := hook(inst, "destroy", func() {
		if d, ok := inst.app.(app.Destroyer); ok {
			d.Destroy()
		}
	}); err != nil {
		b.fail(inst.name, "destroy", err)
	}

	removed := l.bus.CleanupApp(inst.name)

	l.mu.Lock()
	inst.mounted = false
	inst.visible = false
	delete(l.instances, inst.name)
	if l.foreground == inst.name {
		l.foreground = ""
	}
	l.mu.Unlock()

	l.setStatus(inst.name, types.StatusUnloaded)
	l.syncMetrics()
	l.logger.Debug("App destroyed",
		zap.String("app", inst.name),
		zap.Int("subscriptions_removed", removed),
	)

	info := l.infoOf(inst)
	info.Status = types.StatusUnloaded
	return info
}

// UnloadApp destroys name whatever its kind. Persistent stateful apps
// have their state captured first so a later load restores it.
func (l *AppLoader) UnloadApp(ctx context.Context, name string) error {
	var b batch
	l.lifecycle.Lock()
	inst, ok := l.get(name)
	if ok {
		l.unloadLocked(ctx, inst, &b)
	}
	l.lifecycle.Unlock()

	l.publish(b)
	if !ok {
		return fmt.Errorf("unload %s: %w", name, ErrNotLoaded)
	}
	return nil
}

func (l *AppLoader) unloadLocked(ctx context.Context, inst *instance, b *batch) {
	if inst.loader.Retain() || inst.manifest.Persistent {
		if err := l.saveState(ctx, inst); err != nil && !errors.Is(err, ErrNotStateful) {
			b.fail(inst.name, "save-state", err)
		}
	}
	info := l.destroyLocked(inst, b)
	l.logger.Info("App unloaded", zap.String("app", inst.name))
	b.emit(UnloadedEvent, info)
}

// UnloadAll unloads every app, most recently loaded first
func (l *AppLoader) UnloadAll(ctx context.Context) {
	var b batch
	l.lifecycle.Lock()
	l.mu.RLock()
	all := make([]*instance, 0, len(l.instances))
	for _, inst := range l.instances {
		all = append(all, inst)
	}
	l.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].loadedAt.After(all[j].loadedAt) })
	for _, inst := range all {
		l.unloadLocked(ctx, inst, &b)
	}
	l.lifecycle.Unlock()

	l.publish(b)
}

// hook runs an app lifecycle callback, turning a panic into an error
func hook(inst *instance, what string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &fault.PanicError{Where: what + " " + inst.name, Value: r}
		}
	}()
	fn()
	return nil
}

func (l *AppLoader) setStatus(name string, status types.Status) {
	if _, err := l.registry.SetStatus(name, status); err != nil {
		l.logger.Warn("Status not updated", zap.String("app", name), zap.Error(err))
	}
}

func (l *AppLoader) get(name string) (*instance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	inst, ok := l.instances[name]
	return inst, ok
}

func (l *AppLoader) isMounted(inst *instance) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return inst.mounted
}

func (l *AppLoader) isVisible(inst *instance) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return inst.visible
}

func (l *AppLoader) syncMetrics() {
	if l.metrics == nil {
		return
	}
	l.mu.RLock()
	loaded, active := len(l.instances), 0
	for _, inst := range l.instances {
		if inst.mounted {
			active++
		}
	}
	l.mu.RUnlock()
	l.metrics.SetAppCounts(loaded, active)
}
