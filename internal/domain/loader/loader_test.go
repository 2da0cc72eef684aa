package loader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizuos/shell/internal/domain/app"
	"github.com/mizuos/shell/internal/domain/eventbus"
	"github.com/mizuos/shell/internal/domain/fault"
	"github.com/mizuos/shell/internal/domain/manifest"
	"github.com/mizuos/shell/internal/domain/registry"
	"github.com/mizuos/shell/internal/infrastructure/store"
	"github.com/mizuos/shell/internal/shared/types"
)

type fakeApp struct {
	mu    sync.Mutex
	env   app.Env
	calls []string
	state string
}

func (a *fakeApp) record(call string) {
	a.mu.Lock()
	a.calls = append(a.calls, call)
	a.mu.Unlock()
}

func (a *fakeApp) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *fakeApp) Init(context.Context) error   { a.record("init"); return nil }
func (a *fakeApp) Render(context.Context) error { a.record("render"); return nil }
func (a *fakeApp) Show()                        { a.record("show") }
func (a *fakeApp) Hide()                        { a.record("hide") }
func (a *fakeApp) Destroy()                     { a.record("destroy") }

type statefulApp struct {
	fakeApp
}

func (a *statefulApp) SerializeState() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return []byte(a.state), nil
}

func (a *statefulApp) RestoreState(data []byte) error {
	a.mu.Lock()
	a.state = string(data)
	a.mu.Unlock()
	return nil
}

type tracker struct {
	mu      sync.Mutex
	created map[string][]app.App
	order   []string
}

func newTracker() *tracker {
	return &tracker{created: make(map[string][]app.App)}
}

func (tr *tracker) factory(stateful bool, delay time.Duration) app.Factory {
	return func(env app.Env) (app.App, error) {
		if delay > 0 {
			time.Sleep(delay)
		}
		var a app.App
		if stateful {
			a = &statefulApp{fakeApp: fakeApp{env: env}}
		} else {
			a = &fakeApp{env: env}
		}
		tr.mu.Lock()
		tr.created[env.Name] = append(tr.created[env.Name], a)
		tr.order = append(tr.order, env.Name)
		tr.mu.Unlock()
		return a, nil
	}
}

func (tr *tracker) count(name string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.created[name])
}

type fixture struct {
	loader   *AppLoader
	registry *registry.AppRegistry
	bus      *eventbus.Bus
	store    store.Store
	tracker  *tracker
	events   *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := eventbus.New(eventbus.Options{})
	reg := registry.New(registry.Options{})
	st := store.NewMemory()
	log := &eventLog{}

	for _, event := range []string{LoadedEvent, ActivatedEvent, ShownEvent, HiddenEvent, DeactivatedEvent, UnloadedEvent, ErrorEvent} {
		event := event
		bus.On(event, func(e eventbus.Event) error {
			var name string
			switch d := e.Data.(type) {
			case types.AppInfo:
				name = d.Name
			case types.AppError:
				name = d.App
			}
			log.mu.Lock()
			log.events = append(log.events, event+" "+name)
			log.mu.Unlock()
			return nil
		})
	}

	return &fixture{
		loader:   New(Options{Registry: reg, Bus: bus, Store: st}),
		registry: reg,
		bus:      bus,
		store:    st,
		tracker:  newTracker(),
		events:   log,
	}
}

func (f *fixture) register(t *testing.T, m manifest.Manifest, stateful bool) {
	t.Helper()
	if m.Entry == "" {
		m.Entry = m.Name + ".js"
	}
	require.NoError(t, f.registry.RegisterBuiltIn(&m, f.tracker.factory(stateful, 0)))
}

func TestLoadAppMemoized(t *testing.T) {
	f := newFixture(t)
	f.register(t, manifest.Manifest{Name: "editor"}, false)
	ctx := context.Background()

	a1, err := f.loader.LoadApp(ctx, "editor")
	require.NoError(t, err)
	a2, err := f.loader.LoadApp(ctx, "editor")
	require.NoError(t, err)

	assert.Same(t, a1.(*fakeApp), a2.(*fakeApp))
	assert.Equal(t, 1, f.tracker.count("editor"))
	assert.Equal(t, []string{"init", "render"}, a1.(*fakeApp).Calls())
	assert.Equal(t, types.StatusLoaded, f.registry.Status("editor"))
	assert.Equal(t, []string{"app:loaded editor"}, f.events.names())

	info, ok := f.loader.Info("editor")
	require.True(t, ok)
	assert.NotEmpty(t, info.InstanceID)
	assert.Equal(t, types.KindWeb, info.Kind)
	assert.Equal(t, "editor", a1.(*fakeApp).env.Bus.AppID())
}

func TestConcurrentLoadAppSharesInstance(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.RegisterBuiltIn(
		&manifest.Manifest{Name: "music", Entry: "music.js"},
		f.tracker.factory(false, 20*time.Millisecond),
	))

	const callers = 16
	results := make([]app.App, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := f.loader.LoadApp(context.Background(), "music")
			assert.NoError(t, err)
			results[i] = a
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.tracker.count("music"))
	for _, a := range results {
		assert.Same(t, results[0].(*fakeApp), a.(*fakeApp))
	}
}

type gatedApp struct {
	fakeApp
	release chan struct{}
}

func (a *gatedApp) Init(ctx context.Context) error {
	select {
	case <-a.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestCancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, f.registry.RegisterBuiltIn(
		&manifest.Manifest{Name: "sheet", Entry: "sheet.js"},
		func(env app.Env) (app.App, error) {
			close(started)
			return &gatedApp{fakeApp: fakeApp{env: env}, release: release}, nil
		},
	))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.loader.LoadApp(ctxA, "sheet")
		errA <- err
	}()
	<-started

	errB := make(chan error, 1)
	go func() {
		_, err := f.loader.LoadApp(context.Background(), "sheet")
		errB <- err
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	require.NoError(t, <-errB)
	assert.Equal(t, types.StatusLoaded, f.registry.Status("sheet"))
}

func TestSharedLoadIsBoundedByLoadTimeout(t *testing.T) {
	f := newFixture(t)
	f.loader = New(Options{Registry: f.registry, Bus: f.bus, Store: f.store, LoadTimeout: 20 * time.Millisecond})
	require.NoError(t, f.registry.RegisterBuiltIn(
		&manifest.Manifest{Name: "sheet", Entry: "sheet.js"},
		func(env app.Env) (app.App, error) {
			return &gatedApp{fakeApp: fakeApp{env: env}, release: make(chan struct{})}, nil
		},
	))

	_, err := f.loader.LoadApp(context.Background(), "sheet")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	_, loaded := f.loader.Info("sheet")
	assert.False(t, loaded)
}

func TestCircularDependency(t *testing.T) {
	f := newFixture(t)
	f.register(t, manifest.Manifest{Name: "A", Dependencies: []string{"B"}}, false)
	f.register(t, manifest.Manifest{Name: "B", Dependencies: []string{"A"}}, false)

	_, err := f.loader.LoadApp(context.Background(), "A")
	require.Error(t, err)

	var cycle *fault.CircularDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"A", "B", "A"}, cycle.Path)
	assert.Contains(t, err.Error(), "A -> B -> A")
	assert.Equal(t, fault.KindDependency, fault.KindOf(err))

	assert.Zero(t, f.tracker.count("A"))
	assert.Zero(t, f.tracker.count("B"))
	assert.Contains(t, f.events.names(), "app:error A")
}

func TestDependenciesLoadFirst(t *testing.T) {
	f := newFixture(t)
	f.register(t, manifest.Manifest{Name: "editor", Dependencies: []string{"fs", "theme"}}, false)
	f.register(t, manifest.Manifest{Name: "fs", Dependencies: []string{"theme"}}, false)
	f.register(t, manifest.Manifest{Name: "theme"}, false)

	_, err := f.loader.LoadApp(context.Background(), "editor")
	require.NoError(t, err)
	assert.Equal(t, []string{"theme", "fs", "editor"}, f.tracker.order)
}

type components map[string]bool

func (c components) IsLoaded(name string) bool { return c[name] }

func TestMissingDependency(t *testing.T) {
	f := newFixture(t)
	f.register(t, manifest.Manifest{Name: "launcher", Dependencies: []string{"statusbar", "ghost"}}, false)

	_, err := f.loader.LoadApp(context.Background(), "launcher")
	var depErr *fault.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, []string{"statusbar", "ghost"}, depErr.Missing)

	f.loader.components = components{"statusbar": true, "ghost": true}
	_, err = f.loader.LoadApp(context.Background(), "launcher")
	assert.NoError(t, err)
}

func TestLoadFailuresAreNotMemoized(t *testing.T) {
	f := newFixture(t)
	fail := true
	require.NoError(t, f.registry.RegisterBuiltIn(&manifest.Manifest{Name: "flaky", Entry: "f.js"}, func(env app.Env) (app.App, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return &fakeApp{env: env}, nil
	}))
	require.NoError(t, f.registry.RegisterBuiltIn(&manifest.Manifest{Name: "panicky", Entry: "p.js"}, func(app.Env) (app.App, error) {
		panic("kaboom")
	}))
	ctx := context.Background()

	_, err := f.loader.LoadApp(ctx, "flaky")
	var loadErr *fault.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "flaky", loadErr.App)
	assert.Equal(t, types.StatusRegistered, f.registry.Status("flaky"))

	fail = false
	_, err = f.loader.LoadApp(ctx, "flaky")
	require.NoError(t, err)

	_, err = f.loader.LoadApp(ctx, "panicky")
	var panicErr *fault.PanicError
	require.ErrorAs(t, err, &panicErr)

	_, err = f.loader.LoadApp(ctx, "nobody")
	assert.ErrorIs(t, err, registry.ErrNotRegistered)
}

func TestActivateSingleForeground(t *testing.T) {
	f := newFixture(t)
	f.register(t, manifest.Manifest{Name: "editor"}, false)
	f.register(t, manifest.Manifest{Name: "spreadsheet"}, false)
	ctx := context.Background()

	require.NoError(t, f.loader.ActivateApp(ctx, "editor"))
	editor := f.tracker.created["editor"][0].(*fakeApp)

	require.NoError(t, f.loader.ActivateApp(ctx, "spreadsheet"))

	assert.Equal(t, []string{"init", "render", "show", "hide", "destroy"}, editor.Calls())
	assert.Equal(t, types.StatusUnloaded, f.registry.Status("editor"))
	assert.Equal(t, types.StatusActive, f.registry.Status("spreadsheet"))
	assert.Equal(t, []string{"spreadsheet"}, f.loader.ActiveApps())

	fg, ok := f.loader.Foreground()
	require.True(t, ok)
	assert.Equal(t, "spreadsheet", fg)

	// Reactivating the destroyed app builds a fresh instance
	require.NoError(t, f.loader.ActivateApp(ctx, "editor"))
	assert.Equal(t, 2, f.tracker.count("editor"))
	assert.Equal(t, types.StatusUnloaded, f.registry.Status("spreadsheet"))
}

func TestPersistentAppSurvivesDeactivation(t *testing.T) {
	f := newFixture(t)
	f.register(t, manifest.Manifest{Name: "music", Persistent: true}, true)
	f.register(t, manifest.Manifest{Name: "editor"}, false)
	ctx := context.Background()

	require.NoError(t, f.loader.ActivateApp(ctx, "music"))
	music := f.tracker.created["music"][0].(*statefulApp)
	music.state = "track-3"

	require.NoError(t, f.loader.ActivateApp(ctx, "editor"))

	assert.Equal(t, []string{"init", "render", "show", "hide"}, music.Calls())
	assert.Equal(t, types.StatusHidden, f.registry.Status("music"))
	assert.Equal(t, []string{"editor", "music"}, f.loader.ActiveApps())

	saved, err := f.store.Get(ctx, store.AppStateKey("music"))
	require.NoError(t, err)
	assert.Equal(t, "track-3", string(saved))

	// Bringing music back destroys the editor and shows the same instance
	require.NoError(t, f.loader.ActivateApp(ctx, "music"))
	assert.Equal(t, 1, f.tracker.count("music"))
	assert.Equal(t, types.StatusActive, f.registry.Status("music"))
	assert.Equal(t, types.StatusUnloaded, f.registry.Status("editor"))
	assert.Contains(t, f.events.names(), "app:shown music")

	info, _ := f.loader.Info("music")
	assert.True(t, info.Visible)
	assert.Equal(t, types.KindPersistent, info.Kind)
}

func TestActivateTogglesVisibility(t *testing.T) {
	f := newFixture(t)
	f.register(t, manifest.Manifest{Name: "editor"}, false)
	ctx := context.Background()

	require.NoError(t, f.loader.ActivateApp(ctx, "editor"))
	require.NoError(t, f.loader.ActivateApp(ctx, "editor"))

	assert.Equal(t, types.StatusHidden, f.registry.Status("editor"))
	_, hasForeground := f.loader.Foreground()
	assert.False(t, hasForeground)

	require.NoError(t, f.loader.ActivateApp(ctx, "editor"))
	assert.Equal(t, types.StatusActive, f.registry.Status("editor"))
	assert.Equal(t, 1, f.tracker.count("editor"))

	assert.Equal(t, []string{
		"app:loaded editor",
		"app:activated editor",
		"app:hidden editor",
		"app:shown editor",
	}, f.events.names())
}

func TestHiddenNonPersistentAppIsDestroyedByNextActivation(t *testing.T) {
	f := newFixture(t)
	f.register(t, manifest.Manifest{Name: "editor"}, false)
	f.register(t, manifest.Manifest{Name: "diagram"}, false)
	ctx := context.Background()

	require.NoError(t, f.loader.ActivateApp(ctx, "editor"))
	require.NoError(t, f.loader.ActivateApp(ctx, "editor")) // hidden
	require.NoError(t, f.loader.ActivateApp(ctx, "diagram"))

	assert.Equal(t, []string{"diagram"}, f.loader.ActiveApps())
	assert.Equal(t, types.StatusUnloaded, f.registry.Status("editor"))
}

func TestWidgetsAndServicesStayBesideForeground(t *testing.T) {
	f := newFixture(t)
	f.register(t, manifest.Manifest{Name: "clock", Widget: true}, false)
	f.register(t, manifest.Manifest{Name: "diagnostics", Service: true}, false)
	f.register(t, manifest.Manifest{Name: "editor"}, false)
	ctx := context.Background()

	require.NoError(t, f.loader.ActivateApp(ctx, "clock"))
	require.NoError(t, f.loader.ActivateApp(ctx, "diagnostics"))
	require.NoError(t, f.loader.ActivateApp(ctx, "editor"))

	assert.Equal(t, []string{"clock", "diagnostics", "editor"}, f.loader.ActiveApps())
	fg, _ := f.loader.Foreground()
	assert.Equal(t, "editor", fg)

	// Services are headless and skip Render
	svc := f.tracker.created["diagnostics"][0].(*fakeApp)
	assert.Equal(t, []string{"init", "show"}, svc.Calls())
}

func TestDeactivateCleansUpSubscriptions(t *testing.T) {
	f := newFixture(t)
	var delivered int
	subscribe := func(env app.Env) (app.App, error) {
		env.Bus.On("theme:changed", func(eventbus.Event) error {
			delivered++
			return nil
		})
		return &fakeApp{env: env}, nil
	}
	require.NoError(t, f.registry.RegisterBuiltIn(&manifest.Manifest{Name: "editor", Entry: "e.js"}, subscribe))
	require.NoError(t, f.registry.RegisterBuiltIn(&manifest.Manifest{Name: "music", Entry: "m.js", Persistent: true}, subscribe))
	ctx := context.Background()

	require.NoError(t, f.loader.ActivateApp(ctx, "editor"))
	require.NoError(t, f.loader.ActivateApp(ctx, "music"))
	assert.Equal(t, 1, f.bus.AppSubscriptionCount("music"))
	assert.Equal(t, 0, f.bus.AppSubscriptionCount("editor"), "editor was destroyed when music took the foreground")

	require.NoError(t, f.loader.DeactivateApp(ctx, "music"))
	assert.Equal(t, 1, f.bus.AppSubscriptionCount("music"), "persistent apps keep listening while hidden")

	f.bus.Emit("theme:changed", "dark")
	assert.Equal(t, 1, delivered)

	require.NoError(t, f.loader.UnloadApp(ctx, "music"))
	assert.Equal(t, 0, f.bus.SubscriberCount("theme:changed"))
}

func TestDeactivateErrors(t *testing.T) {
	f := newFixture(t)
	f.register(t, manifest.Manifest{Name: "editor"}, false)
	ctx := context.Background()

	assert.ErrorIs(t, f.loader.DeactivateApp(ctx, "editor"), ErrNotLoaded)

	_, err := f.loader.LoadApp(ctx, "editor")
	require.NoError(t, err)
	assert.ErrorIs(t, f.loader.DeactivateApp(ctx, "editor"), ErrNotActive)

	assert.ErrorIs(t, f.loader.UnloadApp(ctx, "nobody"), ErrNotLoaded)
}

func TestUnloadPersistentAppRestoresState(t *testing.T) {
	f := newFixture(t)
	f.register(t, manifest.Manifest{Name: "music", Persistent: true}, true)
	ctx := context.Background()

	require.NoError(t, f.loader.ActivateApp(ctx, "music"))
	f.tracker.created["music"][0].(*statefulApp).state = "playlist:chill"

	require.NoError(t, f.loader.UnloadApp(ctx, "music"))
	assert.Equal(t, types.StatusUnloaded, f.registry.Status("music"))
	assert.Empty(t, f.loader.ActiveApps())
	assert.Contains(t, f.events.names(), "app:unloaded music")

	a, err := f.loader.LoadApp(ctx, "music")
	require.NoError(t, err)
	restored := a.(*statefulApp)
	assert.Equal(t, "playlist:chill", restored.state)
	assert.Equal(t, types.StatusLoaded, f.registry.Status("music"))

	restored.state = "changed"
	ok, err := f.loader.RestorePersistentApp(ctx, "music")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "playlist:chill", restored.state)
}

func TestSaveStateRequiresStatefulApp(t *testing.T) {
	f := newFixture(t)
	f.register(t, manifest.Manifest{Name: "editor"}, false)
	ctx := context.Background()

	assert.ErrorIs(t, f.loader.SavePersistentAppState(ctx, "editor"), ErrNotLoaded)

	_, err := f.loader.LoadApp(ctx, "editor")
	require.NoError(t, err)
	assert.ErrorIs(t, f.loader.SavePersistentAppState(ctx, "editor"), ErrNotStateful)

	_, err = f.loader.RestorePersistentApp(ctx, "editor")
	assert.ErrorIs(t, err, ErrNotStateful)
}

type panickyApp struct{ fakeApp }

func (a *panickyApp) Destroy() { panic("destroy failed") }

func TestHookPanicsAreReported(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.RegisterBuiltIn(&manifest.Manifest{Name: "bad", Entry: "b.js"}, func(env app.Env) (app.App, error) {
		return &panickyApp{}, nil
	}))
	ctx := context.Background()

	require.NoError(t, f.loader.ActivateApp(ctx, "bad"))
	require.NoError(t, f.loader.UnloadApp(ctx, "bad"))

	assert.Contains(t, f.events.names(), "app:error bad")
	assert.Equal(t, types.StatusUnloaded, f.registry.Status("bad"))
}

func TestStatsAndUnloadAll(t *testing.T) {
	f := newFixture(t)
	f.register(t, manifest.Manifest{Name: "music", Persistent: true}, true)
	f.register(t, manifest.Manifest{Name: "editor"}, false)
	f.register(t, manifest.Manifest{Name: "clock", Widget: true}, false)
	ctx := context.Background()

	require.NoError(t, f.loader.ActivateApp(ctx, "music"))
	require.NoError(t, f.loader.ActivateApp(ctx, "editor"))
	_, err := f.loader.LoadApp(ctx, "clock")
	require.NoError(t, err)

	stats := f.loader.Stats()
	assert.Equal(t, 3, stats.LoadedApps)
	assert.Equal(t, 2, stats.ActiveApps)
	assert.Equal(t, 1, stats.HiddenApps)
	assert.Equal(t, 1, stats.PersistentApps)
	require.NotNil(t, stats.Foreground)
	assert.Equal(t, "editor", *stats.Foreground)
	assert.Len(t, f.loader.Loaded(), 3)

	f.loader.UnloadAll(ctx)
	assert.Empty(t, f.loader.Loaded())
	for _, name := range []string{"music", "editor", "clock"} {
		assert.Equal(t, types.StatusUnloaded, f.registry.Status(name))
	}
}

func TestLoaderFactoryPrecedence(t *testing.T) {
	factory := NewLoaderFactory()

	tests := []struct {
		m          manifest.Manifest
		kind       types.Kind
		foreground bool
		retain     bool
	}{
		{manifest.Manifest{}, types.KindWeb, true, false},
		{manifest.Manifest{Persistent: true}, types.KindPersistent, true, true},
		{manifest.Manifest{Persistent: true, Widget: true}, types.KindWidget, false, false},
		{manifest.Manifest{Widget: true, Service: true}, types.KindService, false, false},
		{manifest.Manifest{Service: true, System: true}, types.KindSystem, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			l := factory.For(&tt.m)
			assert.Equal(t, tt.kind, l.Kind())
			assert.Equal(t, tt.foreground, l.Foreground())
			assert.Equal(t, tt.retain, l.Retain())
		})
	}
}
