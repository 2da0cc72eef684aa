package boot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizuos/shell/internal/domain/eventbus"
	"github.com/mizuos/shell/internal/domain/fault"
)

type recorder struct {
	mu  sync.Mutex
	ran []string
}

func (r *recorder) step(name string) StepFunc {
	return func(context.Context) error {
		r.mu.Lock()
		r.ran = append(r.ran, name)
		r.mu.Unlock()
		return nil
	}
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

func TestExecuteRunsPhasesInOrder(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	var steps []string
	var completed int
	bus.On(StepEvent, func(e eventbus.Event) error {
		steps = append(steps, e.Data.(StepResult).Step)
		return nil
	})
	bus.On(CompleteEvent, func(eventbus.Event) error {
		completed++
		return nil
	})

	rec := &recorder{}
	seq := NewSequence(Options{Bus: bus})

	// Added out of order on purpose
	require.NoError(t, seq.Add(Step{Name: "app:music", Phase: PhaseApps, Run: rec.step("app:music")}))
	require.NoError(t, seq.Add(Step{Name: "launcher", Phase: PhaseSystem, DependsOn: []string{"statusbar"}, Run: rec.step("launcher")}))
	require.NoError(t, seq.Add(Step{Name: "statusbar", Phase: PhaseSystem, DependsOn: []string{"config"}, Run: rec.step("statusbar")}))
	require.NoError(t, seq.Add(Step{Name: "styles", Phase: PhaseStyles, Run: rec.step("styles")}))
	require.NoError(t, seq.Add(Step{Name: "config", Phase: PhaseConfig, Run: rec.step("config")}))

	require.NoError(t, seq.Execute(context.Background()))

	want := []string{"config", "styles", "statusbar", "launcher", "app:music"}
	assert.Equal(t, want, rec.names())
	assert.Equal(t, want, steps)
	assert.Equal(t, 1, completed)

	report := seq.Report()
	assert.Equal(t, StateComplete, report.State)
	assert.Equal(t, want, report.Completed)
	assert.NotEmpty(t, report.RunID)
	assert.NotNil(t, report.FinishedAt)

	for _, n := range want {
		assert.True(t, seq.Deps().IsLoaded(n))
	}
}

func TestEmptyPhasesAreSkipped(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	var events []string
	bus.On(StepEvent, func(e eventbus.Event) error {
		r := e.Data.(StepResult)
		events = append(events, r.Step+"@"+string(r.Phase))
		return nil
	})

	rec := &recorder{}
	seq := NewSequence(Options{Bus: bus})
	require.NoError(t, seq.Add(Step{Name: "open-app", Phase: PhaseApps, Run: rec.step("open-app")}))
	require.NoError(t, seq.Add(Step{Name: "statusbar", Phase: PhaseSystem, Run: rec.step("statusbar")}))

	require.NoError(t, seq.Execute(context.Background()))

	assert.Equal(t, []string{"statusbar", "open-app"}, rec.names())
	assert.Equal(t, []string{"statusbar@system", "open-app@apps"}, events)
}

func TestExecuteAbortsOnFirstFailure(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	errs := fault.NewHandler(fault.Options{Bus: bus})

	var failed int
	bus.On(FailedEvent, func(e eventbus.Event) error {
		failed++
		assert.Equal(t, StateFailed, e.Data.(Report).State)
		return nil
	})

	rec := &recorder{}
	seq := NewSequence(Options{Bus: bus, Errors: errs})
	boom := errors.New("styles missing")
	require.NoError(t, seq.Add(Step{Name: "config", Phase: PhaseConfig, Run: rec.step("config")}))
	require.NoError(t, seq.Add(Step{Name: "styles", Phase: PhaseStyles, Run: func(context.Context) error { return boom }}))
	require.NoError(t, seq.Add(Step{Name: "statusbar", Phase: PhaseSystem, Run: rec.step("statusbar")}))

	err := seq.Execute(context.Background())
	require.Error(t, err)

	var bootErr *fault.BootError
	require.ErrorAs(t, err, &bootErr)
	assert.Equal(t, "styles", bootErr.Phase)
	assert.Equal(t, "styles", bootErr.Step)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"config"}, rec.names())
	assert.Equal(t, 1, failed)

	fatal, ok := errs.FatalError()
	require.True(t, ok)
	assert.Equal(t, fault.KindBoot, fatal.Kind)

	report := seq.Report()
	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, PhaseStyles, report.Phase)
	assert.Contains(t, report.Error, "styles missing")
}

func TestExecuteResumesAfterFailure(t *testing.T) {
	rec := &recorder{}
	seq := NewSequence(Options{})

	broken := true
	require.NoError(t, seq.Add(Step{Name: "config", Phase: PhaseConfig, Run: rec.step("config")}))
	require.NoError(t, seq.Add(Step{Name: "logo", Phase: PhaseSystem, Run: func(ctx context.Context) error {
		if broken {
			return errors.New("no canvas")
		}
		return rec.step("logo")(ctx)
	}}))

	require.Error(t, seq.Execute(context.Background()))
	broken = false
	require.NoError(t, seq.Execute(context.Background()))

	assert.Equal(t, []string{"config", "logo"}, rec.names(), "config is not run twice")
}

func TestStepTimeoutCancelsContext(t *testing.T) {
	seq := NewSequence(Options{StepTimeout: 20 * time.Millisecond})

	cancelled := make(chan struct{})
	require.NoError(t, seq.Add(Step{Name: "slow", Phase: PhaseConfig, Run: func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}}))

	err := seq.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("step context was not cancelled")
	}
}

func TestStepIgnoringContextIsAbandoned(t *testing.T) {
	seq := NewSequence(Options{StepTimeout: 20 * time.Millisecond})
	release := make(chan struct{})
	defer close(release)

	require.NoError(t, seq.Add(Step{Name: "stuck", Phase: PhaseConfig, Run: func(context.Context) error {
		<-release
		return nil
	}}))

	start := time.Now()
	err := seq.Execute(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStepPanicBecomesBootError(t *testing.T) {
	seq := NewSequence(Options{})
	require.NoError(t, seq.Add(Step{Name: "bad", Phase: PhaseSystem, Run: func(context.Context) error {
		panic("nil window")
	}}))

	err := seq.Execute(context.Background())
	var panicErr *fault.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, fault.KindBoot, fault.KindOf(err))
}

func TestMissingCrossPhaseDependency(t *testing.T) {
	seq := NewSequence(Options{})
	require.NoError(t, seq.Add(Step{Name: "statusbar", Phase: PhaseSystem, DependsOn: []string{"theme-engine"}, Run: func(context.Context) error { return nil }}))

	err := seq.Execute(context.Background())
	var depErr *fault.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, []string{"theme-engine"}, depErr.Missing)
}

func TestCycleWithinPhase(t *testing.T) {
	seq := NewSequence(Options{})
	noop := func(context.Context) error { return nil }
	require.NoError(t, seq.Add(Step{Name: "a", Phase: PhaseSystem, DependsOn: []string{"b"}, Run: noop}))
	require.NoError(t, seq.Add(Step{Name: "b", Phase: PhaseSystem, DependsOn: []string{"a"}, Run: noop}))

	err := seq.Execute(context.Background())
	var cycle *fault.CircularDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "b", "a"}, cycle.Path)
}

func TestAddValidation(t *testing.T) {
	seq := NewSequence(Options{})
	noop := func(context.Context) error { return nil }

	assert.Error(t, seq.Add(Step{Phase: PhaseConfig, Run: noop}))
	assert.Error(t, seq.Add(Step{Name: "x", Phase: PhaseConfig}))
	assert.ErrorIs(t, seq.Add(Step{Name: "x", Phase: "teardown", Run: noop}), ErrUnknownPhase)

	require.NoError(t, seq.Add(Step{Name: "x", Phase: PhaseConfig, Run: noop}))
	assert.ErrorIs(t, seq.Add(Step{Name: "x", Phase: PhaseApps, Run: noop}), ErrDuplicate)
}

func TestCancelledContextAbortsBoot(t *testing.T) {
	seq := NewSequence(Options{})
	require.NoError(t, seq.Add(Step{Name: "config", Phase: PhaseConfig, Run: func(context.Context) error { return nil }}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := seq.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, seq.Deps().IsLoaded("config"))
}
