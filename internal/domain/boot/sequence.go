package boot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/domain/fault"
	"github.com/mizuos/shell/internal/infrastructure/monitoring"
	"github.com/mizuos/shell/internal/shared/id"
)

// Phase groups boot steps
type Phase string

const (
	PhaseConfig Phase = "config"
	PhaseStyles Phase = "styles"
	PhaseSystem Phase = "system"
	PhaseApps   Phase = "apps"
)

// Phases is the fixed execution order
var Phases = []Phase{PhaseConfig, PhaseStyles, PhaseSystem, PhaseApps}

// Boot events
const (
	StepEvent     = "boot:step"
	CompleteEvent = "boot:complete"
	FailedEvent   = "boot:failed"
)

// DefaultStepTimeout bounds a single step
const DefaultStepTimeout = 10 * time.Second

var (
	ErrRunning      = errors.New("boot sequence already running")
	ErrUnknownPhase = errors.New("unknown boot phase")
	ErrDuplicate    = errors.New("duplicate boot step")
)

// State of a sequence run
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateFailed   State = "failed"
)

// StepFunc does the work of one step
type StepFunc func(ctx context.Context) error

// Step is one named unit of boot work
type Step struct {
	Name      string
	Phase     Phase
	DependsOn []string
	Run       StepFunc
}

// StepResult is the payload of boot:step
type StepResult struct {
	RunID    id.RunID      `json:"run_id"`
	Phase    Phase         `json:"phase"`
	Step     string        `json:"step"`
	Duration time.Duration `json:"duration"`
}

// Report describes the latest run
type Report struct {
	RunID      id.RunID   `json:"run_id,omitempty"`
	State      State      `json:"state"`
	Phase      Phase      `json:"phase,omitempty"`
	Completed  []string   `json:"completed"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Publisher is the part of the event bus the sequence needs
type Publisher interface {
	Emit(event string, data interface{}) int
}

// Options configures a Sequence
type Options struct {
	Deps        *DependencyManager
	Bus         Publisher
	Errors      *fault.Handler
	StepTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
}

// Sequence runs boot steps phase by phase
type Sequence struct {
	mu     sync.RWMutex
	steps  map[Phase][]Step
	byName map[string]Step
	report Report

	deps    *DependencyManager
	bus     Publisher
	errors  *fault.Handler
	timeout time.Duration
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewSequence creates an empty sequence
func NewSequence(opts Options) *Sequence {
	if opts.Deps == nil {
		opts.Deps = NewDependencyManager()
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = DefaultStepTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Sequence{
		steps:   make(map[Phase][]Step),
		byName:  make(map[string]Step),
		report:  Report{State: StateIdle, Completed: []string{}},
		deps:    opts.Deps,
		bus:     opts.Bus,
		errors:  opts.Errors,
		timeout: opts.StepTimeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// Deps returns the dependency manager steps are recorded in
func (s *Sequence) Deps() *DependencyManager {
	return s.deps
}

// Add appends a step to its phase and declares its dependencies
func (s *Sequence) Add(step Step) error {
	if step.Name == "" || step.Run == nil {
		return fmt.Errorf("boot step needs a name and a run function")
	}
	if !knownPhase(step.Phase) {
		return fmt.Errorf("step %s: %w: %q", step.Name, ErrUnknownPhase, step.Phase)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[step.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, step.Name)
	}
	s.steps[step.Phase] = append(s.steps[step.Phase], step)
	s.byName[step.Name] = step
	s.deps.Register(step.Name, step.DependsOn...)
	return nil
}

// Execute runs every phase in order. Steps already marked loaded are
// skipped, so a failed boot can be executed again once the cause is fixed.
func (s *Sequence) Execute(ctx context.Context) error {
	s.mu.Lock()
	if s.report.State == StateRunning {
		s.mu.Unlock()
		return ErrRunning
	}
	runID := id.NewRunID()
	started := time.Now()
	s.report = Report{RunID: runID, State: StateRunning, Completed: []string{}, StartedAt: &started}
	s.mu.Unlock()

	logger := s.logger.With(zap.String("run_id", runID.String()))
	logger.Info("Boot sequence starting")

	for _, phase := range Phases {
		s.setPhase(phase)
		if err := s.runPhase(ctx, runID, phase, logger); err != nil {
			s.finish(StateFailed, err)
			rec := s.reportFatal(err)
			logger.Error("Boot sequence failed", zap.Error(err), zap.String("error_id", rec))
			s.emit(FailedEvent, s.Report())
			return err
		}
	}

	s.finish(StateComplete, nil)
	logger.Info("Boot sequence complete", zap.Duration("duration", time.Since(started)))
	s.emit(CompleteEvent, s.Report())
	return nil
}

func (s *Sequence) runPhase(ctx context.Context, runID id.RunID, phase Phase, logger *zap.Logger) error {
	s.mu.RLock()
	steps := append([]Step(nil), s.steps[phase]...)
	s.mu.RUnlock()
	if len(steps) == 0 {
		logger.Debug("Boot phase empty", zap.String("phase", string(phase)))
		return nil
	}

	names := make([]string, len(steps))
	for i, st := range steps {
		names[i] = st.Name
	}
	order, err := s.deps.Order(names...)
	if err != nil {
		return &fault.BootError{Phase: string(phase), Err: err}
	}

	for _, name := range order {
		step := s.step(name)
		if s.deps.IsLoaded(name) {
			logger.Debug("Boot step already loaded", zap.String("step", name))
			continue
		}
		if err := ctx.Err(); err != nil {
			return &fault.BootError{Phase: string(phase), Step: name, Err: err}
		}
		if err := s.deps.Require(name); err != nil {
			return &fault.BootError{Phase: string(phase), Step: name, Err: err}
		}

		start := time.Now()
		err := s.runStep(ctx, step)
		elapsed := time.Since(start)
		s.metrics.RecordBootStep(string(phase), name, elapsed, err != nil)
		if err != nil {
			return &fault.BootError{Phase: string(phase), Step: name, Err: err}
		}

		s.deps.MarkLoaded(name)
		s.mu.Lock()
		s.report.Completed = append(s.report.Completed, name)
		s.mu.Unlock()

		logger.Info("Boot step complete",
			zap.String("phase", string(phase)),
			zap.String("step", name),
			zap.Duration("duration", elapsed),
		)
		s.emit(StepEvent, StepResult{RunID: runID, Phase: phase, Step: name, Duration: elapsed})
	}
	return nil
}

// runStep runs step under its own timeout. A step that ignores its
// context is abandoned when the timeout fires.
func (s *Sequence) runStep(ctx context.Context, step Step) error {
	stepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &fault.PanicError{Where: "boot step " + step.Name, Value: r}
			}
		}()
		done <- step.Run(stepCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-stepCtx.Done():
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("timed out after %s: %w", s.timeout, stepCtx.Err())
		}
		return stepCtx.Err()
	}
}

func (s *Sequence) reportFatal(err error) string {
	if s.errors == nil {
		return ""
	}
	return s.errors.Fatal(err).ID.String()
}

func (s *Sequence) emit(event string, data interface{}) {
	if s.bus != nil {
		s.bus.Emit(event, data)
	}
}

func (s *Sequence) step(name string) Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byName[name]
}

func (s *Sequence) setPhase(p Phase) {
	s.mu.Lock()
	s.report.Phase = p
	s.mu.Unlock()
}

func (s *Sequence) finish(state State, err error) {
	now := time.Now()
	s.mu.Lock()
	s.report.State = state
	s.report.FinishedAt = &now
	if err != nil {
		s.report.Error = err.Error()
	}
	s.mu.Unlock()
}

// Report returns a copy of the latest run's report
func (s *Sequence) Report() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.report
	r.Completed = append([]string{}, s.report.Completed...)
	return r
}

func knownPhase(p Phase) bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}
