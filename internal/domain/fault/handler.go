package fault

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/domain/eventbus"
	"github.com/mizuos/shell/internal/infrastructure/monitoring"
	"github.com/mizuos/shell/internal/shared/id"
)

const (
	// SystemErrorEvent is published for every handled error
	SystemErrorEvent = "system:error"

	DefaultHistorySize = 100
)

// Record is one handled error
type Record struct {
	ID      id.ErrorID `json:"id"`
	Kind    Kind       `json:"kind"`
	Message string     `json:"message"`
	Fatal   bool       `json:"fatal"`
	Time    time.Time  `json:"time"`
}

// Publisher is the slice of the event bus the handler needs
type Publisher interface {
	Emit(event string, data interface{}) int
}

// Options configures a Handler
type Options struct {
	Logger      *zap.Logger
	Bus         Publisher
	Metrics     *monitoring.Metrics
	HistorySize int
}

// Handler is the shell's last line of error handling. It logs, keeps a
// bounded history, publishes system:error and remembers whether a fatal
// (boot) failure happened so the UI can show its overlay.
type Handler struct {
	mu      sync.RWMutex
	history []Record
	fatal   *Record
	limit   int

	logger  *zap.Logger
	bus     Publisher
	metrics *monitoring.Metrics
}

// NewHandler creates an error handler
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	return &Handler{
		limit:   opts.HistorySize,
		logger:  opts.Logger,
		bus:     opts.Bus,
		metrics: opts.Metrics,
	}
}

// Handle records a recoverable error
func (h *Handler) Handle(err error, fields ...zap.Field) Record {
	return h.handle(err, false, fields)
}

// Fatal records an error that leaves the shell unusable until reset
func (h *Handler) Fatal(err error, fields ...zap.Field) Record {
	return h.handle(err, true, fields)
}

func (h *Handler) handle(err error, fatal bool, fields []zap.Field) Record {
	if err == nil {
		err = errors.New("nil error reported")
	}

	rec := Record{
		ID:      id.NewErrorID(),
		Kind:    KindOf(err),
		Message: err.Error(),
		Fatal:   fatal,
		Time:    time.Now(),
	}

	h.mu.Lock()
	h.history = append(h.history, rec)
	if len(h.history) > h.limit {
		h.history = h.history[len(h.history)-h.limit:]
	}
	if fatal {
		stored := rec
		h.fatal = &stored
	}
	h.mu.Unlock()

	h.metrics.RecordError(string(rec.Kind))

	logFields := append([]zap.Field{
		zap.String("error_id", rec.ID.String()),
		zap.String("kind", string(rec.Kind)),
		zap.Error(err),
	}, fields...)
	if fatal {
		h.logger.Error("Fatal shell error", logFields...)
	} else {
		h.logger.Warn("Shell error", logFields...)
	}

	if h.bus != nil {
		h.bus.Emit(SystemErrorEvent, rec)
	}
	return rec
}

// Install routes bus handler failures into the handler
func (h *Handler) Install(bus *eventbus.Bus) eventbus.Token {
	return bus.On(eventbus.ErrorEvent, func(e eventbus.Event) error {
		if herr, ok := e.Data.(*eventbus.HandlerError); ok {
			rec := h.record(KindHandler, herr.Error())
			h.logger.Debug("Recorded handler failure", zap.String("error_id", rec.ID.String()))
		}
		return nil
	})
}

// record stores a pre-classified entry without publishing; handler
// failures already went out on the bus as eventbus:error.
func (h *Handler) record(kind Kind, msg string) Record {
	rec := Record{ID: id.NewErrorID(), Kind: kind, Message: msg, Time: time.Now()}
	h.mu.Lock()
	h.history = append(h.history, rec)
	if len(h.history) > h.limit {
		h.history = h.history[len(h.history)-h.limit:]
	}
	h.mu.Unlock()
	h.metrics.RecordError(string(kind))
	return rec
}

// Guard runs fn and converts a panic into a handled UncaughtError. A nil
// Handler still recovers but records nothing.
func (h *Handler) Guard(where string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Where: where, Value: r}
			if h != nil {
				h.Handle(err)
			}
		}
	}()
	return fn()
}

// Go runs fn on a new goroutine, reporting any error or panic
func (h *Handler) Go(where string, fn func() error) {
	go func() {
		err := h.Guard(where, fn)
		if err == nil || h == nil {
			return
		}
		var panicErr *PanicError
		if !errors.As(err, &panicErr) {
			h.Handle(err, zap.String("where", where))
		}
	}()
}

// FatalError returns the fatal record, if any
func (h *Handler) FatalError() (Record, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.fatal == nil {
		return Record{}, false
	}
	return *h.fatal, true
}

// History returns handled errors, oldest first
func (h *Handler) History() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Record, len(h.history))
	copy(out, h.history)
	return out
}

// Reset clears the history and fatal state, as a reload would
func (h *Handler) Reset() {
	h.mu.Lock()
	h.history = nil
	h.fatal = nil
	h.mu.Unlock()
}
