package eventbus

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/infrastructure/monitoring"
	"github.com/mizuos/shell/internal/shared/id"
	"github.com/mizuos/shell/internal/shared/types"
)

const (
	// ErrorEvent carries a *HandlerError whenever a handler fails
	ErrorEvent = "eventbus:error"

	DefaultMaxSubscribers = 100
	DefaultSlowHandler    = 100 * time.Millisecond
)

// Event is what handlers receive
type Event struct {
	Name      string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Handler reacts to an event. A returned error or a panic is reported
// through ErrorEvent and never stops delivery to other handlers.
type Handler func(Event) error

// Subscription is a registered handler
type Subscription struct {
	ID        id.SubscriptionID
	Event     string
	AppID     string
	CreatedAt time.Time

	once    bool
	fired   atomic.Bool
	handler Handler
}

// Options configures a Bus
type Options struct {
	MaxSubscribers int
	SlowHandler    time.Duration
	Logger         *zap.Logger
	Metrics        *monitoring.Metrics
}

// Bus is an in-process publish/subscribe dispatcher.
//
// Handlers run synchronously on the emitting goroutine in subscription
// order. The bus lock is never held while a handler runs, so handlers may
// freely subscribe, unsubscribe and emit.
type Bus struct {
	mu    sync.RWMutex
	subs  map[string][]*Subscription                       // event -> subscriptions, insertion order
	byApp map[string]map[id.SubscriptionID]*Subscription // appID -> subscriptions
	taps  map[int]func(Event)
	tapID int

	maxSubscribers int
	slowHandler    time.Duration
	logger         *zap.Logger
	metrics        *monitoring.Metrics

	emitted   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

// New creates an event bus
func New(opts Options) *Bus {
	if opts.MaxSubscribers <= 0 {
		opts.MaxSubscribers = DefaultMaxSubscribers
	}
	if opts.SlowHandler <= 0 {
		opts.SlowHandler = DefaultSlowHandler
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Bus{
		subs:           make(map[string][]*Subscription),
		byApp:          make(map[string]map[id.SubscriptionID]*Subscription),
		taps:           make(map[int]func(Event)),
		maxSubscribers: opts.MaxSubscribers,
		slowHandler:    opts.SlowHandler,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}
}

// SubscribeOption customises a subscription
type SubscribeOption func(*Subscription)

// ForApp tags a subscription with the owning app so CleanupApp can find it
func ForApp(appID string) SubscribeOption {
	return func(s *Subscription) {
		s.AppID = appID
	}
}

// On subscribes handler to event. When the per-event ceiling is reached
// the subscription is refused with a warning and a no-op Token returned.
func (b *Bus) On(event string, handler Handler, opts ...SubscribeOption) Token {
	return b.subscribe(event, handler, false, opts)
}

// Once subscribes handler for a single delivery
func (b *Bus) Once(event string, handler Handler, opts ...SubscribeOption) Token {
	return b.subscribe(event, handler, true, opts)
}

func (b *Bus) subscribe(event string, handler Handler, once bool, opts []SubscribeOption) Token {
	if handler == nil {
		b.logger.Warn("Ignoring nil handler", zap.String("event", event))
		return Token{}
	}

	sub := &Subscription{
		ID:        id.NewSubscriptionID(),
		Event:     event,
		CreatedAt: time.Now(),
		once:      once,
		handler:   handler,
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	if len(b.subs[event]) >= b.maxSubscribers {
		b.mu.Unlock()
		b.rejected.Add(1)
		b.metrics.RecordRejectedSubscription(event)
		b.logger.Warn("Subscriber limit reached, subscription ignored",
			zap.String("event", event),
			zap.String("app_id", sub.AppID),
			zap.Int("limit", b.maxSubscribers),
		)
		return Token{}
	}

	b.subs[event] = append(b.subs[event], sub)
	if sub.AppID != "" {
		owned, ok := b.byApp[sub.AppID]
		if !ok {
			owned = make(map[id.SubscriptionID]*Subscription)
			b.byApp[sub.AppID] = owned
		}
		owned[sub.ID] = sub
	}
	total := b.countLocked()
	b.mu.Unlock()

	b.metrics.SetSubscriptions(total)
	return Token{bus: b, event: event, id: sub.ID}
}

// Off removes the subscription with the given ID from event
func (b *Bus) Off(event string, subID id.SubscriptionID) bool {
	b.mu.Lock()
	removed := b.removeLocked(event, subID)
	total := b.countLocked()
	b.mu.Unlock()

	if removed {
		b.metrics.SetSubscriptions(total)
	}
	return removed
}

// Emit delivers data to every handler subscribed to event when the call
// starts, and returns how many handlers were invoked. Handlers removed
// during the emit still run; handlers added during it do not.
func (b *Bus) Emit(event string, data interface{}) int {
	evt := Event{Name: event, Data: data, Timestamp: time.Now()}

	b.mu.RLock()
	snapshot := make([]*Subscription, len(b.subs[event]))
	copy(snapshot, b.subs[event])
	taps := make([]func(Event), 0, len(b.taps))
	for _, tap := range b.taps {
		taps = append(taps, tap)
	}
	b.mu.RUnlock()

	invoked := 0
	for _, sub := range snapshot {
		// A once-subscription is claimed before it runs; losing the claim
		// means a nested or concurrent emit already delivered it.
		if sub.once {
			if !sub.fired.CompareAndSwap(false, true) {
				continue
			}
			b.Off(event, sub.ID)
		}
		invoked++
		b.invoke(sub, evt)
	}

	for _, tap := range taps {
		b.safeTap(tap, evt)
	}

	b.emitted.Add(1)
	b.delivered.Add(uint64(invoked))
	b.metrics.RecordEmit(event, invoked)
	return invoked
}

func (b *Bus) invoke(sub *Subscription, evt Event) {
	start := time.Now()
	err := b.call(sub.handler, evt)
	elapsed := time.Since(start)

	// Handlers cannot be preempted; the threshold only produces a warning.
	if elapsed > b.slowHandler {
		b.metrics.RecordSlowHandler(evt.Name)
		b.logger.Warn("Slow event handler",
			zap.String("event", evt.Name),
			zap.String("subscription_id", sub.ID.String()),
			zap.String("app_id", sub.AppID),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", b.slowHandler),
		)
	}

	if err == nil {
		return
	}

	b.failed.Add(1)
	b.metrics.RecordHandlerError(evt.Name)
	herr := &HandlerError{
		Event:          evt.Name,
		SubscriptionID: sub.ID,
		AppID:          sub.AppID,
		Err:            err,
	}
	b.logger.Error("Event handler failed",
		zap.String("event", evt.Name),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("app_id", sub.AppID),
		zap.Error(err),
	)

	// Failures of error handlers are only logged, otherwise a broken
	// error handler would recurse forever.
	if evt.Name != ErrorEvent {
		b.Emit(ErrorEvent, herr)
	}
}

func (b *Bus) call(handler Handler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(evt)
}

func (b *Bus) safeTap(tap func(Event), evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event tap panicked", zap.String("event", evt.Name), zap.Any("panic", r))
		}
	}()
	tap(evt)
}

// CleanupApp removes every subscription tagged with appID
func (b *Bus) CleanupApp(appID string) int {
	if appID == "" {
		return 0
	}

	b.mu.Lock()
	owned := b.byApp[appID]
	removed := 0
	for subID, sub := range owned {
		if b.removeLocked(sub.Event, subID) {
			removed++
		}
	}
	delete(b.byApp, appID)
	total := b.countLocked()
	b.mu.Unlock()

	if removed > 0 {
		b.metrics.SetSubscriptions(total)
		b.logger.Debug("Cleaned up app subscriptions",
			zap.String("app_id", appID),
			zap.Int("removed", removed),
		)
	}
	return removed
}

// Tap registers an observer that sees every emitted event. Taps do not
// count toward subscriber limits or counts. The returned func removes it.
func (b *Bus) Tap(fn func(Event)) func() {
	b.mu.Lock()
	b.tapID++
	tapID := b.tapID
	b.taps[tapID] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.taps, tapID)
		b.mu.Unlock()
	}
}

// SubscriberCount returns the number of live subscriptions for event
func (b *Bus) SubscriberCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}

// AppSubscriptionCount returns the number of live subscriptions owned by appID
func (b *Bus) AppSubscriptionCount(appID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byApp[appID])
}

// Events lists events with at least one subscriber, sorted
func (b *Bus) Events() []string {
	b.mu.RLock()
	events := make([]string, 0, len(b.subs))
	for event := range b.subs {
		events = append(events, event)
	}
	b.mu.RUnlock()

	sort.Strings(events)
	return events
}

// Clear drops every subscription and tap
func (b *Bus) Clear() {
	b.mu.Lock()
	b.subs = make(map[string][]*Subscription)
	b.byApp = make(map[string]map[id.SubscriptionID]*Subscription)
	b.taps = make(map[int]func(Event))
	b.mu.Unlock()

	b.metrics.SetSubscriptions(0)
}

// Stats returns bus statistics
func (b *Bus) Stats() types.BusStats {
	b.mu.RLock()
	perEvent := make(map[string]int, len(b.subs))
	for event, subs := range b.subs {
		perEvent[event] = len(subs)
	}
	stats := types.BusStats{
		Events:        len(b.subs),
		Subscriptions: b.countLocked(),
		Apps:          len(b.byApp),
		PerEvent:      perEvent,
	}
	b.mu.RUnlock()

	stats.Emitted = b.emitted.Load()
	stats.Delivered = b.delivered.Load()
	stats.Failed = b.failed.Load()
	stats.Rejected = b.rejected.Load()
	return stats
}

// removeLocked must be called with b.mu held for writing. The per-event
// slice is rebuilt rather than edited in place so snapshots taken by
// concurrent emits keep their contents.
func (b *Bus) removeLocked(event string, subID id.SubscriptionID) bool {
	subs := b.subs[event]
	for i, sub := range subs {
		if sub.ID != subID {
			continue
		}

		next := make([]*Subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, event)
		} else {
			b.subs[event] = next
		}

		if sub.AppID != "" {
			if owned, ok := b.byApp[sub.AppID]; ok {
				delete(owned, subID)
				if len(owned) == 0 {
					delete(b.byApp, sub.AppID)
				}
			}
		}
		return true
	}
	return false
}

func (b *Bus) countLocked() int {
	total := 0
	for _, subs := range b.subs {
		total += len(subs)
	}
	return total
}
