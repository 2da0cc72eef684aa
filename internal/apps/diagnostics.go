package apps

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/mizuos/shell/internal/domain/app"
	"github.com/mizuos/shell/internal/domain/eventbus"
	"github.com/mizuos/shell/internal/shared/types"
)

// Diagnostics events
const (
	DiagnosticsSample    = "diagnostics:sample"
	DiagnosticsSampleNow = "diagnostics:sample-now"
)

// DefaultDiagnosticsInterval is the sampling period
const DefaultDiagnosticsInterval = 5 * time.Second

// Sample is one diagnostics reading
type Sample struct {
	Timestamp  int64           `json:"timestamp"`
	Goroutines int             `json:"goroutines"`
	HeapAlloc  uint64          `json:"heap_alloc_bytes"`
	HeapSys    uint64          `json:"heap_sys_bytes"`
	NumGC      uint32          `json:"num_gc"`
	Uptime     float64         `json:"uptime_seconds"`
	Bus        *types.BusStats `json:"bus,omitempty"`
}

// Diagnostics is a headless service that samples the runtime
type Diagnostics struct {
	env      app.Env
	stats    StatsSource
	interval time.Duration
	started  time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewDiagnosticsFactory returns a factory sampling every interval
func NewDiagnosticsFactory(stats StatsSource, interval time.Duration) app.Factory {
	if interval <= 0 {
		interval = DefaultDiagnosticsInterval
	}
	return func(env app.Env) (app.App, error) {
		return &Diagnostics{
			env:      env,
			stats:    stats,
			interval: interval,
			stop:     make(chan struct{}),
			done:     make(chan struct{}),
		}, nil
	}
}

// Init starts the sampling loop
func (d *Diagnostics) Init(ctx context.Context) error {
	d.started = time.Now()
	d.env.Bus.On(DiagnosticsSampleNow, func(eventbus.Event) error {
		d.publish()
		return nil
	})

	d.env.Errors.Go("diagnostics sampler", d.loop)
	return nil
}

func (d *Diagnostics) loop() error {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.publish()
		case <-d.stop:
			return nil
		}
	}
}

func (d *Diagnostics) publish() {
	d.env.Bus.Emit(DiagnosticsSample, d.Sample())
}

// Sample reads the current runtime figures
func (d *Diagnostics) Sample() Sample {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s := Sample{
		Timestamp:  time.Now().Unix(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		HeapSys:    m.HeapSys,
		NumGC:      m.NumGC,
		Uptime:     time.Since(d.started).Seconds(),
	}
	if d.stats != nil {
		bus := d.stats.Stats()
		s.Bus = &bus
	}
	return s
}

// Destroy stops the sampling loop and waits for it to exit
func (d *Diagnostics) Destroy() {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
}
