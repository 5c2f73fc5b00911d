package diagnostics

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/g32-bridge/internal/bridges/g32"
	"github.com/nerrad567/g32-bridge/internal/device"
)

// DefaultFlushInterval is how often changed counters are written.
const DefaultFlushInterval = 30 * time.Second

// flushTimeout bounds a single write.
const flushTimeout = 10 * time.Second

// Source is the part of *g32.Manager the persister reads from.
type Source interface {
	SubscribeDiagnostics(serial string, fn func(g32.Diagnostics)) (unsubscribe func())
	Diagnostics(serial string) (g32.Diagnostics, error)
	Devices() []device.Grill
}

// Logger is the logging interface used by the persister.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type counterKey struct {
	serial  string
	counter g32.Counter
}

// Persister writes changed diagnostic counters to a Repository.
//
// Snapshots are coalesced in memory and written every flush interval
// and once more on Stop.
type Persister struct {
	repo     Repository
	interval time.Duration

	mu      sync.Mutex
	saved   map[counterKey]uint64
	pending map[counterKey]uint64

	unsubscribe func()
	done        chan struct{}
	wg          sync.WaitGroup
	stopOnce    sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewPersister creates a persister. A non-positive interval uses
// DefaultFlushInterval. initial holds the values already stored, so
// they are not rewritten on the first flush.
func NewPersister(repo Repository, interval time.Duration, initial []g32.CounterValue) *Persister {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	p := &Persister{
		repo:     repo,
		interval: interval,
		saved:    make(map[counterKey]uint64, len(initial)),
		pending:  make(map[counterKey]uint64),
		done:     make(chan struct{}),
	}
	for _, v := range initial {
		p.saved[counterKey{v.Serial, v.Counter}] = v.Value
	}
	return p
}

// SetLogger sets the logger for the persister.
func (p *Persister) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// Start subscribes to src, records its current counters and starts the
// flush loop. Increments made before Start are therefore not lost.
func (p *Persister) Start(ctx context.Context, src Source) {
	p.unsubscribe = src.SubscribeDiagnostics(g32.AllKeys, p.Observe)

	p.observeCurrent(src, g32.GlobalKey)
	for _, grill := range src.Devices() {
		p.observeCurrent(src, grill.Serial)
	}

	p.wg.Add(1)
	go p.flushLoop(ctx)
}

// Stop unsubscribes, writes anything still pending and waits for the
// flush loop. Safe to call multiple times.
func (p *Persister) Stop() {
	p.stopOnce.Do(func() {
		if p.unsubscribe != nil {
			p.unsubscribe()
		}
		close(p.done)
		p.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		p.Flush(ctx) //nolint:errcheck // logged in Flush
	})
}

func (p *Persister) observeCurrent(src Source, serial string) {
	d, err := src.Diagnostics(serial)
	if err != nil {
		p.logWarn("reading diagnostic counters failed", "serial", serial, "error", err)
		return
	}
	p.Observe(d)
}

// Observe records the counters of a diagnostics snapshot. Counters only
// grow, so a value at or below the pending or saved one is stale and
// ignored.
func (p *Persister) Observe(d g32.Diagnostics) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, v := range d.CounterValues() {
		key := counterKey{v.Serial, v.Counter}
		if pending, ok := p.pending[key]; ok && v.Value <= pending {
			continue
		}
		if saved, ok := p.saved[key]; ok && v.Value <= saved {
			continue
		}
		p.pending[key] = v.Value
	}
}

// Pending returns the number of counters waiting to be written.
func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Flush writes pending counters. On failure they stay pending for the
// next flush.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return nil
	}
	batch := make([]g32.CounterValue, 0, len(p.pending))
	for key, value := range p.pending {
		batch = append(batch, g32.CounterValue{Serial: key.serial, Counter: key.counter, Value: value})
	}
	p.mu.Unlock()

	if err := p.repo.SaveCounters(ctx, batch); err != nil {
		p.logWarn("saving diagnostic counters failed", "count", len(batch), "error", err)
		return err
	}

	p.mu.Lock()
	for _, v := range batch {
		key := counterKey{v.Serial, v.Counter}
		p.saved[key] = v.Value
		// A newer value may have arrived while writing.
		if p.pending[key] == v.Value {
			delete(p.pending, key)
		}
	}
	p.mu.Unlock()

	p.logDebug("saved diagnostic counters", "count", len(batch))
	return nil
}

func (p *Persister) flushLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
			p.Flush(flushCtx) //nolint:errcheck // logged in Flush
			cancel()
		}
	}
}

func (p *Persister) getLogger() Logger {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	return p.logger
}

func (p *Persister) logDebug(msg string, args ...any) {
	if l := p.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}

func (p *Persister) logWarn(msg string, args ...any) {
	if l := p.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}
