package presence

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/g32-bridge/internal/infrastructure/mqtt"
)

// DefaultHomePayload is the payload that means "home" when a binding
// does not set one.
const DefaultHomePayload = "home"

// Subscriber is the subset of *mqtt.Client the gate uses.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger is the logging interface used by the gate.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Binding ties a grill to a presence topic.
type Binding struct {
	Serial      string
	Topic       string
	HomePayload string
}

type event struct {
	serial    string
	permitted bool
}

// Gate is an MQTT-backed presence gate.
//
// Thread Safety: All methods are safe for concurrent use.
type Gate struct {
	client   Subscriber
	bindings map[string]Binding
	byTopic  map[string][]string

	mu       sync.RWMutex
	state    map[string]bool
	pending  map[string]bool
	watchers map[string]map[uint64]func(bool)
	nextID   uint64

	wake     chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a gate. Bindings with an empty topic are ignored.
func New(client Subscriber, bindings []Binding) *Gate {
	g := &Gate{
		client:   client,
		bindings: make(map[string]Binding),
		byTopic:  make(map[string][]string),
		state:    make(map[string]bool),
		pending:  make(map[string]bool),
		watchers: make(map[string]map[uint64]func(bool)),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, b := range bindings {
		if b.Topic == "" || b.Serial == "" {
			continue
		}
		if b.HomePayload == "" {
			b.HomePayload = DefaultHomePayload
		}
		g.bindings[b.Serial] = b
		g.byTopic[b.Topic] = append(g.byTopic[b.Topic], b.Serial)
	}
	return g
}

// SetLogger sets the logger for the gate.
func (g *Gate) SetLogger(logger Logger) {
	g.loggerMu.Lock()
	g.logger = logger
	g.loggerMu.Unlock()
}

// Start subscribes to every bound topic and starts dispatching
// transitions. Retained presence payloads arrive immediately after
// subscribing.
func (g *Gate) Start(ctx context.Context) error {
	g.wg.Add(1)
	go g.dispatchLoop(ctx)

	for topic := range g.byTopic {
		if err := g.client.Subscribe(topic, 1, g.handleMessage); err != nil {
			return fmt.Errorf("subscribe to presence topic %s: %w", topic, err)
		}
		g.logInfo("watching presence", "topic", topic, "grills", g.byTopic[topic])
	}
	return nil
}

// Stop ends dispatching. Safe to call multiple times.
func (g *Gate) Stop() {
	g.stopOnce.Do(func() {
		close(g.done)
		g.wg.Wait()
	})
}

// Permitted reports whether serial may connect. Unbound grills and
// grills with no presence reading yet are permitted.
func (g *Gate) Permitted(serial string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	home, known := g.state[serial]
	return !known || home
}

// Watch registers fn for presence transitions of serial.
func (g *Gate) Watch(serial string, fn func(permitted bool)) (unsubscribe func()) {
	g.mu.Lock()
	g.nextID++
	id := g.nextID
	if g.watchers[serial] == nil {
		g.watchers[serial] = make(map[uint64]func(bool))
	}
	g.watchers[serial][id] = fn
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.watchers[serial], id)
			g.mu.Unlock()
		})
	}
}

// handleMessage records the presence reading for every grill bound to
// topic and marks a transition pending when it changed. It never blocks:
// while watchers are busy, transitions for a grill collapse into its
// latest state.
func (g *Gate) handleMessage(topic string, payload []byte) error {
	value := strings.TrimSpace(string(payload))

	changed := false
	for _, serial := range g.byTopic[topic] {
		home := strings.EqualFold(value, g.bindings[serial].HomePayload)

		g.mu.Lock()
		prev, known := g.state[serial]
		g.state[serial] = home
		// Unknown counts as permitted, so a first "home" is not a transition.
		transition := !((known && prev == home) || (!known && home))
		if transition {
			g.pending[serial] = home
		}
		g.mu.Unlock()

		if transition {
			g.logDebug("presence changed", "serial", serial, "home", home, "payload", value)
			changed = true
		}
	}

	if changed {
		select {
		case g.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

func (g *Gate) dispatchLoop(ctx context.Context) {
	defer g.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.done:
			return
		case <-g.wake:
			for _, ev := range g.takePending() {
				g.dispatch(ev)
			}
		}
	}
}

func (g *Gate) takePending() []event {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]event, 0, len(g.pending))
	for serial, permitted := range g.pending {
		out = append(out, event{serial: serial, permitted: permitted})
	}
	clear(g.pending)
	return out
}

func (g *Gate) dispatch(ev event) {
	g.mu.RLock()
	fns := make([]func(bool), 0, len(g.watchers[ev.serial]))
	for _, fn := range g.watchers[ev.serial] {
		fns = append(fns, fn)
	}
	g.mu.RUnlock()

	for _, fn := range fns {
		g.call(ev, fn)
	}
}

func (g *Gate) call(ev event, fn func(bool)) {
	defer func() {
		if r := recover(); r != nil {
			g.logError("presence watcher panic recovered", "serial", ev.serial, "panic", r)
		}
	}()
	fn(ev.permitted)
}

func (g *Gate) getLogger() Logger {
	g.loggerMu.RLock()
	defer g.loggerMu.RUnlock()
	return g.logger
}

func (g *Gate) logInfo(msg string, args ...any) {
	if l := g.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (g *Gate) logDebug(msg string, args ...any) {
	if l := g.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}

func (g *Gate) logError(msg string, args ...any) {
	if l := g.getLogger(); l != nil {
		l.Error(msg, args...)
	}
}
