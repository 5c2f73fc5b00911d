package g32

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/g32-bridge/internal/device"
)

// Logger is the logging interface used by the package.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ManagerConfig holds connection manager settings. Only Session.Address
// is normally set; everything else has a usable default.
type ManagerConfig struct {
	// Session configures each relay connection.
	Session SessionConfig

	// Policy decides retry delays. Zero value means DefaultPolicy().
	Policy Policy

	// Dialer opens relay connections. Default: net.Dialer.
	Dialer Dialer

	// Gate is consulted before every connection attempt. Nil means
	// every grill is always permitted.
	Gate Gate

	// Logger is optional.
	Logger Logger

	// DebugLog receives user-facing connection events. Nil creates a
	// private, disabled log.
	DebugLog *DebugLog

	// Now and Sleep replace the clock in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Manager supervises one relay session per grill.
//
// Each enabled grill has exactly one goroutine that connects, streams,
// and retries under Policy until the grill is disabled, the gate
// closes, or the policy gives up. Control calls for one grill are
// serialised, and disabling waits for that goroutine to exit, so no
// socket or callback outlives a disable.
//
// Thread Safety: All methods are safe for concurrent use.
type Manager struct {
	cfg    ManagerConfig
	policy Policy
	debug  *DebugLog
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	grills map[string]*grillEntry
	order  []string

	countersMu sync.Mutex
	global     map[Counter]uint64
	reseeded   map[Counter]bool
	globalPub  sync.Mutex

	telemetry   *Bus[*Telemetry]
	states      *Bus[StateChange]
	diagnostics *Bus[Diagnostics]

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closed     atomic.Bool
	closeOnce  sync.Once
	gateMu     sync.Mutex
	gateUnsubs []func()

	logger   Logger
	loggerMu sync.RWMutex
}

// grillEntry is the per-grill state. ctl serialises control calls; pub
// serialises diagnostics delivery; mu guards the fields below it.
type grillEntry struct {
	grill device.Grill
	ctl   sync.Mutex
	pub   sync.Mutex

	mu           sync.Mutex
	enabled      bool
	state        ConnectionState
	reason       Reason
	lastErr      string
	retry        RetryState
	connAttempts uint64
	reconnects   uint64
	decodeErrors uint64
	nextAttempt  time.Time
	lastData     time.Time
	latest       *Telemetry
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewManager creates a manager for the given grills. All grills start
// disabled; call Start or Enable to connect.
//
// Parameters:
//   - grills: Discovered grills; serials must be unique and valid
//   - cfg: Manager settings
//
// Returns:
//   - *Manager: Ready to use
//   - error: If a grill is invalid or duplicated
func NewManager(grills []device.Grill, cfg ManagerConfig) (*Manager, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	cfg.Session = cfg.Session.withDefaults()

	policy := cfg.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}

	debug := cfg.DebugLog
	if debug == nil {
		debug = NewDebugLog(cfg.Now)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		policy:   policy,
		debug:    debug,
		now:      cfg.Now,
		sleep:    cfg.Sleep,
		grills:   make(map[string]*grillEntry, len(grills)),
		global:   make(map[Counter]uint64),
		reseeded: make(map[Counter]bool),
		ctx:      ctx,
		cancel:   cancel,
		logger:   cfg.Logger,
	}

	onPanic := func(key string, r any) {
		m.logError("subscriber panicked", "serial", key, "panic", r)
	}
	m.telemetry = NewBus[*Telemetry](onPanic)
	m.states = NewBus[StateChange](onPanic)
	m.diagnostics = NewBus[Diagnostics](onPanic)

	for _, g := range grills {
		if err := g.Validate(); err != nil {
			cancel()
			return nil, err
		}
		if _, dup := m.grills[g.Serial]; dup {
			cancel()
			return nil, fmt.Errorf("%w: duplicate serial %q", device.ErrInvalidGrill, g.Serial)
		}
		m.grills[g.Serial] = &grillEntry{grill: g, state: StateDisabled}
		m.order = append(m.order, g.Serial)
	}

	return m, nil
}

// Start watches the gate for every grill and enables the grills listed
// in autoConnect. A gate opening reconnects its grill; a gate closing
// disables it with ReasonGated.
func (m *Manager) Start(ctx context.Context, autoConnect ...string) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}

	if m.cfg.Gate != nil {
		m.gateMu.Lock()
		for _, serial := range m.order {
			unsub := m.cfg.Gate.Watch(serial, func(permitted bool) {
				m.handleGate(serial, permitted)
			})
			m.gateUnsubs = append(m.gateUnsubs, unsub)
		}
		m.gateMu.Unlock()
	}

	for _, serial := range autoConnect {
		if err := m.Enable(ctx, serial, true); err != nil {
			return fmt.Errorf("auto-connect %s: %w", serial, err)
		}
	}

	m.logInfo("connection manager started",
		"grills", len(m.order),
		"auto_connect", len(autoConnect))
	return nil
}

// Close disables every grill with ReasonShutdown and waits for all
// sessions to exit. Later control calls return ErrManagerClosed.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	m.closeOnce.Do(func() {
		m.closed.Store(true)

		m.gateMu.Lock()
		for _, unsub := range m.gateUnsubs {
			unsub()
		}
		m.gateUnsubs = nil
		m.gateMu.Unlock()

		for _, serial := range m.order {
			e := m.grills[serial]
			e.ctl.Lock()
			if err := m.stop(ctx, e, ReasonShutdown); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", serial, err))
			}
			e.ctl.Unlock()
		}

		m.cancel()
		m.wg.Wait()
		m.logInfo("connection manager stopped")
	})
	return errors.Join(errs...)
}

// Enable switches a grill on or off.
//
// On clears the retry history and starts a session goroutine unless one
// is already running. Off cancels the running session and returns only
// after its socket is closed and its goroutine has exited.
//
// Returns:
//   - error: ErrUnknownGrill, ErrManagerClosed (on only), or ctx.Err()
//     if ctx ends while waiting for a session to exit
func (m *Manager) Enable(ctx context.Context, serial string, on bool) error {
	e, err := m.entry(serial)
	if err != nil {
		return err
	}

	e.ctl.Lock()
	defer e.ctl.Unlock()

	if !on {
		return m.stop(ctx, e, ReasonManual)
	}
	return m.start(ctx, e, true)
}

// ConnectIfNeeded enables a grill unless it is already enabled. Unlike
// Enable it leaves the retry history of a running grill alone.
func (m *Manager) ConnectIfNeeded(ctx context.Context, serial string) error {
	e, err := m.entry(serial)
	if err != nil {
		return err
	}

	e.ctl.Lock()
	defer e.ctl.Unlock()

	return m.start(ctx, e, false)
}

// IsEnabled reports whether a grill is switched on. Unknown serials
// report false.
func (m *Manager) IsEnabled(serial string) bool {
	e, err := m.entry(serial)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// State returns the connection state of a grill.
func (m *Manager) State(serial string) (ConnectionState, error) {
	e, err := m.entry(serial)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}

// Latest returns the most recent telemetry for a grill, or nil before
// the first packet.
func (m *Manager) Latest(serial string) (*Telemetry, error) {
	e, err := m.entry(serial)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest, nil
}

// Status returns a snapshot of one grill.
func (m *Manager) Status(serial string) (Status, error) {
	e, err := m.entry(serial)
	if err != nil {
		return Status{}, err
	}

	e.mu.Lock()
	st := Status{
		Grill:       e.grill,
		State:       e.state,
		Enabled:     e.enabled,
		Reason:      e.reason,
		Latest:      e.latest,
		Diagnostics: e.diagnosticsLocked(),
	}
	e.mu.Unlock()

	st.Diagnostics = m.withGlobal(st.Diagnostics)
	return st, nil
}

// Devices returns the managed grills in discovery order.
func (m *Manager) Devices() []device.Grill {
	out := make([]device.Grill, 0, len(m.order))
	for _, serial := range m.order {
		out = append(out, m.grills[serial].grill)
	}
	return out
}

// Grill returns the grill with the given serial.
func (m *Manager) Grill(serial string) (device.Grill, error) {
	e, err := m.entry(serial)
	if err != nil {
		return device.Grill{}, err
	}
	return e.grill, nil
}

// Summary counts grills by connection state.
func (m *Manager) Summary() GrillSummary {
	s := GrillSummary{Total: len(m.order)}
	for _, serial := range m.order {
		e := m.grills[serial]
		e.mu.Lock()
		if e.enabled {
			s.Enabled++
		}
		if e.state == StateStreaming {
			s.Streaming++
		}
		e.mu.Unlock()
	}
	return s
}

// Diagnostics returns the counters for a grill merged with the global
// counters. GlobalKey returns the global counters alone.
func (m *Manager) Diagnostics(serial string) (Diagnostics, error) {
	if serial == GlobalKey {
		return m.withGlobal(Diagnostics{}), nil
	}

	e, err := m.entry(serial)
	if err != nil {
		return Diagnostics{}, err
	}

	e.mu.Lock()
	d := e.diagnosticsLocked()
	e.mu.Unlock()
	return m.withGlobal(d), nil
}

// RecordAPICall increments a global counter and publishes the global
// diagnostics.
func (m *Manager) RecordAPICall(c Counter) error {
	if !c.Global() {
		return fmt.Errorf("%w: %q is not a global counter", ErrUnknownCounter, c)
	}

	m.countersMu.Lock()
	m.global[c]++
	m.countersMu.Unlock()

	m.publishGlobal()
	return nil
}

// Reseed adds a value persisted by a previous run to a counter.
//
// Global counters accept one reseed per process; later calls are ignored
// and return false. Per-grill counters are additive on every call.
func (m *Manager) Reseed(serial string, c Counter, value uint64) (bool, error) {
	if c.Global() {
		m.countersMu.Lock()
		if m.reseeded[c] {
			m.countersMu.Unlock()
			return false, nil
		}
		m.reseeded[c] = true
		m.global[c] += value
		m.countersMu.Unlock()

		m.publishGlobal()
		return true, nil
	}

	e, err := m.entry(serial)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	switch c {
	case CounterConnectionAttempts:
		e.connAttempts += value
	case CounterReconnects:
		e.reconnects += value
	default:
		e.mu.Unlock()
		return false, fmt.Errorf("%w: %q", ErrUnknownCounter, c)
	}
	e.mu.Unlock()

	m.publishDiagnostics(e)
	return true, nil
}

// LoadCounters reseeds counters from loader. Values for unknown grills
// are skipped.
func (m *Manager) LoadCounters(ctx context.Context, loader CounterLoader) error {
	values, err := loader.LoadCounters(ctx)
	if err != nil {
		return fmt.Errorf("loading counters: %w", err)
	}

	var restored int
	for _, v := range values {
		ok, err := m.Reseed(v.Serial, v.Counter, v.Value)
		if err != nil {
			m.logDebug("skipping persisted counter",
				"serial", v.Serial,
				"counter", v.Counter,
				"error", err)
			continue
		}
		if ok {
			restored++
		}
	}

	m.logInfo("restored diagnostic counters", "count", restored)
	return nil
}

// SubscribeTelemetry registers fn for decoded packets of one grill, or
// of every grill with AllKeys. Packets of one grill arrive in stream
// order.
func (m *Manager) SubscribeTelemetry(serial string, fn func(*Telemetry)) (unsubscribe func()) {
	return m.telemetry.Subscribe(serial, fn)
}

// SubscribeState registers fn for connection state changes.
func (m *Manager) SubscribeState(serial string, fn func(StateChange)) (unsubscribe func()) {
	return m.states.Subscribe(serial, fn)
}

// SubscribeDiagnostics registers fn for counter changes of one grill.
// GlobalKey receives the global counters and AllKeys receives both.
func (m *Manager) SubscribeDiagnostics(serial string, fn func(Diagnostics)) (unsubscribe func()) {
	return m.diagnostics.Subscribe(serial, fn)
}

// SetDebugMode switches the debug log on or off.
func (m *Manager) SetDebugMode(on bool) {
	m.debug.SetEnabled(on)
}

// DebugMode reports whether the debug log is on.
func (m *Manager) DebugMode() bool {
	return m.debug.Enabled()
}

// DebugLog returns the debug entries, newest first.
func (m *Manager) DebugLog() []DebugEntry {
	return m.debug.Entries()
}

// SubscribeDebug registers fn for debug log snapshots.
func (m *Manager) SubscribeDebug(fn func([]DebugEntry)) (unsubscribe func()) {
	return m.debug.Subscribe(fn)
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

func (m *Manager) entry(serial string) (*grillEntry, error) {
	e, ok := m.grills[serial]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGrill, serial)
	}
	return e, nil
}

// start spawns the session goroutine. Caller holds e.ctl.
func (m *Manager) start(ctx context.Context, e *grillEntry, resetRetry bool) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}

	e.mu.Lock()
	if e.enabled {
		if resetRetry {
			e.retry = e.retry.Reset()
		}
		e.mu.Unlock()
		if resetRetry {
			m.publishDiagnostics(e)
		}
		return nil
	}
	done := e.done
	e.mu.Unlock()

	// A goroutine that disabled itself may still be unwinding.
	if done != nil {
		if err := waitDone(ctx, done); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(m.ctx)
	done = make(chan struct{})

	e.mu.Lock()
	e.enabled = true
	e.state = StateConnecting
	e.reason = ReasonNone
	e.lastErr = ""
	e.retry = e.retry.Reset()
	e.nextAttempt = time.Time{}
	e.cancel = cancel
	e.done = done
	change := e.changeLocked(m.now())
	e.mu.Unlock()

	m.states.Publish(e.grill.Serial, change)

	m.wg.Add(1)
	go m.run(runCtx, cancel, e, done)

	m.logInfo("grill enabled", "serial", e.grill.Serial)
	m.debug.Addf("%s: connection enabled", e.grill.Serial)
	return nil
}

// stop cancels the session goroutine, waits for it and marks the grill
// disabled. Caller holds e.ctl.
func (m *Manager) stop(ctx context.Context, e *grillEntry, reason Reason) error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		if err := waitDone(ctx, done); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.cancel = nil
	e.done = nil
	if !e.enabled && e.state == StateDisabled {
		e.mu.Unlock()
		return nil
	}
	e.enabled = false
	e.state = StateDisabled
	e.reason = reason
	e.nextAttempt = time.Time{}
	change := e.changeLocked(m.now())
	e.mu.Unlock()

	m.states.Publish(e.grill.Serial, change)
	m.publishDiagnostics(e)
	m.logInfo("grill disabled", "serial", e.grill.Serial, "reason", reason)
	m.debug.Addf("%s: connection disabled (%s)", e.grill.Serial, reason)
	return nil
}

// run is the per-grill session goroutine.
func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, e *grillEntry, done chan struct{}) {
	defer m.wg.Done()
	defer close(done)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			m.logError("session goroutine panicked", "serial", e.grill.Serial, "panic", r)
			m.forceDisable(ctx, e, ReasonError, fmt.Errorf("panic: %v", r))
		}
	}()

	serial := e.grill.Serial
	for {
		if ctx.Err() != nil {
			return
		}

		if m.cfg.Gate != nil && !m.cfg.Gate.Permitted(serial) {
			m.logInfo("connection not permitted by gate", "serial", serial)
			m.forceDisable(ctx, e, ReasonGated, nil)
			return
		}

		attempt := m.beginAttempt(e)
		sess := NewSession(e.grill, m.cfg.Session, m.cfg.Dialer, m.now)
		m.logDebug("connecting to relay",
			"serial", serial,
			"session", sess.ID(),
			"attempt", attempt)
		m.debug.Addf("%s: connecting to %s (attempt %d)", serial, m.cfg.Session.Address, attempt)

		err := sess.Run(ctx, SessionCallbacks{
			OnHandshake: func() { m.handleHandshake(e, sess.ID()) },
			OnTelemetry: func(t *Telemetry) { m.handleTelemetry(ctx, e, t) },
			OnDecodeError: func(err error, frame []byte) {
				m.handleDecodeError(e, err, frame)
			},
		})
		if ctx.Err() != nil {
			return
		}

		decision, ok := m.handleFailure(ctx, e, err)
		if !ok {
			return
		}
		if err := m.sleep(ctx, decision.Delay); err != nil {
			return
		}
	}
}

// beginAttempt moves the grill to connecting and counts the attempt.
func (m *Manager) beginAttempt(e *grillEntry) uint64 {
	e.mu.Lock()
	e.connAttempts++
	attempt := e.connAttempts
	e.nextAttempt = time.Time{}
	var change *StateChange
	if e.state != StateConnecting {
		e.state = StateConnecting
		c := e.changeLocked(m.now())
		change = &c
	}
	e.mu.Unlock()

	if change != nil {
		m.states.Publish(e.grill.Serial, *change)
	}
	m.publishDiagnostics(e)
	return attempt
}

// handleFailure applies the retry policy to a finished session. It
// returns false when the grill was disabled instead of retried.
func (m *Manager) handleFailure(ctx context.Context, e *grillEntry, cause error) (Decision, bool) {
	serial := e.grill.Serial
	now := m.now()

	e.mu.Lock()
	decision, next := m.policy.Next(e.retry, now)
	e.retry = next
	e.mu.Unlock()

	if decision.Action == ActionGiveUp {
		m.logWarn("giving up on relay connection",
			"serial", serial,
			"backoff_since", next.BackoffSince,
			"error", cause)
		m.debug.Addf("%s: giving up after %v of failures", serial, m.policy.GiveUpAfter)
		m.forceDisable(ctx, e, ReasonGaveUp, cause)
		return decision, false
	}

	e.mu.Lock()
	if decision.Tier == TierBackoff {
		e.reconnects++
	}
	e.state = StateBackoff
	e.lastErr = errString(cause)
	e.nextAttempt = now.Add(decision.Delay)
	change := e.changeLocked(now)
	e.mu.Unlock()

	m.states.Publish(serial, change)
	m.publishDiagnostics(e)
	m.logWarn("relay session ended",
		"serial", serial,
		"error", cause,
		"tier", decision.Tier,
		"retry_in", decision.Delay)
	m.debug.Addf("%s: %v; retrying in %v (%s)", serial, cause, decision.Delay, decision.Tier)
	return decision, true
}

func (m *Manager) handleHandshake(e *grillEntry, sessionID string) {
	e.mu.Lock()
	e.retry = e.retry.Reset()
	e.state = StateStreaming
	e.lastErr = ""
	e.nextAttempt = time.Time{}
	change := e.changeLocked(m.now())
	e.mu.Unlock()

	m.states.Publish(e.grill.Serial, change)
	m.publishDiagnostics(e)
	m.logInfo("relay streaming", "serial", e.grill.Serial, "session", sessionID)
	m.debug.Addf("%s: relay accepted subscription", e.grill.Serial)
}

func (m *Manager) handleTelemetry(ctx context.Context, e *grillEntry, t *Telemetry) {
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	e.latest = t
	e.lastData = t.ReceivedAt
	e.mu.Unlock()

	m.telemetry.Publish(e.grill.Serial, t)
	m.debug.Addf("%s: packet %s", e.grill.Serial, t.RawHex)
}

func (m *Manager) handleDecodeError(e *grillEntry, err error, frame []byte) {
	e.mu.Lock()
	e.decodeErrors++
	e.mu.Unlock()

	m.logDebug("dropping undecodable frame",
		"serial", e.grill.Serial,
		"error", err,
		"frame", fmt.Sprintf("%x", frame))
	m.debug.Addf("%s: dropped frame: %v", e.grill.Serial, err)
	m.publishDiagnostics(e)
}

// forceDisable is called from the session goroutine when it stops on its
// own. A cancelled ctx means a control call owns the transition.
func (m *Manager) forceDisable(ctx context.Context, e *grillEntry, reason Reason, cause error) {
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	e.enabled = false
	e.state = StateDisabled
	e.reason = reason
	e.lastErr = errString(cause)
	e.nextAttempt = time.Time{}
	change := e.changeLocked(m.now())
	e.mu.Unlock()

	m.states.Publish(e.grill.Serial, change)
	m.publishDiagnostics(e)
	m.debug.Addf("%s: connection disabled (%s)", e.grill.Serial, reason)
}

func (m *Manager) handleGate(serial string, permitted bool) {
	var err error
	if permitted {
		m.debug.Addf("%s: gate opened", serial)
		err = m.ConnectIfNeeded(m.ctx, serial)
	} else {
		m.debug.Addf("%s: gate closed", serial)
		err = m.disableGated(serial)
	}
	if err != nil && !errors.Is(err, ErrManagerClosed) {
		m.logWarn("gate transition failed", "serial", serial, "permitted", permitted, "error", err)
	}
}

func (m *Manager) disableGated(serial string) error {
	e, err := m.entry(serial)
	if err != nil {
		return err
	}
	e.ctl.Lock()
	defer e.ctl.Unlock()
	return m.stop(m.ctx, e, ReasonGated)
}

// publishDiagnostics holds e.pub from snapshot to delivery so subscribers
// never see a grill's counters go backwards. Subscribers must not
// publish diagnostics for the same grill from their callback.
func (m *Manager) publishDiagnostics(e *grillEntry) {
	e.pub.Lock()
	defer e.pub.Unlock()

	e.mu.Lock()
	d := e.diagnosticsLocked()
	e.mu.Unlock()
	m.diagnostics.Publish(e.grill.Serial, m.withGlobal(d))
}

func (m *Manager) publishGlobal() {
	m.globalPub.Lock()
	defer m.globalPub.Unlock()
	m.diagnostics.Publish(GlobalKey, m.withGlobal(Diagnostics{}))
}

func (m *Manager) withGlobal(d Diagnostics) Diagnostics {
	m.countersMu.Lock()
	d.APILoginCalls = m.global[CounterLoginCalls]
	d.APIGrillsCalls = m.global[CounterGrillsCalls]
	m.countersMu.Unlock()
	return d
}

func (e *grillEntry) diagnosticsLocked() Diagnostics {
	return Diagnostics{
		Serial:             e.grill.Serial,
		ConnectionAttempts: e.connAttempts,
		Reconnects:         e.reconnects,
		DecodeErrors:       e.decodeErrors,
		NextAttempt:        timePtr(e.nextAttempt),
		LastDataReceived:   timePtr(e.lastData),
		Retry:              e.retry,
	}
}

func (e *grillEntry) changeLocked(at time.Time) StateChange {
	return StateChange{
		Serial:  e.grill.Serial,
		State:   e.state,
		Enabled: e.enabled,
		Reason:  e.reason,
		Error:   e.lastErr,
		At:      at,
	}
}

func (m *Manager) logInfo(msg string, keysAndValues ...any) {
	if l := m.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (m *Manager) logWarn(msg string, keysAndValues ...any) {
	if l := m.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (m *Manager) logError(msg string, keysAndValues ...any) {
	if l := m.getLogger(); l != nil {
		l.Error(msg, keysAndValues...)
	}
}

func (m *Manager) logDebug(msg string, keysAndValues ...any) {
	if l := m.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (m *Manager) getLogger() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

func waitDone(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
