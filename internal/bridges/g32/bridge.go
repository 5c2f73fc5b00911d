package g32

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/g32-bridge/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	// commandTimeout bounds one connection command. Disabling waits for
	// the session to close its socket.
	commandTimeout = 30 * time.Second

	// outboxSize is the number of MQTT messages buffered between the
	// manager's goroutines and the broker.
	outboxSize = 256

	// stateQoS is used for retained state, diagnostics and debug topics.
	stateQoS byte = 1
)

// Bridge connects the manager to MQTT. It publishes state, telemetry,
// diagnostics and the debug log, takes connection and debug commands,
// and optionally mirrors everything to a time-series store.
//
// Publishing goes through a buffered outbox drained by one goroutine, so
// a slow broker never stalls a relay session. When the outbox is full
// messages are dropped and counted.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mgr    *Manager
	mqtt   MQTTClient
	topics mqtt.Topics
	qos    byte
	series TimeSeriesWriter
	health *HealthReporter
	now    func() time.Time

	outbox  chan outbound
	dropped atomic.Uint64

	unsubs []func()
	subMu  sync.Mutex

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// TimeSeriesWriter records bridge data points. *influxdb.Client
// implements it.
type TimeSeriesWriter interface {
	WriteTelemetry(serial string, fields map[string]interface{}, timestamp time.Time)
	WriteConnectionState(serial, state, reason string, enabled bool, timestamp time.Time)
	WriteCounters(serial string, counters map[string]uint64, timestamp time.Time)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Manager is the connection manager to expose. Required.
	Manager *Manager

	// MQTTClient publishes and subscribes. Required.
	MQTTClient MQTTClient

	// Topics builds topic names. Zero value uses the "g32" prefix.
	Topics mqtt.Topics

	// TelemetryQoS is the QoS for telemetry messages.
	TelemetryQoS byte

	// TimeSeries is optional.
	TimeSeries TimeSeriesWriter

	// Version is reported in health messages.
	Version string

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	// Logger is optional.
	Logger Logger
}

type outbound struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		mgr:       opts.Manager,
		mqtt:      opts.MQTTClient,
		topics:    opts.Topics,
		qos:       opts.TelemetryQoS,
		series:    opts.TimeSeries,
		now:       opts.Manager.now,
		outbox:    make(chan outbound, outboxSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Topic:     b.topics.Health(),
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Summary:   opts.Manager.Summary,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to the manager and to the command topics, publishes
// the current state of every grill, and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	b.wg.Add(1)
	go b.publishLoop()

	b.subMu.Lock()
	b.unsubs = append(b.unsubs,
		b.mgr.SubscribeState(AllKeys, b.onState),
		b.mgr.SubscribeTelemetry(AllKeys, b.onTelemetry),
		b.mgr.SubscribeDiagnostics(AllKeys, b.onDiagnostics),
		b.mgr.SubscribeDebug(b.onDebug),
	)
	b.subMu.Unlock()

	b.publishSnapshot()

	commandTopic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	debugTopic := b.topics.DebugMode()
	if err := b.mqtt.Subscribe(debugTopic, 1, b.handleDebugMode); err != nil {
		return fmt.Errorf("subscribe to debug mode: %w", err)
	}

	b.health.Start(ctx)

	b.logInfo("bridge started", "grills", len(b.mgr.Devices()))
	return nil
}

// Stop unsubscribes from the manager, flushes queued messages and stops
// health reporting. It does not stop the manager.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.subMu.Lock()
		for _, unsub := range b.unsubs {
			unsub()
		}
		b.unsubs = nil
		b.subMu.Unlock()

		b.ctxCancel()
		close(b.done)
		b.health.Stop()
		b.wg.Wait()

		b.logInfo("bridge stopped", "dropped_messages", b.dropped.Load())
	})
}

// Dropped returns how many messages were discarded because the outbox
// was full.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// publishSnapshot publishes retained state and diagnostics for every
// grill so new subscribers see current values.
func (b *Bridge) publishSnapshot() {
	at := b.now()
	for _, g := range b.mgr.Devices() {
		st, err := b.mgr.Status(g.Serial)
		if err != nil {
			continue
		}
		b.onState(StateChange{
			Serial:  g.Serial,
			State:   st.State,
			Enabled: st.Enabled,
			Reason:  st.Reason,
			At:      at,
		})
		b.onDiagnostics(st.Diagnostics)
	}

	if d, err := b.mgr.Diagnostics(GlobalKey); err == nil {
		b.onDiagnostics(d)
	}
	b.onDebug(b.mgr.DebugLog())
}

// =============================================================================
// Manager → MQTT
// =============================================================================

func (b *Bridge) onState(c StateChange) {
	g, err := b.mgr.Grill(c.Serial)
	if err != nil {
		return
	}
	b.enqueueJSON(b.topics.State(c.Serial), NewStateMessage(g, c), stateQoS, true)

	if b.series != nil {
		b.series.WriteConnectionState(c.Serial, string(c.State), string(c.Reason), c.Enabled, c.At)
	}
}

func (b *Bridge) onTelemetry(t *Telemetry) {
	g, err := b.mgr.Grill(t.Serial)
	if err != nil {
		return
	}
	b.enqueueJSON(b.topics.Telemetry(t.Serial), NewTelemetryMessage(g, t), b.qos, false)

	if b.series != nil {
		b.series.WriteTelemetry(t.Serial, t.Fields(), t.ReceivedAt)
	}
}

func (b *Bridge) onDiagnostics(d Diagnostics) {
	at := b.now()
	b.enqueueJSON(b.topics.Diagnostics(d.Serial), NewDiagnosticsMessage(d, at), stateQoS, true)

	if b.series != nil {
		values := d.CounterValues()
		counters := make(map[string]uint64, len(values))
		for _, v := range values {
			counters[string(v.Counter)] = v.Value
		}
		b.series.WriteCounters(d.Serial, counters, at)
	}
}

func (b *Bridge) onDebug(entries []DebugEntry) {
	msg := NewDebugLogMessage(b.mgr.DebugMode(), entries, b.now())
	b.enqueueJSON(b.topics.DebugLog(), msg, 0, true)
}

func (b *Bridge) enqueueJSON(topic string, v any, qos byte, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logError("failed to encode MQTT message", err, "topic", topic)
		return
	}

	select {
	case <-b.done:
		return
	default:
	}

	select {
	case b.outbox <- outbound{topic: topic, payload: payload, qos: qos, retained: retained}:
	default:
		if b.dropped.Add(1) == 1 {
			b.logWarn("MQTT outbox full, dropping messages", "topic", topic)
		}
	}
}

// publishLoop drains the outbox. On Stop it publishes what is already
// queued and exits.
func (b *Bridge) publishLoop() {
	defer b.wg.Done()

	for {
		select {
		case msg := <-b.outbox:
			b.publish(msg)
		case <-b.done:
			for {
				select {
				case msg := <-b.outbox:
					b.publish(msg)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) publish(msg outbound) {
	if err := b.mqtt.Publish(msg.topic, msg.payload, msg.qos, msg.retained); err != nil {
		b.logDebug("MQTT publish failed", "topic", msg.topic, "error", err)
	}
}

// =============================================================================
// MQTT → Manager
// =============================================================================

// handleCommand switches a grill's connection. The manager call runs on
// its own goroutine because disabling waits for the session to exit and
// MQTT handlers must not block.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	serial, ok := b.topics.CommandSerial(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %s", ErrInvalidCommand, topic)
	}
	on, err := ParseSwitch(payload)
	if err != nil {
		return err
	}
	if b.ctx.Err() != nil {
		return nil
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
		defer cancel()

		if err := b.mgr.Enable(ctx, serial, on); err != nil {
			if errors.Is(err, ErrUnknownGrill) {
				b.logWarn("connection command for unknown grill", "serial", serial)
				return
			}
			b.logError("connection command failed", err, "serial", serial, "enabled", on)
			return
		}
		b.logInfo("connection switched", "serial", serial, "enabled", on)
	}()
	return nil
}

func (b *Bridge) handleDebugMode(_ string, payload []byte) error {
	on, err := ParseSwitch(payload)
	if err != nil {
		return err
	}
	if on == b.mgr.DebugMode() {
		return nil
	}
	b.mgr.SetDebugMode(on)
	b.logInfo("debug mode switched", "enabled", on)
	return nil
}

// =============================================================================
// Logging helpers
// =============================================================================

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
