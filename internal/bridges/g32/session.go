package g32

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/g32-bridge/internal/device"
)

// Relay defaults.
const (
	// DefaultRelayAddress is the vendor's telemetry relay.
	DefaultRelayAddress = "socket.ottowildeapp.com:4502"

	// DefaultHeartbeatTimeout is how long the relay may stay silent.
	DefaultHeartbeatTimeout = 90 * time.Second

	// DefaultConnectTimeout bounds the TCP dial.
	DefaultConnectTimeout = 15 * time.Second

	// DefaultReadBufferSize is the size of each socket read.
	DefaultReadBufferSize = 1024

	// writeTimeout bounds sending the subscribe message.
	writeTimeout = 10 * time.Second

	// listenChannel is the relay channel that streams grill telemetry.
	listenChannel = "LISTEN_TO_GRILL"
)

// SessionState is the lifecycle stage of one relay connection.
type SessionState int32

const (
	SessionIdle SessionState = iota
	SessionConnecting
	SessionAwaitingHandshake
	SessionStreaming
	SessionClosed
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionConnecting:
		return "connecting"
	case SessionAwaitingHandshake:
		return "awaiting_handshake"
	case SessionStreaming:
		return "streaming"
	case SessionClosed:
		return "closed"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Dialer opens relay connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// SessionConfig holds relay connection settings.
type SessionConfig struct {
	// Address is the relay host:port.
	// Default: socket.ottowildeapp.com:4502.
	Address string

	// HeartbeatTimeout is the longest the relay may send nothing, both
	// before the first data and while streaming.
	// Default: 90 seconds.
	HeartbeatTimeout time.Duration

	// ConnectTimeout bounds the TCP dial.
	// Default: 15 seconds.
	ConnectTimeout time.Duration

	// ReadBufferSize is the size of each socket read.
	// Default: 1024 bytes.
	ReadBufferSize int
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Address == "" {
		c.Address = DefaultRelayAddress
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	return c
}

// SessionCallbacks receive session events on the session's goroutine.
// Any of them may be nil.
type SessionCallbacks struct {
	// OnHandshake runs once, when the first bytes arrive.
	OnHandshake func()

	// OnTelemetry runs for every decoded packet, in stream order.
	OnTelemetry func(*Telemetry)

	// OnDecodeError runs for every frame that failed to decode.
	OnDecodeError func(err error, frame []byte)
}

// Session is one connection to the relay for one grill.
//
// Thread Safety: Run must be called at most once. State may be read
// concurrently.
type Session struct {
	id     string
	grill  device.Grill
	cfg    SessionConfig
	dialer Dialer
	now    func() time.Time
	state  atomic.Int32
}

// NewSession prepares a session. dialer and now default to a net.Dialer
// and time.Now.
func NewSession(grill device.Grill, cfg SessionConfig, dialer Dialer, now func() time.Time) *Session {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if now == nil {
		now = time.Now
	}
	return &Session{
		id:     uuid.NewString(),
		grill:  grill,
		cfg:    cfg.withDefaults(),
		dialer: dialer,
		now:    now,
	}
}

// ID uniquely identifies this session in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle stage.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Run connects, subscribes to the grill's channel and streams packets
// until the relay closes the connection, an error occurs or ctx is
// cancelled. Cancellation closes the socket immediately.
//
// Returns:
//   - ctx.Err(): cancelled by the caller
//   - ErrSessionClosed: the relay closed the stream
//   - ErrHandshakeTimeout: no data within the heartbeat timeout after subscribing
//   - ErrConnectionFailed (wrapped): dial, write or read failure
func (s *Session) Run(ctx context.Context, cb SessionCallbacks) error {
	s.state.Store(int32(SessionConnecting))

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	conn, err := s.dialer.DialContext(dialCtx, "tcp", s.cfg.Address)
	cancel()
	if err != nil {
		return s.fail(ctx, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, s.cfg.Address, err))
	}
	defer conn.Close()

	// Unblocks any pending read or write when the caller cancels.
	stop := context.AfterFunc(ctx, func() {
		conn.Close() //nolint:errcheck // closing to interrupt I/O
	})
	defer stop()

	s.state.Store(int32(SessionAwaitingHandshake))
	if err := s.subscribe(conn); err != nil {
		return s.fail(ctx, err)
	}

	return s.stream(ctx, conn, cb)
}

// subscribe sends the LISTEN_TO_GRILL request as one JSON line.
func (s *Session) subscribe(conn net.Conn) error {
	msg, err := SubscribeMessage(s.grill.Serial, s.grill.PopKey)
	if err != nil {
		return err
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: set write deadline: %w", ErrConnectionFailed, err)
	}
	if _, err := conn.Write(msg); err != nil {
		return fmt.Errorf("%w: subscribe: %w", ErrConnectionFailed, err)
	}
	return nil
}

// stream reads until the connection ends, framing and decoding packets.
func (s *Session) stream(ctx context.Context, conn net.Conn, cb SessionCallbacks) error {
	buf := make([]byte, s.cfg.ReadBufferSize)
	var framer Framer

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.HeartbeatTimeout)); err != nil {
			return s.fail(ctx, fmt.Errorf("%w: set read deadline: %w", ErrConnectionFailed, err))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			if s.State() == SessionAwaitingHandshake {
				s.state.Store(int32(SessionStreaming))
				if cb.OnHandshake != nil {
					cb.OnHandshake()
				}
			}
			framer.Write(buf[:n])
			s.dispatch(ctx, &framer, cb)
		}

		if err != nil {
			return s.readError(ctx, err)
		}
	}
}

// dispatch decodes every complete frame in the buffer.
func (s *Session) dispatch(ctx context.Context, framer *Framer, cb SessionCallbacks) {
	for {
		if ctx.Err() != nil {
			return
		}
		frame, ok := framer.Next()
		if !ok {
			return
		}

		t, err := DecodePacket(frame)
		if err != nil {
			if cb.OnDecodeError != nil {
				cb.OnDecodeError(err, frame)
			}
			continue
		}

		t.Serial = s.grill.Serial
		t.ReceivedAt = s.now()
		if cb.OnTelemetry != nil {
			cb.OnTelemetry(t)
		}
	}
}

// readError classifies a read failure.
func (s *Session) readError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		s.state.Store(int32(SessionClosed))
		return ctx.Err()
	}

	if errors.Is(err, io.EOF) {
		s.state.Store(int32(SessionClosed))
		return ErrSessionClosed
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if s.State() == SessionAwaitingHandshake {
			return s.fail(ctx, ErrHandshakeTimeout)
		}
		return s.fail(ctx, fmt.Errorf("%w: no data for %v", ErrConnectionFailed, s.cfg.HeartbeatTimeout))
	}

	return s.fail(ctx, fmt.Errorf("%w: read: %w", ErrConnectionFailed, err))
}

// fail records a failed session, reporting cancellation in preference to
// the I/O error it caused.
func (s *Session) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		s.state.Store(int32(SessionClosed))
		return ctx.Err()
	}
	s.state.Store(int32(SessionFailed))
	return err
}

// subscribeRequest is the JSON line sent after connecting.
type subscribeRequest struct {
	Channel string        `json:"channel"`
	Data    subscribeData `json:"data"`
}

type subscribeData struct {
	GrillSerialNumber string `json:"grillSerialNumber"`
	Pop               string `json:"pop"`
}

// SubscribeMessage builds the newline-terminated subscribe request for a
// grill.
func SubscribeMessage(serial, popKey string) ([]byte, error) {
	msg, err := json.Marshal(subscribeRequest{
		Channel: listenChannel,
		Data:    subscribeData{GrillSerialNumber: serial, Pop: popKey},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding subscribe message: %w", err)
	}
	return append(msg, '\n'), nil
}
