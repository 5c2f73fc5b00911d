package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/g32-bridge/internal/infrastructure/config"
	"github.com/nerrad567/g32-bridge/internal/infrastructure/influxdb"
)

// fakeInflux answers pings and records line protocol written to it.
type fakeInflux struct {
	*httptest.Server

	mu     sync.Mutex
	lines  []string
	reject bool
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/write") {
			f.mu.Lock()
			reject := f.reject
			f.mu.Unlock()
			if reject {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":"invalid","message":"unable to parse points"}`))
				return
			}

			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			f.mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "g32-test-token",
		Org:           "home",
		Bucket:        "g32",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connect(t *testing.T, f *fakeInflux) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client := connect(t, newFakeInflux(t))

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := influxdb.Connect(testConfig("http://127.0.0.1:59999"))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	cfg := testConfig(f.URL)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false with defaulted batch settings")
	}
}

func TestHealthCheck_Closed(t *testing.T) {
	client := connect(t, newFakeInflux(t))
	client.Close()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteTelemetry(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	at := time.Unix(1700000000, 0)

	client.WriteTelemetry("G32A1B2C3D4", map[string]interface{}{
		"zone_1":     14.0,
		"gas_weight": 5400,
		"lid_open":   true,
	}, at)
	client.Flush()

	lines := f.written()
	if len(lines) != 1 {
		t.Fatalf("written lines = %v, want 1", lines)
	}
	line := lines[0]
	for _, want := range []string{"g32_telemetry,serial=G32A1B2C3D4 ", "zone_1=14", "lid_open=true", "gas_weight=5400i", " 1700000000000000000"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWriteTelemetry_NoFieldsDropped(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.WriteTelemetry("G32A1B2C3D4", nil, time.Now())
	client.Flush()

	if lines := f.written(); len(lines) != 0 {
		t.Errorf("written lines = %v, want none", lines)
	}
}

func TestWriteConnectionState(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.WriteConnectionState("G32A1B2C3D4", "disabled", "gave_up", false, time.Now())
	client.WriteConnectionState("G32A1B2C3D4", "streaming", "", true, time.Now())
	client.Flush()

	lines := f.written()
	if len(lines) != 2 {
		t.Fatalf("written lines = %v, want 2", lines)
	}
	if !strings.HasPrefix(lines[0], "g32_connection,reason=gave_up,serial=G32A1B2C3D4,state=disabled enabled=false") {
		t.Errorf("line[0] = %q", lines[0])
	}
	if strings.Contains(lines[1], "reason=") {
		t.Errorf("line[1] = %q, want no reason tag", lines[1])
	}
}

func TestWriteCounters(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.WriteCounters("", map[string]uint64{"api_login_calls": 3}, time.Now())
	client.WriteCounters("G32A1B2C3D4", map[string]uint64{"tcp_connection_attempts": 7}, time.Now())
	client.Flush()

	lines := f.written()
	if len(lines) != 2 {
		t.Fatalf("written lines = %v, want 2", lines)
	}
	if !strings.HasPrefix(lines[0], "g32_diagnostics,scope=account api_login_calls=3i") {
		t.Errorf("line[0] = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "g32_diagnostics,scope=grill,serial=G32A1B2C3D4 tcp_connection_attempts=7i") {
		t.Errorf("line[1] = %q", lines[1])
	}
}

func TestWriteAfterClose(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	client.Close()

	client.WriteTelemetry("G32A1B2C3D4", map[string]interface{}{"zone_1": 1.0}, time.Now())
	client.Flush()

	if lines := f.written(); len(lines) != 0 {
		t.Errorf("written lines after Close = %v", lines)
	}
}

func TestWrite_ErrorCallback(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	f.mu.Lock()
	f.reject = true
	f.mu.Unlock()

	errs := make(chan error, 4)
	client.SetOnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	client.WriteCounters("G32A1B2C3D4", map[string]uint64{"tcp_reconnects": 1}, time.Now())
	client.Flush()

	select {
	case err := <-errs:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write failure was not reported")
	}
}

func TestClose_Nil(t *testing.T) {
	client := &influxdb.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
