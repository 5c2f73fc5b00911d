package diagnostics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/g32-bridge/internal/bridges/g32"
	"github.com/nerrad567/g32-bridge/internal/device"
)

var _ g32.CounterLoader = (*SQLiteRepository)(nil)

type memRepo struct {
	mu     sync.Mutex
	saves  [][]g32.CounterValue
	values map[counterKey]uint64
	err    error
}

func (m *memRepo) LoadCounters(context.Context) ([]g32.CounterValue, error) {
	return nil, nil
}

func (m *memRepo) SaveCounters(_ context.Context, values []g32.CounterValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.values == nil {
		m.values = make(map[counterKey]uint64)
	}
	for _, v := range values {
		m.values[counterKey{v.Serial, v.Counter}] = v.Value
	}
	m.saves = append(m.saves, values)
	return nil
}

func (m *memRepo) value(serial string, c g32.Counter) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[counterKey{serial, c}]
}

func (m *memRepo) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

type fakeSource struct {
	mu      sync.Mutex
	fns     []func(g32.Diagnostics)
	closed  bool
	current map[string]g32.Diagnostics
}

func (f *fakeSource) Diagnostics(serial string) (g32.Diagnostics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.current[serial]
	if !ok && serial != g32.GlobalKey {
		return g32.Diagnostics{}, g32.ErrUnknownGrill
	}
	d.Serial = serial
	return d, nil
}

func (f *fakeSource) Devices() []device.Grill {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []device.Grill
	for serial := range f.current {
		if serial != g32.GlobalKey {
			out = append(out, device.Grill{Serial: serial})
		}
	}
	return out
}

func (f *fakeSource) SubscribeDiagnostics(serial string, fn func(g32.Diagnostics)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if serial != g32.AllKeys {
		panic("persister must subscribe to every grill")
	}
	f.fns = append(f.fns, fn)
	return func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
	}
}

func (f *fakeSource) publish(d g32.Diagnostics) {
	f.mu.Lock()
	fns := f.fns
	f.mu.Unlock()
	for _, fn := range fns {
		fn(d)
	}
}

func TestPersister_CoalescesAndSkipsUnchanged(t *testing.T) {
	repo := &memRepo{}
	p := NewPersister(repo, time.Hour, []g32.CounterValue{
		{Counter: g32.CounterLoginCalls, Value: 2},
		{Counter: g32.CounterGrillsCalls, Value: 5},
	})

	p.Observe(g32.Diagnostics{Serial: "G1", ConnectionAttempts: 1})
	p.Observe(g32.Diagnostics{Serial: "G1", ConnectionAttempts: 2, Reconnects: 1})
	p.Observe(g32.Diagnostics{APILoginCalls: 2, APIGrillsCalls: 5})

	if got := p.Pending(); got != 2 {
		t.Fatalf("Pending() = %d, want 2", got)
	}

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := repo.value("G1", g32.CounterConnectionAttempts); got != 2 {
		t.Errorf("stored attempts = %d, want 2", got)
	}
	if got := repo.value("G1", g32.CounterReconnects); got != 1 {
		t.Errorf("stored reconnects = %d, want 1", got)
	}
	if p.Pending() != 0 {
		t.Errorf("Pending() after flush = %d, want 0", p.Pending())
	}

	// Nothing changed, nothing written.
	p.Observe(g32.Diagnostics{Serial: "G1", ConnectionAttempts: 2, Reconnects: 1})
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := repo.saveCount(); got != 1 {
		t.Errorf("saves = %d, want 1", got)
	}
}

func TestPersister_IgnoresStaleValues(t *testing.T) {
	repo := &memRepo{}
	p := NewPersister(repo, time.Hour, []g32.CounterValue{
		{Serial: "G1", Counter: g32.CounterReconnects, Value: 5},
	})

	p.Observe(g32.Diagnostics{Serial: "G1", ConnectionAttempts: 102, Reconnects: 6})
	// Delivered late from an earlier change.
	p.Observe(g32.Diagnostics{Serial: "G1", ConnectionAttempts: 101, Reconnects: 4})

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := repo.value("G1", g32.CounterConnectionAttempts); got != 102 {
		t.Errorf("stored attempts = %d, want 102", got)
	}
	if got := repo.value("G1", g32.CounterReconnects); got != 6 {
		t.Errorf("stored reconnects = %d, want 6", got)
	}

	p.Observe(g32.Diagnostics{Serial: "G1", ConnectionAttempts: 101, Reconnects: 6})
	if got := p.Pending(); got != 0 {
		t.Errorf("Pending() after stale snapshot = %d, want 0", got)
	}
}

func TestPersister_StartRecordsCurrentCounters(t *testing.T) {
	repo := &memRepo{}
	src := &fakeSource{current: map[string]g32.Diagnostics{
		g32.GlobalKey: {APILoginCalls: 11, APIGrillsCalls: 11},
		"G1":          {ConnectionAttempts: 3},
	}}
	p := NewPersister(repo, time.Hour, []g32.CounterValue{
		{Counter: g32.CounterLoginCalls, Value: 10},
		{Counter: g32.CounterGrillsCalls, Value: 10},
	})

	// Nothing is published after Start; the changes happened before it.
	p.Start(context.Background(), src)
	p.Stop()

	if got := repo.value("", g32.CounterLoginCalls); got != 11 {
		t.Errorf("stored login calls = %d, want 11", got)
	}
	if got := repo.value("", g32.CounterGrillsCalls); got != 11 {
		t.Errorf("stored grills calls = %d, want 11", got)
	}
	if got := repo.value("G1", g32.CounterConnectionAttempts); got != 3 {
		t.Errorf("stored attempts = %d, want 3", got)
	}
}

func TestPersister_KeepsPendingOnError(t *testing.T) {
	repo := &memRepo{err: errors.New("database is locked")}
	p := NewPersister(repo, time.Hour, nil)

	p.Observe(g32.Diagnostics{APILoginCalls: 1})
	if err := p.Flush(context.Background()); err == nil {
		t.Fatal("Flush() should report the save error")
	}
	if got := p.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}

	repo.mu.Lock()
	repo.err = nil
	repo.mu.Unlock()

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := repo.value("", g32.CounterLoginCalls); got != 1 {
		t.Errorf("stored login calls = %d, want 1", got)
	}
}

func TestPersister_FlushesOnInterval(t *testing.T) {
	repo := &memRepo{}
	src := &fakeSource{}
	p := NewPersister(repo, 10*time.Millisecond, nil)
	p.Start(context.Background(), src)
	defer p.Stop()

	src.publish(g32.Diagnostics{Serial: "G1", ConnectionAttempts: 4})

	deadline := time.Now().Add(2 * time.Second)
	for repo.value("G1", g32.CounterConnectionAttempts) != 4 {
		if time.Now().After(deadline) {
			t.Fatal("counter was not flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPersister_StopFlushesAndUnsubscribes(t *testing.T) {
	repo := &memRepo{}
	src := &fakeSource{}
	p := NewPersister(repo, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx, src)
	src.publish(g32.Diagnostics{Serial: "G1", Reconnects: 3})
	cancel()

	p.Stop()
	p.Stop()

	if got := repo.value("G1", g32.CounterReconnects); got != 3 {
		t.Errorf("stored reconnects = %d, want 3", got)
	}
	src.mu.Lock()
	closed := src.closed
	src.mu.Unlock()
	if !closed {
		t.Error("Stop() did not unsubscribe")
	}
}

func TestPersister_WithManager(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db.DB)
	ctx := context.Background()

	err := repo.SaveCounters(ctx, []g32.CounterValue{{Counter: g32.CounterLoginCalls, Value: 10}})
	if err != nil {
		t.Fatalf("SaveCounters() error = %v", err)
	}

	m, err := g32.NewManager(nil, g32.ManagerConfig{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close(ctx) //nolint:errcheck // test cleanup

	if err := m.LoadCounters(ctx, repo); err != nil {
		t.Fatalf("LoadCounters() error = %v", err)
	}

	p := NewPersister(repo, time.Hour, nil)
	p.Start(ctx, m)
	if err := m.RecordAPICall(g32.CounterLoginCalls); err != nil {
		t.Fatalf("RecordAPICall() error = %v", err)
	}
	p.Stop()

	got, err := repo.LoadCounters(ctx)
	if err != nil {
		t.Fatalf("LoadCounters() error = %v", err)
	}
	for _, v := range got {
		if v.Counter == g32.CounterLoginCalls && v.Value != 11 {
			t.Errorf("login calls = %d, want 11", v.Value)
		}
	}
}
