package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/g32-bridge/internal/bridges/g32"
	"github.com/nerrad567/g32-bridge/internal/infrastructure/mqtt"
)

var _ g32.Gate = (*Gate)(nil)

type fakeSubscriber struct {
	mu       sync.Mutex
	handlers map[string]mqtt.MessageHandler
	err      error
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.handlers == nil {
		f.handlers = make(map[string]mqtt.MessageHandler)
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeSubscriber) publish(t *testing.T, topic, payload string) {
	t.Helper()
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h == nil {
		t.Fatalf("no subscription for %s", topic)
	}
	if err := h(topic, []byte(payload)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
}

func startGate(t *testing.T, sub *fakeSubscriber, bindings ...Binding) *Gate {
	t.Helper()
	g := New(sub, bindings)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(g.Stop)
	return g
}

func collect(g *Gate, serial string) <-chan bool {
	ch := make(chan bool, 16)
	g.Watch(serial, func(permitted bool) { ch <- permitted })
	return ch
}

func expect(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Errorf("transition = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no transition, want %v", want)
	}
}

func expectNone(t *testing.T, ch <-chan bool) {
	t.Helper()
	select {
	case got := <-ch:
		t.Errorf("unexpected transition %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGate_FailsOpen(t *testing.T) {
	sub := &fakeSubscriber{}
	g := startGate(t, sub, Binding{Serial: "G1", Topic: "home/presence/alex"})

	if !g.Permitted("G1") {
		t.Error("Permitted(G1) = false before any presence reading")
	}
	if !g.Permitted("UNBOUND") {
		t.Error("Permitted(UNBOUND) = false")
	}
}

func TestGate_Transitions(t *testing.T) {
	sub := &fakeSubscriber{}
	g := startGate(t, sub, Binding{Serial: "G1", Topic: "home/presence/alex"})
	ch := collect(g, "G1")

	sub.publish(t, "home/presence/alex", "home")
	expectNone(t, ch)

	sub.publish(t, "home/presence/alex", "not_home")
	expect(t, ch, false)
	if g.Permitted("G1") {
		t.Error("Permitted() = true while away")
	}

	sub.publish(t, "home/presence/alex", "not_home")
	expectNone(t, ch)

	sub.publish(t, "home/presence/alex", " HOME\n")
	expect(t, ch, true)
	if !g.Permitted("G1") {
		t.Error("Permitted() = false while home")
	}
}

func TestGate_FirstReadingAway(t *testing.T) {
	sub := &fakeSubscriber{}
	g := startGate(t, sub, Binding{Serial: "G1", Topic: "p", HomePayload: "present"})
	ch := collect(g, "G1")

	sub.publish(t, "p", "home")
	expect(t, ch, false)

	sub.publish(t, "p", "present")
	expect(t, ch, true)
}

func TestGate_SharedTopic(t *testing.T) {
	sub := &fakeSubscriber{}
	g := startGate(t, sub,
		Binding{Serial: "G1", Topic: "home/presence/family"},
		Binding{Serial: "G2", Topic: "home/presence/family"},
		Binding{Serial: "G3"},
	)
	ch1, ch2 := collect(g, "G1"), collect(g, "G2")

	sub.publish(t, "home/presence/family", "away")
	expect(t, ch1, false)
	expect(t, ch2, false)

	sub.mu.Lock()
	n := len(sub.handlers)
	sub.mu.Unlock()
	if n != 1 {
		t.Errorf("subscriptions = %d, want 1", n)
	}
}

func TestGate_Unsubscribe(t *testing.T) {
	sub := &fakeSubscriber{}
	g := startGate(t, sub, Binding{Serial: "G1", Topic: "p"})

	ch := make(chan bool, 4)
	unsub := g.Watch("G1", func(permitted bool) { ch <- permitted })
	unsub()
	unsub()

	sub.publish(t, "p", "away")
	expectNone(t, ch)
}

func TestGate_CallbackMayBlock(t *testing.T) {
	sub := &fakeSubscriber{}
	g := startGate(t, sub, Binding{Serial: "G1", Topic: "p"})

	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	got := make(chan bool, 4)
	g.Watch("G1", func(permitted bool) {
		entered <- struct{}{}
		<-release
		got <- permitted
	})

	// The MQTT handler returns while the watcher is still blocked.
	sub.publish(t, "p", "away")
	<-entered
	sub.publish(t, "p", "home")
	close(release)

	expect(t, got, false)
	expect(t, got, true)
}

func TestGate_TransitionsCoalesceWhileWatcherBlocked(t *testing.T) {
	sub := &fakeSubscriber{}
	g := startGate(t, sub, Binding{Serial: "G1", Topic: "p"})

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	got := make(chan bool, 300)
	var once sync.Once
	g.Watch("G1", func(permitted bool) {
		once.Do(func() {
			entered <- struct{}{}
			<-release
		})
		got <- permitted
	})

	sub.publish(t, "p", "away")
	<-entered

	// Far more transitions than any queue would hold, ending at home.
	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i <= 200; i++ {
			payload := "home"
			if i%2 == 1 {
				payload = "away"
			}
			sub.publish(t, "p", payload)
		}
	}()
	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("MQTT handler blocked behind a busy watcher")
	}

	close(release)
	expect(t, got, false)
	expect(t, got, true)
	expectNone(t, got)

	if !g.Permitted("G1") {
		t.Error("Permitted() = false, want latest reading home")
	}
}

func TestGate_WatcherPanicRecovered(t *testing.T) {
	sub := &fakeSubscriber{}
	g := startGate(t, sub, Binding{Serial: "G1", Topic: "p"})

	g.Watch("G1", func(bool) { panic("boom") })
	ch := collect(g, "G1")

	sub.publish(t, "p", "away")
	expect(t, ch, false)
}

func TestGate_StartSubscribeError(t *testing.T) {
	sub := &fakeSubscriber{err: errors.New("not connected")}
	g := New(sub, []Binding{{Serial: "G1", Topic: "p"}})
	defer g.Stop()

	if err := g.Start(context.Background()); err == nil {
		t.Error("Start() should fail when subscribing fails")
	}
}
