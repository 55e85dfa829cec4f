package events_test

import (
	"sync"
	"testing"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/events"
	"github.com/vibhukrishnas/sams-core/internal/testutil"
)

func TestBus_DeliversToAllSinks(t *testing.T) {
	bus := events.NewBus(testutil.NewTestLogger())
	defer bus.Close()

	a := &testutil.EventRecorder{}
	b := &testutil.EventRecorder{}
	bus.Subscribe(a)
	bus.Subscribe(b)

	bus.Publish(events.Event{Type: events.TypeAlertCreated, AlertID: "a1"})

	for _, rec := range []*testutil.EventRecorder{a, b} {
		e, ok := rec.WaitFor(time.Second, func(e events.Event) bool { return e.Type == events.TypeAlertCreated })
		if !ok {
			t.Fatal("sink never received the event")
		}
		if e.AlertID != "a1" {
			t.Errorf("AlertID = %s, want a1", e.AlertID)
		}
		if e.Timestamp.IsZero() {
			t.Error("Publish did not stamp a timestamp")
		}
	}
}

func TestBus_PublishDoesNotBlockOnSlowSink(t *testing.T) {
	bus := events.NewBus(testutil.NewTestLogger())
	defer bus.Close()

	release := make(chan struct{})
	bus.Subscribe(events.SinkFunc(func(e events.Event) { <-release }))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(events.Event{Type: events.TypeAlertCreated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked behind a stalled sink")
	}
	close(release)
}

func TestBus_CloseFlushesQueuedEvents(t *testing.T) {
	bus := events.NewBus(testutil.NewTestLogger())

	var mu sync.Mutex
	var got []events.Event
	bus.Subscribe(events.SinkFunc(func(e events.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}))

	for i := 0; i < 50; i++ {
		bus.Publish(events.Event{Type: events.TypeAlertResolved})
	}
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 50 {
		t.Errorf("delivered %d events after Close, want 50", len(got))
	}
}

func TestBus_SinkPanicDoesNotStopDelivery(t *testing.T) {
	bus := events.NewBus(testutil.NewTestLogger())
	defer bus.Close()

	bus.Subscribe(events.SinkFunc(func(e events.Event) {
		if e.AlertID == "boom" {
			panic("sink failure")
		}
	}))
	rec := &testutil.EventRecorder{}
	bus.Subscribe(rec)

	bus.Publish(events.Event{Type: events.TypeAlertCreated, AlertID: "boom"})
	bus.Publish(events.Event{Type: events.TypeAlertCreated, AlertID: "ok"})

	if _, ok := rec.WaitFor(time.Second, func(e events.Event) bool { return e.AlertID == "ok" }); !ok {
		t.Fatal("delivery stopped after a sink panicked")
	}
}

func TestBus_SubscribeAfterCloseIsIgnored(t *testing.T) {
	bus := events.NewBus(testutil.NewTestLogger())
	bus.Close()

	rec := &testutil.EventRecorder{}
	bus.Subscribe(rec)
	bus.Publish(events.Event{Type: events.TypeAlertCreated})

	time.Sleep(20 * time.Millisecond)
	if n := len(rec.Events()); n != 0 {
		t.Errorf("sink registered after Close received %d events", n)
	}
}
