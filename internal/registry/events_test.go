package registry

import (
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEventBusOn(t *testing.T) {
	eb := NewEventBus(testLogger())

	var got []Event
	eb.On(EventPropertyUpdate, func(e Event) {
		got = append(got, e)
	})

	eb.Emit(Event{Type: EventPropertyUpdate, Data: "a"})
	eb.Emit(Event{Type: EventAvailability, Data: "b"})

	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	if got[0].Data != "a" {
		t.Errorf("data = %v, want a", got[0].Data)
	}
}

func TestEventBusOnAll(t *testing.T) {
	eb := NewEventBus(testLogger())

	var count int
	eb.OnAll(func(e Event) { count++ })

	eb.Emit(Event{Type: EventPropertyUpdate})
	eb.Emit(Event{Type: EventAvailability})
	eb.Emit(Event{Type: EventDeviceDiscovered})

	if count != 3 {
		t.Errorf("handler called %d times, want 3", count)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := NewEventBus(testLogger())

	var count int
	unsub := eb.On(EventPropertyUpdate, func(e Event) { count++ })

	eb.Emit(Event{Type: EventPropertyUpdate})
	unsub()
	eb.Emit(Event{Type: EventPropertyUpdate})

	if count != 1 {
		t.Errorf("handler called %d times after unsubscribe, want 1", count)
	}
}

func TestEventBusPanicRecovery(t *testing.T) {
	eb := NewEventBus(testLogger())

	var called bool
	eb.OnAll(func(e Event) { panic("boom") })
	eb.OnAll(func(e Event) { called = true })

	// Must not panic, and other handlers still run.
	eb.Emit(Event{Type: EventPropertyUpdate})

	if !called {
		t.Error("second handler not called after first panicked")
	}
}
