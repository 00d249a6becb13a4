package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishRoutesByType(t *testing.T) {
	b := NewWithConfig(2, 16)
	defer b.Close(context.Background())

	var mu sync.Mutex
	var power, all []Event
	var wg sync.WaitGroup
	wg.Add(3)

	b.Subscribe(EventTypePower, func(e Event) {
		mu.Lock()
		power = append(power, e)
		mu.Unlock()
		wg.Done()
	})
	b.SubscribeAll(func(e Event) {
		mu.Lock()
		all = append(all, e)
		mu.Unlock()
		wg.Done()
	})

	b.Publish(Event{Type: EventTypePower, Data: map[string]any{"on": false}})
	b.Publish(Event{Type: EventTypeConnection, Data: map[string]any{"connected": true}})

	waitGroup(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	if len(power) != 1 || power[0].Data["on"] != false {
		t.Errorf("power handler got %+v", power)
	}
	if len(all) != 2 {
		t.Errorf("wildcard handler got %d events, want 2", len(all))
	}
}

func TestBus_HandlerPanicRecovered(t *testing.T) {
	b := NewWithConfig(1, 4)
	defer b.Close(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	b.Subscribe(EventTypeNotification, func(e Event) {
		if e.Data["boom"] == true {
			panic("handler failure")
		}
		wg.Done()
	})

	b.Publish(Event{Type: EventTypeNotification, Data: map[string]any{"boom": true}})
	b.Publish(Event{Type: EventTypeNotification, Data: map[string]any{}})

	waitGroup(t, &wg)
}

func TestBus_PublishAfterClose(t *testing.T) {
	b := NewWithConfig(1, 4)
	called := false
	b.Subscribe(EventTypePresets, func(Event) { called = true })

	b.Close(context.Background())
	b.Close(context.Background())
	b.Publish(Event{Type: EventTypePresets})

	if called {
		t.Error("handler ran after Close")
	}
}

func waitGroup(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handlers")
	}
}
