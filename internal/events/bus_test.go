package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan StreamStateChangedEvent, 1)

	unsub := bus.Subscribe(func(e StreamStateChangedEvent) {
		received <- e
	})
	defer unsub()

	event := StreamStateChangedEvent{
		CameraID:  "cam0",
		Streaming: true,
		Source:    "explicit",
		Timestamp: "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got.CameraID != event.CameraID || !got.Streaming {
		t.Errorf("Expected %+v, got %+v", event, got)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan PresenceChangedEvent, 1)
	received2 := make(chan PresenceChangedEvent, 1)

	unsub1 := bus.Subscribe(func(e PresenceChangedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e PresenceChangedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(PresenceChangedEvent{CameraID: "cam0", Present: true, Subscribers: 1})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan StreamErrorEvent, 1)

	unsub := bus.Subscribe(func(e StreamErrorEvent) {
		received <- e
	})

	bus.Publish(StreamErrorEvent{CameraID: "cam0", Action: "start"})
	<-received

	unsub()

	bus.Publish(StreamErrorEvent{CameraID: "cam0", Action: "stop"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	presenceReceived := make(chan bool, 1)
	featureReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ PresenceChangedEvent) {
		presenceReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ FeatureChangedEvent) {
		featureReceived <- true
	})
	defer unsub2()

	bus.Publish(PresenceChangedEvent{CameraID: "cam0"})
	<-presenceReceived

	select {
	case <-featureReceived:
		t.Fatal("Feature subscriber should NOT have received PresenceChangedEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(FeatureChangedEvent{Feature: "PixelFormat", Value: "Mono8"})
	<-featureReceived

	select {
	case <-presenceReceived:
		t.Fatal("Presence subscriber should NOT have received FeatureChangedEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_UnknownHandler(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ PresenceChangedEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(PresenceChangedEvent{
					CameraID:  "cam0",
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestEventJSONSerialization(t *testing.T) {
	tests := []struct {
		name  string
		event any
		key   string
	}{
		{"PresenceChangedEvent", PresenceChangedEvent{CameraID: "cam0", Present: true}, "present"},
		{"StreamStateChangedEvent", StreamStateChangedEvent{CameraID: "cam0", Streaming: true}, "streaming"},
		{"FeatureChangedEvent", FeatureChangedEvent{Feature: "PixelFormat", Value: "Mono8"}, "feature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var result map[string]any
			if unmarshalErr := json.Unmarshal(data, &result); unmarshalErr != nil {
				t.Fatalf("Failed to unmarshal: %v", unmarshalErr)
			}

			if _, ok := result[tt.key]; !ok {
				t.Errorf("Expected key %q in %s", tt.key, data)
			}
		})
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[FeatureChangedEvent](bus, ch)
	defer unsub()

	event := FeatureChangedEvent{CameraID: "cam0", Feature: "PixelFormat", Value: "BayerRG8"}
	bus.Publish(event)

	received := <-ch
	got, ok := received.(FeatureChangedEvent)
	if !ok {
		t.Fatalf("Expected FeatureChangedEvent, got %T", received)
	}
	if got.Value != event.Value {
		t.Errorf("Expected value %s, got %s", event.Value, got.Value)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[StreamStateChangedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(StreamStateChangedEvent{CameraID: "cam0"})
		done <- true
	}()

	<-done // Should complete without blocking
}
