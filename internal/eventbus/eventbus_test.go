package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribeDelivery(t *testing.T) {
	b := New()
	sub := b.Subscribe(DeviceConnected)
	defer sub.Unsubscribe()

	b.Publish(Event{Kind: DeviceConnected, Data: map[string]any{"sn": "TM20-001"}})

	select {
	case ev := <-sub.Events():
		if ev.Data["sn"] != "TM20-001" {
			t.Errorf("sn = %v, want TM20-001", ev.Data["sn"])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeFiltersByKind(t *testing.T) {
	b := New()
	sub := b.Subscribe(DeviceConnected)
	defer sub.Unsubscribe()

	b.Publish(Event{Kind: DeviceTimeout})

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event delivered: %v", ev)
	case <-time.After(50 * time.Millisecond):
		// expected: no delivery
	}
}

func TestSubscribeAllKinds(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	b.Publish(Event{Kind: DeviceTimeout})

	select {
	case ev := <-sub.Events():
		if ev.Kind != DeviceTimeout {
			t.Errorf("kind = %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestDropOldestOnFullQueue(t *testing.T) {
	b := New()
	sub := b.Subscribe(MetricsUpdate)
	defer sub.Unsubscribe()

	for i := 0; i < subscriberQueueCapacity+10; i++ {
		b.Publish(Event{Kind: MetricsUpdate, Data: map[string]any{"i": i}})
	}

	if sub.Dropped() == 0 {
		t.Error("expected some events to be dropped under queue pressure")
	}
}

func TestSnapshotReturnsRecentEvents(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		b.Publish(Event{Kind: ServerStarted})
	}

	snap := b.Snapshot()
	if len(snap) != 5 {
		t.Errorf("snapshot len = %d, want 5", len(snap))
	}
}

func TestSnapshotWrapsAfterRingFull(t *testing.T) {
	b := New()
	for i := 0; i < ringBufferSize+3; i++ {
		b.Publish(Event{Kind: ServerStarted, Data: map[string]any{"i": i}})
	}

	snap := b.Snapshot()
	if len(snap) != ringBufferSize {
		t.Fatalf("snapshot len = %d, want %d", len(snap), ringBufferSize)
	}
	// oldest retained event should be index 3 (0,1,2 were evicted)
	if snap[0].Data["i"] != 3 {
		t.Errorf("oldest retained event i = %v, want 3", snap[0].Data["i"])
	}
}
