package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 10)
	bus.Subscribe(TypeVehicleNew, received)

	bus.Publish(Event{
		Type:      TypeVehicleNew,
		TenantID:  "t1",
		Timestamp: time.Now(),
		Data:      map[string]string{"identifier": "1HGCV1F30LA012345"},
	})

	select {
	case evt := <-received:
		if evt.Type != TypeVehicleNew {
			t.Errorf("expected %s, got %s", TypeVehicleNew, evt.Type)
		}
		if evt.TenantID != "t1" {
			t.Errorf("expected tenant t1, got %s", evt.TenantID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch1 := make(chan Event, 10)
	ch2 := make(chan Event, 10)
	bus.Subscribe(TypeVehicleSold, ch1)
	bus.Subscribe(TypeVehicleSold, ch2)

	bus.Publish(Event{Type: TypeVehicleSold, TenantID: "t1"})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_TypeFiltering(t *testing.T) {
	bus := New()
	defer bus.Close()

	newCh := make(chan Event, 10)
	soldCh := make(chan Event, 10)
	bus.Subscribe(TypeVehicleNew, newCh)
	bus.Subscribe(TypeVehicleSold, soldCh)

	bus.Publish(Event{Type: TypeVehicleNew, TenantID: "t1"})

	select {
	case <-newCh:
	case <-time.After(time.Second):
		t.Fatal("vehicle.new subscriber did not receive event")
	}

	select {
	case <-soldCh:
		t.Fatal("vehicle.sold subscriber should NOT receive vehicle.new event")
	case <-time.After(50 * time.Millisecond):
		// good
	}
}

func TestBus_PublishBatch(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 100)
	bus.Subscribe(TypeVehiclePriceChanged, received)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(Event{Type: TypeVehiclePriceChanged, TenantID: "t1"})
		}()
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)
	if len(received) != 50 {
		t.Errorf("expected 50 events, got %d", len(received))
	}
}

func TestTypesCoversAll(t *testing.T) {
	want := map[string]bool{
		TypeRunStarted:          true,
		TypeRunCompleted:        true,
		TypeVehicleNew:          true,
		TypeVehiclePriceChanged: true,
		TypeVehicleSold:         true,
		TypeCompetitorScanned:   true,
	}
	got := Types()
	if len(got) != len(want) {
		t.Fatalf("Types() returned %d entries, want %d", len(got), len(want))
	}
	for _, typ := range got {
		if !want[typ] {
			t.Errorf("unexpected type %q", typ)
		}
	}
}
