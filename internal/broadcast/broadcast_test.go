package broadcast

import (
	"testing"
	"time"

	"github.com/empsgit/tram-monitor-ekb/domain"
)

func TestSubscribeFreshSnapshotPrecedesUpdates(t *testing.T) {
	b := New(8, 20*time.Second, nil)
	now := time.Now()
	current := []domain.VehicleState{{DeviceID: "v1"}}

	sub := b.Subscribe(current, now, now)
	b.Publish([]domain.VehicleState{{DeviceID: "v2"}})

	first := <-sub.Frames()
	if first.Type != FrameSnapshot {
		t.Fatalf("first frame type = %s, want snapshot", first.Type)
	}
	second := <-sub.Frames()
	if second.Type != FrameUpdate {
		t.Fatalf("second frame type = %s, want update", second.Type)
	}
}

func TestSubscribeStaleSnapshotWithheld(t *testing.T) {
	b := New(8, 20*time.Second, nil)
	now := time.Now()
	staleAt := now.Add(-30 * time.Second)

	sub := b.Subscribe([]domain.VehicleState{{DeviceID: "v1"}}, staleAt, now)
	b.Publish([]domain.VehicleState{{DeviceID: "v2"}})

	frame := <-sub.Frames()
	if frame.Type != FrameUpdate {
		t.Fatalf("expected update as first frame when snapshot is stale, got %s", frame.Type)
	}
}

func TestPublishDropsOldestWhenSubscriberLags(t *testing.T) {
	b := New(2, time.Second, nil)
	sub := b.Subscribe(nil, time.Time{}, time.Now())

	b.Publish([]domain.VehicleState{{DeviceID: "1"}})
	b.Publish([]domain.VehicleState{{DeviceID: "2"}})
	b.Publish([]domain.VehicleState{{DeviceID: "3"}}) // triggers drop-oldest

	if !sub.Lossy() {
		t.Error("expected subscriber marked lossy after overflow")
	}

	first := <-sub.Frames()
	if first.Vehicles[0].DeviceID != "2" {
		t.Errorf("oldest frame not dropped: got device %s, want 2", first.Vehicles[0].DeviceID)
	}
	second := <-sub.Frames()
	if second.Vehicles[0].DeviceID != "3" {
		t.Errorf("latest frame missing: got device %s, want 3", second.Vehicles[0].DeviceID)
	}
}

func TestPublishDoesNotAffectOtherSubscribers(t *testing.T) {
	b := New(1, time.Second, nil)
	laggy := b.Subscribe(nil, time.Time{}, time.Now())
	healthy := b.Subscribe(nil, time.Time{}, time.Now())

	// healthy drains its queue between publishes; laggy never reads.
	b.Publish([]domain.VehicleState{{DeviceID: "1"}})
	<-healthy.Frames()
	b.Publish([]domain.VehicleState{{DeviceID: "2"}})

	select {
	case <-healthy.Frames():
	default:
		t.Fatal("healthy subscriber missing its second frame")
	}
	if !laggy.Lossy() {
		t.Error("expected laggy subscriber marked lossy")
	}
}

func TestUnsubscribeRemovesFromCount(t *testing.T) {
	b := New(8, time.Second, nil)
	sub := b.Subscribe(nil, time.Time{}, time.Now())
	if b.SubscriberCount() != 1 {
		t.Fatalf("count = %d, want 1", b.SubscriberCount())
	}
	b.Unsubscribe(sub)
	if b.SubscriberCount() != 0 {
		t.Fatalf("count = %d, want 0", b.SubscriberCount())
	}
}

type recordingMirror struct{ frames []Frame }

func (m *recordingMirror) Publish(f Frame) { m.frames = append(m.frames, f) }

func TestPublishMirrorsToOptionalSink(t *testing.T) {
	mirror := &recordingMirror{}
	b := New(8, time.Second, mirror)
	b.Publish([]domain.VehicleState{{DeviceID: "1"}})

	if len(mirror.frames) != 1 {
		t.Fatalf("got %d mirrored frames, want 1", len(mirror.frames))
	}
}
