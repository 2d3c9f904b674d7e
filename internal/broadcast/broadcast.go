// Package broadcast implements C9: a subscriber registry that fans out
// snapshot/update frames to any number of readers (REST never touches
// this; only WebSocket clients subscribe) without ever blocking the tick
// on a slow consumer. Grounded on the teacher's Poller.mu sync.RWMutex
// guarding shared maps in metro/client.go, generalized from one mutex
// protecting station state to one protecting a subscriber set.
package broadcast

import (
	"sync"
	"time"

	"github.com/empsgit/tram-monitor-ekb/domain"
)

const maxBufferedFramesDefault = 8

// FrameType distinguishes the two frame shapes C9 emits.
type FrameType string

const (
	FrameSnapshot FrameType = "snapshot"
	FrameUpdate   FrameType = "update"
)

// Frame is one message sent to a subscriber, matching the WebSocket wire
// shape in spec.md §6.
type Frame struct {
	Type     FrameType             `json:"type"`
	Vehicles []domain.VehicleState `json:"vehicles"`
}

// Subscriber is a single client's bounded inbox. Publish never blocks on
// it: when full, the oldest frame is dropped to make room and Lossy is
// set.
type Subscriber struct {
	id    uint64
	ch    chan Frame
	mu    sync.Mutex
	lossy bool
}

// Frames returns the channel to range over for delivery, in publication
// order.
func (s *Subscriber) Frames() <-chan Frame { return s.ch }

// Lossy reports whether this subscriber has ever had a frame dropped for
// lagging behind.
func (s *Subscriber) Lossy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lossy
}

// Broadcaster holds the subscriber set and the staleness bound used to
// decide whether a fresh subscriber gets an immediate snapshot.
type Broadcaster struct {
	mu          sync.RWMutex
	subs        map[uint64]*Subscriber
	nextID      uint64
	maxBuffered int
	snapshotTTL time.Duration

	mirror Mirror // optional Redis fan-out, nil when unconfigured
}

// Mirror is implemented by the optional Redis fan-out bridge (A4); the
// broadcaster calls it with every frame it publishes locally.
type Mirror interface {
	Publish(frame Frame)
}

// New builds a Broadcaster. maxBuffered <= 0 uses the spec default of 8.
func New(maxBuffered int, snapshotTTL time.Duration, mirror Mirror) *Broadcaster {
	if maxBuffered <= 0 {
		maxBuffered = maxBufferedFramesDefault
	}
	return &Broadcaster{
		subs:        map[uint64]*Subscriber{},
		maxBuffered: maxBuffered,
		snapshotTTL: snapshotTTL,
		mirror:      mirror,
	}
}

// Subscribe registers a new subscriber and, if current is fresh enough
// (per the snapshot staleness guard in spec.md §4.9), immediately enqueues
// a snapshot frame ahead of any update. currentAt is the timestamp the
// snapshot was generated at; a zero value is treated as unknown/stale.
func (b *Broadcaster) Subscribe(current []domain.VehicleState, currentAt time.Time, now time.Time) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscriber{id: b.nextID, ch: make(chan Frame, b.maxBuffered)}
	b.subs[sub.id] = sub

	if !currentAt.IsZero() && now.Sub(currentAt) <= b.snapshotTTL {
		sub.ch <- Frame{Type: FrameSnapshot, Vehicles: current}
	}
	return sub
}

// Unsubscribe removes a subscriber, e.g. on disconnect.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub.id)
}

// Publish sends an update frame to every subscriber without blocking:
// a full queue has its oldest frame dropped to make room, and the
// subscriber is marked lossy. Mirrors to the optional Redis bridge.
func (b *Broadcaster) Publish(vehicles []domain.VehicleState) {
	frame := Frame{Type: FrameUpdate, Vehicles: vehicles}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		send(sub, frame)
	}

	if b.mirror != nil {
		b.mirror.Publish(frame)
	}
}

// send enqueues frame on sub, dropping the oldest buffered frame and
// retrying once if the channel is full, per spec.md §4.9/§9.
func send(sub *Subscriber, frame Frame) {
	select {
	case sub.ch <- frame:
		return
	default:
	}

	select {
	case <-sub.ch:
	default:
	}

	sub.mu.Lock()
	sub.lossy = true
	sub.mu.Unlock()

	select {
	case sub.ch <- frame:
	default:
		// Still full: another publisher won the race. Drop silently.
	}
}

// SubscriberCount reports the current number of subscribers, used by
// /api/diagnostics.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
