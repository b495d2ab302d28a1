// Package bus provides non-blocking distribution of camera frames to the
// capture pipeline's consumers (sampler slot, recorder feed).
//
// Philosophy: drop frames, never queue. The sampler only ever wants the
// most recent frame, and a recorder that falls behind should lose frames
// rather than stall the camera loop.
package bus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with unknown id.
	ErrSubscriberNotFound = errors.New("subscriber id not found")

	// ErrBusClosed is returned when operations are attempted on a closed bus.
	ErrBusClosed = errors.New("bus is closed")

	// ErrNilChannel is returned when Subscribe is called with a nil channel.
	ErrNilChannel = errors.New("subscriber channel cannot be nil")
)

// Stats contains global and per-subscriber distribution metrics.
type Stats struct {
	// TotalPublished is the number of Publish() calls
	TotalPublished uint64
	// TotalSent is the sum of frames sent to all subscribers
	TotalSent uint64
	// TotalDropped is the sum of frames dropped across all subscribers
	TotalDropped uint64
	// Subscribers contains the per-subscriber breakdown
	Subscribers map[string]SubscriberStats
}

// SubscriberStats tracks metrics for a single subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriberCounters struct {
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus distributes frames to subscribers with a drop policy.
//
// All methods are safe for concurrent use. Publish never blocks: a
// subscriber whose channel is full loses the frame and its drop counter is
// incremented.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan<- types.Frame
	counters    map[string]*subscriberCounters
	closed      bool

	totalPublished atomic.Uint64
}

// New creates a new frame bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan<- types.Frame),
		counters:    make(map[string]*subscriberCounters),
	}
}

// Subscribe registers a channel to receive frames.
func (b *Bus) Subscribe(id string, ch chan<- types.Frame) error {
	if ch == nil {
		return ErrNilChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = ch
	b.counters[id] = &subscriberCounters{}
	return nil
}

// Unsubscribe removes a subscriber by id.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}

	delete(b.subscribers, id)
	delete(b.counters, id)
	return nil
}

// Publish sends a frame to all subscribers (non-blocking). Publishing on a
// closed bus is a silent no-op so the camera pump can race with teardown
// safely.
func (b *Bus) Publish(frame types.Frame) {
	b.totalPublished.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- frame:
			b.counters[id].sent.Add(1)
		default:
			b.counters[id].dropped.Add(1)
		}
	}
}

// Stats returns a snapshot of the bus statistics.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := Stats{
		TotalPublished: b.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats),
	}

	var totalSent, totalDropped uint64
	for id, c := range b.counters {
		sent := c.sent.Load()
		dropped := c.dropped.Load()
		totalSent += sent
		totalDropped += dropped
		result.Subscribers[id] = SubscriberStats{Sent: sent, Dropped: dropped}
	}
	result.TotalSent = totalSent
	result.TotalDropped = totalDropped
	return result
}

// Close stops the bus. Subsequent Subscribe/Unsubscribe return
// ErrBusClosed; Publish becomes a no-op. Subscriber channels are NOT
// closed — their owners manage their lifecycle. Idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
