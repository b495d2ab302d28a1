package bus

import (
	"sync"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/types"
)

// LatestSlot is a single-slot mailbox holding the most recent frame.
//
// The sampling tick wants "the current camera frame", not a backlog: a new
// frame overwrites an unconsumed one, and Take returns the frame at most
// once. Overwrites are counted so a starved consumer is visible in stats.
type LatestSlot struct {
	mu         sync.Mutex
	frame      *types.Frame
	overwrites uint64
}

// NewLatestSlot creates an empty slot.
func NewLatestSlot() *LatestSlot { return &LatestSlot{} }

// Put stores a frame, overwriting any unconsumed one.
func (s *LatestSlot) Put(frame types.Frame) {
	s.mu.Lock()
	if s.frame != nil {
		s.overwrites++
	}
	f := frame
	s.frame = &f
	s.mu.Unlock()
}

// Take removes and returns the stored frame, or nil if none is pending.
func (s *LatestSlot) Take() *types.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.frame
	s.frame = nil
	return f
}

// Peek returns the stored frame without consuming it, or nil.
func (s *LatestSlot) Peek() *types.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Overwrites returns the number of frames lost to overwrite.
func (s *LatestSlot) Overwrites() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overwrites
}
