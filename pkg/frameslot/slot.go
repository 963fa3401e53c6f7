// Package frameslot provides the single-frame hand-off between an
// acquisition goroutine and a render loop.
//
// A Slot holds zero or one pending frame. The producer only fills an empty
// slot and the consumer never waits for the lock, so neither side can stall
// the other for longer than a pointer swap.
package frameslot

import (
	"sync"

	"github.com/teslashibe/go-fisheye/pkg/capture"
)

// Slot is a mutex-guarded cell holding at most one *capture.Frame.
// The zero value is not usable; call New.
type Slot struct {
	mu    sync.Mutex
	frame *capture.Frame

	drained chan struct{}
}

// New creates an empty slot.
func New() *Slot {
	return &Slot{
		drained: make(chan struct{}, 1),
	}
}

// TryPut stores f if the slot is empty. It returns false when a frame is
// already pending; the caller keeps f and tries again later.
func (s *Slot) TryPut(f *capture.Frame) bool {
	if f == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frame != nil {
		return false
	}
	s.frame = f
	return true
}

// TryTake removes and returns the pending frame. It never blocks: when the
// lock is contended or the slot is empty it returns (nil, false).
func (s *Slot) TryTake() (*capture.Frame, bool) {
	if !s.mu.TryLock() {
		return nil, false
	}
	f := s.frame
	s.frame = nil
	s.mu.Unlock()

	if f == nil {
		return nil, false
	}

	select {
	case s.drained <- struct{}{}:
	default:
	}
	return f, true
}

// Drained is signalled after a successful TryTake. Signals coalesce: several
// takes between two receives produce one wake-up.
func (s *Slot) Drained() <-chan struct{} {
	return s.drained
}

// Occupied reports whether a frame is pending.
func (s *Slot) Occupied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame != nil
}

// Clear drops any pending frame without signalling Drained.
func (s *Slot) Clear() {
	s.mu.Lock()
	s.frame = nil
	s.mu.Unlock()
}
