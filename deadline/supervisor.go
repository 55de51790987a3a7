// Package deadline supervises per-message completion deadlines.
//
// Each armed deadline carries a generation token. A firing timer hands its
// token to the callback, and the owner confirms it with Claim under its own
// lock before acting. A deadline cancelled or re-armed between the timer
// firing and the claim is therefore never acted on.
package deadline

import (
	"sync"
	"time"
)

// FireFunc is invoked on the timer goroutine when a deadline elapses.
type FireFunc func(id uint64, gen uint64)

type entry struct {
	timer *time.Timer
	gen   uint64
}

// Supervisor tracks one deadline per message id. Safe for concurrent use.
type Supervisor struct {
	mu      sync.Mutex
	entries map[uint64]entry
	nextGen uint64
	stopped bool
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{entries: make(map[uint64]entry)}
}

// Arm schedules fire for id after d, replacing any deadline already armed
// for id. Returns the generation of the new deadline, or 0 if the
// supervisor is stopped.
func (s *Supervisor) Arm(id uint64, d time.Duration, fire FireFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0
	}
	if old, ok := s.entries[id]; ok {
		old.timer.Stop()
	}

	s.nextGen++
	gen := s.nextGen
	s.entries[id] = entry{
		gen:   gen,
		timer: time.AfterFunc(d, func() { fire(id, gen) }),
	}
	return gen
}

// Cancel stops the deadline for id. Returns false if none was armed.
func (s *Supervisor) Cancel(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, id)
	return true
}

// Claim consumes the deadline for id if gen is still current. A true result
// means the caller owns the expiry; false means the deadline was cancelled,
// re-armed or the supervisor was stopped.
func (s *Supervisor) Claim(id uint64, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.gen != gen {
		return false
	}
	delete(s.entries, id)
	return true
}

// Pending returns the number of armed deadlines.
func (s *Supervisor) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every deadline and rejects further Arm calls.
// Idempotent.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
}
