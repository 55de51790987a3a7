package decoder

import "context"

// signal is a one-shot broadcast. Waiters block on ch; err is written
// before ch is closed and read only after it.
type signal struct {
	ch     chan struct{}
	err    error
	closed bool
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

// fire releases all waiters with err. Callers hold the decoder lock.
func (s *signal) fire(err error) {
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.ch)
}

func (s *signal) wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// activity tracks the busy/idle state. The decoder starts idle: the idle
// signal is already fired and the active signal pending. Every transition
// fires the signal for the new state and replaces the other with a fresh one.
type activity struct {
	active   bool
	toActive *signal
	toIdle   *signal
}

func newActivity() activity {
	idle := newSignal()
	idle.fire(nil)
	return activity{toActive: newSignal(), toIdle: idle}
}

func (a *activity) setActive() {
	a.active = true
	a.toActive.fire(nil)
	a.toIdle = newSignal()
}

func (a *activity) setIdle() {
	a.active = false
	a.toIdle.fire(nil)
	a.toActive = newSignal()
}

// terminate releases every waiter with err. A waiter already released by a
// real transition keeps its nil result.
func (a *activity) terminate(err error) {
	a.active = false
	a.toActive.fire(err)
	a.toIdle.fire(err)
}
