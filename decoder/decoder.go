// Package decoder reassembles messages from packets that may arrive out of
// order, duplicated, or not at all.
//
// A Decoder routes each packet to the reassembly buffer of its message,
// supervises a completion deadline per message, and emits a message as soon
// as all of its packets are present. It reports busy/idle transitions to its
// Listener and exposes wait primitives for them.
//
// Timeouts, end of input with unfinished messages, malformed packets and
// oversized messages are fatal: the decoder stops processing, cancels every
// deadline and reports the error once.
package decoder

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/justapithecus/chunkwire/deadline"
	"github.com/justapithecus/chunkwire/log"
	"github.com/justapithecus/chunkwire/metrics"
	"github.com/justapithecus/chunkwire/reassembly"
	"github.com/justapithecus/chunkwire/types"
)

// DefaultTimeout is the per-message completion deadline used when
// Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Config configures a Decoder.
type Config struct {
	// Timeout bounds how long a message may stay incomplete after its first
	// packet arrived. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaxMessageSize caps the buffered bytes of one message. Zero disables
	// the cap.
	MaxMessageSize int64
	// Listener receives notifications (optional).
	Listener Listener
	// Logger receives debug and error logs (optional).
	Logger *log.Logger
	// Collector receives counters (optional).
	Collector *metrics.Collector
}

type state int

const (
	stateOpen state = iota
	stateClosed
	stateFailed
)

// Decoder is the reassembly state machine. Safe for concurrent use;
// packets are processed in the order Accept calls acquire the lock.
type Decoder struct {
	timeout        time.Duration
	maxMessageSize int64
	listener       Listener
	logger         *log.Logger
	collector      *metrics.Collector
	deadlines      *deadline.Supervisor
	now            func() time.Time

	mu        sync.Mutex
	state     state
	err       error
	destroyed bool
	buffers   map[uint64]*reassembly.Buffer
	retired   *reassembly.Retired
	activity  activity
	done      chan struct{}
	finished  bool
	queue     []notification
	draining  bool
}

// New creates a decoder.
func New(cfg Config) (*Decoder, error) {
	if cfg.Timeout < 0 {
		return nil, &ConfigError{Field: "timeout", Msg: "must not be negative"}
	}
	if cfg.MaxMessageSize < 0 {
		return nil, &ConfigError{Field: "max_message_size", Msg: "must not be negative"}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	listener := cfg.Listener
	if listener == nil {
		listener = ListenerFuncs{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	return &Decoder{
		timeout:        timeout,
		maxMessageSize: cfg.MaxMessageSize,
		listener:       listener,
		logger:         logger,
		collector:      cfg.Collector,
		deadlines:      deadline.NewSupervisor(),
		now:            time.Now,
		buffers:        make(map[uint64]*reassembly.Buffer),
		retired:        reassembly.NewRetired(timeout),
		activity:       newActivity(),
		done:           make(chan struct{}),
	}, nil
}

// Timeout returns the effective per-message deadline.
func (d *Decoder) Timeout() time.Duration {
	return d.timeout
}

// Accept processes one packet. It returns ErrClosed after a normal end, the
// terminal error after a failure, or the fatal error the packet caused.
// Duplicates are not errors.
func (d *Decoder) Accept(p *types.Packet) error {
	d.mu.Lock()
	err := d.accept(p)
	d.mu.Unlock()

	d.drain()
	return err
}

func (d *Decoder) accept(p *types.Packet) error {
	if d.state != stateOpen {
		return d.terminalErr()
	}
	if p == nil {
		return d.malformed(&MalformedPacketError{Reason: "nil packet"})
	}

	d.collector.IncPacketsAccepted()
	if p.Count == 0 {
		return d.malformed(&MalformedPacketError{
			MessageID: p.MessageID, Index: p.Index, Count: p.Count,
			Reason: "count is zero",
		})
	}
	if p.Index >= p.Count {
		return d.malformed(&MalformedPacketError{
			MessageID: p.MessageID, Index: p.Index, Count: p.Count,
			Reason: "index out of range",
		})
	}

	now := d.now()
	d.retired.Prune(now)

	buf, ok := d.buffers[p.MessageID]
	if !ok {
		if d.retired.Contains(p.MessageID) {
			d.redundant(p, "late duplicate of finished message")
			return nil
		}
		buf = d.start(p, now)
	}

	res, err := buf.Add(p)
	if err != nil {
		return d.malformed(&MalformedPacketError{
			MessageID: p.MessageID, Index: p.Index, Count: p.Count,
			Reason: "packet does not match message", Err: err,
		})
	}
	if res == reassembly.Duplicate {
		d.redundant(p, "duplicate packet")
		return nil
	}

	if d.maxMessageSize > 0 && buf.Size() > d.maxMessageSize {
		tooLarge := &MessageTooLargeError{
			MessageID: buf.ID(),
			Size:      buf.Size(),
			Limit:     d.maxMessageSize,
		}
		d.fail(tooLarge)
		return tooLarge
	}

	if buf.Complete() {
		d.complete(buf, now)
	}
	return nil
}

// start opens the buffer for p's message and arms its deadline.
func (d *Decoder) start(p *types.Packet, now time.Time) *reassembly.Buffer {
	buf := reassembly.NewBuffer(p, now)
	wasIdle := len(d.buffers) == 0
	d.buffers[p.MessageID] = buf
	d.deadlines.Arm(p.MessageID, d.timeout, d.expire)

	d.collector.IncMessageStarted(len(d.buffers))
	d.logger.Debug("message started", map[string]any{
		"message_id": p.MessageID,
		"count":      p.Count,
	})

	if wasIdle {
		d.activity.setActive()
		d.enqueue(notification{kind: types.EventActive})
	}
	return buf
}

func (d *Decoder) complete(buf *reassembly.Buffer, now time.Time) {
	id := buf.ID()
	d.deadlines.Cancel(id)
	delete(d.buffers, id)
	d.retired.Add(id, now)

	msg, err := buf.Assemble(now)
	if err != nil {
		// Complete was checked by the caller.
		panic(err)
	}

	d.collector.AddMessageCompleted(int64(len(msg.Data)))
	d.logger.Debug("message completed", map[string]any{
		"message_id":  id,
		"packets":     msg.Packets,
		"bytes":       len(msg.Data),
		"redundant":   msg.Redundant,
		"duration_ms": msg.Duration().Milliseconds(),
	})
	d.enqueue(notification{kind: types.EventData, msg: msg})

	if len(d.buffers) == 0 {
		d.activity.setIdle()
		d.enqueue(notification{kind: types.EventIdle})
	}
}

func (d *Decoder) redundant(p *types.Packet, reason string) {
	d.collector.IncRedundantChunks()
	d.logger.Debug("redundant chunk", map[string]any{
		"message_id": p.MessageID,
		"index":      p.Index,
		"reason":     reason,
	})
	d.enqueue(notification{kind: types.EventRedundantChunk, packet: p})
}

func (d *Decoder) malformed(err *MalformedPacketError) error {
	d.collector.IncMalformedPackets()
	d.fail(err)
	return err
}

// expire runs on a timer goroutine.
func (d *Decoder) expire(id uint64, gen uint64) {
	d.mu.Lock()
	if d.state != stateOpen || !d.deadlines.Claim(id, gen) {
		d.mu.Unlock()
		return
	}
	buf, ok := d.buffers[id]
	if !ok {
		d.mu.Unlock()
		return
	}

	d.collector.IncTimeouts()
	d.fail(&ChunkTimeoutError{
		MessageID: id,
		Received:  buf.Received(),
		Expected:  buf.Expected(),
		Timeout:   d.timeout,
	})
	d.mu.Unlock()

	d.drain()
}

// fail moves the decoder to the failed state. Callers hold the lock.
func (d *Decoder) fail(err error) {
	d.state = stateFailed
	d.err = err
	d.teardown(err)

	d.logger.Error("decoder failed", map[string]any{
		"error": err.Error(),
	})
	d.enqueue(notification{kind: types.EventError, err: err})
}

// teardown stops every deadline, drops live buffers and releases waiters.
func (d *Decoder) teardown(waitErr error) {
	d.deadlines.Stop()
	if n := len(d.buffers); n > 0 {
		d.collector.AddMessagesFailed(n)
		d.buffers = make(map[uint64]*reassembly.Buffer)
	}
	d.activity.terminate(waitErr)
	if !d.finished {
		d.finished = true
		close(d.done)
	}
}

// End signals that no more packets will arrive. With messages still being
// assembled it fails the decoder with a *ChunkIncompleteError and returns
// it; otherwise the decoder closes and End returns nil. Calling End on a
// closed decoder is a no-op; on a failed decoder it returns the terminal
// error.
func (d *Decoder) End() error {
	d.mu.Lock()
	err := d.end()
	d.mu.Unlock()

	d.drain()
	return err
}

func (d *Decoder) end() error {
	switch d.state {
	case stateClosed:
		return nil
	case stateFailed:
		return d.err
	}

	if len(d.buffers) > 0 {
		ids := make([]uint64, 0, len(d.buffers))
		for id := range d.buffers {
			ids = append(ids, id)
		}
		slices.Sort(ids)

		d.collector.IncIncompletes()
		incomplete := &ChunkIncompleteError{MessageIDs: ids}
		d.fail(incomplete)
		return incomplete
	}

	d.state = stateClosed
	d.teardown(ErrClosed)
	d.logger.Debug("decoder ended", nil)
	return nil
}

// Destroy tears the decoder down immediately. Deadlines are cancelled and
// queued notifications dropped. A non-nil err becomes the terminal error and
// is reported through OnError; nothing else is reported afterwards.
// Destroy on an already closed or failed decoder does nothing.
func (d *Decoder) Destroy(err error) {
	d.mu.Lock()
	if d.state != stateOpen {
		d.mu.Unlock()
		return
	}

	d.destroyed = true
	d.queue = nil
	if err != nil {
		d.fail(err)
	} else {
		d.state = stateClosed
		d.teardown(ErrClosed)
		d.logger.Debug("decoder destroyed", nil)
	}
	d.mu.Unlock()

	d.drain()
}

// Done returns a channel closed once the decoder is closed or failed,
// whichever way it got there. Err reports which.
func (d *Decoder) Done() <-chan struct{} {
	return d.done
}

// Err returns the error that failed the decoder, or nil.
func (d *Decoder) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == stateFailed {
		return d.err
	}
	return nil
}

// Live returns the number of messages being assembled.
func (d *Decoder) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// IsActive reports whether at least one message is being assembled.
func (d *Decoder) IsActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activity.active
}

// WaitUntilActive blocks until a message is being assembled. It returns
// immediately if one already is. If the decoder ends or fails first, the
// terminal error (ErrClosed on a normal end) is returned.
func (d *Decoder) WaitUntilActive(ctx context.Context) error {
	d.mu.Lock()
	if d.activity.active {
		d.mu.Unlock()
		return nil
	}
	if d.state != stateOpen {
		err := d.terminalErr()
		d.mu.Unlock()
		return err
	}
	sig := d.activity.toActive
	d.mu.Unlock()

	return sig.wait(ctx)
}

// WaitUntilIdle blocks until no message is being assembled. It returns nil
// immediately if the decoder is already idle, and the terminal error if the
// decoder fails.
func (d *Decoder) WaitUntilIdle(ctx context.Context) error {
	d.mu.Lock()
	if d.state == stateFailed {
		err := d.err
		d.mu.Unlock()
		return err
	}
	if !d.activity.active {
		d.mu.Unlock()
		return nil
	}
	sig := d.activity.toIdle
	d.mu.Unlock()

	if err := sig.wait(ctx); err != nil && err != ErrClosed {
		return err
	}
	return nil
}

// terminalErr is returned to callers that touch a decoder that is no longer
// open. Callers hold the lock.
func (d *Decoder) terminalErr() error {
	if d.state == stateFailed {
		return d.err
	}
	return ErrClosed
}

func (d *Decoder) enqueue(n notification) {
	d.queue = append(d.queue, n)
}

// drain delivers queued notifications outside the lock. Only one goroutine
// drains at a time; a nested call from a listener returns immediately and
// its notifications are delivered by the outer loop once the current one
// returns.
func (d *Decoder) drain() {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true

	for len(d.queue) > 0 {
		n := d.queue[0]
		d.queue = d.queue[1:]
		if d.destroyed && n.kind != types.EventError {
			continue
		}
		d.mu.Unlock()
		n.deliver(d.listener)
		d.mu.Lock()
	}

	d.queue = nil
	d.draining = false
	d.mu.Unlock()
}
