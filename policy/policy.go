// Package policy decides how reassembled messages reach a Sink.
package policy

import (
	"context"
	"sync"

	"github.com/justapithecus/chunkwire/types"
)

// Policy delivers reassembled messages to persistence.
//
// Policies never drop a message: a message handed to Ingest is either
// written to the sink or reported as an error. A policy error ends the
// receive session.
type Policy interface {
	// Ingest accepts one reassembled message.
	// Returns error on sink failure.
	Ingest(ctx context.Context, msg *types.Message) error

	// Flush writes any buffered messages.
	// Called when the receive session ends.
	Flush(ctx context.Context) error

	// Close releases policy resources and closes the sink.
	Close() error

	// Stats returns an atomic snapshot of policy counters.
	Stats() Stats
}

// Stats represents policy observability counters.
type Stats struct {
	// TotalMessages is the number of messages ingested.
	TotalMessages int64
	// MessagesPersisted is the number of messages written to the sink.
	MessagesPersisted int64
	// BytesPersisted is the payload bytes written to the sink.
	BytesPersisted int64
	// BufferSize is the payload bytes currently buffered.
	BufferSize int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the count of failed sink writes.
	Errors int64
}

// Name identifies a policy in configuration and metrics.
type Name string

// Known policy names.
const (
	NameStrict    Name = "strict"
	NameStreaming Name = "streaming"
	NameBuffered  Name = "buffered"
	NameNoop      Name = "noop"
)

// statsRecorder is an internal helper for thread-safe stats management.
//
// Lock discipline:
//   - StrictPolicy and NoopPolicy use the locking methods
//   - StreamingPolicy and BufferedPolicy use the Locked methods only while
//     holding their own mu, keeping buffer state and counters consistent
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{}
}

func (r *statsRecorder) incTotalMessages() {
	r.mu.Lock()
	r.stats.TotalMessages++
	r.mu.Unlock()
}

func (r *statsRecorder) incPersisted(msgs []*types.Message) {
	r.mu.Lock()
	r.incPersistedLocked(msgs)
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// --- Locked methods for StreamingPolicy and BufferedPolicy ---
// Caller must hold the policy mu.

func (r *statsRecorder) incTotalMessagesLocked() {
	r.stats.TotalMessages++
}

func (r *statsRecorder) incPersistedLocked(msgs []*types.Message) {
	r.stats.MessagesPersisted += int64(len(msgs))
	r.stats.BytesPersisted += payloadBytes(msgs)
}

func (r *statsRecorder) incErrorsLocked() {
	r.stats.Errors++
}

func (r *statsRecorder) incFlushLocked() {
	r.stats.FlushCount++
}

// snapshotLocked returns stats with the given buffer size.
func (r *statsRecorder) snapshotLocked(bufferSize int64) Stats {
	s := r.stats
	s.BufferSize = bufferSize
	return s
}

func payloadBytes(msgs []*types.Message) int64 {
	var n int64
	for _, m := range msgs {
		n += int64(len(m.Data))
	}
	return n
}
