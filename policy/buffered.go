package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/justapithecus/chunkwire/log"
	"github.com/justapithecus/chunkwire/types"
)

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferMessages is the maximum number of messages to buffer.
	// Zero means no limit (use MaxBufferBytes instead).
	MaxBufferMessages int

	// MaxBufferBytes is the maximum buffered payload size in bytes.
	// Zero means no limit (use MaxBufferMessages instead).
	// At least one limit must be set.
	MaxBufferBytes int64

	// Logger is an optional logger for policy observability.
	// If nil, no logging is emitted.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{
		MaxBufferMessages: 1000,
		MaxBufferBytes:    64 * 1024 * 1024, // 64 MiB
	}
}

// ErrBufferFull is returned when a message does not fit the buffer.
var ErrBufferFull = errors.New("buffer full: cannot accept message")

// ErrBufferedInvalidConfig is returned when BufferedConfig is invalid.
var ErrBufferedInvalidConfig = errors.New("invalid buffered config: at least one of MaxBufferMessages or MaxBufferBytes must be set")

// BufferedPolicy holds every message of the session in a bounded buffer
// and writes them as one batch on Flush.
//
//   - No drops: a message that does not fit fails Ingest with ErrBufferFull
//   - One sink write per flush, in completion order
//   - A failed flush keeps the whole buffer, so a retry may rewrite
//     messages the sink partially accepted but never loses one
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu          sync.Mutex // guards buffer state only
	buffer      []*types.Message
	bufferBytes int64
	stats       *statsRecorder

	flushMu sync.Mutex
}

// NewBufferedPolicy creates a new buffered policy.
// Returns error if config is invalid.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferMessages <= 0 && config.MaxBufferBytes <= 0 {
		return nil, ErrBufferedInvalidConfig
	}

	return &BufferedPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]*types.Message, 0, min(max(config.MaxBufferMessages, 16), 1024)),
		stats:  newStatsRecorder(),
	}, nil
}

// Ingest buffers the message. A message that would exceed either limit is
// rejected, never evicted or dropped.
func (p *BufferedPolicy) Ingest(_ context.Context, msg *types.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.incTotalMessagesLocked()

	size := int64(len(msg.Data))
	if !p.hasRoom(size) {
		p.stats.incErrorsLocked()
		p.logBufferOverflow(msg, size)
		return fmt.Errorf("%w: message %d (%d bytes) with %d messages / %d bytes buffered",
			ErrBufferFull, msg.ID, size, len(p.buffer), p.bufferBytes)
	}

	p.buffer = append(p.buffer, msg)
	p.bufferBytes += size
	return nil
}

// hasRoom reports whether a message of size bytes fits. Caller must hold mu.
func (p *BufferedPolicy) hasRoom(size int64) bool {
	if p.config.MaxBufferMessages > 0 && len(p.buffer) >= p.config.MaxBufferMessages {
		return false
	}
	if p.config.MaxBufferBytes > 0 && p.bufferBytes+size > p.config.MaxBufferBytes {
		return false
	}
	return true
}

// Flush writes the whole buffer as one batch. The buffer is cleared only
// after the sink accepted it.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	p.stats.incFlushLocked()
	batch := p.buffer
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := p.sink.WriteMessages(ctx, batch); err != nil {
		p.mu.Lock()
		p.stats.incErrorsLocked()
		p.mu.Unlock()
		p.logFlushFailure(len(batch), err)
		return err
	}

	p.mu.Lock()
	p.stats.incPersistedLocked(batch)
	// Messages ingested while the sink was writing stay buffered.
	p.buffer = append(make([]*types.Message, 0, cap(p.buffer)), p.buffer[len(batch):]...)
	p.bufferBytes -= payloadBytes(batch)
	p.mu.Unlock()

	return nil
}

// Close flushes remaining messages and closes the sink.
func (p *BufferedPolicy) Close() error {
	// Best-effort flush on close
	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns an atomic snapshot of counters and buffer size.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats.snapshotLocked(p.bufferBytes)
}

func (p *BufferedPolicy) logBufferOverflow(msg *types.Message, size int64) {
	if p.logger == nil {
		return
	}
	p.logger.Error("buffer overflow", map[string]any{
		"message_id":       msg.ID,
		"message_bytes":    size,
		"buffered":         len(p.buffer),
		"buffered_bytes":   p.bufferBytes,
		"max_buffer_bytes": p.config.MaxBufferBytes,
		"policy":           string(NameBuffered),
	})
}

func (p *BufferedPolicy) logFlushFailure(messages int, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("flush failed", map[string]any{
		"messages": messages,
		"error":    err.Error(),
		"policy":   string(NameBuffered),
	})
}

var _ Policy = (*BufferedPolicy)(nil)
