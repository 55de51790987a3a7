package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/justapithecus/chunkwire/log"
	"github.com/justapithecus/chunkwire/types"
)

// StreamingConfig configures a StreamingPolicy.
type StreamingConfig struct {
	// FlushCount triggers a flush after N messages accumulate.
	// Zero means count-based flush is disabled.
	FlushCount int

	// FlushBytes triggers a flush once buffered payload bytes reach N.
	// Zero means size-based flush is disabled.
	FlushBytes int64

	// FlushInterval triggers a flush every interval.
	// Zero means interval-based flush is disabled.
	FlushInterval time.Duration

	// Logger is an optional logger for policy observability.
	Logger *log.Logger
}

// FlushTrigger identifies which trigger caused a flush.
type FlushTrigger string

const (
	// FlushTriggerCount indicates a count-threshold flush.
	FlushTriggerCount FlushTrigger = "count"
	// FlushTriggerBytes indicates a size-threshold flush.
	FlushTriggerBytes FlushTrigger = "bytes"
	// FlushTriggerInterval indicates an interval-based flush.
	FlushTriggerInterval FlushTrigger = "interval"
	// FlushTriggerTermination indicates a session termination flush.
	FlushTriggerTermination FlushTrigger = "termination"
)

// ErrStreamingInvalidConfig is returned when StreamingConfig is invalid.
var ErrStreamingInvalidConfig = errors.New("invalid streaming config: at least one of FlushCount, FlushBytes or FlushInterval must be set")

// StreamingPolicy batches messages and writes them when a trigger fires.
//
//   - No drops: every ingested message is eventually written or reported
//   - Flush on count, byte size, interval or termination
//   - On flush failure the batch is restored ahead of newer messages and
//     retried on the next trigger
//
// Thread safety:
//   - mu guards the buffer and stats
//   - flushMu serializes flushes from the interval goroutine and Ingest
type StreamingPolicy struct {
	sink   Sink
	config StreamingConfig
	logger *log.Logger

	mu          sync.Mutex
	buffer      []*types.Message
	bufferBytes int64
	stats       *statsRecorder

	flushMu sync.Mutex

	// Guarded by mu.
	flushByTrigger map[FlushTrigger]int64

	stopCh  chan struct{}
	stopped bool
}

// NewStreamingPolicy creates a new streaming policy.
// Returns error if config is invalid.
func NewStreamingPolicy(sink Sink, config StreamingConfig) (*StreamingPolicy, error) {
	if config.FlushCount <= 0 && config.FlushBytes <= 0 && config.FlushInterval <= 0 {
		return nil, ErrStreamingInvalidConfig
	}

	p := &StreamingPolicy{
		sink:           sink,
		config:         config,
		logger:         config.Logger,
		stats:          newStatsRecorder(),
		flushByTrigger: make(map[FlushTrigger]int64),
		stopCh:         make(chan struct{}),
	}

	if config.FlushInterval > 0 {
		go p.intervalLoop()
	}

	return p, nil
}

// Ingest buffers the message and flushes if a threshold is reached.
func (p *StreamingPolicy) Ingest(ctx context.Context, msg *types.Message) error {
	p.mu.Lock()
	p.stats.incTotalMessagesLocked()
	p.buffer = append(p.buffer, msg)
	p.bufferBytes += int64(len(msg.Data))

	var trigger FlushTrigger
	switch {
	case p.config.FlushCount > 0 && len(p.buffer) >= p.config.FlushCount:
		trigger = FlushTriggerCount
	case p.config.FlushBytes > 0 && p.bufferBytes >= p.config.FlushBytes:
		trigger = FlushTriggerBytes
	}
	p.mu.Unlock()

	if trigger != "" {
		return p.triggerFlush(ctx, trigger)
	}
	return nil
}

// Flush writes all buffered messages (termination trigger).
func (p *StreamingPolicy) Flush(ctx context.Context) error {
	return p.triggerFlush(ctx, FlushTriggerTermination)
}

// triggerFlush swaps the buffer under mu, writes outside mu and restores
// the batch on failure, so Ingest never blocks on the sink of another
// goroutine's flush.
func (p *StreamingPolicy) triggerFlush(ctx context.Context, trigger FlushTrigger) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	p.flushByTrigger[trigger]++
	p.stats.incFlushLocked()

	batch := p.buffer
	if len(batch) == 0 {
		p.mu.Unlock()
		return nil
	}
	p.buffer = nil
	p.bufferBytes = 0
	p.mu.Unlock()

	if err := p.sink.WriteMessages(ctx, batch); err != nil {
		p.mu.Lock()
		p.stats.incErrorsLocked()
		p.buffer = append(batch, p.buffer...)
		p.bufferBytes += payloadBytes(batch)
		p.mu.Unlock()
		p.logFlushFailure(trigger, len(batch), err)
		return err
	}

	p.mu.Lock()
	p.stats.incPersistedLocked(batch)
	p.mu.Unlock()
	p.logFlush(trigger, len(batch))
	return nil
}

// Close stops the interval goroutine, flushes best-effort and closes the
// sink.
func (p *StreamingPolicy) Close() error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()

	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns an atomic snapshot of counters and buffer size.
func (p *StreamingPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked(p.bufferBytes)
}

// FlushTriggerStats returns per-trigger flush counts.
func (p *StreamingPolicy) FlushTriggerStats() map[FlushTrigger]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[FlushTrigger]int64{
		FlushTriggerCount:       p.flushByTrigger[FlushTriggerCount],
		FlushTriggerBytes:       p.flushByTrigger[FlushTriggerBytes],
		FlushTriggerInterval:    p.flushByTrigger[FlushTriggerInterval],
		FlushTriggerTermination: p.flushByTrigger[FlushTriggerTermination],
	}
}

func (p *StreamingPolicy) intervalLoop() {
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			hasData := len(p.buffer) > 0
			p.mu.Unlock()

			if hasData {
				// Best-effort; a failed batch stays buffered for the next trigger.
				_ = p.triggerFlush(context.Background(), FlushTriggerInterval)
			}
		case <-p.stopCh:
			return
		}
	}
}

func (p *StreamingPolicy) logFlush(trigger FlushTrigger, messages int) {
	if p.logger == nil {
		return
	}
	p.logger.Info("streaming flush", map[string]any{
		"trigger":  string(trigger),
		"messages": messages,
		"policy":   string(NameStreaming),
	})
}

func (p *StreamingPolicy) logFlushFailure(trigger FlushTrigger, messages int, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("streaming flush failed", map[string]any{
		"trigger":  string(trigger),
		"messages": messages,
		"error":    err.Error(),
		"policy":   string(NameStreaming),
	})
}

var _ Policy = (*StreamingPolicy)(nil)
