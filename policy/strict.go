package policy

import (
	"context"

	"github.com/justapithecus/chunkwire/types"
)

// StrictPolicy writes every message to the sink before Ingest returns.
//
//   - No buffering: each message is a batch of one
//   - Backpressure: the decoder's listener blocks on sink latency
//   - Sink errors fail the session
type StrictPolicy struct {
	sink  Sink
	stats *statsRecorder
}

// NewStrictPolicy creates a new strict policy writing to the given sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{
		sink:  sink,
		stats: newStatsRecorder(),
	}
}

// Ingest writes the message immediately.
func (p *StrictPolicy) Ingest(ctx context.Context, msg *types.Message) error {
	p.stats.incTotalMessages()

	batch := []*types.Message{msg}
	if err := p.sink.WriteMessages(ctx, batch); err != nil {
		p.stats.incErrors()
		return err
	}
	p.stats.incPersisted(batch)
	return nil
}

// Flush is a no-op for strict policy (nothing is buffered).
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close closes the underlying sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}

var _ Policy = (*StrictPolicy)(nil)
