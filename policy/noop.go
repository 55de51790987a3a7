package policy

import (
	"context"

	"github.com/justapithecus/chunkwire/types"
)

// NoopPolicy counts messages and discards them. Used by the benchmark,
// where only throughput matters.
type NoopPolicy struct {
	stats *statsRecorder
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{stats: newStatsRecorder()}
}

// Ingest counts the message as persisted without writing it.
func (p *NoopPolicy) Ingest(_ context.Context, msg *types.Message) error {
	p.stats.incTotalMessages()
	p.stats.incPersisted([]*types.Message{msg})
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error {
	return nil
}

// Stats returns the policy statistics.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}

var _ Policy = (*NoopPolicy)(nil)
