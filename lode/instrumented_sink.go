package lode

import (
	"context"

	"github.com/justapithecus/chunkwire/metrics"
	"github.com/justapithecus/chunkwire/policy"
	"github.com/justapithecus/chunkwire/types"
)

// InstrumentedSink wraps a policy.Sink and counts each WriteMessages call
// as a sink write success or failure on the collector.
type InstrumentedSink struct {
	inner     policy.Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner policy.Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteMessages delegates to the inner sink and records the outcome.
func (s *InstrumentedSink) WriteMessages(ctx context.Context, msgs []*types.Message) error {
	err := s.inner.WriteMessages(ctx, msgs)
	if err != nil {
		s.collector.IncSinkWriteFailure()
	} else {
		s.collector.IncSinkWriteSuccess()
	}
	return err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

var _ policy.Sink = (*InstrumentedSink)(nil)
