// Package lode persists reassembled messages and session metrics to a Lode
// dataset, on the local filesystem or S3.
package lode

import (
	"context"
	"sync"
	"time"

	"github.com/justapithecus/chunkwire/metrics"
	"github.com/justapithecus/chunkwire/policy"
	"github.com/justapithecus/chunkwire/types"
)

// DefaultDataset is the dataset id used when Config.Dataset is empty.
const DefaultDataset = "chunkwire"

// DeriveDay computes the partition day from the session start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds Lode sink configuration.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Source is the partition key for the stream origin.
	Source string
	// Day is the partition key derived from session start (YYYY-MM-DD UTC).
	Day string
	// SessionID is the partition key for the receive session.
	SessionID string
	// ObjectThreshold stores payloads larger than this many bytes as
	// sidecar objects instead of inline record data. Zero keeps every
	// payload inline.
	ObjectThreshold int64
}

// Client abstracts the Lode storage client.
type Client interface {
	// WriteMessages writes a batch of messages.
	// Must preserve ordering within the batch.
	WriteMessages(ctx context.Context, msgs []*types.Message) error

	// WriteMetrics writes one session metrics record.
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error

	// Close releases client resources.
	Close() error
}

// Sink is a Lode-backed implementation of policy.Sink.
type Sink struct {
	client Client
}

// NewSink creates a new Lode sink.
func NewSink(client Client) *Sink {
	return &Sink{client: client}
}

// WriteMessages implements policy.Sink.
func (s *Sink) WriteMessages(ctx context.Context, msgs []*types.Message) error {
	return s.client.WriteMessages(ctx, msgs)
}

// Close implements policy.Sink.
func (s *Sink) Close() error {
	return s.client.Close()
}

var _ policy.Sink = (*Sink)(nil)

// StubClient is a test client that accepts writes without persisting.
type StubClient struct {
	mu       sync.Mutex
	Messages []*types.Message
	Metrics  []metrics.Snapshot
	Closed   bool

	// ErrorOnWrite, if non-nil, is returned by every write.
	ErrorOnWrite error
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteMessages implements Client.
func (c *StubClient) WriteMessages(_ context.Context, msgs []*types.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ErrorOnWrite != nil {
		return c.ErrorOnWrite
	}
	c.Messages = append(c.Messages, msgs...)
	return nil
}

// WriteMetrics implements Client.
func (c *StubClient) WriteMetrics(_ context.Context, snap metrics.Snapshot, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ErrorOnWrite != nil {
		return c.ErrorOnWrite
	}
	c.Metrics = append(c.Metrics, snap)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

var _ Client = (*StubClient)(nil)
