package policy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/justapithecus/chunkwire/types"
)

// Sink abstracts persistence for policies.
// Implementations may write to storage, forward to a stream, or stub for
// testing.
type Sink interface {
	// WriteMessages persists a batch of messages.
	// Must preserve ordering within the batch.
	// Returns error on failure; the policy decides whether to retry or fail.
	WriteMessages(ctx context.Context, msgs []*types.Message) error

	// Close releases any resources held by the sink.
	Close() error
}

// StubSink is a test sink that accepts writes without persisting.
// Tracks write statistics for test assertions.
type StubSink struct {
	mu sync.Mutex

	// MessagesWritten is the total count of messages written.
	MessagesWritten int64
	// Batches is the number of WriteMessages calls that succeeded.
	Batches int64
	// Closed indicates whether Close was called.
	Closed bool
	// Written stores all written messages in write order.
	Written []*types.Message

	// ErrorOnWrite, if non-nil, is returned by WriteMessages.
	ErrorOnWrite error
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// WriteMessages records the messages without persisting.
func (s *StubSink) WriteMessages(_ context.Context, msgs []*types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}

	s.Batches++
	s.MessagesWritten += int64(len(msgs))
	s.Written = append(s.Written, msgs...)
	return nil
}

// SetError changes the error returned by later writes.
func (s *StubSink) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrorOnWrite = err
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}

// Stats returns a snapshot of sink statistics.
func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StubSinkStats{
		MessagesWritten: s.MessagesWritten,
		Batches:         s.Batches,
		Closed:          s.Closed,
	}
}

// StubSinkStats is a snapshot of StubSink statistics.
type StubSinkStats struct {
	MessagesWritten int64
	Batches         int64
	Closed          bool
}

// WriterSink writes message payloads back to back to an io.Writer,
// reproducing the original byte stream.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w. Close does not close w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// WriteMessages writes each payload in order.
func (s *WriterSink) WriteMessages(_ context.Context, msgs []*types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range msgs {
		if _, err := s.w.Write(m.Data); err != nil {
			return fmt.Errorf("write message %d: %w", m.ID, err)
		}
	}
	return nil
}

// Close is a no-op.
func (s *WriterSink) Close() error { return nil }

// DirSink writes each message to its own file named by completion order
// and message id.
type DirSink struct {
	dir string

	mu  sync.Mutex
	seq int64
}

// NewDirSink creates dir if needed and returns a sink writing into it.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &DirSink{dir: dir}, nil
}

// WriteMessages writes one file per message.
func (s *DirSink) WriteMessages(_ context.Context, msgs []*types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range msgs {
		s.seq++
		name := filepath.Join(s.dir, fmt.Sprintf("%06d-%016x.bin", s.seq, m.ID))
		if err := os.WriteFile(name, m.Data, 0o644); err != nil {
			return fmt.Errorf("write message %d: %w", m.ID, err)
		}
	}
	return nil
}

// Close is a no-op.
func (s *DirSink) Close() error { return nil }
