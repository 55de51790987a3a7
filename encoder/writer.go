package encoder

import (
	"sync"

	"github.com/justapithecus/chunkwire/types"
)

// PacketSink receives encoded packets downstream of a Writer.
type PacketSink interface {
	// WritePacket delivers one packet. The payload is only valid for the
	// duration of the call.
	WritePacket(p *types.Packet) error
	// End signals that no more packets follow.
	End() error
	// Abort signals that the producer failed; err is forwarded downstream.
	Abort(err error) error
}

// Writer is an io.WriteCloser that turns every Write into one message and
// emits its packets to a PacketSink synchronously and in order.
type Writer struct {
	enc  *Encoder
	sink PacketSink

	mu     sync.Mutex
	closed bool
}

// NewWriter creates a Writer emitting to sink.
func NewWriter(enc *Encoder, sink PacketSink) *Writer {
	return &Writer{enc: enc, sink: sink}
}

// Write encodes b as one message. It returns len(b) only once every packet
// was accepted by the sink.
func (w *Writer) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}

	seq, err := w.enc.Packets(b)
	if err != nil {
		return 0, err
	}
	for p := range seq {
		if err := w.sink.WritePacket(p); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

// Close signals the end of input downstream. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.sink.End()
}

// CloseWithError forwards err downstream so the receiving side fails
// instead of completing. A nil err behaves like Close.
func (w *Writer) CloseWithError(err error) error {
	if err == nil {
		return w.Close()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.sink.Abort(err)
}
