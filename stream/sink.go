// Package stream connects the encoder and decoder to byte pipes.
//
// Send frames the packets of an io.Reader onto an io.Writer; Receive reads
// those frames back into a Decoder. Link is an in-process PacketSink with
// configurable impairment for tests and benchmarks.
package stream

import (
	"io"

	"github.com/justapithecus/chunkwire/types"
	"github.com/justapithecus/chunkwire/wire"
)

// FrameSink is an encoder.PacketSink that writes packets and control frames
// to a byte stream.
type FrameSink struct {
	fw *wire.FrameWriter
}

// NewFrameSink creates a FrameSink writing to w.
func NewFrameSink(w io.Writer) *FrameSink {
	return &FrameSink{fw: wire.NewFrameWriter(w)}
}

// WritePacket writes p as one frame.
func (s *FrameSink) WritePacket(p *types.Packet) error {
	return s.fw.WritePacket(p)
}

// End writes an end control frame.
func (s *FrameSink) End() error {
	return s.fw.WriteControl(wire.EndControl())
}

// Abort writes an abort control frame carrying err's message.
func (s *FrameSink) Abort(err error) error {
	return s.fw.WriteControl(wire.AbortControl(err))
}
