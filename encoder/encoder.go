// Package encoder splits writes into bounded-size chunkwire packets.
package encoder

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"math"
	"sync/atomic"

	"github.com/justapithecus/chunkwire/metrics"
	"github.com/justapithecus/chunkwire/types"
	"github.com/justapithecus/chunkwire/wire"
)

// ErrClosed is returned by writes after the Writer was closed.
var ErrClosed = errors.New("encoder: writer closed")

// ConfigError reports an invalid encoder configuration.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("encoder: invalid %s: %s", e.Field, e.Msg)
}

// Config configures an Encoder.
type Config struct {
	// MaxChunkSize bounds the encoded size (header + payload) of every
	// packet. Required; must be at least wire.MinPacketSize.
	MaxChunkSize int
	// Collector receives encode counters (optional).
	Collector *metrics.Collector
}

// Encoder assigns message ids and splits writes into packets.
// Safe for concurrent use; each call gets a distinct message id.
type Encoder struct {
	maxChunkSize int
	maxPayload   int
	collector    *metrics.Collector
	nextID       atomic.Uint64
}

// New validates cfg and returns an Encoder.
// A MaxChunkSize that cannot carry the header plus one payload byte is a
// *ConfigError.
func New(cfg Config) (*Encoder, error) {
	if cfg.MaxChunkSize < wire.MinPacketSize {
		return nil, &ConfigError{
			Field: "MaxChunkSize",
			Msg: fmt.Sprintf("%d cannot carry a %d-byte header plus one payload byte (minimum %d)",
				cfg.MaxChunkSize, wire.HeaderSize, wire.MinPacketSize),
		}
	}

	e := &Encoder{
		maxChunkSize: cfg.MaxChunkSize,
		maxPayload:   cfg.MaxChunkSize - wire.HeaderSize,
		collector:    cfg.Collector,
	}
	e.nextID.Store(randomSeed())
	return e, nil
}

// randomSeed picks the first message id so that independent encoders
// feeding one decoder start far apart in the id space.
func randomSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint64(b[:])
}

// MaxChunkSize returns the configured packet size bound.
func (e *Encoder) MaxChunkSize() int {
	return e.maxChunkSize
}

// MaxPayloadSize returns the payload capacity of one packet.
func (e *Encoder) MaxPayloadSize() int {
	return e.maxPayload
}

// PacketCount returns how many packets a write of n bytes produces.
// An empty write still produces one packet.
func (e *Encoder) PacketCount(n int) int {
	if n == 0 {
		return 1
	}
	return 1 + (n-1)/e.maxPayload
}

// Packets assigns a fresh message id to b and returns the lazy sequence of
// its packets in ascending index order. Payloads alias b; consumers that
// keep a packet after the sequence advances must copy its payload.
func (e *Encoder) Packets(b []byte) (iter.Seq[*types.Packet], error) {
	count := e.PacketCount(len(b))
	if uint64(count) > math.MaxUint32 {
		return nil, fmt.Errorf("encoder: write of %d bytes needs %d packets, limit %d",
			len(b), count, uint64(math.MaxUint32))
	}
	id := e.nextID.Add(1)
	e.collector.AddEncoded(int64(count), int64(len(b)))

	return func(yield func(*types.Packet) bool) {
		for i := range count {
			start := i * e.maxPayload
			end := start + min(e.maxPayload, len(b)-start)
			p := &types.Packet{
				MessageID: id,
				Index:     uint32(i),
				Count:     uint32(count),
				Payload:   b[start:end],
			}
			if !yield(p) {
				return
			}
		}
	}, nil
}

// Encode collects the packets of b into a slice.
func (e *Encoder) Encode(b []byte) ([]*types.Packet, error) {
	seq, err := e.Packets(b)
	if err != nil {
		return nil, err
	}
	packets := make([]*types.Packet, 0, e.PacketCount(len(b)))
	for p := range seq {
		packets = append(packets, p)
	}
	return packets, nil
}
