// Package reassembly holds per-message reassembly state: the Buffer that
// collects packets of one message in any order, and the Retired set used to
// recognize packets of messages that already finished.
package reassembly

import (
	"fmt"
	"slices"
	"time"

	"github.com/justapithecus/chunkwire/types"
)

// AddResult reports what Buffer.Add did with a packet.
type AddResult int

const (
	// Stored means the packet filled a missing index.
	Stored AddResult = iota
	// Duplicate means the index was already present; the packet was discarded.
	Duplicate
)

// MismatchError reports a packet that cannot belong to the buffer's message.
type MismatchError struct {
	MessageID uint64
	Expected  uint32
	Count     uint32
	Index     uint32
}

func (e *MismatchError) Error() string {
	if e.Count != e.Expected {
		return fmt.Sprintf("message %d: packet declares count %d, buffer expects %d",
			e.MessageID, e.Count, e.Expected)
	}
	return fmt.Sprintf("message %d: index %d out of range for count %d",
		e.MessageID, e.Index, e.Expected)
}

// Buffer collects the packets of one message.
// Not safe for concurrent use; the owning decoder serializes access.
type Buffer struct {
	id        uint64
	expected  uint32
	startedAt time.Time
	received  map[uint32][]byte
	size      int64
	redundant int64
}

// NewBuffer creates the buffer for first's message. The expected count is
// taken from first; first itself is not stored, call Add with it.
func NewBuffer(first *types.Packet, now time.Time) *Buffer {
	return &Buffer{
		id:        first.MessageID,
		expected:  first.Count,
		startedAt: now,
		received:  make(map[uint32][]byte),
	}
}

// ID returns the message id.
func (b *Buffer) ID() uint64 { return b.id }

// Expected returns the total packet count of the message.
func (b *Buffer) Expected() uint32 { return b.expected }

// Received returns the number of distinct indices stored.
func (b *Buffer) Received() int { return len(b.received) }

// Size returns the number of payload bytes stored.
func (b *Buffer) Size() int64 { return b.size }

// Redundant returns the number of duplicates discarded so far.
func (b *Buffer) Redundant() int64 { return b.redundant }

// StartedAt returns when the buffer was created.
func (b *Buffer) StartedAt() time.Time { return b.startedAt }

// Complete reports whether every index 0..Expected-1 is present.
func (b *Buffer) Complete() bool {
	return uint32(len(b.received)) == b.expected
}

// Add stores p's payload at its index. The payload is copied, so the caller
// may reuse p afterwards. A packet whose count disagrees with the buffer or
// whose index is out of range returns a *MismatchError and changes nothing.
func (b *Buffer) Add(p *types.Packet) (AddResult, error) {
	if p.Count != b.expected || p.Index >= b.expected {
		return 0, &MismatchError{
			MessageID: b.id,
			Expected:  b.expected,
			Count:     p.Count,
			Index:     p.Index,
		}
	}
	if _, ok := b.received[p.Index]; ok {
		b.redundant++
		return Duplicate, nil
	}

	b.received[p.Index] = slices.Clone(p.Payload)
	if b.received[p.Index] == nil {
		b.received[p.Index] = []byte{}
	}
	b.size += int64(len(p.Payload))
	return Stored, nil
}

// Missing returns the absent indices in ascending order.
func (b *Buffer) Missing() []uint32 {
	missing := make([]uint32, 0, int(b.expected)-len(b.received))
	for i := range b.expected {
		if _, ok := b.received[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// Assemble concatenates the payloads in index order and releases them.
// Returns an error if the buffer is not complete.
func (b *Buffer) Assemble(now time.Time) (*types.Message, error) {
	if !b.Complete() {
		return nil, fmt.Errorf("message %d: assemble with %d of %d packets",
			b.id, len(b.received), b.expected)
	}

	data := make([]byte, 0, b.size)
	for i := range b.expected {
		data = append(data, b.received[i]...)
	}
	b.received = nil

	return &types.Message{
		ID:          b.id,
		Data:        data,
		Packets:     b.expected,
		Redundant:   b.redundant,
		StartedAt:   b.startedAt,
		CompletedAt: now,
	}, nil
}
