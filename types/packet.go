// Package types defines core domain types for chunkwire.
//
//nolint:revive // types is a common Go package naming convention
package types

import "time"

// Packet is one wire unit: a slice of a message plus the header fields
// needed to put it back in place.
type Packet struct {
	// MessageID groups the packets of one original write.
	MessageID uint64
	// Index is the zero-based position of this packet within its message.
	Index uint32
	// Count is the total number of packets in the message, always >= 1.
	Count uint32
	// Payload is the raw bytes carried by this packet.
	Payload []byte
}

// IsLast reports whether this is the final packet of its message.
func (p *Packet) IsLast() bool {
	return p.Count > 0 && p.Index == p.Count-1
}

// Message is a reassembled write, emitted once every packet of it arrived.
type Message struct {
	// ID is the message identifier shared by all its packets.
	ID uint64
	// Data is the concatenation of all payloads in index order.
	Data []byte
	// Packets is the number of distinct packets the message was built from.
	Packets uint32
	// Redundant counts duplicate packets received while assembling.
	Redundant int64
	// StartedAt is when the first packet of the message was accepted.
	StartedAt time.Time
	// CompletedAt is when the last missing packet was accepted.
	CompletedAt time.Time
}

// Duration returns how long the message spent assembling.
func (m *Message) Duration() time.Duration {
	return m.CompletedAt.Sub(m.StartedAt)
}
