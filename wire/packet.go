// Package wire implements the chunkwire packet header and the
// length-prefixed stream framing used to carry packets over a byte pipe.
//
// Packet layout, version 1, all integers big-endian:
//
//	offset size field
//	0      2    magic "CW"
//	2      1    version (1)
//	3      1    flags (bit 0: last packet of its message)
//	4      8    message id
//	12     4    index
//	16     4    count
//	20     4    payload length
//	24     n    payload
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/justapithecus/chunkwire/types"
)

// Header layout constants.
const (
	// HeaderSize is the fixed size of an encoded packet header.
	HeaderSize = 24
	// MinPacketSize is the smallest packet able to carry one payload byte.
	MinPacketSize = HeaderSize + 1

	magic0 = 'C'
	magic1 = 'W'

	flagLast uint8 = 1 << 0
)

// PacketErrorKind classifies packet decoding errors.
type PacketErrorKind int

const (
	// PacketErrorShort indicates a buffer shorter than the header.
	PacketErrorShort PacketErrorKind = iota
	// PacketErrorMagic indicates the buffer is not a chunkwire packet.
	PacketErrorMagic
	// PacketErrorVersion indicates an unsupported header version.
	PacketErrorVersion
	// PacketErrorLength indicates a payload length that disagrees with the buffer.
	PacketErrorLength
	// PacketErrorCount indicates an invalid count or index.
	PacketErrorCount
	// PacketErrorFlags indicates unknown flag bits or a wrong last flag.
	PacketErrorFlags
)

// PacketError represents a packet decoding error.
type PacketError struct {
	Kind PacketErrorKind
	Msg  string
}

func (e *PacketError) Error() string {
	return "wire: " + e.Msg
}

// EncodedSize returns the number of bytes MarshalPacket produces for p.
func EncodedSize(p *types.Packet) int {
	return HeaderSize + len(p.Payload)
}

// MarshalPacket encodes p into a freshly allocated buffer.
func MarshalPacket(p *types.Packet) ([]byte, error) {
	return AppendPacket(make([]byte, 0, EncodedSize(p)), p)
}

// AppendPacket appends the encoding of p to dst.
// Returns an error if p violates the index/count invariants or the payload
// does not fit the 32-bit length field.
func AppendPacket(dst []byte, p *types.Packet) ([]byte, error) {
	if p.Count == 0 {
		return dst, fmt.Errorf("wire: message %d: count must be >= 1", p.MessageID)
	}
	if p.Index >= p.Count {
		return dst, fmt.Errorf("wire: message %d: index %d out of range for count %d",
			p.MessageID, p.Index, p.Count)
	}
	if uint64(len(p.Payload)) > math.MaxUint32 {
		return dst, fmt.Errorf("wire: message %d: payload of %d bytes exceeds header limit",
			p.MessageID, len(p.Payload))
	}

	var flags uint8
	if p.IsLast() {
		flags |= flagLast
	}

	var hdr [HeaderSize]byte
	hdr[0] = magic0
	hdr[1] = magic1
	hdr[2] = types.WireVersion
	hdr[3] = flags
	binary.BigEndian.PutUint64(hdr[4:12], p.MessageID)
	binary.BigEndian.PutUint32(hdr[12:16], p.Index)
	binary.BigEndian.PutUint32(hdr[16:20], p.Count)
	binary.BigEndian.PutUint32(hdr[20:24], uint32(len(p.Payload)))

	dst = append(dst, hdr[:]...)
	return append(dst, p.Payload...), nil
}

// HasPacketMagic reports whether buf starts with the packet magic.
func HasPacketMagic(buf []byte) bool {
	return len(buf) >= 2 && buf[0] == magic0 && buf[1] == magic1
}

// UnmarshalPacket decodes a packet. The returned payload aliases buf.
//
// Errors (*PacketError):
//   - PacketErrorShort: fewer than HeaderSize bytes
//   - PacketErrorMagic: buffer is not a packet
//   - PacketErrorVersion: header version is not types.WireVersion
//   - PacketErrorLength: payload length field disagrees with len(buf)
//   - PacketErrorCount: count == 0 or index >= count
//   - PacketErrorFlags: unknown flag bits, or last flag disagrees with index
func UnmarshalPacket(buf []byte) (*types.Packet, error) {
	if len(buf) < HeaderSize {
		return nil, &PacketError{
			Kind: PacketErrorShort,
			Msg:  fmt.Sprintf("packet of %d bytes is shorter than header (%d)", len(buf), HeaderSize),
		}
	}
	if !HasPacketMagic(buf) {
		return nil, &PacketError{Kind: PacketErrorMagic, Msg: "bad packet magic"}
	}
	if buf[2] != types.WireVersion {
		return nil, &PacketError{
			Kind: PacketErrorVersion,
			Msg:  fmt.Sprintf("unsupported header version %d", buf[2]),
		}
	}

	flags := buf[3]
	p := &types.Packet{
		MessageID: binary.BigEndian.Uint64(buf[4:12]),
		Index:     binary.BigEndian.Uint32(buf[12:16]),
		Count:     binary.BigEndian.Uint32(buf[16:20]),
	}
	length := binary.BigEndian.Uint32(buf[20:24])

	if uint64(length) != uint64(len(buf)-HeaderSize) {
		return nil, &PacketError{
			Kind: PacketErrorLength,
			Msg: fmt.Sprintf("message %d: payload length %d, buffer carries %d",
				p.MessageID, length, len(buf)-HeaderSize),
		}
	}
	if p.Count == 0 || p.Index >= p.Count {
		return nil, &PacketError{
			Kind: PacketErrorCount,
			Msg: fmt.Sprintf("message %d: index %d invalid for count %d",
				p.MessageID, p.Index, p.Count),
		}
	}
	if flags&^flagLast != 0 {
		return nil, &PacketError{
			Kind: PacketErrorFlags,
			Msg:  fmt.Sprintf("message %d: unknown flags 0x%02x", p.MessageID, flags),
		}
	}
	if (flags&flagLast != 0) != p.IsLast() {
		return nil, &PacketError{
			Kind: PacketErrorFlags,
			Msg:  fmt.Sprintf("message %d: last flag disagrees with index %d of %d", p.MessageID, p.Index, p.Count),
		}
	}

	p.Payload = buf[HeaderSize:]
	return p, nil
}
