package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/justapithecus/chunkwire/types"
)

// encodeFrame encodes a payload with length prefix.
func encodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

func TestFrameWriter_PacketsAndControls(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)

	packets := []*types.Packet{
		{MessageID: 1, Index: 0, Count: 2, Payload: []byte("hello ")},
		{MessageID: 1, Index: 1, Count: 2, Payload: []byte("world")},
	}
	for _, p := range packets {
		if err := w.WritePacket(p); err != nil {
			t.Fatalf("WritePacket failed: %v", err)
		}
	}
	if err := w.WriteControl(EndControl()); err != nil {
		t.Fatalf("WriteControl failed: %v", err)
	}

	r := NewFrameReader(&buf)
	var got []*Frame
	for {
		f, err := r.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		got = append(got, f)
	}

	if len(got) != 3 {
		t.Fatalf("read %d frames, want 3", len(got))
	}
	for i, p := range packets {
		if got[i].Packet == nil {
			t.Fatalf("frame %d: expected packet, got control %+v", i, got[i].Control)
		}
		if got[i].Packet.Index != p.Index || !bytes.Equal(got[i].Packet.Payload, p.Payload) {
			t.Errorf("frame %d = %+v, want %+v", i, got[i].Packet, p)
		}
	}
	if got[2].Control == nil || got[2].Control.Type != ControlEnd {
		t.Errorf("last frame = %+v, want end control", got[2])
	}
}

func TestFrameReader_EmptyStream(t *testing.T) {
	r := NewFrameReader(bytes.NewReader(nil))
	_, err := r.ReadFrame()
	if err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestFrameReader_PartialLengthPrefix(t *testing.T) {
	r := NewFrameReader(bytes.NewReader([]byte{0x00, 0x00}))
	_, err := r.ReadRaw()

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorPartial {
		t.Errorf("Kind = %d, want FrameErrorPartial", frameErr.Kind)
	}
	if !frameErr.IsFatal() {
		t.Error("partial frame should be fatal")
	}
}

func TestFrameReader_PartialPayload(t *testing.T) {
	frame := encodeFrame([]byte("abcdef"))
	r := NewFrameReader(bytes.NewReader(frame[:len(frame)-2]))
	_, err := r.ReadRaw()
	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got %v", err)
	}
}

func TestFrameReader_TooLarge(t *testing.T) {
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], MaxFramePayloadSize+1)
	r := NewFrameReader(bytes.NewReader(prefix[:]))
	_, err := r.ReadRaw()

	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorTooLarge {
		t.Fatalf("expected FrameErrorTooLarge, got %v", err)
	}
}

func TestFrameReader_BadPacketIsDecodeError(t *testing.T) {
	bad := []byte{'C', 'W', 99}
	r := NewFrameReader(bytes.NewReader(encodeFrame(bad)))
	_, err := r.ReadFrame()

	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorDecode {
		t.Fatalf("expected FrameErrorDecode, got %v", err)
	}
	if frameErr.IsFatal() {
		t.Error("decode errors are not fatal to the framing")
	}
	var pktErr *PacketError
	if !errors.As(err, &pktErr) {
		t.Errorf("expected wrapped *PacketError, got %v", err)
	}
}

func TestFrameWriter_RejectsOversizedPayload(t *testing.T) {
	w := NewFrameWriter(io.Discard)
	err := w.WriteRaw(make([]byte, MaxFramePayloadSize+1))
	if !IsFatalFrameError(err) {
		t.Errorf("expected FrameErrorTooLarge, got %v", err)
	}
}
