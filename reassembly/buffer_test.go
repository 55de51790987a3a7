package reassembly

import (
	"bytes"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/justapithecus/chunkwire/types"
)

func packets(id uint64, parts ...string) []*types.Packet {
	out := make([]*types.Packet, len(parts))
	for i, s := range parts {
		out[i] = &types.Packet{MessageID: id, Index: uint32(i), Count: uint32(len(parts)), Payload: []byte(s)}
	}
	return out
}

func TestBuffer_OutOfOrder(t *testing.T) {
	ps := packets(1, "ab", "cd", "ef")
	start := time.Unix(100, 0)
	b := NewBuffer(ps[2], start)

	for _, i := range []int{2, 0, 1} {
		if b.Complete() {
			t.Fatalf("complete before index %d", i)
		}
		res, err := b.Add(ps[i])
		if err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
		if res != Stored {
			t.Errorf("Add(%d) = %v, want Stored", i, res)
		}
	}

	if !b.Complete() {
		t.Fatal("buffer should be complete")
	}
	msg, err := b.Assemble(start.Add(time.Second))
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if !bytes.Equal(msg.Data, []byte("abcdef")) {
		t.Errorf("Data = %q, want %q", msg.Data, "abcdef")
	}
	if msg.Packets != 3 {
		t.Errorf("Packets = %d, want 3", msg.Packets)
	}
	if msg.Duration() != time.Second {
		t.Errorf("Duration = %v, want 1s", msg.Duration())
	}
}

func TestBuffer_Duplicate(t *testing.T) {
	ps := packets(1, "ab", "cd")
	b := NewBuffer(ps[0], time.Now())

	if _, err := b.Add(ps[0]); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	for range 3 {
		res, err := b.Add(ps[0])
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if res != Duplicate {
			t.Errorf("Add = %v, want Duplicate", res)
		}
	}

	if b.Received() != 1 {
		t.Errorf("Received = %d, want 1", b.Received())
	}
	if b.Redundant() != 3 {
		t.Errorf("Redundant = %d, want 3", b.Redundant())
	}
	if b.Size() != 2 {
		t.Errorf("Size = %d, want 2", b.Size())
	}
}

func TestBuffer_CopiesPayload(t *testing.T) {
	p := &types.Packet{MessageID: 1, Index: 0, Count: 1, Payload: []byte("keep")}
	b := NewBuffer(p, time.Now())
	if _, err := b.Add(p); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	copy(p.Payload, "XXXX")

	msg, err := b.Assemble(time.Now())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if string(msg.Data) != "keep" {
		t.Errorf("Data = %q, want %q", msg.Data, "keep")
	}
}

func TestBuffer_Mismatch(t *testing.T) {
	first := &types.Packet{MessageID: 9, Index: 0, Count: 3}
	b := NewBuffer(first, time.Now())

	tests := []struct {
		name   string
		packet *types.Packet
	}{
		{"count disagrees", &types.Packet{MessageID: 9, Index: 1, Count: 4}},
		{"index out of range", &types.Packet{MessageID: 9, Index: 3, Count: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Add(tt.packet)
			var mm *MismatchError
			if !errors.As(err, &mm) {
				t.Fatalf("expected *MismatchError, got %v", err)
			}
			if b.Received() != 0 {
				t.Errorf("Received = %d after mismatch, want 0", b.Received())
			}
		})
	}
}

func TestBuffer_Missing(t *testing.T) {
	ps := packets(1, "a", "b", "c", "d")
	b := NewBuffer(ps[0], time.Now())
	_, _ = b.Add(ps[1])
	_, _ = b.Add(ps[3])

	if got := b.Missing(); !slices.Equal(got, []uint32{0, 2}) {
		t.Errorf("Missing = %v, want [0 2]", got)
	}
}

func TestBuffer_AssembleIncomplete(t *testing.T) {
	ps := packets(1, "a", "b")
	b := NewBuffer(ps[0], time.Now())
	_, _ = b.Add(ps[0])

	if _, err := b.Assemble(time.Now()); err == nil {
		t.Error("expected error assembling incomplete buffer")
	}
}

func TestBuffer_EmptyPayloadMessage(t *testing.T) {
	p := &types.Packet{MessageID: 3, Index: 0, Count: 1}
	b := NewBuffer(p, time.Now())
	if _, err := b.Add(p); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !b.Complete() {
		t.Fatal("single empty packet should complete the message")
	}
	msg, err := b.Assemble(time.Now())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if len(msg.Data) != 0 {
		t.Errorf("Data = %q, want empty", msg.Data)
	}
	if res, _ := NewBuffer(p, time.Now()).Add(p); res != Stored {
		t.Errorf("fresh Add = %v, want Stored", res)
	}
}
