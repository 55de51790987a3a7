package encoder

import (
	"bytes"
	"crypto/rand"
	"errors"
	"math"
	"testing"

	"github.com/justapithecus/chunkwire/metrics"
	"github.com/justapithecus/chunkwire/wire"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

func TestNew_RejectsSmallChunkSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"zero", 0, true},
		{"negative", -1, true},
		{"header only", wire.HeaderSize, true},
		{"header plus one", wire.MinPacketSize, false},
		{"typical", 2048, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{MaxChunkSize: tt.size})
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("expected *ConfigError, got %T", err)
				}
			}
		})
	}
}

func TestEncode_MegabyteScenario(t *testing.T) {
	enc, err := New(Config{MaxChunkSize: 2048})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	data := randomBytes(t, 1048576)
	packets, err := enc.Encode(data)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// ceil(1048576 / (2048 - 24)) = 519
	if len(packets) != 519 {
		t.Fatalf("packets = %d, want 519", len(packets))
	}

	var joined []byte
	for i, p := range packets {
		if p.Index != uint32(i) {
			t.Fatalf("packet %d has index %d", i, p.Index)
		}
		if p.Count != 519 {
			t.Fatalf("packet %d has count %d", i, p.Count)
		}
		if p.MessageID != packets[0].MessageID {
			t.Fatalf("packet %d has message id %d, want %d", i, p.MessageID, packets[0].MessageID)
		}
		joined = append(joined, p.Payload...)
	}
	if !bytes.Equal(joined, data) {
		t.Error("concatenated payloads differ from input")
	}
}

func TestEncode_ChunkSizeBound(t *testing.T) {
	sizes := []int{wire.MinPacketSize, 100, 1500, 4096, 65536}
	for _, size := range sizes {
		enc, err := New(Config{MaxChunkSize: size})
		if err != nil {
			t.Fatalf("New(%d) failed: %v", size, err)
		}
		data := randomBytes(t, size*7+3)
		packets, err := enc.Encode(data)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		for _, p := range packets {
			encoded, err := wire.MarshalPacket(p)
			if err != nil {
				t.Fatalf("MarshalPacket failed: %v", err)
			}
			if len(encoded) > size {
				t.Errorf("maxChunkSize %d: packet %d encodes to %d bytes", size, p.Index, len(encoded))
			}
		}
	}
}

func TestPacketCount(t *testing.T) {
	tests := []struct {
		name         string
		maxChunkSize int
		n            int
		want         int
	}{
		{"empty", 64, 0, 1},
		{"one byte", 64, 1, 1},
		{"exactly one payload", wire.HeaderSize + 10, 10, 1},
		{"one over", wire.HeaderSize + 10, 11, 2},
		{"exact multiple", wire.HeaderSize + 10, 30, 3},
		{"huge chunk size", math.MaxInt, 100, 1},
		{"huge write", wire.HeaderSize + 1, math.MaxInt, math.MaxInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := New(Config{MaxChunkSize: tt.maxChunkSize})
			if err != nil {
				t.Fatalf("New(%d) failed: %v", tt.maxChunkSize, err)
			}
			if got := enc.PacketCount(tt.n); got != tt.want {
				t.Errorf("PacketCount(%d) = %d, want %d", tt.n, got, tt.want)
			}
		})
	}
}

func TestEncode_HugeChunkSize(t *testing.T) {
	enc, err := New(Config{MaxChunkSize: math.MaxInt})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	data := randomBytes(t, 100)
	packets, err := enc.Encode(data)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("packets = %d, want 1", len(packets))
	}
	if !bytes.Equal(packets[0].Payload, data) || packets[0].Count != 1 {
		t.Errorf("packet = %+v, want single packet carrying the write", packets[0])
	}
}

func TestEncode_ExactMultiple(t *testing.T) {
	enc, _ := New(Config{MaxChunkSize: wire.HeaderSize + 10})
	packets, err := enc.Encode(make([]byte, 30))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(packets) != 3 {
		t.Fatalf("packets = %d, want 3", len(packets))
	}
	for _, p := range packets {
		if len(p.Payload) != 10 {
			t.Errorf("packet %d payload = %d bytes, want 10", p.Index, len(p.Payload))
		}
	}
	if !packets[2].IsLast() {
		t.Error("final packet should be last")
	}
}

func TestEncode_EmptyWrite(t *testing.T) {
	enc, _ := New(Config{MaxChunkSize: 64})
	packets, err := enc.Encode(nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("packets = %d, want 1", len(packets))
	}
	if packets[0].Count != 1 || len(packets[0].Payload) != 0 {
		t.Errorf("packet = %+v, want single empty packet", packets[0])
	}
}

func TestEncode_FreshMessageIDs(t *testing.T) {
	enc, _ := New(Config{MaxChunkSize: 64})
	seen := make(map[uint64]bool)
	for range 100 {
		packets, err := enc.Encode([]byte("x"))
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		id := packets[0].MessageID
		if seen[id] {
			t.Fatalf("message id %d reused", id)
		}
		seen[id] = true
	}
}

func TestPackets_Lazy(t *testing.T) {
	enc, _ := New(Config{MaxChunkSize: wire.HeaderSize + 1})
	seq, err := enc.Packets(make([]byte, 1000))
	if err != nil {
		t.Fatalf("Packets failed: %v", err)
	}

	n := 0
	for p := range seq {
		n++
		if p.Index == 4 {
			break
		}
	}
	if n != 5 {
		t.Errorf("iterated %d packets, want 5", n)
	}
}

func TestEncode_Metrics(t *testing.T) {
	c := metrics.NewCollector("", "", "")
	enc, _ := New(Config{MaxChunkSize: wire.HeaderSize + 10, Collector: c})

	if _, err := enc.Encode(make([]byte, 25)); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	s := c.Snapshot()
	if s.MessagesEncoded != 1 || s.PacketsEncoded != 3 || s.BytesEncoded != 25 {
		t.Errorf("snapshot = %+v, want 1 message, 3 packets, 25 bytes", s)
	}
}
