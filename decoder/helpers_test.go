package decoder

import (
	"crypto/rand"
	"sync"
	"testing"

	"github.com/justapithecus/chunkwire/encoder"
	"github.com/justapithecus/chunkwire/types"
)

// recorder is a Listener that keeps everything it is told.
type recorder struct {
	mu        sync.Mutex
	events    []types.EventKind
	messages  []*types.Message
	redundant []*types.Packet
	errs      []error
}

func (r *recorder) OnActive() { r.add(types.EventActive) }
func (r *recorder) OnIdle()   { r.add(types.EventIdle) }

func (r *recorder) OnRedundantChunk(p *types.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, types.EventRedundantChunk)
	r.redundant = append(r.redundant, p)
}

func (r *recorder) OnData(msg *types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, types.EventData)
	r.messages = append(r.messages, msg)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, types.EventError)
	r.errs = append(r.errs, err)
}

func (r *recorder) add(k types.EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, k)
}

func (r *recorder) count(k types.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == k {
			n++
		}
	}
	return n
}

func (r *recorder) snapshot() ([]types.EventKind, []*types.Message, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.EventKind(nil), r.events...),
		append([]*types.Message(nil), r.messages...),
		append([]error(nil), r.errs...)
}

func newDecoder(t *testing.T, cfg Config) (*Decoder, *recorder) {
	t.Helper()
	rec := &recorder{}
	if cfg.Listener == nil {
		cfg.Listener = rec
	}
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { d.Destroy(nil) })
	return d, rec
}

func encode(t *testing.T, maxChunkSize int, data []byte) []*types.Packet {
	t.Helper()
	enc, err := encoder.New(encoder.Config{MaxChunkSize: maxChunkSize})
	if err != nil {
		t.Fatalf("encoder.New failed: %v", err)
	}
	packets, err := enc.Encode(data)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return packets
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

func acceptAll(t *testing.T, d *Decoder, packets []*types.Packet) {
	t.Helper()
	for _, p := range packets {
		if err := d.Accept(p); err != nil {
			t.Fatalf("Accept(id=%d, index=%d) failed: %v", p.MessageID, p.Index, err)
		}
	}
}

// permutations returns every ordering of 0..n-1.
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, rest := range permutations(n - 1) {
		for pos := 0; pos <= len(rest); pos++ {
			perm := make([]int, 0, n)
			perm = append(perm, rest[:pos]...)
			perm = append(perm, n-1)
			perm = append(perm, rest[pos:]...)
			out = append(out, perm)
		}
	}
	return out
}
