package stream

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/justapithecus/chunkwire/decoder"
	"github.com/justapithecus/chunkwire/types"
)

// DefaultReorderWindow is the number of packets shuffled together when
// Impairment.Reorder is set and ReorderWindow is zero.
const DefaultReorderWindow = 16

// Impairment describes how a Link mistreats packets.
type Impairment struct {
	// Reorder shuffles packets in windows of ReorderWindow.
	Reorder       bool
	ReorderWindow int
	// DuplicateRate is the probability a packet is delivered twice.
	DuplicateRate float64
	// DropRate is the probability a packet is never delivered.
	DropRate float64
	// MaxDelay delivers each packet after a random delay in [0, MaxDelay).
	MaxDelay time.Duration
	// Seed makes the impairment reproducible.
	Seed uint64
}

// LinkStats counts what a Link did.
type LinkStats struct {
	Sent       int64
	Delivered  int64
	Duplicated int64
	Dropped    int64
}

// Link is an in-process encoder.PacketSink feeding a Decoder through an
// impaired channel. Safe for concurrent use.
type Link struct {
	dec    *decoder.Decoder
	imp    Impairment
	window int

	mu      sync.Mutex
	rng     *rand.Rand
	pending []*types.Packet
	stats   LinkStats
	wg      sync.WaitGroup
}

// NewLink creates a Link delivering to dec.
func NewLink(dec *decoder.Decoder, imp Impairment) *Link {
	window := imp.ReorderWindow
	if window <= 0 {
		window = DefaultReorderWindow
	}
	return &Link{
		dec:    dec,
		imp:    imp,
		window: window,
		rng:    rand.New(rand.NewPCG(imp.Seed, imp.Seed^0x9e3779b97f4a7c15)),
	}
}

// WritePacket copies p and sends it through the impairment. Synchronous
// deliveries return the decoder's error.
func (l *Link) WritePacket(p *types.Packet) error {
	cp := &types.Packet{
		MessageID: p.MessageID,
		Index:     p.Index,
		Count:     p.Count,
		Payload:   slices.Clone(p.Payload),
	}

	l.mu.Lock()
	l.stats.Sent++
	if l.imp.DropRate > 0 && l.rng.Float64() < l.imp.DropRate {
		l.stats.Dropped++
		l.mu.Unlock()
		return nil
	}
	copies := 1
	if l.imp.DuplicateRate > 0 && l.rng.Float64() < l.imp.DuplicateRate {
		copies = 2
		l.stats.Duplicated++
	}

	var now []*types.Packet
	for range copies {
		switch {
		case l.imp.MaxDelay > 0:
			l.deliverLater(cp, time.Duration(l.rng.Int64N(int64(l.imp.MaxDelay))))
		case l.imp.Reorder:
			l.pending = append(l.pending, cp)
			if len(l.pending) >= l.window {
				now = append(now, l.takePending()...)
			}
		default:
			now = append(now, cp)
		}
	}
	l.mu.Unlock()

	return l.deliver(now)
}

// takePending shuffles and empties the reorder window. Callers hold mu.
func (l *Link) takePending() []*types.Packet {
	batch := l.pending
	l.pending = nil
	l.rng.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })
	return batch
}

// deliverLater schedules p after d. Callers hold mu.
func (l *Link) deliverLater(p *types.Packet, d time.Duration) {
	l.wg.Add(1)
	time.AfterFunc(d, func() {
		defer l.wg.Done()
		_ = l.deliver([]*types.Packet{p})
	})
}

func (l *Link) deliver(packets []*types.Packet) error {
	for _, p := range packets {
		err := l.dec.Accept(p)
		if err != nil {
			// The decoder keeps the terminal error; End and Err report it.
			if errors.Is(err, decoder.ErrClosed) {
				return nil
			}
			return err
		}
		l.mu.Lock()
		l.stats.Delivered++
		l.mu.Unlock()
	}
	return nil
}

// Flush delivers any packets held in the reorder window and waits for
// delayed deliveries.
func (l *Link) Flush() error {
	l.mu.Lock()
	batch := l.takePending()
	l.mu.Unlock()

	err := l.deliver(batch)
	l.wg.Wait()
	return err
}

// End flushes the link and ends the decoder.
func (l *Link) End() error {
	if err := l.Flush(); err != nil {
		return err
	}
	return l.dec.End()
}

// Abort destroys the decoder with err without waiting for packets in
// flight; they are discarded.
func (l *Link) Abort(err error) error {
	l.dec.Destroy(err)
	return nil
}

// Stats returns a copy of the link counters.
func (l *Link) Stats() LinkStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
