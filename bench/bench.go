// Package bench drives random writes through an encoder, an impaired
// in-process link and a decoder, and reports throughput and heap growth.
package bench

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justapithecus/chunkwire/decoder"
	"github.com/justapithecus/chunkwire/encoder"
	"github.com/justapithecus/chunkwire/log"
	"github.com/justapithecus/chunkwire/metrics"
	"github.com/justapithecus/chunkwire/policy"
	"github.com/justapithecus/chunkwire/stream"
	"github.com/justapithecus/chunkwire/types"
)

// Defaults applied by Run for zero Config fields.
const (
	DefaultWrites          = 100
	DefaultMaxWriteSize    = 1 << 20
	DefaultIdleProbability = 0.2
	minRandomChunkSize     = 1024
)

// ErrByteMismatch is returned when the decoder emitted a different number
// of bytes than were written.
var ErrByteMismatch = errors.New("sent bytes do not match received bytes")

// Config configures a benchmark run.
type Config struct {
	// Writes is the number of random writes (default 100).
	Writes int
	// MaxWriteSize bounds each write; sizes are uniform in [1, MaxWriteSize].
	MaxWriteSize int
	// MaxChunkSize is the encoder chunk size. Zero picks a random size in
	// [1024, 1024+1MiB) from the run's seed.
	MaxChunkSize int
	// IdleProbability is the chance of waiting for the decoder to go idle
	// after a write (default 0.2). Negative disables checkpoints.
	IdleProbability float64
	// Timeout is the decoder reassembly timeout (default decoder.DefaultTimeout).
	Timeout time.Duration
	// Impairment is applied between encoder and decoder.
	Impairment stream.Impairment
	// Seed makes sizes, contents and impairment reproducible.
	Seed uint64
	// SessionID labels metrics and log lines.
	SessionID string
	Logger    *log.Logger
	// Progress, if set, is called at every idle checkpoint and once at the end.
	Progress func(Progress)
}

// Progress is a snapshot taken at an idle checkpoint.
type Progress struct {
	Write         int
	Writes        int
	SentBytes     int64
	ReceivedBytes int64
	Elapsed       time.Duration
	RateMBps      float64
	HeapDelta     int64
	Done          bool
}

// Result summarizes a finished run.
type Result struct {
	Writes        int
	MaxChunkSize  int
	SentBytes     int64
	ReceivedBytes int64
	Elapsed       time.Duration
	RateMBps      float64
	HeapDelta     int64
	Checkpoints   int
	Link          stream.LinkStats
	Metrics       metrics.Snapshot
}

func (c *Config) withDefaults() {
	if c.Writes <= 0 {
		c.Writes = DefaultWrites
	}
	if c.MaxWriteSize <= 0 {
		c.MaxWriteSize = DefaultMaxWriteSize
	}
	if c.IdleProbability == 0 {
		c.IdleProbability = DefaultIdleProbability
	}
	if c.Timeout <= 0 {
		c.Timeout = decoder.DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Nop()
	}
}

// Run executes one benchmark. The run fails if the decoder reports a
// protocol error or the received byte total differs from the sent total.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	cfg.withDefaults()

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))
	var seed [32]byte
	for i := range 4 {
		v := rng.Uint64()
		for j := range 8 {
			seed[i*8+j] = byte(v >> (8 * j))
		}
	}
	data := rand.NewChaCha8(seed)

	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = minRandomChunkSize + rng.IntN(1<<20)
	}
	if cfg.Impairment.Seed == 0 {
		cfg.Impairment.Seed = rng.Uint64()
	}

	collector := metrics.NewCollector(string(policy.NameNoop), "none", cfg.SessionID)
	enc, err := encoder.New(encoder.Config{MaxChunkSize: cfg.MaxChunkSize, Collector: collector})
	if err != nil {
		return nil, err
	}

	var received atomic.Int64
	pol := policy.NewNoopPolicy()
	var ingestErr error
	var ingestOnce sync.Once
	listener := decoder.ListenerFuncs{
		Data: func(msg *types.Message) {
			received.Add(int64(len(msg.Data)))
			if err := pol.Ingest(ctx, msg); err != nil {
				ingestOnce.Do(func() { ingestErr = err })
			}
		},
		RedundantChunk: func(p *types.Packet) {
			cfg.Logger.Debug("redundant chunk", map[string]any{
				"message_id": p.MessageID,
				"index":      p.Index,
			})
		},
	}
	dec, err := decoder.New(decoder.Config{
		Timeout:   cfg.Timeout,
		Listener:  listener,
		Logger:    cfg.Logger,
		Collector: collector,
	})
	if err != nil {
		return nil, err
	}
	defer dec.Destroy(nil)

	link := stream.NewLink(dec, cfg.Impairment)
	w := encoder.NewWriter(enc, link)

	var startMem runtime.MemStats
	runtime.ReadMemStats(&startMem)
	start := time.Now()

	var sent int64
	res := &Result{Writes: cfg.Writes, MaxChunkSize: cfg.MaxChunkSize}

	checkpoint := func(write int, done bool) Progress {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		elapsed := time.Since(start)
		p := Progress{
			Write:         write,
			Writes:        cfg.Writes,
			SentBytes:     sent,
			ReceivedBytes: received.Load(),
			Elapsed:       elapsed,
			RateMBps:      rate(sent, elapsed),
			HeapDelta:     int64(mem.HeapAlloc) - int64(startMem.HeapAlloc),
			Done:          done,
		}
		cfg.Logger.Info("bench checkpoint", map[string]any{
			"write":      write,
			"rate_mbps":  fmt.Sprintf("%.2f", p.RateMBps),
			"heap_delta": p.HeapDelta,
		})
		if cfg.Progress != nil {
			cfg.Progress(p)
		}
		return p
	}

	for i := range cfg.Writes {
		if err := ctx.Err(); err != nil {
			_ = w.CloseWithError(err)
			return nil, err
		}

		buf := make([]byte, 1+rng.IntN(cfg.MaxWriteSize))
		_, _ = data.Read(buf)
		sent += int64(len(buf))
		if _, err := w.Write(buf); err != nil {
			return nil, fmt.Errorf("write %d: %w", i, err)
		}

		if cfg.IdleProbability > 0 && rng.Float64() < cfg.IdleProbability {
			if err := link.Flush(); err != nil {
				return nil, fmt.Errorf("flush after write %d: %w", i, err)
			}
			if err := dec.WaitUntilIdle(ctx); err != nil {
				return nil, fmt.Errorf("wait idle after write %d: %w", i, err)
			}
			checkpoint(i+1, false)
			res.Checkpoints++
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("end of input: %w", err)
	}
	if ingestErr != nil {
		return nil, ingestErr
	}

	final := checkpoint(cfg.Writes, true)
	res.SentBytes = sent
	res.ReceivedBytes = final.ReceivedBytes
	res.Elapsed = final.Elapsed
	res.RateMBps = final.RateMBps
	res.HeapDelta = final.HeapDelta
	res.Link = link.Stats()
	res.Metrics = collector.Snapshot()

	if res.SentBytes != res.ReceivedBytes {
		return res, fmt.Errorf("%w: sent %d, received %d", ErrByteMismatch, res.SentBytes, res.ReceivedBytes)
	}
	return res, nil
}

func rate(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / (1 << 20) / d.Seconds()
}
