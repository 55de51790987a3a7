package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chunkwire/bench"
	"github.com/justapithecus/chunkwire/cli/config"
	"github.com/justapithecus/chunkwire/cli/render"
	"github.com/justapithecus/chunkwire/cli/tui"
	"github.com/justapithecus/chunkwire/decoder"
	"github.com/justapithecus/chunkwire/log"
	"github.com/justapithecus/chunkwire/stream"
	"github.com/justapithecus/chunkwire/types"
)

// BenchResponse is the rendered result of a bench run.
type BenchResponse struct {
	SessionID     string  `json:"session_id" yaml:"session_id"`
	Seed          uint64  `json:"seed" yaml:"seed"`
	Writes        int     `json:"writes" yaml:"writes"`
	MaxChunkSize  int     `json:"max_chunk_size" yaml:"max_chunk_size"`
	SentBytes     int64   `json:"sent_bytes" yaml:"sent_bytes"`
	ReceivedBytes int64   `json:"received_bytes" yaml:"received_bytes"`
	ElapsedMs     int64   `json:"elapsed_ms" yaml:"elapsed_ms"`
	RateMBps      float64 `json:"rate_mbps" yaml:"rate_mbps"`
	HeapDelta     int64   `json:"heap_delta_bytes" yaml:"heap_delta_bytes"`
	Checkpoints   int     `json:"idle_checkpoints" yaml:"idle_checkpoints"`
	Packets       int64   `json:"packets_sent" yaml:"packets_sent"`
	Duplicated    int64   `json:"packets_duplicated" yaml:"packets_duplicated"`
	Dropped       int64   `json:"packets_dropped" yaml:"packets_dropped"`
	Redundant     int64   `json:"redundant_chunks" yaml:"redundant_chunks"`
	PeakLive      int64   `json:"peak_live_messages" yaml:"peak_live_messages"`
}

// BenchCommand returns the bench command.
func BenchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Measure throughput and memory of random writes over an impaired link",
		Description: `Writes random payloads through an encoder, an in-process link and a
decoder. After each write the run waits for the decoder to go idle with
probability --idle-probability. The run fails unless every sent byte is
received.

Example:
  chunkwire bench --writes 200 --reorder --duplicate-rate 0.05`,
		Flags: append(ReadOnlyFlags(),
			&cli.IntFlag{Name: "writes", Usage: "Number of random writes", Value: bench.DefaultWrites},
			&cli.IntFlag{Name: "max-write-size", Usage: "Maximum bytes per write", Value: bench.DefaultMaxWriteSize},
			&cli.IntFlag{Name: "max-chunk-size", Usage: "Encoder chunk size (default: random from seed)"},
			&cli.BoolFlag{Name: "reorder", Usage: "Shuffle packets in windows"},
			&cli.IntFlag{Name: "reorder-window", Usage: "Packets per shuffle window", Value: 16},
			&cli.Float64Flag{Name: "duplicate-rate", Usage: "Probability a packet is delivered twice"},
			&cli.Float64Flag{Name: "drop-rate", Usage: "Probability a packet is lost"},
			&cli.DurationFlag{Name: "max-delay", Usage: "Maximum random delivery delay per packet"},
			&cli.Float64Flag{Name: "idle-probability", Usage: "Chance of an idle checkpoint after a write (negative disables)", Value: bench.DefaultIdleProbability},
			&cli.DurationFlag{Name: "timeout", Usage: "Decoder reassembly timeout", Value: decoder.DefaultTimeout},
			&cli.Uint64Flag{Name: "seed", Usage: "Random seed for reproducible runs", Value: 1},
			&cli.StringFlag{Name: "session-id", Usage: "Session ID (default: random UUID)"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error", Value: "warn"},
		),
		Action: benchAction,
	}
}

func benchAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	meta, err := sessionMeta(c, types.RoleBench, "")
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	var logger *log.Logger
	if c.Bool("tui") {
		// Log lines would tear the progress view.
		logger = log.Nop()
	} else {
		logger, err = newLogger(c, &config.Config{}, meta)
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
	}

	seed := c.Uint64("seed")
	cfg := bench.Config{
		Writes:          c.Int("writes"),
		MaxWriteSize:    c.Int("max-write-size"),
		MaxChunkSize:    c.Int("max-chunk-size"),
		IdleProbability: c.Float64("idle-probability"),
		Timeout:         c.Duration("timeout"),
		Impairment: stream.Impairment{
			Reorder:       c.Bool("reorder"),
			ReorderWindow: c.Int("reorder-window"),
			DuplicateRate: c.Float64("duplicate-rate"),
			DropRate:      c.Float64("drop-rate"),
			MaxDelay:      c.Duration("max-delay"),
		},
		Seed:      seed,
		SessionID: meta.SessionID,
		Logger:    logger,
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	var res *bench.Result
	if c.Bool("tui") {
		res, err = tui.RunBench(ctx, cfg)
	} else {
		res, err = bench.Run(ctx, cfg)
	}
	if err != nil {
		code := exitUsage
		if decoder.IsProtocolError(err) {
			code = exitProtocol
		}
		return cli.Exit("bench failed: "+err.Error(), code)
	}

	return r.Render(BenchResponse{
		SessionID:     meta.SessionID,
		Seed:          seed,
		Writes:        res.Writes,
		MaxChunkSize:  res.MaxChunkSize,
		SentBytes:     res.SentBytes,
		ReceivedBytes: res.ReceivedBytes,
		ElapsedMs:     res.Elapsed.Milliseconds(),
		RateMBps:      res.RateMBps,
		HeapDelta:     res.HeapDelta,
		Checkpoints:   res.Checkpoints,
		Packets:       res.Link.Sent,
		Duplicated:    res.Link.Duplicated,
		Dropped:       res.Link.Dropped,
		Redundant:     res.Metrics.RedundantChunks,
		PeakLive:      res.Metrics.PeakLiveMessages,
	})
}
