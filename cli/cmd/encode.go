package cmd

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chunkwire/encoder"
	"github.com/justapithecus/chunkwire/iox"
	"github.com/justapithecus/chunkwire/metrics"
	"github.com/justapithecus/chunkwire/stream"
	"github.com/justapithecus/chunkwire/types"
	"github.com/justapithecus/chunkwire/wire"
)

// EncodeCommand returns the encode command.
func EncodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "encode",
		Usage: "Frame a byte stream into packets",
		Description: `Reads input in chunks of --read-size bytes, encodes every chunk as one
message and writes packet frames followed by an end frame.

Example:
  chunkwire encode --max-chunk-size 2048 --in data.bin --out data.cw`,
		Flags: append(sessionFlags(),
			&cli.IntFlag{
				Name:  "max-chunk-size",
				Usage: "Maximum encoded packet size in bytes (required)",
			},
			&cli.IntFlag{
				Name:  "read-size",
				Usage: "Bytes read per message",
				Value: stream.DefaultReadSize,
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Output file (default: stdout)",
			},
		),
		Action: encodeAction,
	}
}

func encodeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	meta, err := sessionMeta(c, types.RoleEncoder, cfg.Source)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	logger, err := newLogger(c, cfg, meta)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	maxChunkSize := intOpt(c, "max-chunk-size", cfg.Encoder.MaxChunkSize)
	if maxChunkSize == 0 {
		return cli.Exit("--max-chunk-size is required", exitUsage)
	}
	if maxChunkSize > wire.MaxFramePayloadSize {
		return cli.Exit(fmt.Sprintf("--max-chunk-size %d exceeds the frame limit of %d bytes",
			maxChunkSize, wire.MaxFramePayloadSize), exitUsage)
	}

	collector := metrics.NewCollector("", "", meta.SessionID)
	enc, err := encoder.New(encoder.Config{MaxChunkSize: maxChunkSize, Collector: collector})
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	in, closeIn, err := openInput(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer iox.DiscardErr(closeIn)

	out, closeOut, err := openOutput(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	closed := false
	defer func() {
		if !closed {
			iox.DiscardErr(closeOut)
		}
	}()

	ctx, stop := signalContext(c.Context)
	defer stop()

	counted := iox.NewCountingWriter(out)
	bw := bufio.NewWriter(counted)
	res, sendErr := stream.Send(ctx, bw, enc, in, stream.SendConfig{
		ReadSize: intOpt(c, "read-size", cfg.Encoder.ReadSize),
		Logger:   logger,
	})
	flushErr := bw.Flush()

	snap := collector.Snapshot()
	fields := map[string]any{
		"messages":        res.Messages,
		"bytes":           res.Bytes,
		"packets_encoded": snap.PacketsEncoded,
		"frame_bytes":     counted.Count(),
		"max_chunk_size":  maxChunkSize,
	}
	if err := errors.Join(sendErr, flushErr); err != nil {
		fields["error"] = err.Error()
		logger.Error("encode failed", fields)
		return cli.Exit("", exitUsage)
	}
	closed = true
	if err := closeOut(); err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	logger.Info("encode completed", fields)
	return nil
}
