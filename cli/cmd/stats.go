package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	lodelibrary "github.com/justapithecus/lode/lode"

	"github.com/justapithecus/chunkwire/cli/reader"
	"github.com/justapithecus/chunkwire/cli/render"
	"github.com/justapithecus/chunkwire/cli/tui"
	"github.com/justapithecus/chunkwire/lode"
)

// statsReadTimeout bounds the dataset scan.
const statsReadTimeout = 30 * time.Second

// StatsCommand returns the stats command.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show the latest metrics of a decode session",
		Description: `Reads the most recent session metrics record from a Lode dataset.

Example:
  chunkwire stats --storage-path ./data --session-id 2f1c...`,
		Flags: append(append(ReadOnlyFlags(), storageFlags()...),
			&cli.StringFlag{
				Name:  "session-id",
				Usage: "Read metrics for a specific session (default: latest)",
			},
		),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	path := c.String("storage-path")
	if path == "" {
		return cli.Exit("--storage-path is required", exitUsage)
	}

	ctx, cancel := context.WithTimeout(c.Context, statsReadTimeout)
	defer cancel()

	ds, err := buildReadDataset(ctx, c.String("storage-dataset"), c.String("storage-backend"), path, c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to initialize storage reader: %v", err), exitUsage)
	}

	stats, err := reader.ReadSessionStats(ctx, ds, c.String("session-id"), c.String("source"))
	if err != nil {
		code := exitSink
		if errors.Is(err, lode.ErrNoMetricsFound) {
			code = exitUsage
		}
		return cli.Exit(fmt.Sprintf("failed to read metrics: %v", err), code)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsSession, stats)
	}
	return r.Render(stats)
}

// buildReadDataset creates a Lode Dataset for reading based on CLI flags.
func buildReadDataset(ctx context.Context, dataset, backend, path string, c *cli.Context) (lodelibrary.Dataset, error) {
	switch backend {
	case "", "fs":
		return lode.NewReadDatasetFS(dataset, path)
	case "s3":
		bucket, prefix := lode.ParseS3Path(path)
		return lode.NewReadDatasetS3(ctx, dataset, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       c.String("storage-region"),
			Endpoint:     c.String("storage-endpoint"),
			UsePathStyle: c.Bool("storage-s3-path-style"),
		})
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", backend)
	}
}
