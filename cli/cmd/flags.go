// Package cmd provides CLI commands for the chunkwire binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for stats and bench.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (stats, bench only)",
	}
)

// ReadOnlyFlags returns the shared output flags. --tui is included
// everywhere so unsupported commands can give an explicit error instead of
// "flag provided but not defined".
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// sessionFlags are shared by encode and decode.
func sessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to chunkwire.yaml (default: ./chunkwire.yaml if present)",
		},
		&cli.StringFlag{
			Name:  "session-id",
			Usage: "Session ID (default: random UUID)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
			Value: "info",
		},
		&cli.StringFlag{
			Name:  "in",
			Usage: "Input file (default: stdin)",
		},
	}
}

// storageFlags select the Lode dataset used by decode and stats.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Storage backend: fs or s3",
			Value: "fs",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Storage path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "storage-dataset",
			Usage: "Lode dataset ID",
			Value: "chunkwire",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for S3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "storage-endpoint",
			Usage: "Custom S3 endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "storage-s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
		&cli.StringFlag{
			Name:  "source",
			Usage: "Source identifier for partitioning",
		},
	}
}
