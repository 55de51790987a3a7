package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chunkwire/types"
)

// NewApp builds the chunkwire CLI application.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:    "chunkwire",
		Usage:   "Chunked message framing: encode, decode and benchmark",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Commands: []*cli.Command{
			EncodeCommand(),
			DecodeCommand(),
			BenchCommand(),
			StatsCommand(),
			VersionCommand(commit),
		},
	}
}
