package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chunkwire/cli/render"
	"github.com/justapithecus/chunkwire/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version     string `json:"version"`
	WireVersion int    `json:"wire_version"`
	Commit      string `json:"commit"`
}

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", exitUsage)
		}
		return r.Render(VersionResponse{
			Version:     types.Version,
			WireVersion: int(types.WireVersion),
			Commit:      commit,
		})
	}
}
