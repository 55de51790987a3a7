package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/justapithecus/chunkwire/cli/config"
	"github.com/justapithecus/chunkwire/log"
	"github.com/justapithecus/chunkwire/types"
)

// Exit codes shared by every command.
const (
	exitSuccess  = 0
	exitUsage    = 1
	exitProtocol = 2
	exitSink     = 3
)

// loadConfig reads --config, or ./chunkwire.yaml when present.
func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.LoadOptional(c.String("config"))
}

// sessionMeta builds the session identity from --session-id and source.
func sessionMeta(c *cli.Context, role types.Role, source string) (*types.SessionMeta, error) {
	id := c.String("session-id")
	if id == "" {
		id = uuid.NewString()
	}
	meta := &types.SessionMeta{SessionID: id, Role: role, Source: source}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return meta, nil
}

// newLogger writes JSON logs to the app's error writer so stdout stays free
// for payload bytes.
func newLogger(c *cli.Context, cfg *config.Config, meta *types.SessionMeta) (*log.Logger, error) {
	name := stringOpt(c, "log-level", cfg.Log.Level)
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", name, err)
	}
	return log.NewLoggerWithLevel(meta, c.App.ErrWriter, level), nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// openInput returns --in, or the app reader when unset.
func openInput(c *cli.Context) (io.Reader, func() error, error) {
	path := c.String("in")
	if path == "" || path == "-" {
		return c.App.Reader, func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, f.Close, nil
}

// openOutput returns --out, or the app writer when unset.
func openOutput(c *cli.Context) (io.Writer, func() error, error) {
	path := c.String("out")
	if path == "" || path == "-" {
		return c.App.Writer, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, f.Close, nil
}

// Flags win over file values; file values win over flag defaults.

func stringOpt(c *cli.Context, flag, fromFile string) string {
	if c.IsSet(flag) || fromFile == "" {
		return c.String(flag)
	}
	return fromFile
}

func intOpt(c *cli.Context, flag string, fromFile int) int {
	if c.IsSet(flag) || fromFile == 0 {
		return c.Int(flag)
	}
	return fromFile
}

func int64Opt(c *cli.Context, flag string, fromFile int64) int64 {
	if c.IsSet(flag) || fromFile == 0 {
		return c.Int64(flag)
	}
	return fromFile
}

func durationOpt(c *cli.Context, flag string, fromFile time.Duration) time.Duration {
	if c.IsSet(flag) || fromFile == 0 {
		return c.Duration(flag)
	}
	return fromFile
}

func boolOpt(c *cli.Context, flag string, fromFile bool) bool {
	if c.IsSet(flag) {
		return c.Bool(flag)
	}
	return fromFile || c.Bool(flag)
}
