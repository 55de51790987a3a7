package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/justapithecus/chunkwire/encoder"
	"github.com/justapithecus/chunkwire/log"
)

// DefaultReadSize is the read buffer size used when SendConfig.ReadSize is
// zero. Each read becomes one message.
const DefaultReadSize = 64 * 1024

// SendConfig configures Send.
type SendConfig struct {
	// ReadSize bounds the bytes read from the source per message.
	ReadSize int
	// Logger receives debug logs (optional).
	Logger *log.Logger
}

// SendResult summarizes a Send.
type SendResult struct {
	Messages int64
	Bytes    int64
}

// Send reads r until EOF and writes every read as one framed message to w,
// followed by an end control frame. A read error or context cancellation
// is forwarded to the receiver as an abort control frame and returned.
func Send(ctx context.Context, w io.Writer, enc *encoder.Encoder, r io.Reader, cfg SendConfig) (SendResult, error) {
	readSize := cfg.ReadSize
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	ew := encoder.NewWriter(enc, NewFrameSink(w))
	buf := make([]byte, readSize)
	var res SendResult

	for {
		if err := ctx.Err(); err != nil {
			_ = ew.CloseWithError(err)
			return res, err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := ew.Write(buf[:n]); err != nil {
				return res, fmt.Errorf("write message: %w", err)
			}
			res.Messages++
			res.Bytes += int64(n)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				logger.Debug("source exhausted", map[string]any{
					"messages": res.Messages,
					"bytes":    res.Bytes,
				})
				if err := ew.Close(); err != nil {
					return res, fmt.Errorf("write end frame: %w", err)
				}
				return res, nil
			}

			logger.Error("source read failed", map[string]any{
				"error": readErr.Error(),
			})
			if err := ew.CloseWithError(readErr); err != nil {
				return res, fmt.Errorf("write abort frame: %w", errors.Join(readErr, err))
			}
			return res, fmt.Errorf("read source: %w", readErr)
		}
	}
}
