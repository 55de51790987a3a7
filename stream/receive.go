package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/justapithecus/chunkwire/decoder"
	"github.com/justapithecus/chunkwire/log"
	"github.com/justapithecus/chunkwire/metrics"
	"github.com/justapithecus/chunkwire/wire"
)

// ReceiveConfig configures Receive.
type ReceiveConfig struct {
	// Logger receives frame-level logs (optional).
	Logger *log.Logger
	// Collector counts frame errors (optional).
	Collector *metrics.Collector
}

// Receive reads frames from r into dec until an end frame, EOF, or a fatal
// error. Both an end frame and a clean EOF end the decoder; messages still
// being assembled at that point fail the session.
//
// Frames are read on a separate goroutine, so a decoder that fails on its
// own (a message timing out while the sender is stalled) or a cancelled ctx
// ends Receive without waiting for the next frame. In those cases r is
// closed if it implements io.Closer, to release the blocked read.
//
// Returns:
//   - nil: the stream ended and every message completed
//   - *ReceiveError with Kind=ReceiveErrorStream: frame could not be read or decoded
//   - *ReceiveError with Kind=ReceiveErrorProtocol: the decoder failed
//   - *ReceiveError with Kind=ReceiveErrorAborted: the sender aborted
//   - *ReceiveError with Kind=ReceiveErrorCanceled: ctx was cancelled
//
// On every error path the decoder is ended or destroyed before returning.
func Receive(ctx context.Context, r io.Reader, dec *decoder.Decoder, cfg ReceiveConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	stop := make(chan struct{})
	defer close(stop)
	frames := readFrames(wire.NewFrameReader(r), stop)

	canceled := func() error {
		dec.Destroy(ctx.Err())
		closeReader(r)
		return &ReceiveError{Kind: ReceiveErrorCanceled, Err: ctx.Err()}
	}

	for {
		if ctx.Err() != nil {
			return canceled()
		}

		var res frameResult
		select {
		case <-ctx.Done():
			return canceled()
		case <-dec.Done():
			closeReader(r)
			return terminalError(dec)
		case res = <-frames:
		}

		frame, err := res.frame, res.err
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("stream ended without end frame", nil)
				return endDecoder(dec)
			}

			logger.Error("frame error", map[string]any{
				"error": err.Error(),
			})
			cfg.Collector.IncFrameErrors()
			frameErr := fmt.Errorf("frame error: %w", err)
			dec.Destroy(frameErr)
			return &ReceiveError{Kind: ReceiveErrorStream, Err: frameErr}
		}

		if frame.Packet != nil {
			if err := dec.Accept(frame.Packet); err != nil {
				return acceptError(dec, err)
			}
			continue
		}

		switch frame.Control.Type {
		case wire.ControlEnd:
			logger.Debug("end frame received", nil)
			return endDecoder(dec)
		case wire.ControlAbort:
			abortErr := &AbortError{Message: frame.Control.Message}
			logger.Warn("sender aborted", map[string]any{
				"reason": frame.Control.Message,
			})
			dec.Destroy(abortErr)
			return &ReceiveError{Kind: ReceiveErrorAborted, Err: abortErr}
		}
	}
}

type frameResult struct {
	frame *wire.Frame
	err   error
}

// readFrames delivers frames until the first read error or until stop is
// closed. The error result is the last one sent.
func readFrames(fr *wire.FrameReader, stop <-chan struct{}) <-chan frameResult {
	out := make(chan frameResult)
	go func() {
		for {
			frame, err := fr.ReadFrame()
			select {
			case out <- frameResult{frame: frame, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

func closeReader(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}

// terminalError reports a decoder that reached a terminal state on its own.
func terminalError(dec *decoder.Decoder) error {
	err := dec.Err()
	switch {
	case err == nil:
		return &ReceiveError{Kind: ReceiveErrorStream, Err: decoder.ErrClosed}
	case decoder.IsProtocolError(err):
		return &ReceiveError{Kind: ReceiveErrorProtocol, Err: err}
	default:
		return &ReceiveError{Kind: ReceiveErrorStream, Err: err}
	}
}

func endDecoder(dec *decoder.Decoder) error {
	if err := dec.End(); err != nil {
		return &ReceiveError{Kind: ReceiveErrorProtocol, Err: err}
	}
	return nil
}

func acceptError(dec *decoder.Decoder, err error) error {
	if decoder.IsProtocolError(err) {
		return &ReceiveError{Kind: ReceiveErrorProtocol, Err: err}
	}
	// Closed underneath us, by a listener or another goroutine.
	dec.Destroy(err)
	return &ReceiveError{Kind: ReceiveErrorStream, Err: fmt.Errorf("accept packet: %w", err)}
}
