package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/justapithecus/chunkwire/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxFramePayloadSize is the maximum frame payload (MaxFrameSize - 4 bytes).
	MaxFramePayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a frame whose payload could not be decoded.
	FrameErrorDecode
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream cannot continue after this error.
// Partial and oversized frames leave the reader unsynchronized.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// Frame is one decoded frame: exactly one of Packet or Control is set.
type Frame struct {
	Packet  *types.Packet
	Control *Control
}

// FrameReader decodes length-prefixed frames from a stream.
type FrameReader struct {
	reader io.Reader
}

// NewFrameReader creates a new frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{reader: r}
}

// ReadRaw reads a single frame and returns its raw payload.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (r *FrameReader) ReadRaw() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(r.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxFramePayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxFramePayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(r.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// ReadFrame reads and decodes a single frame.
// Packet frames are recognized by the packet magic; anything else must be a
// msgpack control frame. Decode failures are *FrameError with
// Kind=FrameErrorDecode wrapping the underlying error.
func (r *FrameReader) ReadFrame() (*Frame, error) {
	payload, err := r.ReadRaw()
	if err != nil {
		return nil, err
	}
	return DecodeFrame(payload)
}

// DecodeFrame decodes a raw frame payload.
func DecodeFrame(payload []byte) (*Frame, error) {
	if HasPacketMagic(payload) {
		p, err := UnmarshalPacket(payload)
		if err != nil {
			return nil, &FrameError{
				Kind: FrameErrorDecode,
				Msg:  "failed to decode packet",
				Err:  err,
			}
		}
		return &Frame{Packet: p}, nil
	}

	c, err := DecodeControl(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Control: c}, nil
}

// FrameWriter writes length-prefixed frames to a stream.
// Safe for concurrent use; each frame is written atomically with respect
// to other frames from the same writer.
type FrameWriter struct {
	mu     sync.Mutex
	writer io.Writer
	buf    []byte
}

// NewFrameWriter creates a new frame writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{writer: w}
}

// WriteRaw writes payload as a single frame.
func (w *FrameWriter) WriteRaw(payload []byte) error {
	if len(payload) > MaxFramePayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxFramePayloadSize),
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = w.buf[:0]
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(payload)))
	w.buf = append(w.buf, payload...)
	_, err := w.writer.Write(w.buf)
	return err
}

// WritePacket encodes p and writes it as a single frame.
func (w *FrameWriter) WritePacket(p *types.Packet) error {
	payload, err := MarshalPacket(p)
	if err != nil {
		return err
	}
	return w.WriteRaw(payload)
}

// WriteControl encodes c and writes it as a single frame.
func (w *FrameWriter) WriteControl(c *Control) error {
	payload, err := EncodeControl(c)
	if err != nil {
		return err
	}
	return w.WriteRaw(payload)
}
