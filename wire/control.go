package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Control frame type discriminants.
const (
	// ControlEnd signals that the sender will emit no more packets.
	ControlEnd = "end"
	// ControlAbort signals that the sender failed; Message carries the reason.
	ControlAbort = "abort"
)

// Control is a msgpack-encoded control frame sent alongside packet frames.
type Control struct {
	// Type is ControlEnd or ControlAbort.
	Type string `msgpack:"type"`
	// Message is the abort reason (abort only).
	Message string `msgpack:"message,omitempty"`
}

// EndControl returns an end-of-stream control frame.
func EndControl() *Control {
	return &Control{Type: ControlEnd}
}

// AbortControl returns an abort control frame carrying err's message.
func AbortControl(err error) *Control {
	c := &Control{Type: ControlAbort}
	if err != nil {
		c.Message = err.Error()
	}
	return c
}

// EncodeControl encodes a control frame payload.
func EncodeControl(c *Control) ([]byte, error) {
	switch c.Type {
	case ControlEnd, ControlAbort:
	default:
		return nil, fmt.Errorf("wire: unknown control type %q", c.Type)
	}
	return msgpack.Marshal(c)
}

// DecodeControl decodes a control frame payload.
func DecodeControl(payload []byte) (*Control, error) {
	var c Control
	if err := msgpack.Unmarshal(payload, &c); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode control frame",
			Err:  err,
		}
	}
	switch c.Type {
	case ControlEnd, ControlAbort:
		return &c, nil
	default:
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("unknown control type %q", c.Type),
		}
	}
}
