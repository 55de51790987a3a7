package decoder

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrClosed is returned by Accept after End or Destroy(nil).
var ErrClosed = errors.New("decoder: closed")

// ConfigError reports an invalid decoder configuration.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("decoder config: %s: %s", e.Field, e.Msg)
}

// ChunkTimeoutError is raised when a message stays incomplete for longer
// than the configured timeout.
type ChunkTimeoutError struct {
	MessageID uint64
	Received  int
	Expected  uint32
	Timeout   time.Duration
}

func (e *ChunkTimeoutError) Error() string {
	return fmt.Sprintf("chunk timeout: message %d received %d of %d packets within %s",
		e.MessageID, e.Received, e.Expected, e.Timeout)
}

// ChunkIncompleteError is raised when input ends while messages are still
// being assembled.
type ChunkIncompleteError struct {
	// MessageIDs lists the unfinished messages in ascending order.
	MessageIDs []uint64
}

func (e *ChunkIncompleteError) Error() string {
	ids := make([]string, len(e.MessageIDs))
	for i, id := range e.MessageIDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("chunk incomplete: input ended with %d unfinished message(s) [%s]",
		len(e.MessageIDs), strings.Join(ids, ", "))
}

// MalformedPacketError is raised for a packet whose header cannot be valid.
type MalformedPacketError struct {
	MessageID uint64
	Index     uint32
	Count     uint32
	Reason    string
	Err       error
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("malformed packet: message %d index %d count %d: %s",
		e.MessageID, e.Index, e.Count, e.Reason)
}

func (e *MalformedPacketError) Unwrap() error {
	return e.Err
}

// MessageTooLargeError is raised when a message's buffered bytes exceed
// Config.MaxMessageSize.
type MessageTooLargeError struct {
	MessageID uint64
	Size      int64
	Limit     int64
}

func (e *MessageTooLargeError) Error() string {
	return fmt.Sprintf("message %d too large: %d bytes buffered, limit %d",
		e.MessageID, e.Size, e.Limit)
}

// IsProtocolError reports whether err is one of the decoder's fatal
// protocol errors.
func IsProtocolError(err error) bool {
	var (
		timeout    *ChunkTimeoutError
		incomplete *ChunkIncompleteError
		malformed  *MalformedPacketError
		tooLarge   *MessageTooLargeError
	)
	return errors.As(err, &timeout) ||
		errors.As(err, &incomplete) ||
		errors.As(err, &malformed) ||
		errors.As(err, &tooLarge)
}
