package stream

import (
	"errors"
	"fmt"
)

// ReceiveErrorKind classifies why Receive stopped.
type ReceiveErrorKind int

const (
	// ReceiveErrorStream indicates an unreadable or undecodable frame.
	ReceiveErrorStream ReceiveErrorKind = iota
	// ReceiveErrorProtocol indicates a fatal decoder error (timeout,
	// incomplete message, malformed packet, oversized message).
	ReceiveErrorProtocol
	// ReceiveErrorAborted indicates the sender forwarded an abort.
	ReceiveErrorAborted
	// ReceiveErrorCanceled indicates context cancellation.
	ReceiveErrorCanceled
)

func (k ReceiveErrorKind) String() string {
	switch k {
	case ReceiveErrorStream:
		return "stream"
	case ReceiveErrorProtocol:
		return "protocol"
	case ReceiveErrorAborted:
		return "aborted"
	case ReceiveErrorCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("ReceiveErrorKind(%d)", int(k))
	}
}

// ReceiveError is returned by Receive for every failed session.
type ReceiveError struct {
	Kind ReceiveErrorKind
	Err  error
}

func (e *ReceiveError) Error() string {
	return e.Err.Error()
}

func (e *ReceiveError) Unwrap() error {
	return e.Err
}

// AbortError carries the reason a sender gave in an abort control frame.
type AbortError struct {
	Message string
}

func (e *AbortError) Error() string {
	if e.Message == "" {
		return "sender aborted"
	}
	return "sender aborted: " + e.Message
}

func isKind(err error, kind ReceiveErrorKind) bool {
	var recvErr *ReceiveError
	if errors.As(err, &recvErr) {
		return recvErr.Kind == kind
	}
	return false
}

// IsStreamError returns true if err is a frame/stream error.
func IsStreamError(err error) bool { return isKind(err, ReceiveErrorStream) }

// IsProtocolError returns true if err is a fatal decoder error.
func IsProtocolError(err error) bool { return isKind(err, ReceiveErrorProtocol) }

// IsAbortedError returns true if the sender aborted the session.
func IsAbortedError(err error) bool { return isKind(err, ReceiveErrorAborted) }

// IsCanceledError returns true if err is due to context cancellation.
func IsCanceledError(err error) bool { return isKind(err, ReceiveErrorCanceled) }
