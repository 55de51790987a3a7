// Package adapter defines the notification boundary for receive sessions.
//
// Adapters publish a session completion notification to downstream systems
// once a decode session ends, successfully or not.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
)

// EventTypeSessionCompleted is the event_type of every published event.
const EventTypeSessionCompleted = "session_completed"

// ContractVersion is the payload schema version.
const ContractVersion = "1"

// SessionCompletedEvent is the payload published when a receive session ends.
type SessionCompletedEvent struct {
	ContractVersion   string `json:"contract_version"`
	EventType         string `json:"event_type"` // always "session_completed"
	SessionID         string `json:"session_id"`
	Source            string `json:"source,omitempty"`
	Day               string `json:"day"`
	Outcome           string `json:"outcome"` // success, protocol_error, sink_error, ...
	Error             string `json:"error,omitempty"`
	StoragePath       string `json:"storage_path,omitempty"`
	Timestamp         string `json:"timestamp"` // RFC 3339
	MessagesCompleted int64  `json:"messages_completed"`
	MessagesFailed    int64  `json:"messages_failed"`
	BytesReassembled  int64  `json:"bytes_reassembled"`
	RedundantChunks   int64  `json:"redundant_chunks"`
	DurationMs        int64  `json:"duration_ms"`
}

// Adapter publishes session completion events to a downstream system.
type Adapter interface {
	// Publish sends a session completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SessionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Encode marshals event as JSON, filling the contract version and event
// type when the caller left them empty.
func Encode(event *SessionCompletedEvent) ([]byte, error) {
	if event == nil {
		return nil, errors.New("encode event: nil event")
	}
	e := *event
	if e.ContractVersion == "" {
		e.ContractVersion = ContractVersion
	}
	if e.EventType == "" {
		e.EventType = EventTypeSessionCompleted
	}
	return json.Marshal(&e)
}
