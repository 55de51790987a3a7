package types

import (
	"errors"
	"fmt"
)

// Role identifies which side of the protocol a session runs.
type Role string

// Session roles.
const (
	RoleEncoder Role = "encoder"
	RoleDecoder Role = "decoder"
	RoleBench   Role = "bench"
)

// SessionMeta carries the identity of one CLI or benchmark session.
// It is attached to every log line and persisted record.
type SessionMeta struct {
	// SessionID is unique per session.
	SessionID string
	// Role is the protocol side this session runs.
	Role Role
	// Source labels the origin of the stream (optional).
	Source string
}

// Validate checks that the session identity is usable.
func (m *SessionMeta) Validate() error {
	if m.SessionID == "" {
		return errors.New("session_id must be non-empty")
	}
	switch m.Role {
	case RoleEncoder, RoleDecoder, RoleBench:
		return nil
	default:
		return fmt.Errorf("unknown role %q", m.Role)
	}
}

// SessionOutcome is the final status of a session.
type SessionOutcome string

// Session outcomes.
const (
	OutcomeSuccess       SessionOutcome = "success"
	OutcomeProtocolError SessionOutcome = "protocol_error"
	OutcomeSinkError     SessionOutcome = "sink_error"
	OutcomeStreamError   SessionOutcome = "stream_error"
	OutcomeCanceled      SessionOutcome = "canceled"
)
