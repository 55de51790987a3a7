package types

// EventKind names a decoder notification.
type EventKind string

// Decoder notification kinds.
const (
	EventActive         EventKind = "active"
	EventIdle           EventKind = "idle"
	EventRedundantChunk EventKind = "redundant_chunk"
	EventData           EventKind = "data"
	EventError          EventKind = "error"
)

// IsActivity returns true for active and idle transitions.
func (k EventKind) IsActivity() bool {
	return k == EventActive || k == EventIdle
}
