// Package metrics provides per-session counters for encoders and decoders.
//
// The Collector accumulates counters during a single session. It is a leaf
// package with no internal dependencies; all increment methods are
// nil-receiver safe so components can take an optional collector.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Encoder
	PacketsEncoded  int64
	MessagesEncoded int64
	BytesEncoded    int64

	// Decoder
	PacketsAccepted   int64
	RedundantChunks   int64
	MessagesStarted   int64
	MessagesCompleted int64
	MessagesFailed    int64
	BytesReassembled  int64
	PeakLiveMessages  int64

	// Decoder failures by cause
	Timeouts         int64
	Incompletes      int64
	MalformedPackets int64
	FrameErrors      int64

	// Sink
	SinkWriteSuccess int64
	SinkWriteFailure int64

	// Dimensions (informational, set at construction)
	Policy         string
	StorageBackend string
	SessionID      string
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(policy, storageBackend, sessionID string) *Collector {
	return &Collector{s: Snapshot{
		Policy:         policy,
		StorageBackend: storageBackend,
		SessionID:      sessionID,
	}}
}

func (c *Collector) update(fn func(s *Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn(&c.s)
	c.mu.Unlock()
}

// --- Encoder ---

// AddEncoded records one encoded message of n bytes split into packets.
func (c *Collector) AddEncoded(packets, n int64) {
	c.update(func(s *Snapshot) {
		s.MessagesEncoded++
		s.PacketsEncoded += packets
		s.BytesEncoded += n
	})
}

// --- Decoder ---

// IncPacketsAccepted records a packet handed to the decoder.
func (c *Collector) IncPacketsAccepted() {
	c.update(func(s *Snapshot) { s.PacketsAccepted++ })
}

// IncRedundantChunks records a discarded duplicate packet.
func (c *Collector) IncRedundantChunks() {
	c.update(func(s *Snapshot) { s.RedundantChunks++ })
}

// IncMessageStarted records a new message and the live count after it.
func (c *Collector) IncMessageStarted(live int) {
	c.update(func(s *Snapshot) {
		s.MessagesStarted++
		if int64(live) > s.PeakLiveMessages {
			s.PeakLiveMessages = int64(live)
		}
	})
}

// AddMessageCompleted records a reassembled message of n bytes.
func (c *Collector) AddMessageCompleted(n int64) {
	c.update(func(s *Snapshot) {
		s.MessagesCompleted++
		s.BytesReassembled += n
	})
}

// AddMessagesFailed records n messages abandoned by a decoder failure.
func (c *Collector) AddMessagesFailed(n int) {
	c.update(func(s *Snapshot) { s.MessagesFailed += int64(n) })
}

// IncTimeouts records a deadline expiry.
func (c *Collector) IncTimeouts() {
	c.update(func(s *Snapshot) { s.Timeouts++ })
}

// IncIncompletes records an end-of-input with live messages.
func (c *Collector) IncIncompletes() {
	c.update(func(s *Snapshot) { s.Incompletes++ })
}

// IncMalformedPackets records a packet rejected as malformed.
func (c *Collector) IncMalformedPackets() {
	c.update(func(s *Snapshot) { s.MalformedPackets++ })
}

// IncFrameErrors records a stream frame that could not be read or decoded.
func (c *Collector) IncFrameErrors() {
	c.update(func(s *Snapshot) { s.FrameErrors++ })
}

// --- Sink ---
// Sink counters are per-call, not per-message.

// IncSinkWriteSuccess records a successful sink write (per-call).
func (c *Collector) IncSinkWriteSuccess() {
	c.update(func(s *Snapshot) { s.SinkWriteSuccess++ })
}

// IncSinkWriteFailure records a failed sink write (per-call).
func (c *Collector) IncSinkWriteFailure() {
	c.update(func(s *Snapshot) { s.SinkWriteFailure++ })
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
