package lode

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/justapithecus/chunkwire/metrics"
	"github.com/justapithecus/chunkwire/types"
)

// Record kind discriminator values.
const (
	RecordKindMessage = "message"
	RecordKindMetrics = "metrics"
)

// ChecksumAlgo names the message checksum stored with every record.
const ChecksumAlgo = "xxhash64"

// Checksum returns the hex-encoded xxhash64 digest of data.
func Checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// ErrChecksumMismatch is returned when a stored payload does not match its
// recorded checksum.
var ErrChecksumMismatch = errors.New("message checksum mismatch")

// toMessageRecordMap converts a reassembled message to a map for Lode
// storage. Lode HiveLayout requires records as map[string]any.
//
// Message ids are stored as decimal strings: JSON numbers decode as
// float64, which cannot hold every uint64. When objectPath is set the
// payload lives in a sidecar object and is omitted from the record.
func toMessageRecordMap(m *types.Message, cfg Config, objectPath string) map[string]any {
	r := map[string]any{
		"record_kind":   RecordKindMessage,
		"message_id":    strconv.FormatUint(m.ID, 10),
		"packets":       int64(m.Packets),
		"redundant":     m.Redundant,
		"size_bytes":    int64(len(m.Data)),
		"checksum":      Checksum(m.Data),
		"checksum_algo": ChecksumAlgo,
		"started_at":    m.StartedAt.UTC().Format(time.RFC3339Nano),
		"completed_at":  m.CompletedAt.UTC().Format(time.RFC3339Nano),
		"duration_ms":   m.Duration().Milliseconds(),
		"record_type":   RecordKindMessage, // partition key
		"source":        cfg.Source,
		"day":           cfg.Day,
		"session_id":    cfg.SessionID,
	}
	if objectPath != "" {
		r["object_path"] = objectPath
	} else {
		r["data"] = m.Data
	}
	return r
}

// toMetricsRecordMap converts a metrics snapshot to a map for storage.
func toMetricsRecordMap(snap metrics.Snapshot, cfg Config, completedAt time.Time) map[string]any {
	return map[string]any{
		"record_kind":              RecordKindMetrics,
		"ts":                       completedAt.UTC().Format(time.RFC3339),
		"packets_encoded_total":    snap.PacketsEncoded,
		"messages_encoded_total":   snap.MessagesEncoded,
		"bytes_encoded_total":      snap.BytesEncoded,
		"packets_accepted_total":   snap.PacketsAccepted,
		"redundant_chunks_total":   snap.RedundantChunks,
		"messages_started_total":   snap.MessagesStarted,
		"messages_completed_total": snap.MessagesCompleted,
		"messages_failed_total":    snap.MessagesFailed,
		"bytes_reassembled_total":  snap.BytesReassembled,
		"peak_live_messages":       snap.PeakLiveMessages,
		"timeouts_total":           snap.Timeouts,
		"incompletes_total":        snap.Incompletes,
		"malformed_packets_total":  snap.MalformedPackets,
		"frame_errors_total":       snap.FrameErrors,
		"sink_write_success_total": snap.SinkWriteSuccess,
		"sink_write_failure_total": snap.SinkWriteFailure,
		"policy":                   snap.Policy,
		"storage_backend":          snap.StorageBackend,
		"record_type":              RecordKindMetrics, // partition key
		"source":                   cfg.Source,
		"day":                      cfg.Day,
		"session_id":               cfg.SessionID,
	}
}

// MessageRecord is a decoded message record as read back from a dataset.
type MessageRecord struct {
	MessageID   uint64
	Packets     int64
	Redundant   int64
	SizeBytes   int64
	Checksum    string
	ObjectPath  string
	Data        []byte
	StartedAt   time.Time
	CompletedAt time.Time
	SessionID   string
}

// parseMessageRecord decodes a record map produced by toMessageRecordMap
// after a JSONL round trip.
func parseMessageRecord(r map[string]any) (*MessageRecord, error) {
	id, err := strconv.ParseUint(toString(r["message_id"]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("message record: bad message_id: %w", err)
	}

	rec := &MessageRecord{
		MessageID:  id,
		Packets:    toInt64(r["packets"]),
		Redundant:  toInt64(r["redundant"]),
		SizeBytes:  toInt64(r["size_bytes"]),
		Checksum:   toString(r["checksum"]),
		ObjectPath: toString(r["object_path"]),
		SessionID:  toString(r["session_id"]),
	}
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, toString(r["started_at"])); err != nil {
		return nil, fmt.Errorf("message record %d: bad started_at: %w", id, err)
	}
	if rec.CompletedAt, err = time.Parse(time.RFC3339Nano, toString(r["completed_at"])); err != nil {
		return nil, fmt.Errorf("message record %d: bad completed_at: %w", id, err)
	}

	switch d := r["data"].(type) {
	case nil:
	case []byte:
		rec.Data = d
	case string:
		if rec.Data, err = base64.StdEncoding.DecodeString(d); err != nil {
			return nil, fmt.Errorf("message record %d: bad data: %w", id, err)
		}
	default:
		return nil, fmt.Errorf("message record %d: data has type %T", id, d)
	}
	return rec, nil
}

// Verify checks Data against the recorded checksum.
func (r *MessageRecord) Verify() error {
	if int64(len(r.Data)) != r.SizeBytes || Checksum(r.Data) != r.Checksum {
		return fmt.Errorf("%w: message %d", ErrChecksumMismatch, r.MessageID)
	}
	return nil
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 converts a decoded JSON number to int64.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
