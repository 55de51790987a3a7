package reader

import (
	"context"
	"errors"

	"github.com/justapithecus/lode/lode"

	chunklode "github.com/justapithecus/chunkwire/lode"
)

// ReadSessionStats loads the latest metrics record matching sessionID and
// source (either may be empty) and parses it.
func ReadSessionStats(ctx context.Context, ds lode.Dataset, sessionID, source string) (*SessionStats, error) {
	record, err := chunklode.QueryLatestMetrics(ctx, ds, sessionID, source)
	if err != nil {
		return nil, err
	}
	return ParseMetricsRecord(record)
}

// ParseMetricsRecord converts a raw Lode metrics record to SessionStats.
func ParseMetricsRecord(record map[string]any) (*SessionStats, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	stats := &SessionStats{
		SessionID:      toString(record["session_id"]),
		Source:         toString(record["source"]),
		Policy:         toString(record["policy"]),
		StorageBackend: toString(record["storage_backend"]),
		Timestamp:      toString(record["ts"]),

		PacketsAccepted:   toInt64(record["packets_accepted_total"]),
		RedundantChunks:   toInt64(record["redundant_chunks_total"]),
		MessagesCompleted: toInt64(record["messages_completed_total"]),
		MessagesFailed:    toInt64(record["messages_failed_total"]),
		BytesReassembled:  toInt64(record["bytes_reassembled_total"]),
		PeakLiveMessages:  toInt64(record["peak_live_messages"]),

		Timeouts:         toInt64(record["timeouts_total"]),
		Incompletes:      toInt64(record["incompletes_total"]),
		MalformedPackets: toInt64(record["malformed_packets_total"]),
		FrameErrors:      toInt64(record["frame_errors_total"]),

		SinkWriteSuccess: toInt64(record["sink_write_success_total"]),
		SinkWriteFailure: toInt64(record["sink_write_failure_total"]),
	}

	// The write path always populates these; a missing value means a
	// malformed record.
	switch {
	case stats.Timestamp == "":
		return nil, errors.New("metrics record missing required field: ts")
	case stats.SessionID == "":
		return nil, errors.New("metrics record missing required field: session_id")
	case stats.Policy == "":
		return nil, errors.New("metrics record missing required field: policy")
	case stats.StorageBackend == "":
		return nil, errors.New("metrics record missing required field: storage_backend")
	}

	return stats, nil
}

// toInt64 converts a value to int64, handling float64 from JSON and int64 from direct writes.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
