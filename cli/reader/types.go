// Package reader turns stored session records into CLI payloads.
package reader

// SessionStats is the stats command payload: the latest metrics record of
// one receive session.
type SessionStats struct {
	SessionID         string `json:"session_id" yaml:"session_id"`
	Source            string `json:"source" yaml:"source"`
	Policy            string `json:"policy" yaml:"policy"`
	StorageBackend    string `json:"storage_backend" yaml:"storage_backend"`
	Timestamp         string `json:"ts" yaml:"ts"`
	PacketsAccepted   int64  `json:"packets_accepted" yaml:"packets_accepted"`
	RedundantChunks   int64  `json:"redundant_chunks" yaml:"redundant_chunks"`
	MessagesCompleted int64  `json:"messages_completed" yaml:"messages_completed"`
	MessagesFailed    int64  `json:"messages_failed" yaml:"messages_failed"`
	BytesReassembled  int64  `json:"bytes_reassembled" yaml:"bytes_reassembled"`
	PeakLiveMessages  int64  `json:"peak_live_messages" yaml:"peak_live_messages"`
	Timeouts          int64  `json:"timeouts" yaml:"timeouts"`
	Incompletes       int64  `json:"incompletes" yaml:"incompletes"`
	MalformedPackets  int64  `json:"malformed_packets" yaml:"malformed_packets"`
	FrameErrors       int64  `json:"frame_errors" yaml:"frame_errors"`
	SinkWriteSuccess  int64  `json:"sink_write_success" yaml:"sink_write_success"`
	SinkWriteFailure  int64  `json:"sink_write_failure" yaml:"sink_write_failure"`
}
