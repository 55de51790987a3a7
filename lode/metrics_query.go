package lode

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"
)

// ErrNoMetricsFound is returned when no metrics records exist in the dataset.
var ErrNoMetricsFound = errors.New("no metrics records found")

// QueryLatestMetrics finds and reads the most recent metrics record.
// Filters by sessionID and source if non-empty.
// Returns the raw record map or ErrNoMetricsFound if none exist.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, sessionID, source string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	// Snapshots are ordered by creation time; walk latest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotHasRecordType(snap, RecordKindMetrics) ||
			!snapshotMatchesFilter(snap, "session_id", sessionID) ||
			!snapshotMatchesFilter(snap, "source", source) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields are authoritative.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindMetrics {
				continue
			}
			if sessionID != "" && toString(record["session_id"]) != sessionID {
				continue
			}
			if source != "" && toString(record["source"]) != source {
				continue
			}
			return record, nil
		}
	}

	return nil, ErrNoMetricsFound
}

// ReadMessages reads every message record of a session in write order.
// Sidecar payloads are fetched through factory, and each payload is
// verified against its checksum.
func ReadMessages(ctx context.Context, ds lode.Dataset, factory lode.StoreFactory, sessionID string) ([]*MessageRecord, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	var store lode.Store
	var out []*MessageRecord
	seen := make(map[uint64]struct{})
	for _, snap := range snapshots {
		if !snapshotHasRecordType(snap, RecordKindMessage) ||
			!snapshotMatchesFilter(snap, "session_id", sessionID) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindMessage {
				continue
			}
			if sessionID != "" && toString(record["session_id"]) != sessionID {
				continue
			}
			rec, err := parseMessageRecord(record)
			if err != nil {
				return nil, err
			}
			if rec.ObjectPath != "" {
				if store == nil {
					if store, err = factory(); err != nil {
						return nil, WrapInitError(err, "objects")
					}
				}
				if rec.Data, err = readObject(ctx, store, rec.ObjectPath); err != nil {
					return nil, WrapReadError(err, rec.ObjectPath)
				}
			}
			if _, dup := seen[rec.MessageID]; dup {
				continue
			}
			if err := rec.Verify(); err != nil {
				return nil, err
			}
			seen[rec.MessageID] = struct{}{}
			out = append(out, rec)
		}
	}
	return out, nil
}
