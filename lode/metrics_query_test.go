package lode

import (
	"errors"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/chunkwire/metrics"
)

func writeMetrics(t *testing.T, factory lode.StoreFactory, cfg Config, completed int64, at time.Time) {
	t.Helper()
	client, err := NewLodeClientWithFactory(cfg, factory)
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	snap := metrics.Snapshot{MessagesCompleted: completed, SessionID: cfg.SessionID}
	if err := client.WriteMetrics(t.Context(), snap, at); err != nil {
		t.Fatalf("WriteMetrics failed: %v", err)
	}
}

func TestQueryLatestMetrics_WriteAndRead(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	writeMetrics(t, factory, testConfig("sess-a"), 5, testStart)

	ds, err := NewReadDataset("chunkwire", factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}
	record, err := QueryLatestMetrics(t.Context(), ds, "", "")
	if err != nil {
		t.Fatalf("QueryLatestMetrics failed: %v", err)
	}
	if toInt64(record["messages_completed_total"]) != 5 {
		t.Errorf("messages_completed_total = %v, want 5", record["messages_completed_total"])
	}
}

func TestQueryLatestMetrics_LatestWins(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	writeMetrics(t, factory, testConfig("sess-a"), 1, testStart)
	writeMetrics(t, factory, testConfig("sess-b"), 2, testStart.Add(time.Minute))

	ds, err := NewReadDataset("chunkwire", factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}
	record, err := QueryLatestMetrics(t.Context(), ds, "", "")
	if err != nil {
		t.Fatalf("QueryLatestMetrics failed: %v", err)
	}
	if record["session_id"] != "sess-b" {
		t.Errorf("session_id = %v, want sess-b", record["session_id"])
	}
}

func TestQueryLatestMetrics_FilterBySession(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	writeMetrics(t, factory, testConfig("sess-1"), 1, testStart)
	writeMetrics(t, factory, testConfig("sess-10"), 10, testStart.Add(time.Minute))

	ds, err := NewReadDataset("chunkwire", factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}

	// sess-1 must not match the sess-10 partition.
	record, err := QueryLatestMetrics(t.Context(), ds, "sess-1", "")
	if err != nil {
		t.Fatalf("QueryLatestMetrics failed: %v", err)
	}
	if toInt64(record["messages_completed_total"]) != 1 {
		t.Errorf("got record for %v", record["session_id"])
	}

	if _, err := QueryLatestMetrics(t.Context(), ds, "sess-1", "other-source"); !errors.Is(err, ErrNoMetricsFound) {
		t.Errorf("source filter: err = %v, want ErrNoMetricsFound", err)
	}
}

func TestQueryLatestMetrics_NoMetrics(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	client, err := NewLodeClientWithFactory(testConfig("s"), factory)
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	if err := client.WriteMessages(t.Context(), nil); err != nil {
		t.Fatal(err)
	}

	ds, err := NewReadDataset("chunkwire", factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}
	if _, err := QueryLatestMetrics(t.Context(), ds, "", ""); !errors.Is(err, ErrNoMetricsFound) {
		t.Errorf("err = %v, want ErrNoMetricsFound", err)
	}
}
