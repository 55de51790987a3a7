package lode

import (
	"context"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/chunkwire/metrics"
	"github.com/justapithecus/chunkwire/types"
)

// partitionKeys is the Hive layout shared by writers and readers.
var partitionKeys = []string{"source", "day", "session_id", "record_type"}

// LodeClient is a real Lode-backed implementation of Client.
// Uses Lode's HiveLayout with partition keys: source/day/session_id/record_type.
type LodeClient struct {
	dataset lode.Dataset
	config  Config

	// storeFactory backs sidecar payload objects; the store is created
	// lazily on the first oversized message.
	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error

	mu sync.Mutex // serializes dataset writes
}

// NewLodeClient creates a new Lode client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a new Lode client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	ds, err := newDataset(cfg, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return newClient(ds, cfg, factory), nil
}

func newDataset(cfg Config, factory lode.StoreFactory) (lode.Dataset, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	return lode.NewDataset(
		lode.DatasetID(cfg.Dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

func newClient(ds lode.Dataset, cfg Config, factory lode.StoreFactory) *LodeClient {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	return &LodeClient{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
	}
}

// WriteMessages writes a batch of reassembled messages as one snapshot.
// Payloads above Config.ObjectThreshold are stored as sidecar objects first;
// the dataset record then carries their object path.
func (c *LodeClient) WriteMessages(ctx context.Context, msgs []*types.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	records := make([]any, 0, len(msgs))
	for _, m := range msgs {
		var objectPath string
		if c.config.ObjectThreshold > 0 && int64(len(m.Data)) > c.config.ObjectThreshold {
			path, err := c.putPayload(ctx, m)
			if err != nil {
				return WrapWriteError(err, "message payload")
			}
			objectPath = path
		}
		records = append(records, toMessageRecordMap(m, c.config, objectPath))
	}

	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, "messages")
	}
	return nil
}

// WriteMetrics writes one session metrics record.
func (c *LodeClient) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	record := toMetricsRecordMap(snap, c.config, completedAt)
	if _, err := c.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, "metrics")
	}
	return nil
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// Dataset returns the underlying dataset for readers sharing this client.
func (c *LodeClient) Dataset() lode.Dataset {
	return c.dataset
}

// Verify LodeClient implements Client.
var _ Client = (*LodeClient)(nil)
