package lode

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/chunkwire/types"
)

// putPayload writes a message payload to the store as a sidecar object.
// Objects land at Hive-partitioned paths under objects/, bypassing Dataset
// segment/manifest machinery entirely.
func (c *LodeClient) putPayload(ctx context.Context, m *types.Message) (string, error) {
	store, err := c.getOrCreateStore()
	if err != nil {
		return "", fmt.Errorf("object store init failed: %w", err)
	}

	path := c.buildObjectPath(m.ID)
	if err := store.Put(ctx, path, bytes.NewReader(m.Data)); err != nil {
		return "", err
	}
	return path, nil
}

// getOrCreateStore lazily initializes the Store from the factory.
func (c *LodeClient) getOrCreateStore() (lode.Store, error) {
	c.storeOnce.Do(func() {
		c.store, c.storeErr = c.storeFactory()
	})
	return c.store, c.storeErr
}

// buildObjectPath computes the Hive-partitioned path for a payload object.
// Format: datasets/<dataset>/partitions/source=<s>/day=<d>/session_id=<id>/objects/<message_id>.bin
func (c *LodeClient) buildObjectPath(messageID uint64) string {
	return fmt.Sprintf("datasets/%s/partitions/source=%s/day=%s/session_id=%s/objects/%020d.bin",
		c.config.Dataset,
		c.config.Source,
		c.config.Day,
		c.config.SessionID,
		messageID,
	)
}

// readObject loads a sidecar payload from store.
func readObject(ctx context.Context, store lode.Store, path string) ([]byte, error) {
	rc, err := store.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
