package lode

import (
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/chunkwire/types"
)

// sharedFactory returns a factory that hands out the same store, so a
// writer and a reader see the same data.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func testConfig(sessionID string) Config {
	return Config{
		Dataset:   "chunkwire",
		Source:    "test-source",
		Day:       "2026-02-04",
		SessionID: sessionID,
	}
}

var testStart = time.Date(2026, 2, 4, 10, 0, 0, 0, time.UTC)

func testMessage(id uint64, data string) *types.Message {
	return &types.Message{
		ID:          id,
		Data:        []byte(data),
		Packets:     uint32(len(data)/8 + 1),
		StartedAt:   testStart,
		CompletedAt: testStart.Add(25 * time.Millisecond),
	}
}
