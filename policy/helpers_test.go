package policy_test

import (
	"fmt"
	"time"

	"github.com/justapithecus/chunkwire/types"
)

func testMessage(id uint64, size int) *types.Message {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &types.Message{
		ID:          id,
		Data:        []byte(fmt.Sprintf("%0*d", size, id)),
		Packets:     1,
		StartedAt:   start,
		CompletedAt: start.Add(time.Millisecond),
	}
}
