package reassembly

import "time"

type retiredEntry struct {
	id uint64
	at time.Time
}

// Retired remembers ids of finished messages for at least ttl so that late
// packets for them are recognized as duplicates instead of starting a new
// message. Not safe for concurrent use.
type Retired struct {
	ttl   time.Duration
	ids   map[uint64]time.Time
	queue []retiredEntry
}

// NewRetired creates a Retired set keeping ids for ttl.
func NewRetired(ttl time.Duration) *Retired {
	return &Retired{
		ttl: ttl,
		ids: make(map[uint64]time.Time),
	}
}

// Add records id as finished at now.
func (r *Retired) Add(id uint64, now time.Time) {
	r.ids[id] = now
	r.queue = append(r.queue, retiredEntry{id: id, at: now})
}

// Contains reports whether id is remembered.
func (r *Retired) Contains(id uint64) bool {
	_, ok := r.ids[id]
	return ok
}

// Len returns the number of remembered ids.
func (r *Retired) Len() int {
	return len(r.ids)
}

// Prune forgets ids retired more than ttl before now and returns how many
// were dropped. Entries are retired in time order, so pruning stops at the
// first entry still inside the window.
func (r *Retired) Prune(now time.Time) int {
	n := 0
	for len(r.queue) > 0 {
		e := r.queue[0]
		if now.Sub(e.at) <= r.ttl {
			break
		}
		r.queue = r.queue[1:]
		// A re-added id keeps its newer timestamp.
		if at, ok := r.ids[e.id]; ok && at.Equal(e.at) {
			delete(r.ids, e.id)
			n++
		}
	}
	if len(r.queue) == 0 {
		r.queue = nil
	}
	return n
}
