package engine

import (
	"sort"
	"sync"

	"badgekit/core"
)

// Tracker is the set of individuals awaiting re-evaluation.
type Tracker struct {
	mu      sync.Mutex
	pending map[core.IndividualID]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{pending: make(map[core.IndividualID]struct{})}
}

// Mark inserts id and reports whether it was not already pending.
func (t *Tracker) Mark(id core.IndividualID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[id]; ok {
		return false
	}
	t.pending[id] = struct{}{}
	return true
}

// Drain returns the pending ids in sorted order and empties the set.
func (t *Tracker) Drain() []core.IndividualID {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[core.IndividualID]struct{})
	t.mu.Unlock()

	ids := make([]core.IndividualID, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
