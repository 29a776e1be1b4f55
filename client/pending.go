package client

import (
	"sync"
	"time"

	"github.com/luxfi/validation/utils/linked"
)

// pendingEntry is one piece of content awaiting quorum formation, per
// SPEC_FULL.md §4.3.
type pendingEntry struct {
	idVotation string
	topic      string
	content    string
	deadline   time.Time
}

// pendingQueue is the mutex-guarded, insertion-ordered set of pending
// entries described in SPEC_FULL.md §5: the guard is held only for the
// duration of one iteration step, never across a publish.
type pendingQueue struct {
	mu      sync.Mutex
	entries *linked.Hashmap[string, pendingEntry]
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{entries: linked.NewHashmap[string, pendingEntry]()}
}

func (q *pendingQueue) add(e pendingEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries.Put(e.idVotation, e)
}

func (q *pendingQueue) remove(idVotation string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries.Delete(idVotation)
}

func (q *pendingQueue) has(idVotation string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries.Get(idVotation)
	return ok
}

// snapshot copies out every entry in insertion order, so the caller can act
// on each without holding the lock across network or store I/O.
func (q *pendingQueue) snapshot() []pendingEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]pendingEntry, 0, q.entries.Len())
	q.entries.Iterate(func(_ string, e pendingEntry) bool {
		out = append(out, e)
		return true
	})
	return out
}
