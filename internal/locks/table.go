package locks

import "sync"

// Table enforces single-trade-at-a-time admission per venue. One busy
// flag per configured venue, all mutations under one mutex so that two
// workers can never observe "free" simultaneously.
type Table struct {
	mu   sync.Mutex
	busy map[string]bool
}

// NewTable creates a lock table for the given venues. Venues not listed
// here can never be acquired.
func NewTable(venues []string) *Table {
	busy := make(map[string]bool, len(venues))
	for _, v := range venues {
		busy[v] = false
	}
	return &Table{busy: busy}
}

// TryAcquire atomically claims a venue. Returns false if the venue is
// already claimed or unknown.
func (t *Table) TryAcquire(venue string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	taken, known := t.busy[venue]
	if !known || taken {
		return false
	}
	t.busy[venue] = true
	return true
}

// Release frees a venue. Releasing a free or unknown venue is a no-op.
func (t *Table) Release(venue string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, known := t.busy[venue]; known {
		t.busy[venue] = false
	}
}

// Busy reports whether a worker currently owns the venue. Unknown venues
// report busy so callers never submit against them.
func (t *Table) Busy(venue string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	taken, known := t.busy[venue]
	return !known || taken
}
