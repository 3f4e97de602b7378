package collab

import (
	"sort"
	"sync"
)

// RecordTracker remembers which underlying records (sections, courses) a run
// has already touched, so two actions in one aggregate run never pick the
// same record. One tracker is created per Execute call and shared by
// reference across that run's actions.
type RecordTracker struct {
	mu   sync.Mutex
	used map[string]struct{}
}

// NewRecordTracker returns an empty tracker.
func NewRecordTracker() *RecordTracker {
	return &RecordTracker{used: map[string]struct{}{}}
}

// MarkUsed claims a record id for this run. It returns false when the record
// was already claimed.
func (t *RecordTracker) MarkUsed(id string) bool {
	if t == nil || id == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, taken := t.used[id]; taken {
		return false
	}
	t.used[id] = struct{}{}
	return true
}

// Used reports whether a record id has been claimed.
func (t *RecordTracker) Used(id string) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, taken := t.used[id]
	return taken
}

// Claimed returns the claimed record ids in sorted order.
func (t *RecordTracker) Claimed() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.used))
	for id := range t.used {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns how many records the run has claimed.
func (t *RecordTracker) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.used)
}
