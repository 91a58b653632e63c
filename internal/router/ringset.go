package router

import "sync"

// ringSet is a fixed-capacity set of recently seen ids. When full, adding
// evicts the oldest entry.
type ringSet struct {
	mu    sync.Mutex
	slots []string
	next  int
	set   map[string]bool
}

func newRingSet(capacity int) *ringSet {
	return &ringSet{
		slots: make([]string, capacity),
		set:   make(map[string]bool, capacity),
	}
}

// Add inserts the id and reports whether it was new.
func (r *ringSet) Add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set[id] {
		return false
	}
	if old := r.slots[r.next]; old != "" {
		delete(r.set, old)
	}
	r.slots[r.next] = id
	r.next = (r.next + 1) % len(r.slots)
	r.set[id] = true
	return true
}
