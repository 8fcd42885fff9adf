package monitor

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/roach88/tracemon/internal/ir"
)

// Knowledge is the knowledge vector: the last known verdict of every
// @agent(...) sub-formula, local or remote, keyed by formula id.
//
// Thread-safety: all methods are safe for concurrent use. Remote syncs
// merge into it while monitors look entries up.
type Knowledge struct {
	mu      sync.RWMutex
	entries map[string]ir.KVEntry
	order   []string
}

// NewKnowledge creates an empty knowledge vector.
func NewKnowledge() *Knowledge {
	return &Knowledge{entries: make(map[string]ir.KVEntry)}
}

// Add inserts e unless an entry with the same fid exists.
func (k *Knowledge) Add(e ir.KVEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.entries[e.FID]; ok {
		return
	}
	k.entries[e.FID] = e
	k.order = append(k.order, e.FID)
}

// Update stores e if it is not older than the current entry.
// It reports whether the vector changed.
func (k *Knowledge) Update(e ir.KVEntry) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	cur, ok := k.entries[e.FID]
	if !ok {
		k.entries[e.FID] = e
		k.order = append(k.order, e.FID)
		return true
	}
	if e.Timestamp < cur.Timestamp {
		return false
	}
	k.entries[e.FID] = e
	return cur != e
}

// Merge applies Update to every entry and returns how many changed.
func (k *Knowledge) Merge(entries []ir.KVEntry) int {
	n := 0
	for _, e := range entries {
		if k.Update(e) {
			n++
		}
	}
	return n
}

// Lookup implements formula.Knowledge.
func (k *Knowledge) Lookup(fid string) (ir.Verdict, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.entries[fid]
	return e.Value, ok
}

// Entry returns the entry stored under fid.
func (k *Knowledge) Entry(fid string) (ir.KVEntry, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.entries[fid]
	return e, ok
}

// Entries returns the entries in insertion order.
func (k *Knowledge) Entries() []ir.KVEntry {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]ir.KVEntry, 0, len(k.order))
	for _, fid := range k.order {
		out = append(out, k.entries[fid])
	}
	return out
}

// MarshalJSON encodes the entries as a JSON array.
func (k *Knowledge) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Entries())
}

// ParseKnowledge decodes a JSON array produced by MarshalJSON.
func ParseKnowledge(data []byte) ([]ir.KVEntry, error) {
	var entries []ir.KVEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse knowledge vector: %w", err)
	}
	for i, e := range entries {
		if e.FID == "" {
			return nil, fmt.Errorf("parse knowledge vector: entry %d has no fid", i)
		}
	}
	return entries, nil
}
