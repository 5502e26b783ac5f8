package safety

import (
	"sync"
	"time"
)

// DefaultMaxRecords bounds in-memory change history
const DefaultMaxRecords = 500

// History is a bounded, newest-last log of change records
type History struct {
	mu      sync.Mutex
	records []*ChangeRecord
	byID    map[string]*ChangeRecord
	max     int
}

// NewHistory creates a history bounded to max records; max <= 0 uses
// DefaultMaxRecords
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxRecords
	}
	return &History{
		byID: make(map[string]*ChangeRecord),
		max:  max,
	}
}

// Add appends a record, evicting the oldest entries past the bound
func (h *History) Add(record *ChangeRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, record)
	h.byID[record.ID] = record

	for len(h.records) > h.max {
		evicted := h.records[0]
		h.records = h.records[1:]
		delete(h.byID, evicted.ID)
	}
}

// Get returns the record with the given ID, or nil
func (h *History) Get(id string) *ChangeRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.byID[id]
}

// All returns a copy of the record list, oldest first
func (h *History) All() []*ChangeRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*ChangeRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Len returns the number of retained records
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// RollbackCandidates returns records that still have an unexecuted
// rollback plan, newest first
func (h *History) RollbackCandidates() []*ChangeRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*ChangeRecord
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].Rollbackable() {
			out = append(out, h.records[i])
		}
	}
	return out
}

// PruneOlderThan drops records older than the given age and returns how
// many were removed
func (h *History) PruneOlderThan(age time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-age)
	kept := h.records[:0]
	pruned := 0
	for _, record := range h.records {
		if record.Timestamp.Before(cutoff) {
			delete(h.byID, record.ID)
			pruned++
			continue
		}
		kept = append(kept, record)
	}
	h.records = kept
	return pruned
}

// Restore replaces the history contents, used when loading a journal
func (h *History) Restore(records []*ChangeRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = h.records[:0]
	h.byID = make(map[string]*ChangeRecord, len(records))
	for _, record := range records {
		h.records = append(h.records, record)
		h.byID[record.ID] = record
	}
	for len(h.records) > h.max {
		evicted := h.records[0]
		h.records = h.records[1:]
		delete(h.byID, evicted.ID)
	}
}
