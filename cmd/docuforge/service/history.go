package service

import (
	"sync"

	"github.com/docuforge/docuforge/common/models"
)

// HistoryRing is a bounded FIFO of finished operations. When full, the
// oldest entry is evicted on insert.
type HistoryRing struct {
	mu       sync.Mutex
	capacity int
	entries  []models.HistoryEntry
}

// NewHistoryRing creates a ring with the given capacity.
func NewHistoryRing(capacity int) *HistoryRing {
	return &HistoryRing{
		capacity: capacity,
		entries:  make([]models.HistoryEntry, 0, capacity),
	}
}

// Add appends an entry, evicting the oldest when at capacity.
func (h *HistoryRing) Add(entry models.HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) == h.capacity {
		h.entries = append(h.entries[1:], entry)
		return
	}
	h.entries = append(h.entries, entry)
}

// Entries returns a copy of the ring, oldest first.
func (h *HistoryRing) Entries() []models.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]models.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of stored entries.
func (h *HistoryRing) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
