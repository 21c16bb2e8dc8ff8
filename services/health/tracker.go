package health

import (
	"sync"
	"time"

	"github.com/upb/model-router/services/classify"
)

// Record is the advisory health of one model.
type Record struct {
	Healthy      bool              `json:"healthy"`
	LastUsedAt   *time.Time        `json:"last_used_at,omitempty"`
	LastCategory classify.Category `json:"last_category,omitempty"`
}

// Tracker keeps the most recent call outcome per model. It is safe for
// concurrent use; concurrent updates to the same model resolve last write wins.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// RecordSuccess marks id healthy and clears its last failure category
func (t *Tracker) RecordSuccess(id string) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[id] = Record{Healthy: true, LastUsedAt: &now}
}

// RecordFailure marks id unhealthy with the failure category
func (t *Tracker) RecordFailure(id string, category classify.Category) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[id] = Record{Healthy: false, LastUsedAt: &now, LastCategory: category}
}

// IsHealthy reports the last known health of id; unseen models are healthy
func (t *Tracker) IsHealthy(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.records[id]
	return !ok || r.Healthy
}

// Get returns the record for id, if one exists
func (t *Tracker) Get(id string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.records[id]
	return r, ok
}

// Snapshot returns a copy of every record
func (t *Tracker) Snapshot() map[string]Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Record, len(t.records))
	for id, r := range t.records {
		if r.LastUsedAt != nil {
			ts := *r.LastUsedAt
			r.LastUsedAt = &ts
		}
		out[id] = r
	}
	return out
}
