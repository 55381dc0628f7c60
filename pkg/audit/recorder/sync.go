package recorder

import (
	"context"
	"fmt"
	"time"

	"mercator-hq/agentgov/pkg/audit"
)

// syncWindow is the number of most recent events compared on each side. A
// smaller cache bound shrinks the window to the cache size.
const syncWindow = 100

// SyncStatus reports divergence between the cache and the store.
type SyncStatus struct {
	InSync          bool      `json:"in_sync"`
	MissingInDB     []string  `json:"missing_in_db"`
	MissingInMemory []string  `json:"missing_in_memory"`
	PendingRetries  int       `json:"pending_retries"`
	CheckedAt       time.Time `json:"checked_at"`
}

// SyncResult reports what a reconciliation did.
type SyncResult struct {
	Drained DrainResult `json:"drained"`
	Pushed  int         `json:"pushed"`
	Pulled  int         `json:"pulled"`
	Status  *SyncStatus `json:"status"`
}

type divergence struct {
	missingInDB     []*audit.Event
	missingInMemory []*audit.Event
}

// CheckSync compares the most recent cached events against the most recent
// stored events by id. In memory-only mode the recorder is always in sync.
func (r *Recorder) CheckSync(ctx context.Context) (*SyncStatus, error) {
	d, err := r.diff(ctx)
	if err != nil {
		return nil, err
	}
	return r.status(d), nil
}

// Sync drains the retry queue, then copies events missing from the store into
// it and events missing from the cache into their timestamp position.
func (r *Recorder) Sync(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{}
	if r.store == nil {
		result.Status = r.status(divergence{})
		return result, nil
	}

	result.Drained = r.DrainRetryQueue(ctx)

	d, err := r.diff(ctx)
	if err != nil {
		return nil, err
	}

	for _, e := range d.missingInDB {
		if err := r.store.Save(ctx, e); err != nil {
			r.logger.Error("failed to push cached event to store",
				"event_id", e.EventID,
				"error", err,
			)
			continue
		}
		result.Pushed++
	}

	r.mu.Lock()
	for _, e := range d.missingInMemory {
		if r.admitLocked(e) {
			result.Pulled++
		}
	}
	n := len(r.cache)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetAuditCacheSize(n)
		r.metrics.RecordAuditSync(result.Pushed, result.Pulled)
	}

	if result.Status, err = r.CheckSync(ctx); err != nil {
		return nil, err
	}

	r.logger.Info("audit sync complete",
		"pushed", result.Pushed,
		"pulled", result.Pulled,
		"persisted_retries", result.Drained.Persisted,
		"in_sync", result.Status.InSync,
	)
	return result, nil
}

// diff computes the events present on one side only. When a side holds a full
// window, events older than that window are not compared against it.
func (r *Recorder) diff(ctx context.Context) (divergence, error) {
	var d divergence
	if r.store == nil {
		return d, nil
	}

	window := r.compareWindow()
	stored, err := r.store.Query(ctx, &audit.Filter{Order: audit.OrderDesc, Limit: window})
	if err != nil {
		return d, fmt.Errorf("failed to read recent stored events: %w", err)
	}

	r.mu.Lock()
	start := max(0, len(r.cache)-window)
	cached := make([]*audit.Event, 0, len(r.cache)-start)
	for _, e := range r.cache[start:] {
		cached = append(cached, e.Clone())
	}
	r.mu.Unlock()

	storedIDs := make(map[string]struct{}, len(stored))
	for _, e := range stored {
		storedIDs[e.EventID] = struct{}{}
	}
	cachedIDs := make(map[string]struct{}, len(cached))
	for _, e := range cached {
		cachedIDs[e.EventID] = struct{}{}
	}

	var storedOldest, cachedOldest *audit.Event
	if len(stored) == window {
		storedOldest = stored[len(stored)-1]
	}
	if len(cached) == window {
		cachedOldest = cached[0]
	}

	for _, e := range cached {
		if _, ok := storedIDs[e.EventID]; ok {
			continue
		}
		if storedOldest != nil && audit.Less(e, storedOldest) {
			continue
		}
		d.missingInDB = append(d.missingInDB, e)
	}
	for _, e := range stored {
		if _, ok := cachedIDs[e.EventID]; ok {
			continue
		}
		if cachedOldest != nil && audit.Less(e, cachedOldest) {
			continue
		}
		d.missingInMemory = append(d.missingInMemory, e)
	}
	return d, nil
}

// compareWindow never exceeds the cache bound, since older stored events
// have been evicted from the cache legitimately.
func (r *Recorder) compareWindow() int {
	if r.config.MaxEvents > 0 && r.config.MaxEvents < syncWindow {
		return r.config.MaxEvents
	}
	return syncWindow
}

func (r *Recorder) status(d divergence) *SyncStatus {
	r.mu.Lock()
	pending := len(r.retries)
	r.mu.Unlock()

	s := &SyncStatus{
		MissingInDB:     ids(d.missingInDB),
		MissingInMemory: ids(d.missingInMemory),
		PendingRetries:  pending,
		CheckedAt:       r.clock.Now(),
	}
	s.InSync = len(s.MissingInDB) == 0 && len(s.MissingInMemory) == 0 && pending == 0
	return s
}

func ids(events []*audit.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventID
	}
	return out
}
