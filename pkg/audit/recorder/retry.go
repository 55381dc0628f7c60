package recorder

import (
	"context"
	"time"
)

// DrainResult summarises one pass over the retry queue.
type DrainResult struct {
	Persisted     int `json:"persisted"`
	Requeued      int `json:"requeued"`
	ForceAdmitted int `json:"force_admitted"`
}

// RetryEntry describes one queued write.
type RetryEntry struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"last_error"`
	FirstAttempt time.Time `json:"first_attempt"`
}

// RetryStatus is a snapshot of the retry queue.
type RetryStatus struct {
	Pending     int          `json:"pending"`
	MaxAttempts int          `json:"max_attempts"`
	Entries     []RetryEntry `json:"entries"`
}

// RetryQueueStatus returns a snapshot of the retry queue.
func (r *Recorder) RetryQueueStatus() RetryStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := RetryStatus{
		Pending:     len(r.retries),
		MaxAttempts: r.config.MaxRetryAttempts,
		Entries:     make([]RetryEntry, 0, len(r.retries)),
	}
	for _, fw := range r.retries {
		entry := RetryEntry{
			EventID:      fw.Event.EventID,
			EventType:    fw.Event.EventType,
			Attempts:     fw.Attempts,
			FirstAttempt: fw.FirstAttempt,
		}
		if fw.LastError != nil {
			entry.LastError = fw.LastError.Error()
		}
		status.Entries = append(status.Entries, entry)
	}
	return status
}

// DrainRetryQueue retries every queued write once. Persisted events are
// admitted to the cache. Entries that reach MaxRetryAttempts are admitted
// without being persisted and logged at ERROR.
func (r *Recorder) DrainRetryQueue(ctx context.Context) DrainResult {
	var result DrainResult
	if r.store == nil {
		return result
	}

	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	r.mu.Lock()
	pending := r.retries
	r.retries = nil
	r.mu.Unlock()

	if len(pending) == 0 {
		return result
	}

	requeue := pending[:0]
	for _, fw := range pending {
		err := r.store.Save(ctx, fw.Event)
		if err == nil {
			r.recordWrite(fw.Event.EventType, true)
			r.admit(fw.Event)
			result.Persisted++
			r.logger.Info("audit write recovered",
				"event_id", fw.Event.EventID,
				"retry_attempts", fw.Attempts,
			)
			continue
		}

		r.recordWrite(fw.Event.EventType, false)
		fw.Attempts++
		fw.LastError = err

		if fw.Attempts >= r.config.MaxRetryAttempts {
			r.admit(fw.Event)
			result.ForceAdmitted++
			if r.metrics != nil {
				r.metrics.RecordAuditForcedAdmission()
			}
			r.logger.Error("audit event not persisted after exhausting retries; cached in memory only",
				"event_id", fw.Event.EventID,
				"event_type", fw.Event.EventType,
				"retry_attempts", fw.Attempts,
				"first_attempt", fw.FirstAttempt,
				"error", err,
			)
			continue
		}

		requeue = append(requeue, fw)
	}
	result.Requeued = len(requeue)

	r.mu.Lock()
	r.retries = append(requeue, r.retries...)
	n := len(r.retries)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetAuditRetryQueue(n)
	}
	if result.Requeued > 0 {
		r.logger.Warn("audit writes still failing",
			"requeued", result.Requeued,
			"persisted", result.Persisted,
		)
	}
	return result
}
