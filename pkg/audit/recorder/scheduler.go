package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Start schedules the retry drain every RetryInterval and the consistency
// check every SyncInterval. The jobs stop when ctx is cancelled or Stop is
// called. In memory-only mode nothing is scheduled.
func (r *Recorder) Start(ctx context.Context) error {
	r.cronMu.Lock()
	defer r.cronMu.Unlock()

	if r.running {
		return nil
	}
	if r.store == nil {
		r.logger.Debug("memory-only recorder, background jobs not scheduled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(every(r.config.RetryInterval), func() {
		r.DrainRetryQueue(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule retry drain: %w", err)
	}
	if _, err := c.AddFunc(every(r.config.SyncInterval), func() {
		r.scheduledCheck(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule sync check: %w", err)
	}
	c.Start()
	r.cron = c
	r.running = true

	r.logger.Info("audit background jobs started",
		"retry_interval", r.config.RetryInterval,
		"sync_interval", r.config.SyncInterval,
		"auto_sync", r.config.AutoSync,
	)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts the background jobs and waits for running jobs to finish.
func (r *Recorder) Stop() {
	r.cronMu.Lock()
	if !r.running {
		r.cronMu.Unlock()
		return
	}
	c := r.cron
	r.running = false
	r.cronMu.Unlock()

	<-c.Stop().Done()
	r.logger.Info("audit background jobs stopped")
}

func (r *Recorder) scheduledCheck(ctx context.Context) {
	status, err := r.CheckSync(ctx)
	if err != nil {
		r.logger.Error("audit sync check failed", "error", err)
		return
	}
	if status.InSync {
		r.logger.Debug("audit cache and store in sync")
		return
	}

	r.logger.Warn("audit cache and store diverged",
		"missing_in_db", len(status.MissingInDB),
		"missing_in_memory", len(status.MissingInMemory),
		"pending_retries", status.PendingRetries,
	)
	if r.config.AutoSync {
		if _, err := r.Sync(ctx); err != nil {
			r.logger.Error("audit auto-sync failed", "error", err)
		}
	}
}

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}
