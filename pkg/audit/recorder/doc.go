// Package recorder is the write side of the audit log.
//
// # Write-through cache
//
// Log builds an event (generated id, clock timestamp) and saves it to the
// durable store synchronously. Only after the store accepts it does the event
// enter the in-memory cache, which is kept in ascending timestamp order and
// bounded by MaxEvents. A rejected write goes to the retry queue instead and
// Log still returns the event.
//
//	rec := recorder.New(store, recorder.ConfigFrom(cfg.Audit),
//	    recorder.WithLogger(logger),
//	    recorder.WithMetrics(collector),
//	)
//	if err := rec.Start(ctx); err != nil {
//	    return err
//	}
//	defer rec.Stop()
//
//	event := rec.Log(ctx, audit.LogParams{
//	    EventType: audit.EventActionEvaluated,
//	    Action:    "delete_records",
//	    Outcome:   audit.OutcomeFailure,
//	})
//
// # Retries
//
// DrainRetryQueue retries every queued write once. Events that still fail
// after MaxRetryAttempts are admitted to the cache without being persisted.
// This is logged at ERROR and counted in the forced admissions metric.
//
// # Reconciliation
//
// CheckSync compares the newest 100 cached events with the newest 100 stored
// events. Sync drains the retry queue, pushes events the store is missing and
// pulls events the cache is missing into their timestamp position.
//
// Without a store the recorder runs in memory-only mode: queries scan the
// cache and the cache is always in sync.
package recorder
