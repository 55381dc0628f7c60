// Package notify delivers audit events to external sinks.
//
// Webhook POSTs each event as JSON with X-Audit-Event-Id and
// X-Audit-Event-Type headers. Every attempt is bounded by Timeout, and server
// errors, 408, 429 and network failures are retried up to MaxRetries times
// with exponential backoff. Delivery never affects the governance decision or
// audit durability: Notify returns immediately and failures are passed to the
// ErrorHandler.
//
//	wh, err := notify.NewWebhook(notify.ConfigFrom(cfg.Webhook),
//	    notify.WithLogger(logger),
//	    notify.WithErrorHandler(func(e *audit.Event, err error) {
//	        logger.Warn("event not delivered", "event_id", e.EventID, "error", err)
//	    }),
//	)
//	rec := recorder.New(store, recCfg, recorder.WithNotifier(wh))
package notify
