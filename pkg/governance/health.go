package governance

import (
	"context"
	"fmt"

	"mercator-hq/agentgov/pkg/audit"
	"mercator-hq/agentgov/pkg/telemetry/health"
)

// RegisterHealthChecks adds the service's readiness checks to c.
func (s *Service) RegisterHealthChecks(c *health.Checker) {
	c.Register("governance", func(context.Context) error {
		return s.ready()
	})
	c.Register("audit_store", func(ctx context.Context) error {
		s.mu.RLock()
		store, initialized := s.store, s.initialized
		s.mu.RUnlock()
		if !initialized {
			return ErrNotInitialized
		}
		if store == nil {
			return nil
		}
		if _, err := store.Count(ctx, &audit.Filter{}); err != nil {
			return fmt.Errorf("audit store unreachable: %w", err)
		}
		return nil
	})
	c.Register("audit_retry_queue", func(context.Context) error {
		status, err := s.RetryQueueStatus()
		if err != nil {
			return err
		}
		if limit := s.config.Audit.RetryQueueAlert; limit > 0 && status.Pending >= limit {
			return fmt.Errorf("%d audit events awaiting persistence", status.Pending)
		}
		return nil
	})
}
