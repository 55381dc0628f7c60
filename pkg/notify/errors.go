package notify

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when delivering through a closed webhook.
var ErrClosed = errors.New("webhook closed")

// DeliveryError reports an event the webhook could not deliver.
type DeliveryError struct {
	EventID    string // Event that failed
	EventType  string // Type of the event
	Attempts   int    // Attempts made, including the first
	StatusCode int    // Last HTTP status, 0 when no response was received
	Cause      error  // Underlying error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webhook delivery failed [event_id=%s, attempts=%d, status=%d]: %v", e.EventID, e.Attempts, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("webhook delivery failed [event_id=%s, attempts=%d]: %v", e.EventID, e.Attempts, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *DeliveryError) Unwrap() error {
	return e.Cause
}
