// Package eventstore persists pipeline lifecycle events for audit and
// inspection of past runs.
package eventstore

import (
	"context"
	"time"
)

// Event is one recorded pipeline lifecycle event.
type Event struct {
	ID        int64             `json:"id"`
	RunID     string            `json:"run_id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   []byte            `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Store is the persistence interface for pipeline events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error

	// GetByRunID retrieves all events for a specific run, in append order.
	GetByRunID(ctx context.Context, runID string) ([]Event, error)

	// Close releases the underlying resources.
	Close() error
}
