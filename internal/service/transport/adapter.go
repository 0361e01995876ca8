// Package transport defines the interface for real-time messaging transports
// that deliver step event forests and accept outbound steps.
package transport

import (
	"context"

	"ai-chat-transcript-service/internal/models"
)

// Snapshot is the full current event forest, stamped with the generation
// the transport was in when the forest was built.
type Snapshot struct {
	Generation uint64
	Forest     []models.StepEvent
}

// Handler receives updates from the transport.
type Handler interface {
	// OnSnapshot is called with the full current event forest on each update.
	OnSnapshot(snap Snapshot)

	// OnTransportError is called when the subscription fails to deliver.
	OnTransportError(err error)
}

// Adapter defines the interface for messaging transports (Kafka, in-memory).
type Adapter interface {
	// Start subscribes and begins delivering snapshots to h.
	Start(ctx context.Context, h Handler) error

	// Publish sends one outbound step. Fire-and-forget: no retry.
	Publish(ctx context.Context, ev models.StepEvent) error

	// Reset discards the current forest and moves the transport to
	// generation. Snapshots and steps from an earlier generation are never
	// stamped with the new one.
	Reset(ctx context.Context, generation uint64) error

	// Close ends the subscription and releases resources.
	Close() error
}
