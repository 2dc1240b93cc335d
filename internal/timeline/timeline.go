// Package timeline appends audit events for a subtask within an already
// open transaction. There is no standalone commit: the caller's
// transaction owns the write.
package timeline

import (
	"context"

	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/storage"
)

// Log appends TimelineEvents.
type Log struct{}

// New returns a Log. It carries no state; the open Tx is passed to Append.
func New() *Log {
	return &Log{}
}

// Append records one event against subtaskID inside tx. Metadata keys use a
// stable snake_case convention (see the callers in internal/lifecycle and
// internal/assignment for the per-event-type shapes).
func (l *Log) Append(ctx context.Context, tx storage.TimelineStore, subtaskID string, eventType domain.TimelineEventType, message string, metadata map[string]any) error {
	_, err := tx.AppendTimelineEvent(ctx, domain.TimelineEvent{
		SubtaskID: subtaskID,
		EventType: eventType,
		Message:   message,
		Metadata:  metadata,
	})
	return err
}
