package domain

import "time"

// TimelineEventType enumerates the event types the core ever appends.
type TimelineEventType string

const (
	EventAssignment               TimelineEventType = "assignment"
	EventProgress                 TimelineEventType = "progress"
	EventExecutionAcknowledged    TimelineEventType = "execution-acknowledged"
	EventCompletion               TimelineEventType = "completion"
	EventFailure                  TimelineEventType = "failure"
	EventReassignmentRequested    TimelineEventType = "reassignment-requested"
	EventDeviceDisconnectFailure  TimelineEventType = "device-disconnection-failure"
	EventTaskFailed               TimelineEventType = "task-failed"
)

// TimelineEvent is an append-only audit row owned by a Subtask.
type TimelineEvent struct {
	ID        string
	SubtaskID string
	EventType TimelineEventType
	Message   string
	Metadata  map[string]any
	CreatedAt time.Time
}
