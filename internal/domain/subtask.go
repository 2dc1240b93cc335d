package domain

import (
	"time"

	"github.com/meshcompute/inference-marketplace/internal/money"
)

// SubtaskStatus is the state-machine status driven exclusively by the
// Assignment and Lifecycle engines.
type SubtaskStatus string

const (
	SubtaskStatusPending   SubtaskStatus = "pending"
	SubtaskStatusAssigned  SubtaskStatus = "assigned"
	SubtaskStatusExecuting SubtaskStatus = "executing"
	SubtaskStatusCompleted SubtaskStatus = "completed"
	SubtaskStatusFailed    SubtaskStatus = "failed"
)

// ExecutionPhase mirrors the Subtask.ExecutionState.Phase wire values.
type ExecutionPhase string

const (
	PhasePending   ExecutionPhase = "pending"
	PhaseExecuting ExecutionPhase = "executing"
	PhaseCompleted ExecutionPhase = "completed"
	PhaseFailed    ExecutionPhase = "failed"
)

// ExecutionState is the opaque-to-storage JSON blob carried on Subtask. It
// never embeds a Subtask reference, per the cyclic-reference avoidance rule.
type ExecutionState struct {
	Phase            ExecutionPhase `json:"phase"`
	Message          *string        `json:"message"`
	ProviderUserID   *string        `json:"providerUserId"`
	OnnxModelReady   *bool          `json:"onnxModelReady"`
	WebGPUPreferred  *bool          `json:"webGpuPreferred"`
	ExtendedMetadata map[string]any `json:"extendedMetadata"`
}

// Subtask is the independently schedulable unit of work executed by one
// provider device.
type Subtask struct {
	ID            string
	TaskID        string
	Status        SubtaskStatus

	AssignedProviderID *string
	AssignedDeviceID   *string

	ParametersJSON string
	ResultsJSON    *string

	Progress int

	CreatedAt   time.Time
	AssignedAt  *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time

	LastHeartbeat        *time.Time
	LastCommand          *time.Time
	NextHeartbeatDue      *time.Time

	RequiresReassignment  bool
	ReassignmentRequestedAt *time.Time

	FailureReason *string

	DurationSeconds *float64
	Cost            *money.Amount

	ExecutionState ExecutionState
}

// IsExecutable reports whether the subtask is in a status that accepts
// acknowledge/progress/complete/fail calls from its assigned provider.
func (s *Subtask) IsExecutable() bool {
	return s.Status == SubtaskStatusAssigned || s.Status == SubtaskStatusExecuting
}

// IsOfferable reports whether the subtask is eligible for the claim
// transition, independent of provider/task eligibility checks.
func (s *Subtask) IsOfferable() bool {
	return s.Status == SubtaskStatusPending ||
		(s.Status == SubtaskStatusFailed && s.RequiresReassignment)
}
