// Package assignment implements the Assignment Engine: it chooses the next
// eligible Subtask for a requesting provider and claims it in one
// serializable transaction.
package assignment

import (
	"context"
	"time"

	"github.com/meshcompute/inference-marketplace/internal/apperr"
	"github.com/meshcompute/inference-marketplace/internal/domain"
	core "github.com/meshcompute/inference-marketplace/internal/core/service"
	"github.com/meshcompute/inference-marketplace/internal/storage"
	"github.com/meshcompute/inference-marketplace/internal/timeline"
	"github.com/meshcompute/inference-marketplace/pkg/logger"
)

// HeartbeatInterval is the duration added to now for next-heartbeat-due on
// claim, the teacher's 5-minute default from the spec's configuration list.
const HeartbeatInterval = 5 * time.Minute

// Config carries the knobs that affect claim eligibility and retry budget.
type Config struct {
	SelfAssignAllowedInDebug bool
	MaxSerializationRetries  int
}

// Engine claims Pending (or reassignment-eligible Failed) subtasks on
// behalf of a connecting provider device.
type Engine struct {
	store   storage.Store
	log     *timeline.Log
	logger  *logger.Logger
	cfg     Config
}

// New constructs an Engine.
func New(store storage.Store, log *timeline.Log, lg *logger.Logger, cfg Config) *Engine {
	if cfg.MaxSerializationRetries <= 0 {
		cfg.MaxSerializationRetries = 3
	}
	return &Engine{store: store, log: log, logger: lg, cfg: cfg}
}

// Assignment is the result of a successful claim.
type Assignment struct {
	Subtask domain.Subtask
	Task    domain.Task
}

// Offer persists the connecting device's capabilities and then attempts to
// claim the next eligible subtask for it, the entry point the Dispatch
// Channel calls on JoinAvailableTasks.
func (e *Engine) Offer(ctx context.Context, providerID, deviceID string, caps domain.DeviceCapabilities) (*Assignment, error) {
	if _, err := e.store.UpsertDevice(ctx, domain.Device{
		ID:                  deviceID,
		OwnerProviderUserID: providerID,
		Capabilities:        caps,
		LastSeen:            time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	return e.TryOfferNext(ctx, providerID, deviceID)
}

// TryOfferNext implements §4.4's tryOfferNext(providerId, deviceId).
func (e *Engine) TryOfferNext(ctx context.Context, providerID, deviceID string) (*Assignment, error) {
	provider, err := e.store.GetUser(ctx, providerID)
	if err != nil || !provider.Active {
		return nil, nil
	}

	policy := core.RetryPolicy{
		Attempts:       e.cfg.MaxSerializationRetries,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		Multiplier:     2,
		Jitter:         10 * time.Millisecond,
	}

	var result *Assignment
	err = core.Retry(ctx, policy, func() error {
		a, aErr := e.tryClaimOnce(ctx, providerID, deviceID)
		if aErr == nil {
			result = a
			return nil
		}
		if apperr.Is(aErr, apperr.KindConflict) {
			return aErr
		}
		// non-conflict errors are not retryable; stop immediately by
		// returning nil with a nil result so the caller sees "no offer".
		result = nil
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return nil, apperr.Conflict("serialization conflict exhausted retry budget")
		}
		return nil, err
	}
	return result, nil
}

func (e *Engine) tryClaimOnce(ctx context.Context, providerID, deviceID string) (*Assignment, error) {
	tx, err := e.store.BeginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	candidates, err := tx.NextOfferable(ctx, 64)
	if err != nil {
		return nil, err
	}

	device, err := tx.GetDevice(ctx, deviceID)
	if err != nil {
		device = domain.Device{ID: deviceID, OwnerProviderUserID: providerID}
	}

	for _, st := range candidates {
		task, err := tx.GetTask(ctx, st.TaskID)
		if err != nil {
			continue
		}
		if !e.eligible(task, providerID) {
			continue
		}

		now := time.Now().UTC()
		nextDue := now.Add(HeartbeatInterval)
		st.Status = domain.SubtaskStatusExecuting
		st.AssignedProviderID = &providerID
		st.AssignedDeviceID = &deviceID
		st.AssignedAt = &now
		st.StartedAt = &now
		st.LastHeartbeat = &now
		st.LastCommand = &now
		st.NextHeartbeatDue = &nextDue
		st.RequiresReassignment = false
		st.ReassignmentRequestedAt = nil
		st.FailureReason = nil
		st.FailedAt = nil

		webGPU := device.Capabilities.HasGPU()
		pid := providerID
		st.ExecutionState = domain.ExecutionState{
			Phase:           domain.PhaseExecuting,
			ProviderUserID:  &pid,
			WebGPUPreferred: &webGPU,
			ExtendedMetadata: map[string]any{},
		}

		st, err = tx.UpdateSubtask(ctx, st)
		if err != nil {
			return nil, apperr.Conflict(err.Error())
		}

		if task.Status != domain.TaskStatusCompleted && task.Status != domain.TaskStatusFailed {
			task.Status = domain.TaskStatusInProgress
			task.UpdatedAt = now
			task, err = tx.UpdateTask(ctx, task)
			if err != nil {
				return nil, err
			}
		}

		if err := e.log.Append(ctx, tx, st.ID, domain.EventAssignment, "subtask assigned", map[string]any{
			"provider_user_id": providerID,
			"device_id":        deviceID,
		}); err != nil {
			return nil, err
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, apperr.Conflict(err.Error())
		}
		committed = true
		return &Assignment{Subtask: st, Task: task}, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Conflict(err.Error())
	}
	committed = true
	return nil, nil
}

func (e *Engine) eligible(task domain.Task, providerID string) bool {
	if task.OwnerUserID == "" {
		return false
	}
	if !e.cfg.SelfAssignAllowedInDebug && task.OwnerUserID == providerID {
		return false
	}
	return true
}

// Accept performs the same claim transition restricted to a single named
// subtask, per §4.4's second entry point.
func (e *Engine) Accept(ctx context.Context, subtaskID, providerID, deviceID string) (*Assignment, error) {
	provider, err := e.store.GetUser(ctx, providerID)
	if err != nil || !provider.Active {
		return nil, apperr.Forbidden("provider is not active")
	}

	tx, err := e.store.BeginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	st, err := tx.GetSubtask(ctx, subtaskID)
	if err != nil {
		return nil, apperr.NotFound("subtask", subtaskID)
	}
	task, err := tx.GetTask(ctx, st.TaskID)
	if err != nil {
		return nil, apperr.NotFound("task", st.TaskID)
	}
	if !e.cfg.SelfAssignAllowedInDebug && task.OwnerUserID == providerID {
		return nil, apperr.Forbidden("self-assignment is not allowed")
	}
	if !st.IsOfferable() {
		return nil, apperr.InvalidState("subtask is not in an offerable status")
	}

	device, err := tx.GetDevice(ctx, deviceID)
	if err != nil {
		device = domain.Device{ID: deviceID, OwnerProviderUserID: providerID}
	}

	now := time.Now().UTC()
	nextDue := now.Add(HeartbeatInterval)
	st.Status = domain.SubtaskStatusExecuting
	st.AssignedProviderID = &providerID
	st.AssignedDeviceID = &deviceID
	st.AssignedAt = &now
	st.StartedAt = &now
	st.LastHeartbeat = &now
	st.LastCommand = &now
	st.NextHeartbeatDue = &nextDue
	st.RequiresReassignment = false
	st.ReassignmentRequestedAt = nil
	st.FailureReason = nil
	st.FailedAt = nil

	webGPU := device.Capabilities.HasGPU()
	pid := providerID
	st.ExecutionState = domain.ExecutionState{
		Phase:            domain.PhaseExecuting,
		ProviderUserID:   &pid,
		WebGPUPreferred:  &webGPU,
		ExtendedMetadata: map[string]any{},
	}

	st, err = tx.UpdateSubtask(ctx, st)
	if err != nil {
		return nil, apperr.Conflict(err.Error())
	}

	if task.Status != domain.TaskStatusCompleted && task.Status != domain.TaskStatusFailed {
		task.Status = domain.TaskStatusInProgress
		task.UpdatedAt = now
		task, err = tx.UpdateTask(ctx, task)
		if err != nil {
			return nil, err
		}
	}

	if err := e.log.Append(ctx, tx, st.ID, domain.EventAssignment, "subtask assigned", map[string]any{
		"provider_user_id": providerID,
		"device_id":        deviceID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Conflict(err.Error())
	}
	committed = true
	return &Assignment{Subtask: st, Task: task}, nil
}
