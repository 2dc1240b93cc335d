// Package lifecycle implements the Lifecycle Engine: the sole mutator of
// Subtask status and ledger-bearing fields once a subtask has been claimed.
package lifecycle

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/tidwall/gjson"

	"github.com/meshcompute/inference-marketplace/internal/apperr"
	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/ledger"
	"github.com/meshcompute/inference-marketplace/internal/storage"
	"github.com/meshcompute/inference-marketplace/internal/timeline"
)

// maxFailureReasonBytes clamps device-supplied failure strings; the
// original implementation observed unbounded error text from misbehaving
// devices.
const maxFailureReasonBytes = 500

// heartbeatInterval mirrors assignment.HeartbeatInterval; duplicated here
// (rather than imported) to avoid a lifecycle->assignment dependency neither
// component otherwise needs.
const heartbeatInterval = 5 * time.Minute

// Engine drives acknowledge/progress/complete/fail/failAllForDevice.
type Engine struct {
	store   storage.Store
	log     *timeline.Log
	ledger  *ledger.Ledger
}

// New constructs an Engine.
func New(store storage.Store, log *timeline.Log, ldg *ledger.Ledger) *Engine {
	return &Engine{store: store, log: log, ledger: ldg}
}

func ownerMatches(assigned *string, providerID string) bool {
	if assigned == nil {
		return false
	}
	a, b := []byte(*assigned), []byte(providerID)
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

func (e *Engine) loadExecutable(ctx context.Context, tx storage.Tx, subtaskID, providerID string) (domain.Subtask, error) {
	st, err := tx.GetSubtask(ctx, subtaskID)
	if err != nil {
		return domain.Subtask{}, apperr.NotFound("subtask", subtaskID)
	}
	if !ownerMatches(st.AssignedProviderID, providerID) {
		return domain.Subtask{}, apperr.Forbidden("provider does not own this subtask")
	}
	if !st.IsExecutable() {
		return domain.Subtask{}, apperr.InvalidState("subtask is not in an executable status")
	}
	return st, nil
}

// AcknowledgeExecutionStart marks a subtask Executing, idempotently.
func (e *Engine) AcknowledgeExecutionStart(ctx context.Context, subtaskID, providerID string) (domain.Subtask, error) {
	tx, err := e.store.BeginSerializable(ctx)
	if err != nil {
		return domain.Subtask{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	st, err := e.loadExecutable(ctx, tx, subtaskID, providerID)
	if err != nil {
		return domain.Subtask{}, err
	}

	now := time.Now().UTC()
	st.Status = domain.SubtaskStatusExecuting
	if st.StartedAt == nil {
		st.StartedAt = &now
	}
	st.LastCommand = &now
	if st.LastHeartbeat == nil {
		st.LastHeartbeat = &now
	}
	msg := "Execution acknowledged by provider"
	st.ExecutionState.Phase = domain.PhaseExecuting
	st.ExecutionState.Message = &msg

	st, err = tx.UpdateSubtask(ctx, st)
	if err != nil {
		return domain.Subtask{}, err
	}
	if err := e.log.Append(ctx, tx, st.ID, domain.EventExecutionAcknowledged, msg, nil); err != nil {
		return domain.Subtask{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Subtask{}, apperr.Conflict(err.Error())
	}
	committed = true
	return st, nil
}

// UpdateProgress clamps percent to [0,100] and advances progress/heartbeat
// state.
func (e *Engine) UpdateProgress(ctx context.Context, subtaskID, providerID string, percent int) (domain.Subtask, error) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	tx, err := e.store.BeginSerializable(ctx)
	if err != nil {
		return domain.Subtask{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	st, err := e.loadExecutable(ctx, tx, subtaskID, providerID)
	if err != nil {
		return domain.Subtask{}, err
	}

	now := time.Now().UTC()
	if st.Status == domain.SubtaskStatusAssigned {
		st.Status = domain.SubtaskStatusExecuting
		if st.StartedAt == nil {
			st.StartedAt = &now
		}
	}
	st.Progress = percent
	st.LastHeartbeat = &now
	st.LastCommand = &now
	if st.NextHeartbeatDue == nil {
		due := now.Add(heartbeatInterval)
		st.NextHeartbeatDue = &due
	}
	st.ExecutionState.Phase = domain.PhaseExecuting
	if st.ExecutionState.ExtendedMetadata == nil {
		st.ExecutionState.ExtendedMetadata = map[string]any{}
	}
	st.ExecutionState.ExtendedMetadata["progressPercentage"] = percent
	st.ExecutionState.ExtendedMetadata["heartbeatAtUtc"] = now.Format(time.RFC3339)

	st, err = tx.UpdateSubtask(ctx, st)
	if err != nil {
		return domain.Subtask{}, err
	}
	if err := e.log.Append(ctx, tx, st.ID, domain.EventProgress, "progress update", map[string]any{
		"progress_percentage": percent,
	}); err != nil {
		return domain.Subtask{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Subtask{}, apperr.Conflict(err.Error())
	}
	committed = true
	return st, nil
}

// CompleteResult is returned by Complete so callers can tell whether the
// parent task reached Completed as a side effect.
type CompleteResult struct {
	Subtask      domain.Subtask
	TaskCompleted bool
}

// Complete finalizes a subtask, folds in optional metrics from resultsJSON,
// rolls up the parent task, and settles the ledger, all in one transaction.
// A second call on an already-Completed subtask fails InvalidState and
// never touches the ledger.
func (e *Engine) Complete(ctx context.Context, subtaskID, providerID, resultsJSON string) (CompleteResult, error) {
	tx, err := e.store.BeginSerializable(ctx)
	if err != nil {
		return CompleteResult{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	st, err := e.loadExecutable(ctx, tx, subtaskID, providerID)
	if err != nil {
		return CompleteResult{}, err
	}

	now := time.Now().UTC()
	st.Status = domain.SubtaskStatusCompleted
	st.Progress = 100
	st.CompletedAt = &now
	st.NextHeartbeatDue = nil
	st.RequiresReassignment = false
	results := resultsJSON
	st.ResultsJSON = &results

	parsed := gjson.Parse(resultsJSON)
	if d := parsed.Get("metrics.durationSeconds"); d.Exists() {
		v := d.Float()
		st.DurationSeconds = &v
	}
	if c := parsed.Get("metrics.costUsd"); c.Exists() {
		if amt, convErr := parseCost(c); convErr == nil {
			st.Cost = &amt
		}
	}
	if dev := parsed.Get("metrics.device"); dev.Exists() {
		if st.ExecutionState.ExtendedMetadata == nil {
			st.ExecutionState.ExtendedMetadata = map[string]any{}
		}
		st.ExecutionState.ExtendedMetadata["device"] = dev.String()
	}
	st.ExecutionState.Phase = domain.PhaseCompleted

	st, err = tx.UpdateSubtask(ctx, st)
	if err != nil {
		return CompleteResult{}, err
	}
	if err := e.log.Append(ctx, tx, st.ID, domain.EventCompletion, "subtask completed", nil); err != nil {
		return CompleteResult{}, err
	}

	task, err := tx.GetTask(ctx, st.TaskID)
	if err != nil {
		return CompleteResult{}, apperr.NotFound("task", st.TaskID)
	}
	siblings, err := tx.ListSubtasksByTask(ctx, st.TaskID)
	if err != nil {
		return CompleteResult{}, err
	}
	allCompleted := true
	for _, sib := range siblings {
		status := sib.Status
		if sib.ID == st.ID {
			status = st.Status
		}
		if status != domain.SubtaskStatusCompleted {
			allCompleted = false
			break
		}
	}
	taskCompleted := false
	if allCompleted {
		task.Status = domain.TaskStatusCompleted
		task.CompletedAt = &now
		taskCompleted = true
	} else {
		task.Status = domain.TaskStatusInProgress
	}
	task.UpdatedAt = now
	if _, err := tx.UpdateTask(ctx, task); err != nil {
		return CompleteResult{}, err
	}

	if err := e.ledger.Settle(ctx, tx, task, st); err != nil {
		return CompleteResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return CompleteResult{}, apperr.Conflict(err.Error())
	}
	committed = true
	return CompleteResult{Subtask: st, TaskCompleted: taskCompleted}, nil
}

// Fail marks a subtask Failed, evaluates whether it can be reassigned, and
// either returns it to Pending (reassignment path) or finalizes the parent
// task, per §4.5. The unexported fail takes the event type, so
// FailAllForDevice can record device-disconnection-failure instead of the
// plain failure event.
func (e *Engine) Fail(ctx context.Context, subtaskID, providerID, reason string) (domain.Subtask, error) {
	return e.fail(ctx, subtaskID, providerID, reason, domain.EventFailure)
}

func (e *Engine) fail(ctx context.Context, subtaskID, providerID, reason string, eventType domain.TimelineEventType) (domain.Subtask, error) {
	if len(reason) > maxFailureReasonBytes {
		reason = reason[:maxFailureReasonBytes]
	}

	tx, err := e.store.BeginSerializable(ctx)
	if err != nil {
		return domain.Subtask{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	st, err := e.loadExecutable(ctx, tx, subtaskID, providerID)
	if err != nil {
		return domain.Subtask{}, err
	}

	now := time.Now().UTC()
	st.Status = domain.SubtaskStatusFailed
	st.FailureReason = &reason
	st.FailedAt = &now
	st.LastHeartbeat = &now
	st.LastCommand = &now
	st.NextHeartbeatDue = nil
	st.ExecutionState.Phase = domain.PhaseFailed
	if st.ExecutionState.ExtendedMetadata == nil {
		st.ExecutionState.ExtendedMetadata = map[string]any{}
	}
	st.ExecutionState.ExtendedMetadata["failureReason"] = reason
	st.ExecutionState.ExtendedMetadata["failedAtUtc"] = now.Format(time.RFC3339)

	if err := e.log.Append(ctx, tx, st.ID, eventType, reason, map[string]any{"reason": reason}); err != nil {
		return domain.Subtask{}, err
	}

	activeOthers, err := tx.CountActiveUsersExcept(ctx, providerID)
	if err != nil {
		return domain.Subtask{}, err
	}
	canReassign := activeOthers > 1

	task, err := tx.GetTask(ctx, st.TaskID)
	if err != nil {
		return domain.Subtask{}, apperr.NotFound("task", st.TaskID)
	}

	if canReassign {
		reqAt := now
		st.RequiresReassignment = true
		st.ReassignmentRequestedAt = &reqAt
		st.AssignedProviderID = nil
		st.AssignedDeviceID = nil
		st.Status = domain.SubtaskStatusPending
		if err := e.log.Append(ctx, tx, st.ID, domain.EventReassignmentRequested, "reassignment requested", nil); err != nil {
			return domain.Subtask{}, err
		}
	} else if !task.FillBindingsViaAPI {
		task.Status = domain.TaskStatusFailed
		task.UpdatedAt = now
		if _, err := tx.UpdateTask(ctx, task); err != nil {
			return domain.Subtask{}, err
		}
		if err := e.log.Append(ctx, tx, st.ID, domain.EventTaskFailed, "task failed", nil); err != nil {
			return domain.Subtask{}, err
		}
	}

	st, err = tx.UpdateSubtask(ctx, st)
	if err != nil {
		return domain.Subtask{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Subtask{}, apperr.Conflict(err.Error())
	}
	committed = true
	return st, nil
}

// FailAllForDevice fails every subtask currently assigned to deviceID in an
// executable status, triggered by a Device Registry disconnect.
func (e *Engine) FailAllForDevice(ctx context.Context, deviceID, providerID string) ([]domain.Subtask, error) {
	pending, err := e.store.ListByDeviceAndStatuses(ctx, deviceID, []domain.SubtaskStatus{
		domain.SubtaskStatusAssigned, domain.SubtaskStatusExecuting,
	})
	if err != nil {
		return nil, err
	}
	var out []domain.Subtask
	for _, st := range pending {
		updated, err := e.fail(ctx, st.ID, providerID, "Device disconnected unexpectedly", domain.EventDeviceDisconnectFailure)
		if err != nil {
			continue
		}
		out = append(out, updated)
	}
	return out, nil
}
