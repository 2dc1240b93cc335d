package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/money"
	pgbase "github.com/meshcompute/inference-marketplace/pkg/storage/postgres"
)

const subtaskColumns = `
	id, task_id, status, assigned_provider_id, assigned_device_id, parameters_json, results_json,
	progress, created_at, assigned_at, started_at, completed_at, failed_at, last_heartbeat,
	last_command, next_heartbeat_due, requires_reassignment, reassignment_requested_at,
	failure_reason, duration_seconds, cost_minor, execution_state_json`

func (s *Store) CreateSubtask(ctx context.Context, st domain.Subtask) (domain.Subtask, error) {
	stateJSON, err := json.Marshal(st.ExecutionState)
	if err != nil {
		return domain.Subtask{}, err
	}
	const q = `
		INSERT INTO subtasks (id, task_id, status, assigned_provider_id, assigned_device_id,
			parameters_json, results_json, progress, created_at, assigned_at, started_at,
			completed_at, failed_at, last_heartbeat, last_command, next_heartbeat_due,
			requires_reassignment, reassignment_requested_at, failure_reason, duration_seconds,
			cost_minor, execution_state_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING created_at`
	row := s.Querier(ctx).QueryRowContext(ctx, q,
		st.ID, st.TaskID, st.Status, pgbase.PtrToNullString(st.AssignedProviderID), pgbase.PtrToNullString(st.AssignedDeviceID),
		st.ParametersJSON, pgbase.PtrToNullString(st.ResultsJSON), st.Progress, st.CreatedAt,
		pgbase.PtrToNullTime(st.AssignedAt), pgbase.PtrToNullTime(st.StartedAt), pgbase.PtrToNullTime(st.CompletedAt),
		pgbase.PtrToNullTime(st.FailedAt), pgbase.PtrToNullTime(st.LastHeartbeat), pgbase.PtrToNullTime(st.LastCommand),
		pgbase.PtrToNullTime(st.NextHeartbeatDue), st.RequiresReassignment, pgbase.PtrToNullTime(st.ReassignmentRequestedAt),
		pgbase.PtrToNullString(st.FailureReason), nullFloat(st.DurationSeconds), nullCost(st.Cost), stateJSON)
	if err := row.Scan(&st.CreatedAt); err != nil {
		return domain.Subtask{}, mapErr(err)
	}
	return st, nil
}

func (s *Store) GetSubtask(ctx context.Context, id string) (domain.Subtask, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, "SELECT"+subtaskColumns+" FROM subtasks WHERE id = $1", id)
	st, err := scanSubtask(row)
	if err != nil {
		return domain.Subtask{}, mapErr(err)
	}
	return st, nil
}

func (s *Store) UpdateSubtask(ctx context.Context, st domain.Subtask) (domain.Subtask, error) {
	stateJSON, err := json.Marshal(st.ExecutionState)
	if err != nil {
		return domain.Subtask{}, err
	}
	const q = `
		UPDATE subtasks SET status=$2, assigned_provider_id=$3, assigned_device_id=$4,
			parameters_json=$5, results_json=$6, progress=$7, assigned_at=$8, started_at=$9,
			completed_at=$10, failed_at=$11, last_heartbeat=$12, last_command=$13,
			next_heartbeat_due=$14, requires_reassignment=$15, reassignment_requested_at=$16,
			failure_reason=$17, duration_seconds=$18, cost_minor=$19, execution_state_json=$20
		WHERE id=$1`
	res, err := s.Querier(ctx).ExecContext(ctx, q,
		st.ID, st.Status, pgbase.PtrToNullString(st.AssignedProviderID), pgbase.PtrToNullString(st.AssignedDeviceID),
		st.ParametersJSON, pgbase.PtrToNullString(st.ResultsJSON), st.Progress,
		pgbase.PtrToNullTime(st.AssignedAt), pgbase.PtrToNullTime(st.StartedAt), pgbase.PtrToNullTime(st.CompletedAt),
		pgbase.PtrToNullTime(st.FailedAt), pgbase.PtrToNullTime(st.LastHeartbeat), pgbase.PtrToNullTime(st.LastCommand),
		pgbase.PtrToNullTime(st.NextHeartbeatDue), st.RequiresReassignment, pgbase.PtrToNullTime(st.ReassignmentRequestedAt),
		pgbase.PtrToNullString(st.FailureReason), nullFloat(st.DurationSeconds), nullCost(st.Cost), stateJSON)
	if err != nil {
		return domain.Subtask{}, mapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Subtask{}, mapErr(sql.ErrNoRows)
	}
	return st, nil
}

func (s *Store) ListSubtasksByTask(ctx context.Context, taskID string) ([]domain.Subtask, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, "SELECT"+subtaskColumns+" FROM subtasks WHERE task_id = $1 ORDER BY created_at", taskID)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectSubtasks(rows)
}

// NextOfferable mirrors the memory store's ordering: reassignments first
// (requires_reassignment desc), then created_at asc, then id asc, which is
// exactly what idx_subtasks_offerable was built to serve.
func (s *Store) NextOfferable(ctx context.Context, limit int) ([]domain.Subtask, error) {
	q := "SELECT" + subtaskColumns + ` FROM subtasks
		WHERE status = $1 OR (status = $2 AND requires_reassignment)
		ORDER BY requires_reassignment DESC, created_at ASC, id ASC`
	args := []any{domain.SubtaskStatusPending, domain.SubtaskStatusFailed}
	if limit > 0 {
		q += " LIMIT $3"
		args = append(args, limit)
	}
	rows, err := s.Querier(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectSubtasks(rows)
}

func (s *Store) ListByDeviceAndStatuses(ctx context.Context, deviceID string, statuses []domain.SubtaskStatus) ([]domain.Subtask, error) {
	raw := make([]string, len(statuses))
	for i, st := range statuses {
		raw[i] = string(st)
	}
	q := "SELECT" + subtaskColumns + ` FROM subtasks
		WHERE assigned_device_id = $1 AND status = ANY($2) ORDER BY created_at`
	rows, err := s.Querier(ctx).QueryContext(ctx, q, deviceID, pq.Array(raw))
	if err != nil {
		return nil, mapErr(err)
	}
	return collectSubtasks(rows)
}

func (s *Store) ListHeartbeatTimedOut(ctx context.Context, now time.Time) ([]domain.Subtask, error) {
	q := "SELECT" + subtaskColumns + ` FROM subtasks
		WHERE status IN ($1,$2) AND next_heartbeat_due IS NOT NULL AND next_heartbeat_due < $3
		ORDER BY created_at`
	rows, err := s.Querier(ctx).QueryContext(ctx, q, domain.SubtaskStatusAssigned, domain.SubtaskStatusExecuting, now)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectSubtasks(rows)
}

func collectSubtasks(rows *sql.Rows) ([]domain.Subtask, error) {
	defer rows.Close()
	var out []domain.Subtask
	for rows.Next() {
		st, err := scanSubtask(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, st)
	}
	return out, mapErr(rows.Err())
}

func scanSubtask(row rowScanner) (domain.Subtask, error) {
	var st domain.Subtask
	var assignedProviderID, assignedDeviceID, resultsJSON, failureReason sql.NullString
	var assignedAt, startedAt, completedAt, failedAt, lastHeartbeat, lastCommand, nextHeartbeatDue, reassignmentRequestedAt sql.NullTime
	var durationSeconds sql.NullFloat64
	var costMinor sql.NullInt64
	var stateJSON []byte

	if err := row.Scan(&st.ID, &st.TaskID, &st.Status, &assignedProviderID, &assignedDeviceID,
		&st.ParametersJSON, &resultsJSON, &st.Progress, &st.CreatedAt, &assignedAt, &startedAt,
		&completedAt, &failedAt, &lastHeartbeat, &lastCommand, &nextHeartbeatDue,
		&st.RequiresReassignment, &reassignmentRequestedAt, &failureReason, &durationSeconds,
		&costMinor, &stateJSON); err != nil {
		return domain.Subtask{}, err
	}

	st.AssignedProviderID = pgbase.NullStringToPtr(assignedProviderID)
	st.AssignedDeviceID = pgbase.NullStringToPtr(assignedDeviceID)
	st.ResultsJSON = pgbase.NullStringToPtr(resultsJSON)
	st.AssignedAt = pgbase.NullTimeToPtr(assignedAt)
	st.StartedAt = pgbase.NullTimeToPtr(startedAt)
	st.CompletedAt = pgbase.NullTimeToPtr(completedAt)
	st.FailedAt = pgbase.NullTimeToPtr(failedAt)
	st.LastHeartbeat = pgbase.NullTimeToPtr(lastHeartbeat)
	st.LastCommand = pgbase.NullTimeToPtr(lastCommand)
	st.NextHeartbeatDue = pgbase.NullTimeToPtr(nextHeartbeatDue)
	st.ReassignmentRequestedAt = pgbase.NullTimeToPtr(reassignmentRequestedAt)
	st.FailureReason = pgbase.NullStringToPtr(failureReason)
	if durationSeconds.Valid {
		st.DurationSeconds = &durationSeconds.Float64
	}
	if costMinor.Valid {
		amt := money.Amount(costMinor.Int64)
		st.Cost = &amt
	}
	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &st.ExecutionState); err != nil {
			return domain.Subtask{}, err
		}
	}
	return st, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullCost(a *money.Amount) sql.NullInt64 {
	if a == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*a), Valid: true}
}
