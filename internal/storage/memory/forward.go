package memory

import (
	"context"
	"time"

	"github.com/meshcompute/inference-marketplace/internal/domain"
)

// The methods below give Memory the full storage.Store surface by locking
// for the call's duration and delegating to the live snapshot. memTx (in
// tx.go) delegates the same entity logic to its private, uncommitted
// snapshot instead.

func (m *Memory) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.CreateTask(ctx, t)
}

func (m *Memory) GetTask(ctx context.Context, id string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.GetTask(ctx, id)
}

func (m *Memory) UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.UpdateTask(ctx, t)
}

func (m *Memory) ListTasksByOwner(ctx context.Context, ownerUserID string, status *domain.TaskStatus, limit int) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.ListTasksByOwner(ctx, ownerUserID, status, limit)
}

func (m *Memory) CreateSubtask(ctx context.Context, st domain.Subtask) (domain.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.CreateSubtask(ctx, st)
}

func (m *Memory) GetSubtask(ctx context.Context, id string) (domain.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.GetSubtask(ctx, id)
}

func (m *Memory) UpdateSubtask(ctx context.Context, st domain.Subtask) (domain.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.UpdateSubtask(ctx, st)
}

func (m *Memory) ListSubtasksByTask(ctx context.Context, taskID string) ([]domain.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.ListSubtasksByTask(ctx, taskID)
}

func (m *Memory) NextOfferable(ctx context.Context, limit int) ([]domain.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.NextOfferable(ctx, limit)
}

func (m *Memory) ListByDeviceAndStatuses(ctx context.Context, deviceID string, statuses []domain.SubtaskStatus) ([]domain.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.ListByDeviceAndStatuses(ctx, deviceID, statuses)
}

func (m *Memory) ListHeartbeatTimedOut(ctx context.Context, now time.Time) ([]domain.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.ListHeartbeatTimedOut(ctx, now)
}

func (m *Memory) AppendTimelineEvent(ctx context.Context, ev domain.TimelineEvent) (domain.TimelineEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.AppendTimelineEvent(ctx, ev)
}

func (m *Memory) ListTimelineEvents(ctx context.Context, subtaskID string) ([]domain.TimelineEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.ListTimelineEvents(ctx, subtaskID)
}

func (m *Memory) CreateEarning(ctx context.Context, e domain.Earning) (domain.Earning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.CreateEarning(ctx, e)
}

func (m *Memory) CreateWithdrawal(ctx context.Context, w domain.Withdrawal) (domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.CreateWithdrawal(ctx, w)
}

func (m *Memory) GetEarningBySubtask(ctx context.Context, subtaskID string) (domain.Earning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.GetEarningBySubtask(ctx, subtaskID)
}

func (m *Memory) GetWithdrawalBySubtask(ctx context.Context, subtaskID string) (domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.GetWithdrawalBySubtask(ctx, subtaskID)
}

func (m *Memory) GetUser(ctx context.Context, id string) (domain.ApplicationUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.GetUser(ctx, id)
}

func (m *Memory) UpdateUser(ctx context.Context, u domain.ApplicationUser) (domain.ApplicationUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.UpdateUser(ctx, u)
}

func (m *Memory) CountActiveUsersExcept(ctx context.Context, excludeUserID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.CountActiveUsersExcept(ctx, excludeUserID)
}

func (m *Memory) UpsertDevice(ctx context.Context, d domain.Device) (domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.UpsertDevice(ctx, d)
}

func (m *Memory) GetDevice(ctx context.Context, id string) (domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.GetDevice(ctx, id)
}
