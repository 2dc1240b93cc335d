package memory

import (
	"context"
	"time"

	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/storage"
)

// memTx is a transaction operating on a private snapshot taken at
// BeginSerializable. The snapshot only replaces Memory.cur on Commit; a
// Rollback (or an unclosed transaction abandoned via defer) simply releases
// the lock and discards the snapshot.
type memTx struct {
	memory *Memory
	store  *store
	closed bool
}

var _ storage.Tx = (*memTx)(nil)

func (tx *memTx) Commit(context.Context) error {
	if tx.closed {
		return nil
	}
	tx.closed = true
	tx.memory.cur = tx.store
	tx.memory.mu.Unlock()
	return nil
}

func (tx *memTx) Rollback(context.Context) error {
	if tx.closed {
		return nil
	}
	tx.closed = true
	tx.memory.mu.Unlock()
	return nil
}

func (tx *memTx) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	return tx.store.CreateTask(ctx, t)
}

func (tx *memTx) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return tx.store.GetTask(ctx, id)
}

func (tx *memTx) UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	return tx.store.UpdateTask(ctx, t)
}

func (tx *memTx) ListTasksByOwner(ctx context.Context, ownerUserID string, status *domain.TaskStatus, limit int) ([]domain.Task, error) {
	return tx.store.ListTasksByOwner(ctx, ownerUserID, status, limit)
}

func (tx *memTx) CreateSubtask(ctx context.Context, st domain.Subtask) (domain.Subtask, error) {
	return tx.store.CreateSubtask(ctx, st)
}

func (tx *memTx) GetSubtask(ctx context.Context, id string) (domain.Subtask, error) {
	return tx.store.GetSubtask(ctx, id)
}

func (tx *memTx) UpdateSubtask(ctx context.Context, st domain.Subtask) (domain.Subtask, error) {
	return tx.store.UpdateSubtask(ctx, st)
}

func (tx *memTx) ListSubtasksByTask(ctx context.Context, taskID string) ([]domain.Subtask, error) {
	return tx.store.ListSubtasksByTask(ctx, taskID)
}

func (tx *memTx) NextOfferable(ctx context.Context, limit int) ([]domain.Subtask, error) {
	return tx.store.NextOfferable(ctx, limit)
}

func (tx *memTx) ListByDeviceAndStatuses(ctx context.Context, deviceID string, statuses []domain.SubtaskStatus) ([]domain.Subtask, error) {
	return tx.store.ListByDeviceAndStatuses(ctx, deviceID, statuses)
}

func (tx *memTx) ListHeartbeatTimedOut(ctx context.Context, now time.Time) ([]domain.Subtask, error) {
	return tx.store.ListHeartbeatTimedOut(ctx, now)
}

func (tx *memTx) AppendTimelineEvent(ctx context.Context, ev domain.TimelineEvent) (domain.TimelineEvent, error) {
	return tx.store.AppendTimelineEvent(ctx, ev)
}

func (tx *memTx) ListTimelineEvents(ctx context.Context, subtaskID string) ([]domain.TimelineEvent, error) {
	return tx.store.ListTimelineEvents(ctx, subtaskID)
}

func (tx *memTx) CreateEarning(ctx context.Context, e domain.Earning) (domain.Earning, error) {
	return tx.store.CreateEarning(ctx, e)
}

func (tx *memTx) CreateWithdrawal(ctx context.Context, w domain.Withdrawal) (domain.Withdrawal, error) {
	return tx.store.CreateWithdrawal(ctx, w)
}

func (tx *memTx) GetEarningBySubtask(ctx context.Context, subtaskID string) (domain.Earning, error) {
	return tx.store.GetEarningBySubtask(ctx, subtaskID)
}

func (tx *memTx) GetWithdrawalBySubtask(ctx context.Context, subtaskID string) (domain.Withdrawal, error) {
	return tx.store.GetWithdrawalBySubtask(ctx, subtaskID)
}

func (tx *memTx) GetUser(ctx context.Context, id string) (domain.ApplicationUser, error) {
	return tx.store.GetUser(ctx, id)
}

func (tx *memTx) UpdateUser(ctx context.Context, u domain.ApplicationUser) (domain.ApplicationUser, error) {
	return tx.store.UpdateUser(ctx, u)
}

func (tx *memTx) CountActiveUsersExcept(ctx context.Context, excludeUserID string) (int, error) {
	return tx.store.CountActiveUsersExcept(ctx, excludeUserID)
}

func (tx *memTx) UpsertDevice(ctx context.Context, d domain.Device) (domain.Device, error) {
	return tx.store.UpsertDevice(ctx, d)
}

func (tx *memTx) GetDevice(ctx context.Context, id string) (domain.Device, error) {
	return tx.store.GetDevice(ctx, id)
}
