package postgres

import (
	"context"
	"time"

	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/storage"
)

// pgTx is a storage.Tx bound to a context carrying a live *sql.Tx. Every
// method just forwards to the same Store methods used outside a
// transaction; BaseStore.Querier(ctx) is what makes the two paths
// equivalent.
type pgTx struct {
	store *Store
	ctx   context.Context
	done  bool
}

var _ storage.Tx = (*pgTx)(nil)

func (tx *pgTx) Commit(context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	return tx.store.CommitTx(tx.ctx)
}

func (tx *pgTx) Rollback(context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	return tx.store.RollbackTx(tx.ctx)
}

func (tx *pgTx) CreateTask(_ context.Context, t domain.Task) (domain.Task, error) {
	return tx.store.CreateTask(tx.ctx, t)
}

func (tx *pgTx) GetTask(_ context.Context, id string) (domain.Task, error) {
	return tx.store.GetTask(tx.ctx, id)
}

func (tx *pgTx) UpdateTask(_ context.Context, t domain.Task) (domain.Task, error) {
	return tx.store.UpdateTask(tx.ctx, t)
}

func (tx *pgTx) ListTasksByOwner(_ context.Context, ownerUserID string, status *domain.TaskStatus, limit int) ([]domain.Task, error) {
	return tx.store.ListTasksByOwner(tx.ctx, ownerUserID, status, limit)
}

func (tx *pgTx) CreateSubtask(_ context.Context, st domain.Subtask) (domain.Subtask, error) {
	return tx.store.CreateSubtask(tx.ctx, st)
}

func (tx *pgTx) GetSubtask(_ context.Context, id string) (domain.Subtask, error) {
	return tx.store.GetSubtask(tx.ctx, id)
}

func (tx *pgTx) UpdateSubtask(_ context.Context, st domain.Subtask) (domain.Subtask, error) {
	return tx.store.UpdateSubtask(tx.ctx, st)
}

func (tx *pgTx) ListSubtasksByTask(_ context.Context, taskID string) ([]domain.Subtask, error) {
	return tx.store.ListSubtasksByTask(tx.ctx, taskID)
}

func (tx *pgTx) NextOfferable(_ context.Context, limit int) ([]domain.Subtask, error) {
	return tx.store.NextOfferable(tx.ctx, limit)
}

func (tx *pgTx) ListByDeviceAndStatuses(_ context.Context, deviceID string, statuses []domain.SubtaskStatus) ([]domain.Subtask, error) {
	return tx.store.ListByDeviceAndStatuses(tx.ctx, deviceID, statuses)
}

func (tx *pgTx) ListHeartbeatTimedOut(_ context.Context, now time.Time) ([]domain.Subtask, error) {
	return tx.store.ListHeartbeatTimedOut(tx.ctx, now)
}

func (tx *pgTx) AppendTimelineEvent(_ context.Context, ev domain.TimelineEvent) (domain.TimelineEvent, error) {
	return tx.store.AppendTimelineEvent(tx.ctx, ev)
}

func (tx *pgTx) ListTimelineEvents(_ context.Context, subtaskID string) ([]domain.TimelineEvent, error) {
	return tx.store.ListTimelineEvents(tx.ctx, subtaskID)
}

func (tx *pgTx) CreateEarning(_ context.Context, e domain.Earning) (domain.Earning, error) {
	return tx.store.CreateEarning(tx.ctx, e)
}

func (tx *pgTx) CreateWithdrawal(_ context.Context, w domain.Withdrawal) (domain.Withdrawal, error) {
	return tx.store.CreateWithdrawal(tx.ctx, w)
}

func (tx *pgTx) GetEarningBySubtask(_ context.Context, subtaskID string) (domain.Earning, error) {
	return tx.store.GetEarningBySubtask(tx.ctx, subtaskID)
}

func (tx *pgTx) GetWithdrawalBySubtask(_ context.Context, subtaskID string) (domain.Withdrawal, error) {
	return tx.store.GetWithdrawalBySubtask(tx.ctx, subtaskID)
}

func (tx *pgTx) GetUser(_ context.Context, id string) (domain.ApplicationUser, error) {
	return tx.store.GetUser(tx.ctx, id)
}

func (tx *pgTx) UpdateUser(_ context.Context, u domain.ApplicationUser) (domain.ApplicationUser, error) {
	return tx.store.UpdateUser(tx.ctx, u)
}

func (tx *pgTx) CountActiveUsersExcept(_ context.Context, excludeUserID string) (int, error) {
	return tx.store.CountActiveUsersExcept(tx.ctx, excludeUserID)
}

func (tx *pgTx) UpsertDevice(_ context.Context, d domain.Device) (domain.Device, error) {
	return tx.store.UpsertDevice(tx.ctx, d)
}

func (tx *pgTx) GetDevice(_ context.Context, id string) (domain.Device, error) {
	return tx.store.GetDevice(tx.ctx, id)
}
