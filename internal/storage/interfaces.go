// Package storage defines the Store contract the core mutates through: a
// transaction handle with serializable isolation, plus the per-entity
// persistence interfaces. internal/storage/postgres and
// internal/storage/memory each implement the full Store.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/meshcompute/inference-marketplace/internal/domain"
)

// ErrConflict is returned when a write loses a serializable-isolation race;
// callers retry per internal/core/service.Retry.
var ErrConflict = errors.New("storage: serialization conflict")

// ErrNotFound is returned by single-row Get calls that find nothing.
var ErrNotFound = errors.New("storage: not found")

// Tx is an open transaction. Callers must always reach Commit or Rollback,
// typically via a deferred Rollback that is a no-op once Commit succeeded.
type Tx interface {
	TaskStore
	SubtaskStore
	TimelineStore
	LedgerStore
	UserStore
	DeviceStore

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the top-level persistence handle. Reads that do not need
// transactional consistency may be issued directly; every write path in
// internal/assignment, internal/lifecycle, and internal/ledger runs inside a
// BeginSerializable transaction.
type Store interface {
	TaskStore
	SubtaskStore
	TimelineStore
	LedgerStore
	UserStore
	DeviceStore

	// BeginSerializable opens a new transaction at SERIALIZABLE isolation.
	BeginSerializable(ctx context.Context) (Tx, error)
}

// TaskStore persists Task aggregates.
type TaskStore interface {
	CreateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	UpdateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	// ListTasksByOwner returns ownerUserID's tasks, newest-created last,
	// optionally filtered by status. limit caps the page size; callers
	// clamp it with internal/core/service.ClampLimit before calling in.
	ListTasksByOwner(ctx context.Context, ownerUserID string, status *domain.TaskStatus, limit int) ([]domain.Task, error)
}

// SubtaskStore persists Subtask rows and exposes the assignment query.
type SubtaskStore interface {
	CreateSubtask(ctx context.Context, st domain.Subtask) (domain.Subtask, error)
	GetSubtask(ctx context.Context, id string) (domain.Subtask, error)
	UpdateSubtask(ctx context.Context, st domain.Subtask) (domain.Subtask, error)
	ListSubtasksByTask(ctx context.Context, taskID string) ([]domain.Subtask, error)

	// NextOfferable returns, in selection order (reassignments first, then
	// created_at asc, then id asc), the subtasks currently offerable to any
	// provider. Callers take the first entry that passes provider/task
	// eligibility checks.
	NextOfferable(ctx context.Context, limit int) ([]domain.Subtask, error)

	// ListByDeviceAndStatuses backs the disconnect sweep; the heartbeat
	// monitor's timeout scan uses ListHeartbeatTimedOut.
	ListByDeviceAndStatuses(ctx context.Context, deviceID string, statuses []domain.SubtaskStatus) ([]domain.Subtask, error)
	ListHeartbeatTimedOut(ctx context.Context, now time.Time) ([]domain.Subtask, error)
}

// TimelineStore appends audit rows; there is no update or delete path.
type TimelineStore interface {
	AppendTimelineEvent(ctx context.Context, ev domain.TimelineEvent) (domain.TimelineEvent, error)
	ListTimelineEvents(ctx context.Context, subtaskID string) ([]domain.TimelineEvent, error)
}

// LedgerStore persists Earning/Withdrawal rows created by Ledger.Settle.
type LedgerStore interface {
	CreateEarning(ctx context.Context, e domain.Earning) (domain.Earning, error)
	CreateWithdrawal(ctx context.Context, w domain.Withdrawal) (domain.Withdrawal, error)
	GetEarningBySubtask(ctx context.Context, subtaskID string) (domain.Earning, error)
	GetWithdrawalBySubtask(ctx context.Context, subtaskID string) (domain.Withdrawal, error)
}

// UserStore persists ApplicationUser rows.
type UserStore interface {
	GetUser(ctx context.Context, id string) (domain.ApplicationUser, error)
	UpdateUser(ctx context.Context, u domain.ApplicationUser) (domain.ApplicationUser, error)
	CountActiveUsersExcept(ctx context.Context, excludeUserID string) (int, error)
}

// DeviceStore persists Device rows.
type DeviceStore interface {
	UpsertDevice(ctx context.Context, d domain.Device) (domain.Device, error)
	GetDevice(ctx context.Context, id string) (domain.Device, error)
}
