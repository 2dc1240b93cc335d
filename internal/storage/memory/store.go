// Package memory is a sync.Mutex-guarded, map-backed Store implementation
// used by unit tests and local/offline runs. It honors the same
// serializable-transaction contract as internal/storage/postgres: a single
// in-flight transaction holds the store's lock for its entire lifetime and
// writes are invisible to everyone else until Commit swaps them in, so
// callers exercise the identical begin/commit/rollback code paths a real
// database would require. Because transactions run one at a time, it never
// reports a serialization conflict (storage.ErrConflict).
package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/storage"
)

// store holds the entity maps and implements every entity interface
// directly; it is never used concurrently on its own; callers always reach
// it through either Memory (locked per-call) or a memTx (locked for the
// transaction's lifetime).
type store struct {
	tasks       map[string]domain.Task
	subtasks    map[string]domain.Subtask
	timeline    map[string][]domain.TimelineEvent
	earnings    map[string]domain.Earning // keyed by subtask id
	withdrawals map[string]domain.Withdrawal
	users       map[string]domain.ApplicationUser
	devices     map[string]domain.Device
}

func newStore() *store {
	return &store{
		tasks:       make(map[string]domain.Task),
		subtasks:    make(map[string]domain.Subtask),
		timeline:    make(map[string][]domain.TimelineEvent),
		earnings:    make(map[string]domain.Earning),
		withdrawals: make(map[string]domain.Withdrawal),
		users:       make(map[string]domain.ApplicationUser),
		devices:     make(map[string]domain.Device),
	}
}

func (s *store) clone() *store {
	out := newStore()
	for k, v := range s.tasks {
		out.tasks[k] = v
	}
	for k, v := range s.subtasks {
		out.subtasks[k] = v
	}
	for k, v := range s.timeline {
		cp := make([]domain.TimelineEvent, len(v))
		copy(cp, v)
		out.timeline[k] = cp
	}
	for k, v := range s.earnings {
		out.earnings[k] = v
	}
	for k, v := range s.withdrawals {
		out.withdrawals[k] = v
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.devices {
		out.devices[k] = v
	}
	return out
}

// --- TaskStore ---

func (s *store) CreateTask(_ context.Context, t domain.Task) (domain.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.tasks[t.ID] = t
	return t, nil
}

func (s *store) GetTask(_ context.Context, id string) (domain.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, storage.ErrNotFound
	}
	return t, nil
}

func (s *store) UpdateTask(_ context.Context, t domain.Task) (domain.Task, error) {
	if _, ok := s.tasks[t.ID]; !ok {
		return domain.Task{}, storage.ErrNotFound
	}
	t.UpdatedAt = time.Now().UTC()
	s.tasks[t.ID] = t
	return t, nil
}

func (s *store) ListTasksByOwner(_ context.Context, ownerUserID string, status *domain.TaskStatus, limit int) ([]domain.Task, error) {
	var out []domain.Task
	for _, t := range s.tasks {
		if t.OwnerUserID != ownerUserID {
			continue
		}
		if status != nil && t.Status != *status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- SubtaskStore ---

func (s *store) CreateSubtask(_ context.Context, st domain.Subtask) (domain.Subtask, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	s.subtasks[st.ID] = st
	return st, nil
}

func (s *store) GetSubtask(_ context.Context, id string) (domain.Subtask, error) {
	st, ok := s.subtasks[id]
	if !ok {
		return domain.Subtask{}, storage.ErrNotFound
	}
	return st, nil
}

func (s *store) UpdateSubtask(_ context.Context, st domain.Subtask) (domain.Subtask, error) {
	if _, ok := s.subtasks[st.ID]; !ok {
		return domain.Subtask{}, storage.ErrNotFound
	}
	s.subtasks[st.ID] = st
	return st, nil
}

func (s *store) ListSubtasksByTask(_ context.Context, taskID string) ([]domain.Subtask, error) {
	var out []domain.Subtask
	for _, st := range s.subtasks {
		if st.TaskID == taskID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *store) NextOfferable(_ context.Context, limit int) ([]domain.Subtask, error) {
	var out []domain.Subtask
	for _, st := range s.subtasks {
		if st.IsOfferable() {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RequiresReassignment != b.RequiresReassignment {
			return a.RequiresReassignment // true (desc) sorts first
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *store) ListByDeviceAndStatuses(_ context.Context, deviceID string, statuses []domain.SubtaskStatus) ([]domain.Subtask, error) {
	want := make(map[domain.SubtaskStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []domain.Subtask
	for _, st := range s.subtasks {
		if st.AssignedDeviceID == nil || *st.AssignedDeviceID != deviceID {
			continue
		}
		if !want[st.Status] {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *store) ListHeartbeatTimedOut(_ context.Context, now time.Time) ([]domain.Subtask, error) {
	var out []domain.Subtask
	for _, st := range s.subtasks {
		if st.Status != domain.SubtaskStatusAssigned && st.Status != domain.SubtaskStatusExecuting {
			continue
		}
		if st.NextHeartbeatDue == nil || !st.NextHeartbeatDue.Before(now) {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- TimelineStore ---

func (s *store) AppendTimelineEvent(_ context.Context, ev domain.TimelineEvent) (domain.TimelineEvent, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	s.timeline[ev.SubtaskID] = append(s.timeline[ev.SubtaskID], ev)
	return ev, nil
}

func (s *store) ListTimelineEvents(_ context.Context, subtaskID string) ([]domain.TimelineEvent, error) {
	evs := s.timeline[subtaskID]
	out := make([]domain.TimelineEvent, len(evs))
	copy(out, evs)
	return out, nil
}

// --- LedgerStore ---

func (s *store) CreateEarning(_ context.Context, e domain.Earning) (domain.Earning, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.earnings[e.SubtaskID] = e
	return e, nil
}

func (s *store) CreateWithdrawal(_ context.Context, w domain.Withdrawal) (domain.Withdrawal, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	s.withdrawals[w.SubtaskID] = w
	return w, nil
}

func (s *store) GetEarningBySubtask(_ context.Context, subtaskID string) (domain.Earning, error) {
	e, ok := s.earnings[subtaskID]
	if !ok {
		return domain.Earning{}, storage.ErrNotFound
	}
	return e, nil
}

func (s *store) GetWithdrawalBySubtask(_ context.Context, subtaskID string) (domain.Withdrawal, error) {
	w, ok := s.withdrawals[subtaskID]
	if !ok {
		return domain.Withdrawal{}, storage.ErrNotFound
	}
	return w, nil
}

// --- UserStore ---

func (s *store) GetUser(_ context.Context, id string) (domain.ApplicationUser, error) {
	u, ok := s.users[id]
	if !ok {
		return domain.ApplicationUser{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *store) UpdateUser(_ context.Context, u domain.ApplicationUser) (domain.ApplicationUser, error) {
	s.users[u.ID] = u
	return u, nil
}

func (s *store) CountActiveUsersExcept(_ context.Context, excludeUserID string) (int, error) {
	n := 0
	for id, u := range s.users {
		if id == excludeUserID {
			continue
		}
		if u.Active {
			n++
		}
	}
	return n, nil
}

// --- DeviceStore ---

func (s *store) UpsertDevice(_ context.Context, d domain.Device) (domain.Device, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	s.devices[d.ID] = d
	return d, nil
}

func (s *store) GetDevice(_ context.Context, id string) (domain.Device, error) {
	d, ok := s.devices[id]
	if !ok {
		return domain.Device{}, storage.ErrNotFound
	}
	return d, nil
}
