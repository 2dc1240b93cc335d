package postgres

import (
	"context"
	"database/sql"

	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/money"
	pgbase "github.com/meshcompute/inference-marketplace/pkg/storage/postgres"
)

func (s *Store) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	const q = `
		INSERT INTO tasks (id, owner_user_id, type, model_uri, fill_bindings_via_api, status,
			compiled_partition, aggregate_cost_minor, created_at, updated_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`
	row := s.Querier(ctx).QueryRowContext(ctx, q,
		t.ID, t.OwnerUserID, t.Type, t.ModelURI, t.FillBindingsViaAPI, t.Status,
		t.CompiledPartition, int64(t.AggregateCost), t.CreatedAt, t.UpdatedAt, pgbase.PtrToNullTime(t.CompletedAt))
	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Task{}, mapErr(err)
	}
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (domain.Task, error) {
	const q = `
		SELECT id, owner_user_id, type, model_uri, fill_bindings_via_api, status,
			compiled_partition, aggregate_cost_minor, created_at, updated_at, completed_at
		FROM tasks WHERE id = $1`
	t, err := scanTask(s.Querier(ctx).QueryRowContext(ctx, q, id))
	if err != nil {
		return domain.Task{}, mapErr(err)
	}
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	const q = `
		UPDATE tasks SET owner_user_id=$2, type=$3, model_uri=$4, fill_bindings_via_api=$5,
			status=$6, compiled_partition=$7, aggregate_cost_minor=$8, updated_at=now(), completed_at=$9
		WHERE id=$1
		RETURNING updated_at`
	row := s.Querier(ctx).QueryRowContext(ctx, q,
		t.ID, t.OwnerUserID, t.Type, t.ModelURI, t.FillBindingsViaAPI,
		t.Status, t.CompiledPartition, int64(t.AggregateCost), pgbase.PtrToNullTime(t.CompletedAt))
	if err := row.Scan(&t.UpdatedAt); err != nil {
		return domain.Task{}, mapErr(err)
	}
	return t, nil
}

func (s *Store) ListTasksByOwner(ctx context.Context, ownerUserID string, status *domain.TaskStatus, limit int) ([]domain.Task, error) {
	var rows *sql.Rows
	var err error
	switch {
	case status != nil && limit > 0:
		rows, err = s.Querier(ctx).QueryContext(ctx, `
			SELECT id, owner_user_id, type, model_uri, fill_bindings_via_api, status,
				compiled_partition, aggregate_cost_minor, created_at, updated_at, completed_at
			FROM tasks WHERE owner_user_id = $1 AND status = $2 ORDER BY created_at LIMIT $3`, ownerUserID, *status, limit)
	case status != nil:
		rows, err = s.Querier(ctx).QueryContext(ctx, `
			SELECT id, owner_user_id, type, model_uri, fill_bindings_via_api, status,
				compiled_partition, aggregate_cost_minor, created_at, updated_at, completed_at
			FROM tasks WHERE owner_user_id = $1 AND status = $2 ORDER BY created_at`, ownerUserID, *status)
	case limit > 0:
		rows, err = s.Querier(ctx).QueryContext(ctx, `
			SELECT id, owner_user_id, type, model_uri, fill_bindings_via_api, status,
				compiled_partition, aggregate_cost_minor, created_at, updated_at, completed_at
			FROM tasks WHERE owner_user_id = $1 ORDER BY created_at LIMIT $2`, ownerUserID, limit)
	default:
		rows, err = s.Querier(ctx).QueryContext(ctx, `
			SELECT id, owner_user_id, type, model_uri, fill_bindings_via_api, status,
				compiled_partition, aggregate_cost_minor, created_at, updated_at, completed_at
			FROM tasks WHERE owner_user_id = $1 ORDER BY created_at`, ownerUserID)
	}
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, t)
	}
	return out, mapErr(rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var aggregateCostMinor int64
	var completedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.OwnerUserID, &t.Type, &t.ModelURI, &t.FillBindingsViaAPI, &t.Status,
		&t.CompiledPartition, &aggregateCostMinor, &t.CreatedAt, &t.UpdatedAt, &completedAt); err != nil {
		return domain.Task{}, err
	}
	t.AggregateCost = money.Amount(aggregateCostMinor)
	t.CompletedAt = pgbase.NullTimeToPtr(completedAt)
	return t, nil
}
