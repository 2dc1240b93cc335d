package postgres

import (
	"context"

	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/money"
)

func (s *Store) CreateEarning(ctx context.Context, e domain.Earning) (domain.Earning, error) {
	const q = `
		INSERT INTO earnings (id, provider_id, task_id, subtask_id, amount_minor, status)
		VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := s.Querier(ctx).ExecContext(ctx, q, e.ID, e.ProviderID, e.TaskID, e.SubtaskID, int64(e.Amount), e.Status); err != nil {
		return domain.Earning{}, mapErr(err)
	}
	return e, nil
}

func (s *Store) CreateWithdrawal(ctx context.Context, w domain.Withdrawal) (domain.Withdrawal, error) {
	const q = `
		INSERT INTO withdrawals (id, requestor_id, task_id, subtask_id, amount_minor, status)
		VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := s.Querier(ctx).ExecContext(ctx, q, w.ID, w.RequestorID, w.TaskID, w.SubtaskID, int64(w.Amount), w.Status); err != nil {
		return domain.Withdrawal{}, mapErr(err)
	}
	return w, nil
}

func (s *Store) GetEarningBySubtask(ctx context.Context, subtaskID string) (domain.Earning, error) {
	const q = `SELECT id, provider_id, task_id, subtask_id, amount_minor, status FROM earnings WHERE subtask_id = $1`
	var e domain.Earning
	var amountMinor int64
	row := s.Querier(ctx).QueryRowContext(ctx, q, subtaskID)
	if err := row.Scan(&e.ID, &e.ProviderID, &e.TaskID, &e.SubtaskID, &amountMinor, &e.Status); err != nil {
		return domain.Earning{}, mapErr(err)
	}
	e.Amount = money.Amount(amountMinor)
	return e, nil
}

func (s *Store) GetWithdrawalBySubtask(ctx context.Context, subtaskID string) (domain.Withdrawal, error) {
	const q = `SELECT id, requestor_id, task_id, subtask_id, amount_minor, status FROM withdrawals WHERE subtask_id = $1`
	var w domain.Withdrawal
	var amountMinor int64
	row := s.Querier(ctx).QueryRowContext(ctx, q, subtaskID)
	if err := row.Scan(&w.ID, &w.RequestorID, &w.TaskID, &w.SubtaskID, &amountMinor, &w.Status); err != nil {
		return domain.Withdrawal{}, mapErr(err)
	}
	w.Amount = money.Amount(amountMinor)
	return w, nil
}
