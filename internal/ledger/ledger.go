// Package ledger settles a completed Subtask's cost against the provider
// and requestor balances, inside the caller's already-open transaction.
package ledger

import (
	"context"

	"github.com/meshcompute/inference-marketplace/internal/apperr"
	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/storage"
)

// Ledger settles Earning/Withdrawal pairs and updates balances.
type Ledger struct {
	// MarginRatio is the requestor debit multiplier, "1.20" by default
	// (config.Config.AssignmentConfig.RequestorMarginRatio).
	MarginRatio string
}

// New returns a Ledger configured with the given requestor margin ratio.
func New(marginRatio string) *Ledger {
	return &Ledger{MarginRatio: marginRatio}
}

// Settle credits the provider by subtask.Cost and debits the requestor by
// subtask.Cost * MarginRatio, inserting one Paid Earning and one Settled
// Withdrawal. Must run inside tx, the same transaction that marks the
// subtask Completed.
func (l *Ledger) Settle(ctx context.Context, tx storage.Tx, task domain.Task, subtask domain.Subtask) error {
	if subtask.Cost == nil {
		return apperr.InvalidState("cannot settle subtask with no cost")
	}
	if subtask.AssignedProviderID == nil {
		return apperr.InvalidState("cannot settle subtask with no assigned provider")
	}
	providerID := *subtask.AssignedProviderID
	requestorID := task.OwnerUserID

	provider, err := tx.GetUser(ctx, providerID)
	if err != nil {
		return apperr.InvalidState("provider missing for settlement")
	}
	requestor, err := tx.GetUser(ctx, requestorID)
	if err != nil {
		return apperr.InvalidState("requestor missing for settlement")
	}

	cost := *subtask.Cost
	debit, err := cost.Mul(l.MarginRatio)
	if err != nil {
		return apperr.InvalidState("invalid margin ratio configured")
	}

	provider.Balance = provider.Balance.Add(cost)
	requestor.Balance = requestor.Balance.Sub(debit)

	if _, err := tx.UpdateUser(ctx, provider); err != nil {
		return err
	}
	if _, err := tx.UpdateUser(ctx, requestor); err != nil {
		return err
	}

	if _, err := tx.CreateEarning(ctx, domain.Earning{
		ProviderID: providerID,
		TaskID:     task.ID,
		SubtaskID:  subtask.ID,
		Amount:     cost,
		Status:     domain.EarningStatusPaid,
	}); err != nil {
		return err
	}
	if _, err := tx.CreateWithdrawal(ctx, domain.Withdrawal{
		RequestorID: requestorID,
		TaskID:      task.ID,
		SubtaskID:   subtask.ID,
		Amount:      debit,
		Status:      domain.WithdrawalStatusSettled,
	}); err != nil {
		return err
	}
	return nil
}
