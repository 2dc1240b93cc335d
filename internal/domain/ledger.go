package domain

import "github.com/meshcompute/inference-marketplace/internal/money"

// EarningStatus tracks the provider-side ledger row.
type EarningStatus string

const (
	EarningStatusPending EarningStatus = "pending"
	EarningStatusPaid    EarningStatus = "paid"
)

// Earning credits a provider for completed work. Created Paid because the
// core only ever writes it inside the same transaction as a successful
// Ledger.Settle.
type Earning struct {
	ID         string
	ProviderID string
	TaskID     string
	SubtaskID  string
	Amount     money.Amount
	Status     EarningStatus
}

// WithdrawalStatus tracks the requestor-side mirror of an Earning.
type WithdrawalStatus string

const (
	WithdrawalStatusPending WithdrawalStatus = "pending"
	WithdrawalStatusSettled WithdrawalStatus = "settled"
)

// Withdrawal debits a requestor for completed work.
type Withdrawal struct {
	ID          string
	RequestorID string
	TaskID      string
	SubtaskID   string
	Amount      money.Amount
	Status      WithdrawalStatus
}
