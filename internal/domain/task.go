// Package domain holds the persistent entities the dispatch/lifecycle core
// operates on: Task, Subtask, TimelineEvent, ApplicationUser, Earning,
// Withdrawal, and Device. These are plain structs; all mutation rules live
// in the engines (internal/assignment, internal/lifecycle, internal/ledger)
// that own them, per the single-mutator-per-field-group convention.
package domain

import (
	"time"

	"github.com/meshcompute/inference-marketplace/internal/money"
)

// TaskType distinguishes a training job from an inference job.
type TaskType string

const (
	TaskTypeTrain     TaskType = "train"
	TaskTypeInference TaskType = "inference"
)

// TaskStatus is the aggregate status derived from (but not identical to) its
// children's statuses.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is the requestor-owned aggregate root for one or more Subtasks.
type Task struct {
	ID                  string
	OwnerUserID         string
	Type                TaskType
	ModelURI            string
	FillBindingsViaAPI  bool
	Status              TaskStatus
	CompiledPartition   string
	AggregateCost       money.Amount
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}
