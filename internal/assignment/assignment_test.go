package assignment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/storage/memory"
	"github.com/meshcompute/inference-marketplace/internal/timeline"
	"github.com/meshcompute/inference-marketplace/pkg/logger"
)

func newTestEngine(t *testing.T) (*Engine, *memory.Memory) {
	t.Helper()
	store := memory.NewMemory()
	lg := logger.NewDefault("assignment-test")
	eng := New(store, timeline.New(), lg, Config{MaxSerializationRetries: 3})
	return eng, store
}

func seedActiveUser(t *testing.T, ctx context.Context, store *memory.Memory, id string) {
	t.Helper()
	_, err := store.UpdateUser(ctx, domain.ApplicationUser{ID: id, Active: true, Role: domain.UserRoleBoth})
	require.NoError(t, err)
}

func TestOfferClaimsPendingSubtask(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)

	seedActiveUser(t, ctx, store, "requestor-1")
	seedActiveUser(t, ctx, store, "provider-1")

	task, err := store.CreateTask(ctx, domain.Task{OwnerUserID: "requestor-1", Type: domain.TaskTypeInference, ModelURI: "s3://m", Status: domain.TaskStatusPending})
	require.NoError(t, err)
	st, err := store.CreateSubtask(ctx, domain.Subtask{TaskID: task.ID, Status: domain.SubtaskStatusPending, ParametersJSON: "{}"})
	require.NoError(t, err)

	assignment, err := eng.Offer(ctx, "provider-1", "device-1", domain.DeviceCapabilities{Raw: "cpu,gpu"})
	require.NoError(t, err)
	require.NotNil(t, assignment)
	require.Equal(t, st.ID, assignment.Subtask.ID)
	require.Equal(t, domain.SubtaskStatusExecuting, assignment.Subtask.Status)
	require.Equal(t, "provider-1", *assignment.Subtask.AssignedProviderID)
	require.Equal(t, "device-1", *assignment.Subtask.AssignedDeviceID)
	require.True(t, *assignment.Subtask.ExecutionState.WebGPUPreferred)
	require.Equal(t, domain.TaskStatusInProgress, assignment.Task.Status)
}

func TestOfferReturnsNilWhenNoSubtasksOfferable(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)
	seedActiveUser(t, ctx, store, "provider-1")

	assignment, err := eng.Offer(ctx, "provider-1", "device-1", domain.DeviceCapabilities{})
	require.NoError(t, err)
	require.Nil(t, assignment)
}

func TestOfferSkipsSelfOwnedTaskByDefault(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)
	seedActiveUser(t, ctx, store, "same-user")

	task, err := store.CreateTask(ctx, domain.Task{OwnerUserID: "same-user", Type: domain.TaskTypeInference, ModelURI: "s3://m", Status: domain.TaskStatusPending})
	require.NoError(t, err)
	_, err = store.CreateSubtask(ctx, domain.Subtask{TaskID: task.ID, Status: domain.SubtaskStatusPending, ParametersJSON: "{}"})
	require.NoError(t, err)

	assignment, err := eng.Offer(ctx, "same-user", "device-1", domain.DeviceCapabilities{})
	require.NoError(t, err)
	require.Nil(t, assignment)
}

func TestOfferSkipsInactiveProvider(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)

	_, err := store.UpdateUser(ctx, domain.ApplicationUser{ID: "provider-1", Active: false})
	require.NoError(t, err)
	_, err = store.UpdateUser(ctx, domain.ApplicationUser{ID: "requestor-1", Active: true})
	require.NoError(t, err)

	task, err := store.CreateTask(ctx, domain.Task{OwnerUserID: "requestor-1", Type: domain.TaskTypeInference, ModelURI: "s3://m", Status: domain.TaskStatusPending})
	require.NoError(t, err)
	_, err = store.CreateSubtask(ctx, domain.Subtask{TaskID: task.ID, Status: domain.SubtaskStatusPending, ParametersJSON: "{}"})
	require.NoError(t, err)

	assignment, err := eng.Offer(ctx, "provider-1", "device-1", domain.DeviceCapabilities{})
	require.NoError(t, err)
	require.Nil(t, assignment)
}

func TestAcceptRejectsNonOfferableSubtask(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)
	seedActiveUser(t, ctx, store, "requestor-1")
	seedActiveUser(t, ctx, store, "provider-1")

	task, err := store.CreateTask(ctx, domain.Task{OwnerUserID: "requestor-1", Type: domain.TaskTypeInference, ModelURI: "s3://m", Status: domain.TaskStatusPending})
	require.NoError(t, err)
	st, err := store.CreateSubtask(ctx, domain.Subtask{TaskID: task.ID, Status: domain.SubtaskStatusCompleted, ParametersJSON: "{}"})
	require.NoError(t, err)

	_, err = eng.Accept(ctx, st.ID, "provider-1", "device-1")
	require.Error(t, err)
}

func TestAcceptClaimsNamedSubtask(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)
	seedActiveUser(t, ctx, store, "requestor-1")
	seedActiveUser(t, ctx, store, "provider-1")

	task, err := store.CreateTask(ctx, domain.Task{OwnerUserID: "requestor-1", Type: domain.TaskTypeInference, ModelURI: "s3://m", Status: domain.TaskStatusPending})
	require.NoError(t, err)
	st, err := store.CreateSubtask(ctx, domain.Subtask{TaskID: task.ID, Status: domain.SubtaskStatusPending, ParametersJSON: "{}"})
	require.NoError(t, err)

	assignment, err := eng.Accept(ctx, st.ID, "provider-1", "device-1")
	require.NoError(t, err)
	require.Equal(t, domain.SubtaskStatusExecuting, assignment.Subtask.Status)
}
