package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/ledger"
	"github.com/meshcompute/inference-marketplace/internal/storage/memory"
	"github.com/meshcompute/inference-marketplace/internal/timeline"
)

func newTestEngine() (*Engine, *memory.Memory) {
	store := memory.NewMemory()
	return New(store, timeline.New(), ledger.New("1.20")), store
}

func seedExecutingSubtask(t *testing.T, ctx context.Context, store *memory.Memory, providerID string) (domain.Task, domain.Subtask) {
	t.Helper()
	_, err := store.UpdateUser(ctx, domain.ApplicationUser{ID: "requestor-1", Active: true, Balance: 0})
	require.NoError(t, err)
	_, err = store.UpdateUser(ctx, domain.ApplicationUser{ID: providerID, Active: true, Balance: 0})
	require.NoError(t, err)

	task, err := store.CreateTask(ctx, domain.Task{OwnerUserID: "requestor-1", Type: domain.TaskTypeInference, ModelURI: "s3://m", Status: domain.TaskStatusInProgress})
	require.NoError(t, err)

	pid := providerID
	did := "device-1"
	st, err := store.CreateSubtask(ctx, domain.Subtask{
		TaskID:             task.ID,
		Status:             domain.SubtaskStatusExecuting,
		AssignedProviderID: &pid,
		AssignedDeviceID:   &did,
		ParametersJSON:     "{}",
		ExecutionState:     domain.ExecutionState{Phase: domain.PhaseExecuting, ExtendedMetadata: map[string]any{}},
	})
	require.NoError(t, err)
	return task, st
}

func TestAcknowledgeExecutionStartRejectsWrongProvider(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine()
	_, st := seedExecutingSubtask(t, ctx, store, "provider-1")

	_, err := eng.AcknowledgeExecutionStart(ctx, st.ID, "provider-2")
	require.Error(t, err)
}

func TestUpdateProgressClampsPercent(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine()
	_, st := seedExecutingSubtask(t, ctx, store, "provider-1")

	updated, err := eng.UpdateProgress(ctx, st.ID, "provider-1", 250)
	require.NoError(t, err)
	require.Equal(t, 100, updated.Progress)

	updated, err = eng.UpdateProgress(ctx, st.ID, "provider-1", -5)
	require.NoError(t, err)
	require.Equal(t, 0, updated.Progress)
}

func TestCompleteSettlesLedgerAndRollsUpTask(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine()
	task, st := seedExecutingSubtask(t, ctx, store, "provider-1")

	result, err := eng.Complete(ctx, st.ID, "provider-1", `{"metrics":{"durationSeconds":12.5,"costUsd":"0.25"}}`)
	require.NoError(t, err)
	require.True(t, result.TaskCompleted)
	require.Equal(t, domain.SubtaskStatusCompleted, result.Subtask.Status)
	require.Equal(t, 100, result.Subtask.Progress)
	require.NotNil(t, result.Subtask.Cost)

	provider, err := store.GetUser(ctx, "provider-1")
	require.NoError(t, err)
	require.Equal(t, *result.Subtask.Cost, provider.Balance)

	requestor, err := store.GetUser(ctx, "requestor-1")
	require.NoError(t, err)
	require.True(t, requestor.Balance < 0)

	reloaded, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusCompleted, reloaded.Status)

	earning, err := store.GetEarningBySubtask(ctx, st.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EarningStatusPaid, earning.Status)
}

func TestCompleteTwiceFailsInvalidState(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine()
	_, st := seedExecutingSubtask(t, ctx, store, "provider-1")

	_, err := eng.Complete(ctx, st.ID, "provider-1", `{"metrics":{"costUsd":"0.10"}}`)
	require.NoError(t, err)

	_, err = eng.Complete(ctx, st.ID, "provider-1", `{"metrics":{"costUsd":"0.10"}}`)
	require.Error(t, err)
}

func TestFailWithoutOtherActiveProvidersFailsTask(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine()
	task, st := seedExecutingSubtask(t, ctx, store, "provider-1")

	updated, err := eng.Fail(ctx, st.ID, "provider-1", "boom")
	require.NoError(t, err)
	require.Equal(t, domain.SubtaskStatusFailed, updated.Status)
	require.False(t, updated.RequiresReassignment)

	reloaded, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusFailed, reloaded.Status)
}

func TestFailWithOtherActiveProvidersRequestsReassignment(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine()
	_, st := seedExecutingSubtask(t, ctx, store, "provider-1")
	_, err := store.UpdateUser(ctx, domain.ApplicationUser{ID: "provider-2", Active: true})
	require.NoError(t, err)

	updated, err := eng.Fail(ctx, st.ID, "provider-1", "boom")
	require.NoError(t, err)
	require.True(t, updated.RequiresReassignment)
	require.Equal(t, domain.SubtaskStatusPending, updated.Status)
	require.Nil(t, updated.AssignedProviderID)
}

func TestFailAllForDeviceFailsEveryAssignedSubtask(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine()
	_, st1 := seedExecutingSubtask(t, ctx, store, "provider-1")

	task2, err := store.CreateTask(ctx, domain.Task{OwnerUserID: "requestor-1", Type: domain.TaskTypeInference, ModelURI: "s3://m2", Status: domain.TaskStatusInProgress})
	require.NoError(t, err)
	pid := "provider-1"
	did := "device-1"
	st2, err := store.CreateSubtask(ctx, domain.Subtask{
		TaskID:             task2.ID,
		Status:             domain.SubtaskStatusAssigned,
		AssignedProviderID: &pid,
		AssignedDeviceID:   &did,
		ParametersJSON:     "{}",
		ExecutionState:     domain.ExecutionState{Phase: domain.PhasePending, ExtendedMetadata: map[string]any{}},
	})
	require.NoError(t, err)

	failed, err := eng.FailAllForDevice(ctx, "device-1", "provider-1")
	require.NoError(t, err)
	require.Len(t, failed, 2)

	ids := map[string]bool{}
	for _, f := range failed {
		ids[f.ID] = true
		require.Equal(t, domain.SubtaskStatusFailed, f.Status)
	}
	require.True(t, ids[st1.ID])
	require.True(t, ids[st2.ID])
}
