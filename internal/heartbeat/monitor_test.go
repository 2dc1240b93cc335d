package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/ledger"
	"github.com/meshcompute/inference-marketplace/internal/lifecycle"
	"github.com/meshcompute/inference-marketplace/internal/storage/memory"
	"github.com/meshcompute/inference-marketplace/internal/timeline"
)

func TestTickFailsTimedOutSubtasks(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemory()
	lc := lifecycle.New(store, timeline.New(), ledger.New("1.20"))

	_, err := store.UpdateUser(ctx, domain.ApplicationUser{ID: "requestor-1", Active: true})
	require.NoError(t, err)
	_, err = store.UpdateUser(ctx, domain.ApplicationUser{ID: "provider-1", Active: true})
	require.NoError(t, err)

	task, err := store.CreateTask(ctx, domain.Task{OwnerUserID: "requestor-1", Type: domain.TaskTypeInference, ModelURI: "s3://m", Status: domain.TaskStatusInProgress})
	require.NoError(t, err)

	past := time.Now().UTC().Add(-1 * time.Minute)
	pid, did := "provider-1", "device-1"
	st, err := store.CreateSubtask(ctx, domain.Subtask{
		TaskID: task.ID, Status: domain.SubtaskStatusExecuting,
		AssignedProviderID: &pid, AssignedDeviceID: &did, ParametersJSON: "{}",
		NextHeartbeatDue: &past,
		ExecutionState:   domain.ExecutionState{Phase: domain.PhaseExecuting, ExtendedMetadata: map[string]any{}},
	})
	require.NoError(t, err)

	mon := New(store, lc, "", nil)
	mon.tick(ctx)

	reloaded, err := store.GetSubtask(ctx, st.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SubtaskStatusFailed, reloaded.Status)
	require.NotNil(t, reloaded.FailureReason)
	require.Equal(t, "Heartbeat timeout", *reloaded.FailureReason)
}

func TestTickIgnoresSubtasksNotYetDue(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemory()
	lc := lifecycle.New(store, timeline.New(), ledger.New("1.20"))

	_, err := store.UpdateUser(ctx, domain.ApplicationUser{ID: "requestor-1", Active: true})
	require.NoError(t, err)
	_, err = store.UpdateUser(ctx, domain.ApplicationUser{ID: "provider-1", Active: true})
	require.NoError(t, err)

	task, err := store.CreateTask(ctx, domain.Task{OwnerUserID: "requestor-1", Type: domain.TaskTypeInference, ModelURI: "s3://m", Status: domain.TaskStatusInProgress})
	require.NoError(t, err)

	future := time.Now().UTC().Add(1 * time.Hour)
	pid, did := "provider-1", "device-1"
	st, err := store.CreateSubtask(ctx, domain.Subtask{
		TaskID: task.ID, Status: domain.SubtaskStatusExecuting,
		AssignedProviderID: &pid, AssignedDeviceID: &did, ParametersJSON: "{}",
		NextHeartbeatDue: &future,
		ExecutionState:   domain.ExecutionState{Phase: domain.PhaseExecuting, ExtendedMetadata: map[string]any{}},
	})
	require.NoError(t, err)

	mon := New(store, lc, "", nil)
	mon.tick(ctx)

	reloaded, err := store.GetSubtask(ctx, st.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SubtaskStatusExecuting, reloaded.Status)
}

func TestStartStopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemory()
	lc := lifecycle.New(store, timeline.New(), ledger.New("1.20"))
	mon := New(store, lc, "*/1 * * * * *", nil)

	require.NoError(t, mon.Start(ctx))
	require.NoError(t, mon.Start(ctx))
	require.NoError(t, mon.Stop(ctx))
	require.NoError(t, mon.Stop(ctx))
}
