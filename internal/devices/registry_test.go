package devices

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/ledger"
	"github.com/meshcompute/inference-marketplace/internal/lifecycle"
	"github.com/meshcompute/inference-marketplace/internal/storage/memory"
	"github.com/meshcompute/inference-marketplace/internal/timeline"
)

func newTestRegistry() (*Registry, *memory.Memory, *lifecycle.Engine) {
	store := memory.NewMemory()
	lc := lifecycle.New(store, timeline.New(), ledger.New("1.20"))
	return New(store, lc, nil, nil), store, lc
}

func TestAttachUpsertsDeviceAndTracksSession(t *testing.T) {
	ctx := context.Background()
	reg, store, _ := newTestRegistry()

	_, err := reg.Attach(ctx, "provider-1", "device-1", "session-a", domain.DeviceCapabilities{Raw: "cpu"})
	require.NoError(t, err)
	require.True(t, reg.IsCurrentSession("device-1", "session-a"))

	d, err := store.GetDevice(ctx, "device-1")
	require.NoError(t, err)
	require.Equal(t, "provider-1", d.OwnerProviderUserID)
}

func TestAttachReplacesPriorSession(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry()

	_, err := reg.Attach(ctx, "provider-1", "device-1", "session-a", domain.DeviceCapabilities{})
	require.NoError(t, err)
	_, err = reg.Attach(ctx, "provider-1", "device-1", "session-b", domain.DeviceCapabilities{})
	require.NoError(t, err)

	require.False(t, reg.IsCurrentSession("device-1", "session-a"))
	require.True(t, reg.IsCurrentSession("device-1", "session-b"))
}

func TestDetachIgnoresStaleSession(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry()

	_, err := reg.Attach(ctx, "provider-1", "device-1", "session-a", domain.DeviceCapabilities{})
	require.NoError(t, err)
	_, err = reg.Attach(ctx, "provider-1", "device-1", "session-b", domain.DeviceCapabilities{})
	require.NoError(t, err)

	reg.Detach(ctx, "device-1", "session-a", "stale disconnect")
	require.True(t, reg.IsCurrentSession("device-1", "session-b"))
}

func TestDetachFailsInFlightSubtasksForDevice(t *testing.T) {
	ctx := context.Background()
	reg, store, _ := newTestRegistry()

	_, err := store.UpdateUser(ctx, domain.ApplicationUser{ID: "provider-1", Active: true})
	require.NoError(t, err)
	_, err = store.UpdateUser(ctx, domain.ApplicationUser{ID: "requestor-1", Active: true})
	require.NoError(t, err)

	task, err := store.CreateTask(ctx, domain.Task{OwnerUserID: "requestor-1", Type: domain.TaskTypeInference, ModelURI: "s3://m", Status: domain.TaskStatusInProgress})
	require.NoError(t, err)
	pid, did := "provider-1", "device-1"
	st, err := store.CreateSubtask(ctx, domain.Subtask{
		TaskID: task.ID, Status: domain.SubtaskStatusExecuting,
		AssignedProviderID: &pid, AssignedDeviceID: &did, ParametersJSON: "{}",
		ExecutionState: domain.ExecutionState{Phase: domain.PhaseExecuting, ExtendedMetadata: map[string]any{}},
	})
	require.NoError(t, err)

	_, err = reg.Attach(ctx, "provider-1", "device-1", "session-a", domain.DeviceCapabilities{})
	require.NoError(t, err)

	reg.Detach(ctx, "device-1", "session-a", "socket closed")

	reloaded, err := store.GetSubtask(ctx, st.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SubtaskStatusFailed, reloaded.Status)

	d, err := store.GetDevice(ctx, "device-1")
	require.NoError(t, err)
	require.Equal(t, "socket closed", d.LastDisconnectReason)
}
