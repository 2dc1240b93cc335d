package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/meshcompute/inference-marketplace/internal/assignment"
	"github.com/meshcompute/inference-marketplace/internal/devices"
	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/lifecycle"
	"github.com/meshcompute/inference-marketplace/internal/ledger"
	"github.com/meshcompute/inference-marketplace/internal/storage/memory"
	"github.com/meshcompute/inference-marketplace/internal/timeline"
	"github.com/meshcompute/inference-marketplace/pkg/logger"
)

func newTestGateway(t *testing.T) (*Gateway, *memory.Memory) {
	t.Helper()
	store := memory.NewMemory()
	log := timeline.New()
	lg := logger.NewDefault("dispatch-test")
	assignEngine := assignment.New(store, log, lg, assignment.Config{})
	lifecycleEngine := lifecycle.New(store, log, ledger.New("1.20"))
	registry := devices.New(store, lifecycleEngine, nil, lg)
	validator := NewTokenValidator("secret", "", "")
	gw := NewGateway(validator, assignEngine, lifecycleEngine, registry, NewAddrLimiter(DefaultConnLimitConfig()), nil)
	return gw, store
}

func deviceToken(t *testing.T, providerID string) string {
	t.Helper()
	claims := DeviceClaims{
		ProviderUserID: providerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

func TestGatewayRejectsMissingDeviceID(t *testing.T) {
	gw, _ := newTestGateway(t)
	srv := httptest.NewServer(gw)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+deviceToken(t, "provider-1"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGatewayRejectsInvalidToken(t *testing.T) {
	gw, _ := newTestGateway(t)
	srv := httptest.NewServer(gw)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"?device_id=device-1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayJoinAvailableTasksReceivesPush(t *testing.T) {
	gw, store := newTestGateway(t)
	srv := httptest.NewServer(gw)
	defer srv.Close()

	ctx := context.Background()
	_, err := store.UpdateUser(ctx, domain.ApplicationUser{ID: "requestor-1", Active: true})
	require.NoError(t, err)
	_, err = store.UpdateUser(ctx, domain.ApplicationUser{ID: "provider-1", Active: true})
	require.NoError(t, err)
	task, err := store.CreateTask(ctx, domain.Task{OwnerUserID: "requestor-1", Type: domain.TaskTypeInference, ModelURI: "s3://m", Status: domain.TaskStatusPending})
	require.NoError(t, err)
	_, err = store.CreateSubtask(ctx, domain.Subtask{
		TaskID: task.ID, Status: domain.SubtaskStatusPending, ParametersJSON: "{}",
		ExecutionState: domain.ExecutionState{Phase: domain.PhasePending, ExtendedMetadata: map[string]any{}},
	})
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?device_id=device-1"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+deviceToken(t, "provider-1"))
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	defer conn.Close()

	join := Envelope{Method: MethodJoinAvailableTasks, Args: []json.RawMessage{json.RawMessage(`{"cpuTops":1,"ramMb":1024}`)}}
	body, err := json.Marshal(join)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, body))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	require.Equal(t, MethodOnExecutionRequested, env.Method)

	var args OnExecutionRequestedArgs
	require.NoError(t, json.Unmarshal(env.Args[0], &args))
	require.NotEmpty(t, args.Subtask.ID)
	require.Equal(t, task.ID, args.Subtask.TaskID)
}

func TestGatewayRateLimitsRepeatedConnections(t *testing.T) {
	store := memory.NewMemory()
	log := timeline.New()
	lg := logger.NewDefault("dispatch-test")
	assignEngine := assignment.New(store, log, lg, assignment.Config{})
	lifecycleEngine := lifecycle.New(store, log, ledger.New("1.20"))
	registry := devices.New(store, lifecycleEngine, nil, lg)
	validator := NewTokenValidator("secret", "", "")
	gw := NewGateway(validator, assignEngine, lifecycleEngine, registry, NewAddrLimiter(ConnLimitConfig{RequestsPerSecond: 1, Burst: 1}), nil)

	srv := httptest.NewServer(gw)
	defer srv.Close()

	doHandshake := func() int {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"?device_id=device-1", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+deviceToken(t, "provider-1"))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	first := doHandshake()
	second := doHandshake()
	require.NotEqual(t, http.StatusTooManyRequests, first)
	require.Equal(t, http.StatusTooManyRequests, second)
}
