package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshcompute/inference-marketplace/internal/assignment"
	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/storage/memory"
	"github.com/meshcompute/inference-marketplace/internal/timeline"
	"github.com/meshcompute/inference-marketplace/pkg/logger"
)

func newTestRouter() (http.Handler, *memory.Memory) {
	store := memory.NewMemory()
	eng := assignment.New(store, timeline.New(), logger.NewDefault("httpapi-test"), assignment.Config{})
	return NewRouter(store, eng, nil), store
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateTaskRequiresCallerID(t *testing.T) {
	router, _ := newTestRouter()
	body := bytes.NewBufferString(`{"type":"inference","modelUri":"s3://m"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/create", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateTaskValidatesType(t *testing.T) {
	router, _ := newTestRouter()
	body := bytes.NewBufferString(`{"type":"bogus","modelUri":"s3://m"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/create", body)
	req.Header.Set("X-User-Id", "requestor-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTaskWithInitialSubtask(t *testing.T) {
	router, store := newTestRouter()
	body := bytes.NewBufferString(`{"type":"inference","modelUri":"s3://m","initialSubtaskId":"st-1","inference":{"bindings":[{"name":"x","readUri":"s3://in"}],"outputs":["y"]}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/create", body)
	req.Header.Set("X-User-Id", "requestor-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp createTaskResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Task.ID)
	require.NotNil(t, resp.Subtask)
	require.Equal(t, "st-1", resp.Subtask.ID)

	stored, err := store.GetSubtask(context.Background(), "st-1")
	require.NoError(t, err)
	require.Equal(t, domain.SubtaskStatusPending, stored.Status)
}

func TestUploadURLReturnsNotImplemented(t *testing.T) {
	router, _ := newTestRouter()
	body := bytes.NewBufferString(`{"taskId":"t1","fileType":0,"fileName":"model.onnx"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/upload-url", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestUploadURLValidatesFileType(t *testing.T) {
	router, _ := newTestRouter()
	body := bytes.NewBufferString(`{"taskId":"t1","fileType":99,"fileName":"model.onnx"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/upload-url", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMyTasksRequiresCallerID(t *testing.T) {
	router, _ := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/tasks/my-tasks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMyTasksListsOwnedTasks(t *testing.T) {
	router, store := newTestRouter()
	_, err := store.CreateTask(context.Background(), domain.Task{ID: "t1", OwnerUserID: "requestor-1", Type: domain.TaskTypeInference, ModelURI: "s3://m", Status: domain.TaskStatusPending})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/my-tasks", nil)
	req.Header.Set("X-User-Id", "requestor-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var tasks []domain.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tasks))
	require.Len(t, tasks, 1)
	require.Equal(t, "t1", tasks[0].ID)
}

func TestMyTasksRespectsLimitQueryParam(t *testing.T) {
	router, store := newTestRouter()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := store.CreateTask(ctx, domain.Task{OwnerUserID: "requestor-1", Type: domain.TaskTypeInference, ModelURI: "s3://m", Status: domain.TaskStatusPending})
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/my-tasks?limit=2", nil)
	req.Header.Set("X-User-Id", "requestor-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var tasks []domain.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tasks))
	require.Len(t, tasks, 2)
}

func TestTaskSubtasksNotFound(t *testing.T) {
	router, _ := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/tasks/missing/subtasks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskSubtasksListsChildren(t *testing.T) {
	router, store := newTestRouter()
	ctx := context.Background()
	task, err := store.CreateTask(ctx, domain.Task{OwnerUserID: "requestor-1", Type: domain.TaskTypeInference, ModelURI: "s3://m", Status: domain.TaskStatusPending})
	require.NoError(t, err)
	_, err = store.CreateSubtask(ctx, domain.Subtask{TaskID: task.ID, Status: domain.SubtaskStatusPending, ParametersJSON: "{}"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+task.ID+"/subtasks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var subtasks []domain.Subtask
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&subtasks))
	require.Len(t, subtasks, 1)
}
