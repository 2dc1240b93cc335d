package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meshcompute/inference-marketplace/internal/core/service"
	"github.com/meshcompute/inference-marketplace/internal/domain"
)

// callerUserID reads the stub caller-identity header. Real authentication
// (API keys, JWT) is an out-of-scope collaborator per §6; this header is
// the placeholder seam a gateway in front of this service would populate.
func callerUserID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

type inferenceBinding struct {
	Name    string `json:"name"`
	ReadURI string `json:"readUri"`
}

type createTaskRequest struct {
	ID                 string             `json:"id"`
	Type               domain.TaskType    `json:"type"`
	ModelURI           string             `json:"modelUri"`
	FillBindingsViaAPI bool               `json:"fillBindingsViaApi"`
	InitialSubtaskID   string             `json:"initialSubtaskId"`
	Inference          *inferencePayload  `json:"inference"`
}

type inferencePayload struct {
	Bindings []inferenceBinding `json:"bindings"`
	Outputs  []string           `json:"outputs"`
}

type createTaskResponse struct {
	Task    domain.Task     `json:"task"`
	Subtask *domain.Subtask `json:"subtask,omitempty"`
}

// createTask implements POST /api/tasks/create (§6). It persists the Task
// row and, when the caller supplies an initial subtask id, a single Pending
// Subtask ready for the Assignment Engine to offer.
func (h *handler) createTask(w http.ResponseWriter, r *http.Request) {
	owner := callerUserID(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("X-User-Id header is required"))
		return
	}

	var req createTaskRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Type != domain.TaskTypeTrain && req.Type != domain.TaskTypeInference {
		writeError(w, http.StatusBadRequest, fmt.Errorf("type must be %q or %q", domain.TaskTypeTrain, domain.TaskTypeInference))
		return
	}
	if strings.TrimSpace(req.ModelURI) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("modelUri is required"))
		return
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	task := domain.Task{
		ID:                 id,
		OwnerUserID:        owner,
		Type:               req.Type,
		ModelURI:           req.ModelURI,
		FillBindingsViaAPI: req.FillBindingsViaAPI,
		Status:             domain.TaskStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	task, err := h.store.CreateTask(r.Context(), task)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := createTaskResponse{Task: task}
	if subtaskID := strings.TrimSpace(req.InitialSubtaskID); subtaskID != "" {
		st := domain.Subtask{
			ID:             subtaskID,
			TaskID:         task.ID,
			Status:         domain.SubtaskStatusPending,
			ParametersJSON: parametersJSONFor(req.Inference),
			CreatedAt:      now,
			ExecutionState: domain.ExecutionState{Phase: domain.PhasePending, ExtendedMetadata: map[string]any{}},
		}
		st, err := h.store.CreateSubtask(r.Context(), st)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		resp.Subtask = &st
	}

	writeJSON(w, http.StatusCreated, resp)
}

func parametersJSONFor(p *inferencePayload) string {
	if p == nil {
		return "{}"
	}
	var b strings.Builder
	b.WriteString(`{"bindings":[`)
	for i, bind := range p.Bindings {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"name":%q,"readUri":%q}`, bind.Name, bind.ReadURI)
	}
	b.WriteString(`],"outputs":[`)
	for i, o := range p.Outputs {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%q", o)
	}
	b.WriteString("]}")
	return b.String()
}

// uploadFileType mirrors §6's File types: Model (0), Input (1), Output (2).
type uploadFileType int

const (
	uploadFileTypeModel uploadFileType = iota
	uploadFileTypeInput
	uploadFileTypeOutput
)

type uploadURLRequest struct {
	TaskID   string         `json:"taskId"`
	FileType uploadFileType `json:"fileType"`
	FileName string         `json:"fileName"`
}

// uploadURL implements POST /api/tasks/upload-url. The object store is an
// out-of-scope collaborator, so this returns a 501 placeholder rather than
// a real signed URL; the handler exists so the core has a caller to wire
// upload-URL-TTL configuration against.
func (h *handler) uploadURL(w http.ResponseWriter, r *http.Request) {
	var req uploadURLRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.FileType < uploadFileTypeModel || req.FileType > uploadFileTypeOutput {
		writeError(w, http.StatusBadRequest, fmt.Errorf("fileType must be 0 (Model), 1 (Input), or 2 (Output)"))
		return
	}
	writeError(w, http.StatusNotImplemented, fmt.Errorf("upload-url issuance requires an object-store collaborator, not configured"))
}

// myTasks implements GET /api/tasks/my-tasks?status=…&limit=….
func (h *handler) myTasks(w http.ResponseWriter, r *http.Request) {
	owner := callerUserID(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("X-User-Id header is required"))
		return
	}
	var statusFilter *domain.TaskStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		s := domain.TaskStatus(raw)
		statusFilter = &s
	}
	requested, _ := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit")))
	limit := service.ClampLimit(requested, service.DefaultListLimit, service.MaxListLimit)
	tasks, err := h.store.ListTasksByOwner(r.Context(), owner, statusFilter, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// taskSubtasks implements GET /api/tasks/{id}/subtasks.
func (h *handler) taskSubtasks(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if _, err := h.store.GetTask(r.Context(), taskID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	subtasks, err := h.store.ListSubtasksByTask(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, subtasks)
}
