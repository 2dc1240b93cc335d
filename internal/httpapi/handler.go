// Package httpapi exposes the out-of-scope collaborator contracts from
// §6 as thin chi handlers over the dispatch/lifecycle core: task creation,
// upload-URL issuance (stubbed; the object store is a separate
// collaborator), and the read views my-tasks/subtasks. It also mounts the
// Dispatch Channel's WebSocket upgrade and the operability endpoints.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meshcompute/inference-marketplace/internal/assignment"
	"github.com/meshcompute/inference-marketplace/internal/dispatch"
	"github.com/meshcompute/inference-marketplace/internal/storage"
)

// handler bundles the dependencies the intake endpoints read from.
type handler struct {
	store      storage.Store
	assignment *assignment.Engine
}

// NewRouter builds the HTTP surface: /api/tasks/*, /healthz, /metrics, and
// the Dispatch Channel WebSocket upgrade at /dispatch.
func NewRouter(store storage.Store, assignmentEngine *assignment.Engine, gateway *dispatch.Gateway) http.Handler {
	h := &handler{store: store, assignment: assignmentEngine}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/tasks", func(rt chi.Router) {
		rt.Post("/create", h.createTask)
		rt.Post("/upload-url", h.uploadURL)
		rt.Get("/my-tasks", h.myTasks)
		rt.Get("/{id}/subtasks", h.taskSubtasks)
	})

	if gateway != nil {
		r.Handle("/dispatch", gateway)
	}

	return r
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
