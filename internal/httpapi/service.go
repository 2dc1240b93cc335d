package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/meshcompute/inference-marketplace/internal/assignment"
	"github.com/meshcompute/inference-marketplace/internal/dispatch"
	"github.com/meshcompute/inference-marketplace/internal/storage"
	"github.com/meshcompute/inference-marketplace/internal/system"
	"github.com/meshcompute/inference-marketplace/pkg/logger"
)

// Service exposes the HTTP intake surface and fits into the system manager
// lifecycle alongside the Heartbeat Monitor.
type Service struct {
	addr    string
	server  *http.Server
	handler http.Handler
	log     *logger.Logger
}

// NewService builds the HTTP Service bound to addr.
func NewService(addr string, store storage.Store, assignmentEngine *assignment.Engine, gateway *dispatch.Gateway, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return &Service{
		addr:    addr,
		handler: NewRouter(store, assignmentEngine, gateway),
		log:     log,
	}
}

var _ system.Service = (*Service)(nil)

func (s *Service) Name() string { return "http" }

func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithField("error", err.Error()).Error("http server error")
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
