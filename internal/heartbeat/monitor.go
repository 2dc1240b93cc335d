// Package heartbeat implements the Heartbeat Monitor: a lifecycle-managed
// background service that sweeps for subtasks whose next-heartbeat-due has
// elapsed and fails them.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	core "github.com/meshcompute/inference-marketplace/internal/core/service"
	"github.com/meshcompute/inference-marketplace/internal/lifecycle"
	"github.com/meshcompute/inference-marketplace/internal/storage"
	"github.com/meshcompute/inference-marketplace/pkg/logger"
)

// Monitor sweeps for heartbeat timeouts on a cron schedule.
type Monitor struct {
	store     storage.Store
	lifecycle *lifecycle.Engine
	schedule  string
	log       *logger.Logger
	tracer    core.Tracer
	hooks     core.ObservationHooks

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	running bool
}

// New constructs a Monitor. schedule is a six-field (seconds-enabled) cron
// expression; an empty schedule defaults to every 30 seconds, the spec's
// suggested tick.
func New(store storage.Store, lifecycleEngine *lifecycle.Engine, schedule string, log *logger.Logger) *Monitor {
	if schedule == "" {
		schedule = "*/30 * * * * *"
	}
	if log == nil {
		log = logger.NewDefault("heartbeat-monitor")
	}
	return &Monitor{
		store:     store,
		lifecycle: lifecycleEngine,
		schedule:  schedule,
		log:       log,
		tracer:    core.NoopTracer,
		hooks:     core.NoopObservationHooks,
	}
}

// WithTracer configures span emission for each sweep tick.
func (m *Monitor) WithTracer(tracer core.Tracer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tracer == nil {
		tracer = core.NoopTracer
	}
	m.tracer = tracer
}

// WithObservationHooks configures start/complete callbacks for each tick.
func (m *Monitor) WithObservationHooks(hooks core.ObservationHooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = hooks
}

func (m *Monitor) Name() string { return "heartbeat-monitor" }

func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	c := cron.New(cron.WithSeconds())
	id, err := c.AddFunc(m.schedule, func() { m.tick(ctx) })
	if err != nil {
		return err
	}
	m.entryID = id
	m.cron = c
	m.running = true
	c.Start()
	return nil
}

func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.cron.Remove(m.entryID)
	stopCtx := m.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	m.running = false
	return nil
}

func (m *Monitor) tick(ctx context.Context) {
	done := core.StartObservation(ctx, m.hooks, map[string]string{"component": "heartbeat-monitor"})
	spanCtx, end := m.tracer.StartSpan(ctx, "heartbeat.sweep")
	defer end()

	var sweepErr error
	defer func() { done(sweepErr) }()

	timedOut, err := m.store.ListHeartbeatTimedOut(spanCtx, time.Now().UTC())
	if err != nil {
		sweepErr = err
		m.log.WithField("error", err.Error()).Warn("heartbeat sweep: list failed")
		return
	}
	for _, st := range timedOut {
		providerID := ""
		if st.AssignedProviderID != nil {
			providerID = *st.AssignedProviderID
		}
		if _, err := m.lifecycle.Fail(spanCtx, st.ID, providerID, "Heartbeat timeout"); err != nil {
			m.log.WithField("subtask_id", st.ID).WithField("error", err.Error()).Warn("heartbeat sweep: fail failed")
		}
	}
}
