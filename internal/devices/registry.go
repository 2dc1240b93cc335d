// Package devices implements the Device Registry: the live session map for
// connected provider devices, plus an optional Redis mirror of last-seen
// timestamps for multi-replica deployments.
package devices

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/meshcompute/inference-marketplace/internal/domain"
	"github.com/meshcompute/inference-marketplace/internal/lifecycle"
	"github.com/meshcompute/inference-marketplace/internal/storage"
	"github.com/meshcompute/inference-marketplace/pkg/logger"
)

// session is the in-memory record of one live connection.
type session struct {
	sessionID string
	deviceID  string
	providerID string
}

// Registry tracks connected devices. All correctness-critical mutation
// flows through the single mutex guarding sessions; Redis, when configured,
// only mirrors a liveness hint and is never consulted for ownership.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]session // deviceID -> current session

	store     storage.Store
	lifecycle *lifecycle.Engine
	redis     *redis.Client
	log       *logger.Logger
}

// New constructs a Registry. redisClient may be nil, in which case
// last-seen is tracked only in-process.
func New(store storage.Store, lifecycleEngine *lifecycle.Engine, redisClient *redis.Client, lg *logger.Logger) *Registry {
	return &Registry{
		sessions:  make(map[string]session),
		store:     store,
		lifecycle: lifecycleEngine,
		redis:     redisClient,
		log:       lg,
	}
}

// Attach upserts the Device row and records the new session as current for
// deviceID, per §4.6's attach(providerId, deviceId, capabilities).
func (r *Registry) Attach(ctx context.Context, providerID, deviceID, sessionID string, caps domain.DeviceCapabilities) (domain.Device, error) {
	now := time.Now().UTC()
	d, err := r.store.UpsertDevice(ctx, domain.Device{
		ID:                  deviceID,
		OwnerProviderUserID: providerID,
		Capabilities:        caps,
		LastSeen:            now,
	})
	if err != nil {
		return domain.Device{}, err
	}

	r.mu.Lock()
	r.sessions[deviceID] = session{sessionID: sessionID, deviceID: deviceID, providerID: providerID}
	r.mu.Unlock()

	r.mirrorLastSeen(ctx, deviceID, now)
	return d, nil
}

// HeartbeatObserved refreshes last-seen for deviceID.
func (r *Registry) HeartbeatObserved(ctx context.Context, deviceID string) error {
	d, err := r.store.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	d.LastSeen = time.Now().UTC()
	if _, err := r.store.UpsertDevice(ctx, d); err != nil {
		return err
	}
	r.mirrorLastSeen(ctx, deviceID, d.LastSeen)
	return nil
}

// Detach closes the session if sessionID still matches the current one for
// deviceID, and triggers failAllForDevice for any in-flight work.
func (r *Registry) Detach(ctx context.Context, deviceID, sessionID, reason string) {
	r.mu.Lock()
	current, ok := r.sessions[deviceID]
	if !ok || current.sessionID != sessionID {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, deviceID)
	providerID := current.providerID
	r.mu.Unlock()

	if d, err := r.store.GetDevice(ctx, deviceID); err == nil {
		d.LastDisconnectReason = reason
		_, _ = r.store.UpsertDevice(ctx, d)
	}

	if _, err := r.lifecycle.FailAllForDevice(ctx, deviceID, providerID); err != nil && r.log != nil {
		r.log.WithField("device_id", deviceID).WithField("error", err.Error()).Warn("failAllForDevice encountered an error")
	}
}

// IsCurrentSession reports whether sessionID is still the live session for
// deviceID, used by the dispatch channel to decide whether an inbound
// message from a stale connection should be ignored.
func (r *Registry) IsCurrentSession(deviceID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[deviceID]
	return ok && s.sessionID == sessionID
}

func (r *Registry) mirrorLastSeen(ctx context.Context, deviceID string, at time.Time) {
	if r.redis == nil {
		return
	}
	key := "device:last_seen:" + deviceID
	if err := r.redis.Set(ctx, key, at.Format(time.RFC3339), 24*time.Hour).Err(); err != nil && r.log != nil {
		r.log.WithField("device_id", deviceID).WithField("error", err.Error()).Warn("redis last-seen mirror failed")
	}
}
