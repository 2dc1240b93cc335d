// Package dispatch implements the Dispatch Channel: the per-device
// WebSocket connection that carries JoinAvailableTasks,
// AcknowledgeExecutionStart, ReportProgress, SubmitResult, and FailedResult
// inbound, and OnExecutionRequested outbound.
package dispatch

import (
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meshcompute/inference-marketplace/internal/assignment"
	"github.com/meshcompute/inference-marketplace/internal/devices"
	"github.com/meshcompute/inference-marketplace/internal/lifecycle"
)

// Gateway upgrades authenticated device connections and wires each one to
// the Assignment and Lifecycle engines.
type Gateway struct {
	upgrader   websocket.Upgrader
	validator  *TokenValidator
	assignment *assignment.Engine
	lifecycle  *lifecycle.Engine
	registry   *devices.Registry
	limiter    *AddrLimiter
	wireLog    *zap.Logger
}

// NewGateway constructs a Gateway. wireLog, if nil, falls back to a no-op
// logger so callers need not wire zap in tests.
func NewGateway(validator *TokenValidator, assignmentEngine *assignment.Engine, lifecycleEngine *lifecycle.Engine, registry *devices.Registry, limiter *AddrLimiter, wireLog *zap.Logger) *Gateway {
	if wireLog == nil {
		wireLog = zap.NewNop()
	}
	if limiter == nil {
		limiter = NewAddrLimiter(DefaultConnLimitConfig())
	}
	return &Gateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		validator:  validator,
		assignment: assignmentEngine,
		lifecycle:  lifecycleEngine,
		registry:   registry,
		limiter:    limiter,
		wireLog:    wireLog,
	}
}

// ServeHTTP handles the handshake: bearer token verification, per-address
// rate limiting, and the upgrade to a WebSocket connection.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	remoteAddr := remoteAddrOf(r)
	if !g.limiter.Allow(remoteAddr) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	deviceID := strings.TrimSpace(r.URL.Query().Get("device_id"))
	if deviceID == "" {
		http.Error(w, "missing device_id", http.StatusBadRequest)
		return
	}

	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	claims, err := g.validator.Validate(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.wireLog.Warn("upgrade failed", zap.Error(err), zap.String("remote_addr", remoteAddr))
		return
	}

	c := newConnection(g, conn, claims.ProviderUserID, deviceID, remoteAddr)
	go c.run(r.Context())
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func remoteAddrOf(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
