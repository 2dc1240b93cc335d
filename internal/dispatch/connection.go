package dispatch

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meshcompute/inference-marketplace/internal/domain"
)

// hardwareCapabilitiesWire is the JSON shape a device sends as the sole
// argument to JoinAvailableTasks.
type hardwareCapabilitiesWire struct {
	CPUTops float64 `json:"cpuTops"`
	GPUTops float64 `json:"gpuTops"`
	NPUTops float64 `json:"npuTops"`
	RAMMB   int64   `json:"ramMb"`
}

// connection is one device's live WebSocket session: a read goroutine
// decoding inbound envelopes and a write goroutine draining the depth-1
// outbound channel, per §4.7.
type connection struct {
	gateway    *Gateway
	conn       *websocket.Conn
	providerID string
	deviceID   string
	sessionID  string
	remoteAddr string

	// outbound is buffered to depth 1: the Dispatch Channel never has more
	// than one OnExecutionRequested outstanding for a device at a time.
	outbound chan []byte
	closed   chan struct{}
}

func newConnection(g *Gateway, conn *websocket.Conn, providerID, deviceID, remoteAddr string) *connection {
	return &connection{
		gateway:    g,
		conn:       conn,
		providerID: providerID,
		deviceID:   deviceID,
		sessionID:  uuid.NewString(),
		remoteAddr: remoteAddr,
		outbound:   make(chan []byte, 1),
		closed:     make(chan struct{}),
	}
}

func (c *connection) run(ctx context.Context) {
	c.gateway.wireLog.Info("dispatch connection opened",
		zap.String("device_id", c.deviceID),
		zap.String("provider_id", c.providerID),
		zap.String("session_id", c.sessionID),
		zap.String("remote_addr", c.remoteAddr),
	)

	if _, err := c.gateway.registry.Attach(ctx, c.providerID, c.deviceID, c.sessionID, domain.DeviceCapabilities{}); err != nil {
		c.gateway.wireLog.Warn("attach failed", zap.Error(err))
		_ = c.conn.Close()
		return
	}

	go c.writePump()
	c.readPump(ctx)

	close(c.closed)
	c.gateway.registry.Detach(ctx, c.deviceID, c.sessionID, "connection closed")
	c.gateway.wireLog.Info("dispatch connection closed",
		zap.String("device_id", c.deviceID),
		zap.String("session_id", c.sessionID),
	)
}

func (c *connection) readPump(ctx context.Context) {
	defer func() { _ = c.conn.Close() }()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.gateway.wireLog.Debug("read error, closing", zap.Error(err), zap.String("device_id", c.deviceID))
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.gateway.wireLog.Warn("malformed envelope", zap.Error(err), zap.String("device_id", c.deviceID))
			continue
		}
		c.handle(ctx, env)
	}
}

func (c *connection) writePump() {
	for {
		select {
		case msg, ok := <-c.outbound:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.gateway.wireLog.Debug("write error", zap.Error(err), zap.String("device_id", c.deviceID))
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *connection) handle(ctx context.Context, env Envelope) {
	switch env.Method {
	case MethodJoinAvailableTasks:
		c.handleJoinAvailableTasks(ctx, env)
	case MethodAcknowledgeExecutionStart:
		c.handleAcknowledge(ctx, env)
	case MethodReportProgress:
		c.handleReportProgress(ctx, env)
	case MethodSubmitResult:
		c.handleSubmitResult(ctx, env)
	case MethodFailedResult:
		c.handleFailedResult(ctx, env)
	default:
		c.gateway.wireLog.Warn("unknown method", zap.String("method", env.Method), zap.String("device_id", c.deviceID))
	}
}

func (c *connection) handleJoinAvailableTasks(ctx context.Context, env Envelope) {
	caps := domain.DeviceCapabilities{}
	if len(env.Args) > 0 {
		var wire hardwareCapabilitiesWire
		if err := json.Unmarshal(env.Args[0], &wire); err == nil {
			caps = domain.DeviceCapabilities{
				CPUTops: wire.CPUTops,
				GPUTops: wire.GPUTops,
				NPUTops: wire.NPUTops,
				RAMMB:   wire.RAMMB,
				Raw:     string(env.Args[0]),
			}
		}
	}

	assignment, err := c.gateway.assignment.Offer(ctx, c.providerID, c.deviceID, caps)
	if err != nil {
		c.gateway.wireLog.Warn("offer failed", zap.Error(err), zap.String("device_id", c.deviceID))
		return
	}
	if assignment == nil {
		return
	}
	c.pushExecutionRequested(assignment.Subtask.ID, assignment.Task.ID, assignment.Subtask.ParametersJSON, assignment.Subtask.ExecutionState)
}

func (c *connection) pushExecutionRequested(subtaskID, taskID, parametersJSON string, state domain.ExecutionState) {
	readURI := ""
	if state.ExtendedMetadata != nil {
		if v, ok := state.ExtendedMetadata["onnxReadUri"].(string); ok {
			readURI = v
		}
	}
	payload := OnExecutionRequestedArgs{Subtask: SubtaskPush{
		ID:             subtaskID,
		TaskID:         taskID,
		ParametersJSON: parametersJSON,
		OnnxModel:      OnnxModelRef{ReadURI: readURI},
	}}
	argBytes, err := json.Marshal(payload)
	if err != nil {
		c.gateway.wireLog.Warn("marshal push args failed", zap.Error(err))
		return
	}
	env := Envelope{Method: MethodOnExecutionRequested, Args: []json.RawMessage{argBytes}}
	body, err := json.Marshal(env)
	if err != nil {
		c.gateway.wireLog.Warn("marshal push envelope failed", zap.Error(err))
		return
	}
	select {
	case c.outbound <- body:
	default:
		c.gateway.wireLog.Warn("outbound channel full, dropping push",
			zap.String("device_id", c.deviceID), zap.String("subtask_id", subtaskID))
	}
}

type subtaskIDArg struct {
	ID string `json:"id"`
}

type progressArg struct {
	ID      string `json:"id"`
	Percent int    `json:"percent"`
}

type resultArg struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
}

type failureArg struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

func (c *connection) handleAcknowledge(ctx context.Context, env Envelope) {
	var arg subtaskIDArg
	if !decodeFirstArg(env, &arg) {
		return
	}
	if _, err := c.gateway.lifecycle.AcknowledgeExecutionStart(ctx, arg.ID, c.providerID); err != nil {
		c.gateway.wireLog.Warn("acknowledge failed", zap.Error(err), zap.String("subtask_id", arg.ID))
	}
}

func (c *connection) handleReportProgress(ctx context.Context, env Envelope) {
	var arg progressArg
	if !decodeFirstArg(env, &arg) {
		return
	}
	if _, err := c.gateway.lifecycle.UpdateProgress(ctx, arg.ID, c.providerID, arg.Percent); err != nil {
		c.gateway.wireLog.Warn("progress update failed", zap.Error(err), zap.String("subtask_id", arg.ID))
	}
}

func (c *connection) handleSubmitResult(ctx context.Context, env Envelope) {
	var arg resultArg
	if !decodeFirstArg(env, &arg) {
		return
	}
	if _, err := c.gateway.lifecycle.Complete(ctx, arg.ID, c.providerID, string(arg.Result)); err != nil {
		c.gateway.wireLog.Warn("complete failed", zap.Error(err), zap.String("subtask_id", arg.ID))
	}
}

func (c *connection) handleFailedResult(ctx context.Context, env Envelope) {
	var arg failureArg
	if !decodeFirstArg(env, &arg) {
		return
	}
	if _, err := c.gateway.lifecycle.Fail(ctx, arg.ID, c.providerID, arg.Reason); err != nil {
		c.gateway.wireLog.Warn("fail failed", zap.Error(err), zap.String("subtask_id", arg.ID))
	}
}

func decodeFirstArg(env Envelope, out any) bool {
	if len(env.Args) == 0 {
		return false
	}
	return json.Unmarshal(env.Args[0], out) == nil
}
