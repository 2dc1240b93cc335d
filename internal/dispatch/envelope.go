package dispatch

import "encoding/json"

// Envelope is the wire format for every device -> server and server ->
// device message: {method, args[]}.
type Envelope struct {
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
}

// Inbound method names a device may send.
const (
	MethodJoinAvailableTasks       = "JoinAvailableTasks"
	MethodAcknowledgeExecutionStart = "AcknowledgeExecutionStart"
	MethodReportProgress           = "ReportProgress"
	MethodSubmitResult             = "SubmitResult"
	MethodFailedResult             = "FailedResult"
)

// MethodOnExecutionRequested is the only server -> device method.
const MethodOnExecutionRequested = "OnExecutionRequested"

// OnnxModelRef describes where the device should read the model from.
type OnnxModelRef struct {
	ReadURI string `json:"readUri"`
}

// SubtaskPush is the payload carried by OnExecutionRequested.
type SubtaskPush struct {
	ID             string       `json:"id"`
	TaskID         string       `json:"taskId"`
	ParametersJSON string       `json:"parametersJson"`
	OnnxModel      OnnxModelRef `json:"onnxModel"`
}

// OnExecutionRequestedArgs wraps SubtaskPush per the {subtask: {...}}
// envelope shape in §4.7.
type OnExecutionRequestedArgs struct {
	Subtask SubtaskPush `json:"subtask"`
}
