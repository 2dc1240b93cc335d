package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		Method: MethodReportProgress,
		Args:   []json.RawMessage{json.RawMessage(`{"id":"st-1","percent":50}`)},
	}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, MethodReportProgress, decoded.Method)
	require.Len(t, decoded.Args, 1)

	var arg progressArg
	require.NoError(t, json.Unmarshal(decoded.Args[0], &arg))
	require.Equal(t, "st-1", arg.ID)
	require.Equal(t, 50, arg.Percent)
}

func TestOnExecutionRequestedArgsRoundTrip(t *testing.T) {
	push := OnExecutionRequestedArgs{Subtask: SubtaskPush{
		ID:             "st-1",
		TaskID:         "t-1",
		ParametersJSON: "{}",
		OnnxModel:      OnnxModelRef{ReadURI: "s3://model"},
	}}
	data, err := json.Marshal(push)
	require.NoError(t, err)

	var decoded OnExecutionRequestedArgs
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "st-1", decoded.Subtask.ID)
	require.Equal(t, "s3://model", decoded.Subtask.OnnxModel.ReadURI)
}
