package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest(t *testing.T) {
	data, err := EncodeRequest(1, MethodHello, HelloParams{
		Client:          "shell",
		ProtocolVersion: Version,
	})
	require.NoError(t, err)

	var f map[string]any
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, "2.0", f["jsonrpc"])
	assert.Equal(t, float64(1), f["id"])
	assert.Equal(t, "hello", f["method"])

	params, ok := f["params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "shell", params["client"])
	assert.Equal(t, "0.2", params["protocol_version"])
}

func TestDecodeFrameReply(t *testing.T) {
	in, err := DecodeFrame([]byte(`{"jsonrpc":"2.0","id":7,"result":{"ok":true}}`))
	require.NoError(t, err)

	reply, ok := in.(*Reply)
	require.True(t, ok)
	assert.Equal(t, int64(7), reply.ID)
	assert.True(t, reply.Valid())
	assert.Nil(t, reply.Err)
}

func TestDecodeFrameErrorReply(t *testing.T) {
	in, err := DecodeFrame([]byte(`{"jsonrpc":"2.0","id":3,"error":{"code":-32000,"message":"boom"}}`))
	require.NoError(t, err)

	reply, ok := in.(*Reply)
	require.True(t, ok)
	require.NotNil(t, reply.Err)
	assert.True(t, reply.Valid())
	assert.Equal(t, CodeServerError, reply.Err.Code)
	assert.Equal(t, "boom", reply.Err.Message)
}

func TestReplyValidRejectsBothAndNeither(t *testing.T) {
	both := &Reply{
		ID:     1,
		Result: json.RawMessage(`{}`),
		Err:    &ErrorPayload{Code: CodeServerError, Message: "x"},
	}
	assert.False(t, both.Valid())

	neither := &Reply{ID: 2}
	assert.False(t, neither.Valid())
}

func TestDecodeFrameNotification(t *testing.T) {
	in, err := DecodeFrame([]byte(`{"jsonrpc":"2.0","method":"stream_chunk","params":{"content":"Hel","session_id":"s1"}}`))
	require.NoError(t, err)

	chunk, ok := in.(StreamChunk)
	require.True(t, ok)
	assert.Equal(t, "Hel", chunk.Content)
	assert.Equal(t, "s1", chunk.SessionID)
}

func TestDecodeFrameUnknownMethod(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"jsonrpc":"2.0","method":"future_thing","params":{}}`))
	require.Error(t, err)

	var unknown *UnknownMethodError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "future_thing", unknown.Method)
}

func TestDecodeFrameNeitherIDNorMethod(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"jsonrpc":"2.0"}`))
	assert.Error(t, err)
}

func TestDecodeNotificationVariants(t *testing.T) {
	n, err := DecodeNotification(MethodStreamToolCall, json.RawMessage(
		`{"status":"started","tool":{"id":"t1","name":"create_node","arguments":{"parent_path":"/root"}},"session_id":"s1"}`))
	require.NoError(t, err)
	tc, ok := n.(StreamToolCall)
	require.True(t, ok)
	assert.Equal(t, StatusStarted, tc.Status)
	assert.Equal(t, "t1", tc.Tool.ID)
	assert.Equal(t, "create_node", tc.Tool.Name)

	n, err = DecodeNotification(MethodSessionUpdated, json.RawMessage(
		`{"session":{"id":"s9","title":"Auto titled","message_count":2},"is_new":true}`))
	require.NoError(t, err)
	su, ok := n.(SessionUpdated)
	require.True(t, ok)
	assert.True(t, su.IsNew)
	assert.Equal(t, "s9", su.Session.ID)

	n, err = DecodeNotification(MethodEditorDisconnected, nil)
	require.NoError(t, err)
	_, ok = n.(EditorDisconnected)
	assert.True(t, ok)
}

func TestDecodeStreamComplete(t *testing.T) {
	n, err := DecodeNotification(MethodStreamComplete, json.RawMessage(
		`{"metrics":{"total_tokens":12,"request_cost":0.003},"session_id":"s1"}`))
	require.NoError(t, err)

	done, ok := n.(StreamComplete)
	require.True(t, ok)
	assert.Equal(t, 12, done.Metrics.TotalTokens)
	assert.InDelta(t, 0.003, done.Metrics.RequestCost, 1e-9)
}

func TestBudgetExceeded(t *testing.T) {
	budget := &ErrorPayload{
		Code:    CodeDomainError,
		Message: "Insufficient credits. Please purchase more credits to continue.",
		Data:    json.RawMessage(`{"error_type":"budget_exceeded","suggestion":"Purchase credits"}`),
	}
	assert.True(t, budget.BudgetExceeded())

	notFound := &ErrorPayload{
		Code:    CodeDomainError,
		Message: "Session not found",
		Data:    json.RawMessage(`{"session_id":"s1"}`),
	}
	assert.False(t, notFound.BudgetExceeded())

	generic := &ErrorPayload{Code: CodeServerError, Message: "boom"}
	assert.False(t, generic.BudgetExceeded())
}
