package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tether/pkg/protocol"
)

func TestChunksConcatenateInArrivalOrder(t *testing.T) {
	a := NewAssembler(zaptest.NewLogger(t))

	turn := a.Begin("s1")
	assert.Equal(t, "s1", turn.SessionID)
	assert.Empty(t, turn.Content)

	_, ok := a.ApplyChunk(protocol.StreamChunk{Content: "Hel", SessionID: "s1"})
	require.True(t, ok)
	turn, ok = a.ApplyChunk(protocol.StreamChunk{Content: "lo", SessionID: "s1"})
	require.True(t, ok)
	assert.Equal(t, "Hello", turn.Content)

	msg, ok := a.Complete(protocol.StreamComplete{
		Metrics:   protocol.Metrics{TotalTokens: 12},
		SessionID: "s1",
	})
	require.True(t, ok)
	assert.Equal(t, "Hello", msg.Content)
	assert.Equal(t, 12, msg.Metrics.TotalTokens)
	assert.Equal(t, "assistant", msg.Role)
	assert.NotEmpty(t, msg.ID)

	_, active := a.Active()
	assert.False(t, active, "completing must clear the active slot")
}

func TestToolCallLifecycle(t *testing.T) {
	a := NewAssembler(zaptest.NewLogger(t))
	a.Begin("s1")

	turn, ok := a.ApplyToolCall(protocol.StreamToolCall{
		Status:    protocol.StatusStarted,
		Tool:      protocol.ToolCall{ID: "t1", Name: "create_node", Arguments: map[string]any{"type": "Sprite2D"}},
		SessionID: "s1",
	})
	require.True(t, ok)
	require.Len(t, turn.ToolCalls, 1)
	assert.Equal(t, ToolRunning, turn.ToolCalls[0].Status)

	turn, ok = a.ApplyToolCall(protocol.StreamToolCall{
		Status:    protocol.StatusCompleted,
		Tool:      protocol.ToolCall{ID: "t1", Result: "node created"},
		SessionID: "s1",
	})
	require.True(t, ok)
	require.Len(t, turn.ToolCalls, 1)
	assert.Equal(t, ToolCompleted, turn.ToolCalls[0].Status)
	assert.Equal(t, "node created", turn.ToolCalls[0].Result)
	assert.Equal(t, "create_node", turn.ToolCalls[0].Name)
}

func TestOrphanToolCompletionIsAppendedNotDropped(t *testing.T) {
	a := NewAssembler(zaptest.NewLogger(t))
	a.Begin("s1")

	turn, ok := a.ApplyToolCall(protocol.StreamToolCall{
		Status:    protocol.StatusCompleted,
		Tool:      protocol.ToolCall{ID: "ghost", Name: "delete_node", Error: "node not found"},
		SessionID: "s1",
	})
	require.True(t, ok)
	require.Len(t, turn.ToolCalls, 1)
	assert.Equal(t, "ghost", turn.ToolCalls[0].ID)
	assert.Equal(t, ToolFailed, turn.ToolCalls[0].Status)
	assert.Equal(t, "node not found", turn.ToolCalls[0].Error)
}

func TestRunningToolSurvivesIntoFinalMessage(t *testing.T) {
	a := NewAssembler(zaptest.NewLogger(t))
	a.Begin("s1")

	_, ok := a.ApplyToolCall(protocol.StreamToolCall{
		Status:    protocol.StatusStarted,
		Tool:      protocol.ToolCall{ID: "t1", Name: "run_scene"},
		SessionID: "s1",
	})
	require.True(t, ok)

	msg, ok := a.Complete(protocol.StreamComplete{SessionID: "s1"})
	require.True(t, ok)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, ToolRunning, msg.ToolCalls[0].Status)
}

func TestReasoningMarkers(t *testing.T) {
	a := NewAssembler(zaptest.NewLogger(t))
	a.Begin("s1")

	turn, _ := a.ApplyReasoning(protocol.StreamReasoning{Status: protocol.StatusStarted, SessionID: "s1"})
	assert.True(t, turn.ReasoningActive)

	turn, _ = a.ApplyReasoning(protocol.StreamReasoning{Status: protocol.StatusStep, Content: "inspecting scene tree", SessionID: "s1"})
	assert.Equal(t, []string{"inspecting scene tree"}, turn.Reasoning)

	turn, _ = a.ApplyReasoning(protocol.StreamReasoning{Status: protocol.StatusCompleted, SessionID: "s1"})
	assert.False(t, turn.ReasoningActive)
}

func TestAuthoritativeCompletionSupersedesAssembled(t *testing.T) {
	a := NewAssembler(zaptest.NewLogger(t))
	a.Begin("s1")

	a.ApplyToolCall(protocol.StreamToolCall{
		Status:    protocol.StatusStarted,
		Tool:      protocol.ToolCall{ID: "t1", Name: "partial"},
		SessionID: "s1",
	})
	a.ApplyReasoning(protocol.StreamReasoning{Status: protocol.StatusStep, Content: "partial step", SessionID: "s1"})

	msg, ok := a.Complete(protocol.StreamComplete{
		SessionID: "s1",
		ToolCalls: []protocol.ToolCall{{ID: "t2", Name: "authoritative", Result: "ok"}},
		Reasoning: []string{"full trace"},
	})
	require.True(t, ok)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "t2", msg.ToolCalls[0].ID)
	assert.Equal(t, ToolCompleted, msg.ToolCalls[0].Status)
	assert.Equal(t, []string{"full trace"}, msg.Reasoning)
}

func TestDiscardProducesNoMessage(t *testing.T) {
	a := NewAssembler(zaptest.NewLogger(t))
	a.Begin("s1")
	a.ApplyChunk(protocol.StreamChunk{Content: "half an ans", SessionID: "s1"})

	sessionID, ok := a.Discard()
	require.True(t, ok)
	assert.Equal(t, "s1", sessionID)

	_, active := a.Active()
	assert.False(t, active)

	_, ok = a.Discard()
	assert.False(t, ok, "second discard has nothing to drop")
}

func TestEventsForOtherSessionsAreIgnored(t *testing.T) {
	a := NewAssembler(zaptest.NewLogger(t))
	a.Begin("s1")

	_, ok := a.ApplyChunk(protocol.StreamChunk{Content: "nope", SessionID: "s2"})
	assert.False(t, ok)

	turn, ok := a.ApplyChunk(protocol.StreamChunk{Content: "yes", SessionID: "s1"})
	require.True(t, ok)
	assert.Equal(t, "yes", turn.Content)
}

func TestTurnAdoptsSessionFromFirstTaggedEvent(t *testing.T) {
	a := NewAssembler(zaptest.NewLogger(t))
	a.Begin("")

	turn, ok := a.ApplyChunk(protocol.StreamChunk{Content: "hi", SessionID: "fresh"})
	require.True(t, ok)
	assert.Equal(t, "fresh", turn.SessionID)

	_, ok = a.ApplyChunk(protocol.StreamChunk{Content: "x", SessionID: "other"})
	assert.False(t, ok, "adopted id must stick for the rest of the turn")
}

func TestEventsWithNoActiveTurnAreDropped(t *testing.T) {
	a := NewAssembler(zaptest.NewLogger(t))

	_, ok := a.ApplyChunk(protocol.StreamChunk{Content: "stray", SessionID: "s1"})
	assert.False(t, ok)
	_, ok = a.Complete(protocol.StreamComplete{SessionID: "s1"})
	assert.False(t, ok)
}

func TestFinalizeFromCallResult(t *testing.T) {
	a := NewAssembler(zaptest.NewLogger(t))
	a.Begin("s1")

	msg, ok := a.Finalize("s1", "direct answer", protocol.Metrics{TotalTokens: 7})
	require.True(t, ok)
	assert.Equal(t, "direct answer", msg.Content)
	assert.Equal(t, 7, msg.Metrics.TotalTokens)
	assert.Equal(t, "s1", msg.SessionID)
}
