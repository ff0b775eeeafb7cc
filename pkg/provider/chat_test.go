package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToChatMessagesCarriesToolFrames(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "clone the persona"},
		{Role: "assistant", ToolCalls: []ToolCall{
			{ID: "call-1", Name: "clone_component", Arguments: map[string]interface{}{"componentId": "p1"}},
		}},
		{Role: "tool", ToolCallID: "call-1", Content: `{"success":true}`},
		{Role: "assistant", Content: "done"},
	}

	messages := toChatMessages("be helpful", history)
	require.Len(t, messages, 5)

	require.NotNil(t, messages[0].OfSystem)
	assert.Equal(t, "be helpful", messages[0].OfSystem.Content.OfString.Value)

	require.NotNil(t, messages[1].OfUser)
	assert.Equal(t, "clone the persona", messages[1].OfUser.Content.OfString.Value)

	require.NotNil(t, messages[2].OfAssistant)
	require.Len(t, messages[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "call-1", messages[2].OfAssistant.ToolCalls[0].ID)
	assert.Equal(t, "clone_component", messages[2].OfAssistant.ToolCalls[0].Function.Name)

	tool := messages[3].OfTool
	require.NotNil(t, tool)
	assert.Equal(t, "call-1", tool.ToolCallID)
	assert.Equal(t, `{"success":true}`, tool.Content.OfString.Value)

	require.NotNil(t, messages[4].OfAssistant)
	assert.Equal(t, "done", messages[4].OfAssistant.Content.OfString.Value)
}

func TestToChatMessagesWithoutInstructions(t *testing.T) {
	messages := toChatMessages("", []Message{{Role: "user", Content: "hi"}})
	require.Len(t, messages, 1)
	require.NotNil(t, messages[0].OfUser)
}
