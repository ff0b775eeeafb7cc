package wizard

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/leialab/leia/pkg/catalog"
	"github.com/leialab/leia/pkg/provider"
	"github.com/leialab/leia/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestToolset(t *testing.T) (*Toolset, *fakeCatalog, *HandlerContext) {
	t.Helper()
	cat := &fakeCatalog{}
	ts := NewToolset(cat, zerolog.Nop())
	hctx := &HandlerContext{
		Session:      &session.Session{ID: "s1"},
		Conversation: &session.Conversation{SessionID: "s1"},
		Model:        &scriptedProvider{name: "wizard"},
		UserToken:    "tok",
	}
	return ts, cat, hctx
}

func TestToolsetSpecs(t *testing.T) {
	ts, _, _ := setupTestToolset(t)

	names := make([]string, 0)
	for _, spec := range ts.Specs() {
		names = append(names, spec.Name)
	}
	assert.Equal(t, []string{
		"search_problems",
		"generate_persona",
		"generate_problem",
		"generate_behaviour",
		"clone_component",
		"refine_component",
	}, names)
}

func TestDispatchUnknownTool(t *testing.T) {
	ts, _, hctx := setupTestToolset(t)

	_, err := ts.Dispatch(context.Background(), hctx, provider.ToolCall{Name: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestDispatchInvalidArguments(t *testing.T) {
	ts, _, hctx := setupTestToolset(t)

	// query is required and must be a string
	outcome, err := ts.Dispatch(context.Background(), hctx, provider.ToolCall{
		Name:      "search_problems",
		Arguments: map[string]interface{}{"query": 42},
	})
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Err, "invalid arguments")

	outcome, err = ts.Dispatch(context.Background(), hctx, provider.ToolCall{
		Name:      "search_problems",
		Arguments: map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.False(t, outcome.Success)
}

func TestDispatchSearchProblems(t *testing.T) {
	ts, cat, hctx := setupTestToolset(t)
	cat.problems = []catalog.Problem{{ID: "p1", Title: "Sorting", Score: 0.91}}

	outcome, err := ts.Dispatch(context.Background(), hctx, provider.ToolCall{
		Name:      "search_problems",
		Arguments: map[string]interface{}{"query": "sorting", "limit": float64(5)},
	})
	require.NoError(t, err)
	assert.True(t, outcome.Success)

	body := outcome.serialize()
	assert.Contains(t, body, `"success":true`)
	assert.Contains(t, body, "Sorting")
}

func TestDispatchCloneComponent(t *testing.T) {
	ts, cat, hctx := setupTestToolset(t)
	cat.component = &catalog.Component{
		ID:      "c1",
		Type:    "problem",
		Content: json.RawMessage(`{"statement":"reverse a string"}`),
	}

	outcome, err := ts.Dispatch(context.Background(), hctx, provider.ToolCall{
		Name: "clone_component",
		Arguments: map[string]interface{}{
			"componentType": "problem",
			"componentId":   "c1",
		},
	})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "problem", outcome.Payload["componentType"])

	tool, ok := ts.Get("clone_component")
	require.True(t, ok)
	assert.Equal(t, "refined", tool.ArtifactKind)
}

func TestDispatchCloneRejectsBadComponentType(t *testing.T) {
	ts, _, hctx := setupTestToolset(t)

	outcome, err := ts.Dispatch(context.Background(), hctx, provider.ToolCall{
		Name: "clone_component",
		Arguments: map[string]interface{}{
			"componentType": "essay",
			"componentId":   "c1",
		},
	})
	require.NoError(t, err)
	assert.False(t, outcome.Success)
}

func TestDispatchRefineWithoutArtifact(t *testing.T) {
	ts, _, hctx := setupTestToolset(t)

	outcome, err := ts.Dispatch(context.Background(), hctx, provider.ToolCall{
		Name: "refine_component",
		Arguments: map[string]interface{}{
			"componentType": "persona",
			"instructions":  "make it friendlier",
		},
	})
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Err, "no persona to refine")
}

func TestDispatchRefineExistingArtifact(t *testing.T) {
	ts, _, hctx := setupTestToolset(t)
	require.NoError(t, hctx.Conversation.SetArtifact("persona", json.RawMessage(`{"name":"Ada"}`)))

	model := hctx.Model.(*scriptedProvider)
	model.script = []*provider.Completion{textCompletion(`{"name":"Ada","tone":"friendly"}`)}

	outcome, err := ts.Dispatch(context.Background(), hctx, provider.ToolCall{
		Name: "refine_component",
		Arguments: map[string]interface{}{
			"componentType": "persona",
			"instructions":  "make it friendlier",
		},
	})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "persona", outcome.Payload["componentType"])
	assert.JSONEq(t, `{"name":"Ada","tone":"friendly"}`,
		string(outcome.Payload["refined"].(json.RawMessage)))
}

func TestGenerateArtifactExtractsJSON(t *testing.T) {
	model := &scriptedProvider{
		name:   "wizard",
		script: []*provider.Completion{textCompletion("Here it is:\n```json\n{\"name\":\"Ada\"}\n```")},
	}

	outcome, err := generateArtifact(context.Background(), model, "persona", "make a persona")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.JSONEq(t, `{"name":"Ada"}`, string(outcome.Payload["persona"].(json.RawMessage)))
}

func TestGenerateArtifactWithoutJSONFails(t *testing.T) {
	model := &scriptedProvider{
		name:   "wizard",
		script: []*provider.Completion{textCompletion("I cannot do that.")},
	}

	outcome, err := generateArtifact(context.Background(), model, "persona", "make a persona")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
}

func TestExtractJSON(t *testing.T) {
	assert.Nil(t, extractJSON("no object here"))
	assert.Nil(t, extractJSON("{broken"))
	assert.Equal(t, json.RawMessage(`{"a":1}`), extractJSON(`prefix {"a":1} suffix`))
}

func TestOutcomeSerialize(t *testing.T) {
	ok := &Outcome{Success: true, Payload: map[string]interface{}{"count": 2}}
	assert.JSONEq(t, `{"success":true,"count":2}`, ok.serialize())

	bad := failure("boom: %s", "details")
	assert.JSONEq(t, `{"success":false,"error":"boom: details"}`, bad.serialize())
}
