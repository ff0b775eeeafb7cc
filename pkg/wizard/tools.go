package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leialab/leia/pkg/catalog"
	"github.com/leialab/leia/pkg/provider"
	"github.com/leialab/leia/pkg/session"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// Catalog is the slice of the external search service the tools need.
type Catalog interface {
	SearchProblems(ctx context.Context, query string, limit int, userToken string) ([]catalog.Problem, error)
	GetComponent(ctx context.Context, kind, id, userToken string) (*catalog.Component, error)
}

// HandlerContext carries the per-turn dependencies a tool handler may use.
type HandlerContext struct {
	Session      *session.Session
	Conversation *session.Conversation
	Model        provider.ToolCapable
	UserToken    string
}

// Outcome is the contract every handler fulfills: a success flag plus
// payload fields the orchestrator reads by artifact kind.
type Outcome struct {
	Success bool
	Payload map[string]interface{}
	Err     string
}

// serialize renders the outcome as the JSON body of a tool-role message.
func (o *Outcome) serialize() string {
	out := map[string]interface{}{"success": o.Success}
	for k, v := range o.Payload {
		out[k] = v
	}
	if o.Err != "" {
		out["error"] = o.Err
	}
	data, err := json.Marshal(out)
	if err != nil {
		return `{"success":false,"error":"unserializable tool result"}`
	}
	return string(data)
}

func failure(format string, args ...interface{}) *Outcome {
	return &Outcome{Success: false, Err: fmt.Sprintf(format, args...)}
}

// handler executes one validated tool call.
type handler func(ctx context.Context, hctx *HandlerContext, rawArgs map[string]interface{}) (*Outcome, error)

// Tool couples a spec offered to the model with its local handler.
type Tool struct {
	Spec provider.ToolSpec
	// ArtifactKind names the conversation slot a successful call fills:
	// "persona", "problem", "behaviour", "refined" (slot taken from the
	// payload's componentType), or "" for tools with no artifact.
	ArtifactKind string

	schema  *gojsonschema.Schema
	handler handler
}

// Toolset is the fixed name→handler table of the wizard loop.
type Toolset struct {
	tools  map[string]*Tool
	order  []string
	logger zerolog.Logger
}

// Specs returns the tool catalog in registration order.
func (ts *Toolset) Specs() []provider.ToolSpec {
	specs := make([]provider.ToolSpec, 0, len(ts.order))
	for _, name := range ts.order {
		specs = append(specs, ts.tools[name].Spec)
	}
	return specs
}

// Get resolves a tool by name.
func (ts *Toolset) Get(name string) (*Tool, bool) {
	t, ok := ts.tools[name]
	return t, ok
}

// Dispatch validates the call's arguments against the tool's schema and
// runs the handler. A nil outcome with an error marks a skipped tool
// (argument or handler I/O construction failure); a non-nil outcome with
// Success=false is a documented failure the model should see.
func (ts *Toolset) Dispatch(ctx context.Context, hctx *HandlerContext, call provider.ToolCall) (*Outcome, error) {
	tool, ok := ts.tools[call.Name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", call.Name)
	}

	argsJSON, err := json.Marshal(call.Arguments)
	if err != nil {
		return nil, fmt.Errorf("unserializable arguments for %s: %w", call.Name, err)
	}
	result, err := tool.schema.Validate(gojsonschema.NewBytesLoader(argsJSON))
	if err != nil {
		return nil, fmt.Errorf("schema validation failed for %s: %w", call.Name, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		// Invalid arguments are a model mistake the model can correct.
		return failure("invalid arguments: %s", strings.Join(msgs, "; ")), nil
	}

	return tool.handler(ctx, hctx, call.Arguments)
}

func (ts *Toolset) register(t *Tool) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(t.Spec.InputSchema))
	if err != nil {
		// Schemas are fixed literals; a compile failure is a programming error.
		panic(fmt.Sprintf("invalid schema for tool %s: %v", t.Spec.Name, err))
	}
	t.schema = compiled
	ts.tools[t.Spec.Name] = t
	ts.order = append(ts.order, t.Spec.Name)
}

// decodeArgs round-trips a validated argument bag into its typed shape.
func decodeArgs(rawArgs map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(rawArgs)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

type searchProblemsArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type generatePersonaArgs struct {
	Description string   `json:"description"`
	Traits      []string `json:"traits,omitempty"`
}

type generateProblemArgs struct {
	Description string `json:"description"`
	Domain      string `json:"domain,omitempty"`
}

type generateBehaviourArgs struct {
	Description string `json:"description"`
	Style       string `json:"style,omitempty"`
}

type cloneComponentArgs struct {
	ComponentType string `json:"componentType"`
	ComponentID   string `json:"componentId"`
}

type refineComponentArgs struct {
	ComponentType string `json:"componentType"`
	Instructions  string `json:"instructions"`
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var componentTypeSchema = map[string]interface{}{
	"type": "string",
	"enum": []string{"persona", "problem", "behaviour"},
}

// NewToolset builds the fixed wizard tool catalog.
func NewToolset(cat Catalog, logger zerolog.Logger) *Toolset {
	ts := &Toolset{
		tools:  make(map[string]*Tool),
		logger: logger,
	}

	ts.register(&Tool{
		Spec: provider.ToolSpec{
			Name:        "search_problems",
			Description: "Search the catalog for existing problems similar to a description.",
			InputSchema: objectSchema(map[string]interface{}{
				"query": map[string]interface{}{"type": "string", "description": "Free-text description of the desired problem"},
				"limit": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 20},
			}, "query"),
		},
		handler: func(ctx context.Context, hctx *HandlerContext, rawArgs map[string]interface{}) (*Outcome, error) {
			var args searchProblemsArgs
			if err := decodeArgs(rawArgs, &args); err != nil {
				return nil, err
			}
			problems, err := cat.SearchProblems(ctx, args.Query, args.Limit, hctx.UserToken)
			if err != nil {
				return failure("catalog search failed: %v", err), nil
			}
			return &Outcome{Success: true, Payload: map[string]interface{}{"problems": problems}}, nil
		},
	})

	ts.register(&Tool{
		Spec: provider.ToolSpec{
			Name:        "generate_persona",
			Description: "Generate a new persona for the LEIA.",
			InputSchema: objectSchema(map[string]interface{}{
				"description": map[string]interface{}{"type": "string", "description": "Who the persona is and what they need"},
				"traits":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			}, "description"),
		},
		ArtifactKind: "persona",
		handler: func(ctx context.Context, hctx *HandlerContext, rawArgs map[string]interface{}) (*Outcome, error) {
			var args generatePersonaArgs
			if err := decodeArgs(rawArgs, &args); err != nil {
				return nil, err
			}
			prompt := "Create a persona for an educational agent.\nDescription: " + args.Description
			if len(args.Traits) > 0 {
				prompt += "\nTraits: " + strings.Join(args.Traits, ", ")
			}
			return generateArtifact(ctx, hctx.Model, "persona", prompt)
		},
	})

	ts.register(&Tool{
		Spec: provider.ToolSpec{
			Name:        "generate_problem",
			Description: "Generate a new problem for the LEIA.",
			InputSchema: objectSchema(map[string]interface{}{
				"description": map[string]interface{}{"type": "string", "description": "What the problem should cover"},
				"domain":      map[string]interface{}{"type": "string"},
			}, "description"),
		},
		ArtifactKind: "problem",
		handler: func(ctx context.Context, hctx *HandlerContext, rawArgs map[string]interface{}) (*Outcome, error) {
			var args generateProblemArgs
			if err := decodeArgs(rawArgs, &args); err != nil {
				return nil, err
			}
			prompt := "Create a practice problem.\nDescription: " + args.Description
			if args.Domain != "" {
				prompt += "\nDomain: " + args.Domain
			}
			return generateArtifact(ctx, hctx.Model, "problem", prompt)
		},
	})

	ts.register(&Tool{
		Spec: provider.ToolSpec{
			Name:        "generate_behaviour",
			Description: "Generate the pedagogical behaviour for the LEIA.",
			InputSchema: objectSchema(map[string]interface{}{
				"description": map[string]interface{}{"type": "string", "description": "How the agent should behave with the learner"},
				"style":       map[string]interface{}{"type": "string"},
			}, "description"),
		},
		ArtifactKind: "behaviour",
		handler: func(ctx context.Context, hctx *HandlerContext, rawArgs map[string]interface{}) (*Outcome, error) {
			var args generateBehaviourArgs
			if err := decodeArgs(rawArgs, &args); err != nil {
				return nil, err
			}
			prompt := "Define the tutoring behaviour of an educational agent.\nDescription: " + args.Description
			if args.Style != "" {
				prompt += "\nStyle: " + args.Style
			}
			return generateArtifact(ctx, hctx.Model, "behaviour", prompt)
		},
	})

	ts.register(&Tool{
		Spec: provider.ToolSpec{
			Name:        "clone_component",
			Description: "Copy an existing catalog component into the LEIA being built.",
			InputSchema: objectSchema(map[string]interface{}{
				"componentType": componentTypeSchema,
				"componentId":   map[string]interface{}{"type": "string"},
			}, "componentType", "componentId"),
		},
		ArtifactKind: "refined",
		handler: func(ctx context.Context, hctx *HandlerContext, rawArgs map[string]interface{}) (*Outcome, error) {
			var args cloneComponentArgs
			if err := decodeArgs(rawArgs, &args); err != nil {
				return nil, err
			}
			component, err := cat.GetComponent(ctx, args.ComponentType, args.ComponentID, hctx.UserToken)
			if err != nil {
				return failure("component %s/%s unavailable: %v", args.ComponentType, args.ComponentID, err), nil
			}
			return &Outcome{Success: true, Payload: map[string]interface{}{
				"componentType": args.ComponentType,
				"refined":       component.Content,
			}}, nil
		},
	})

	ts.register(&Tool{
		Spec: provider.ToolSpec{
			Name:        "refine_component",
			Description: "Refine an already generated component of the LEIA.",
			InputSchema: objectSchema(map[string]interface{}{
				"componentType": componentTypeSchema,
				"instructions":  map[string]interface{}{"type": "string"},
			}, "componentType", "instructions"),
		},
		ArtifactKind: "refined",
		handler: func(ctx context.Context, hctx *HandlerContext, rawArgs map[string]interface{}) (*Outcome, error) {
			var args refineComponentArgs
			if err := decodeArgs(rawArgs, &args); err != nil {
				return nil, err
			}
			current, err := hctx.Conversation.Artifact(args.ComponentType)
			if err != nil {
				return nil, err
			}
			if len(current) == 0 {
				return failure("no %s to refine yet", args.ComponentType), nil
			}
			prompt := fmt.Sprintf("Refine this %s according to the instructions.\nCurrent content: %s\nInstructions: %s",
				args.ComponentType, current, args.Instructions)
			outcome, err := generateArtifact(ctx, hctx.Model, args.ComponentType, prompt)
			if err != nil || !outcome.Success {
				return outcome, err
			}
			return &Outcome{Success: true, Payload: map[string]interface{}{
				"componentType": args.ComponentType,
				"refined":       outcome.Payload[args.ComponentType],
			}}, nil
		},
	})

	return ts
}

const generateSystemPrompt = "You produce structured educational content. " +
	"Respond with a single JSON object describing the requested component and nothing else."

// generateArtifact asks the active provider for one component and wraps
// the reply as the artifact payload. Provider failures are documented
// failure modes folded into the conversation.
func generateArtifact(ctx context.Context, model provider.ToolCapable, kind, prompt string) (*Outcome, error) {
	completion, err := model.Complete(ctx, provider.CompletionRequest{
		System:   generateSystemPrompt,
		Messages: []provider.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return failure("generation failed: %v", err), nil
	}

	content := extractJSON(completion.Content)
	if content == nil {
		return failure("generation returned no JSON object"), nil
	}
	return &Outcome{Success: true, Payload: map[string]interface{}{kind: content}}, nil
}

// extractJSON pulls the first JSON object out of a model reply,
// tolerating prose or code fencing around it.
func extractJSON(raw string) json.RawMessage {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil
	}
	candidate := raw[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil
	}
	return json.RawMessage(candidate)
}
