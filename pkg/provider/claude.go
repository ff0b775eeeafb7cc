package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
)

// ClaudeProvider implements the capability contract over the Anthropic
// Messages API. Like the chat providers it is stateless: the handle is a
// conversation id plus instructions and history is replayed per call.
type ClaudeProvider struct {
	client anthropic.Client
	model  string
}

// NewClaudeProvider creates an Anthropic-backed provider.
func NewClaudeProvider(apiKey, model string) *ClaudeProvider {
	return &ClaudeProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Name returns the provider key.
func (p *ClaudeProvider) Name() string { return "claude" }

// CreateSession mints a conversation id; state lives with the caller.
func (p *ClaudeProvider) CreateSession(ctx context.Context, opts CreateSessionOptions) (SessionHandle, error) {
	return SessionHandle{
		ConversationID: uuid.NewString(),
		Instructions:   opts.Instructions,
	}, nil
}

// SendMessage replays the supplied history plus the new user message.
func (p *ClaudeProvider) SendMessage(ctx context.Context, opts SendMessageOptions) (*MessageResult, error) {
	completion, err := p.Complete(ctx, CompletionRequest{
		System:   opts.Handle.Instructions,
		Messages: append(append([]Message{}, opts.History...), Message{Role: "user", Content: opts.Message}),
	})
	if err != nil {
		return nil, err
	}
	if completion.Content == "" {
		return nil, fmt.Errorf("empty completion content")
	}
	return &MessageResult{Message: completion.Content, Usage: completion.Usage}, nil
}

// EvaluateSolution grades through a one-shot exchange.
func (p *ClaudeProvider) EvaluateSolution(ctx context.Context, opts EvaluateOptions) (*Evaluation, error) {
	completion, err := p.Complete(ctx, CompletionRequest{
		System:   evalInstructions,
		Messages: []Message{{Role: "user", Content: buildEvalPrompt(opts)}},
	})
	if err != nil {
		return nil, fmt.Errorf("evaluation call failed: %w", err)
	}
	return parseEvaluation(completion.Content)
}

// Complete makes one tool-enabled round trip against the Messages API.
func (p *ClaudeProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	messages := []anthropic.MessageParam{}

	for _, msg := range req.Messages {
		switch {
		case msg.Role == "system":
			// System content rides in the request params, not the turns.
			continue
		case msg.Role == "tool":
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		case msg.Role == "assistant" && len(msg.ToolCalls) > 0:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case msg.Role == "assistant":
			messages = append(messages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Content),
				},
			})
		default:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.InputSchema["properties"],
				},
			}
			if required, ok := tool.InputSchema["required"].([]string); ok {
				toolParam.InputSchema.Required = required
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("messages call failed: %w", err)
	}

	content := ""
	toolCalls := []ToolCall{}
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool input: %w", err)
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}

	return &Completion{
		Content:   content,
		ToolCalls: toolCalls,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}
