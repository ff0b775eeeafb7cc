package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// chatClient is the shared OpenAI chat-completions machinery behind the
// wizard and local-model providers. Sessions are stateless on the
// provider side: the handle is a conversation id plus instructions, and
// every call replays the history the caller supplies.
type chatClient struct {
	client openai.Client
	model  string
}

// WizardProvider drives the wizard loop: chat completions with tool
// calling enabled.
type WizardProvider struct {
	chatClient
}

// NewWizardProvider creates a tool-capable chat-completions provider.
func NewWizardProvider(apiKey, model string) *WizardProvider {
	return &WizardProvider{chatClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}}
}

// Name returns the provider key.
func (p *WizardProvider) Name() string { return "wizard" }

// LocalModelProvider talks to an OpenAI-compatible local inference
// server (ollama, llama.cpp, vllm) through a custom base URL.
type LocalModelProvider struct {
	chatClient
	name string
}

// NewLocalModelProvider creates a provider against a local server.
func NewLocalModelProvider(name, baseURL, model string) *LocalModelProvider {
	return &LocalModelProvider{
		chatClient: chatClient{
			client: openai.NewClient(option.WithBaseURL(baseURL), option.WithAPIKey("local")),
			model:  model,
		},
		name: name,
	}
}

// Name returns the provider key.
func (p *LocalModelProvider) Name() string {
	if p.name == "" {
		return "local"
	}
	return p.name
}

// CreateSession mints a conversation id; state lives with the caller.
func (c *chatClient) CreateSession(ctx context.Context, opts CreateSessionOptions) (SessionHandle, error) {
	return SessionHandle{
		ConversationID: uuid.NewString(),
		Instructions:   opts.Instructions,
	}, nil
}

// SendMessage replays the supplied history plus the new user message.
func (c *chatClient) SendMessage(ctx context.Context, opts SendMessageOptions) (*MessageResult, error) {
	messages := append(toChatMessages(opts.Handle.Instructions, opts.History),
		openai.UserMessage(opts.Message))

	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	return &MessageResult{
		Message: response.Choices[0].Message.Content,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}, nil
}

// EvaluateSolution grades through a one-shot completion.
func (c *chatClient) EvaluateSolution(ctx context.Context, opts EvaluateOptions) (*Evaluation, error) {
	return evaluateWithChat(ctx, c.client, c.model, opts)
}

// Complete makes one tool-enabled round trip: the model answers with
// either plain text or tool calls.
func (c *chatClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, toChatMessages("", req.Messages)...)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	response, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]
	toolCalls := []ToolCall{}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
		}
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return &Completion{
		Content:   choice.Message.Content,
		ToolCalls: toolCalls,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}, nil
}

// toChatMessages converts history to the OpenAI wire shape, carrying
// tool calls and tool results through.
func toChatMessages(instructions string, history []Message) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if instructions != "" {
		messages = append(messages, openai.SystemMessage(instructions))
	}

	for _, msg := range history {
		switch msg.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				argsJSON, err := json.Marshal(tc.Arguments)
				if err != nil {
					continue
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			assistantMsg := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: toolCalls,
			}
			messages = append(messages, assistantMsg.ToParam())
		case "tool":
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return messages
}
