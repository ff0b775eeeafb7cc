package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// AssistantProvider implements the capability contract over the OpenAI
// assistants API. Sessions are an assistant/thread pair; the thread
// holds the conversation server-side, so History is ignored.
type AssistantProvider struct {
	client openai.Client
	model  string
}

// NewAssistantProvider creates an assistants-API provider.
func NewAssistantProvider(apiKey, model string) *AssistantProvider {
	return &AssistantProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Name returns the provider key.
func (p *AssistantProvider) Name() string { return "assistant" }

// CreateSession creates an assistant with the given instructions plus an
// empty thread.
func (p *AssistantProvider) CreateSession(ctx context.Context, opts CreateSessionOptions) (SessionHandle, error) {
	assistant, err := p.client.Beta.Assistants.New(ctx, openai.BetaAssistantNewParams{
		Model:        openai.ChatModel(p.model),
		Instructions: openai.String(opts.Instructions),
	})
	if err != nil {
		return SessionHandle{}, fmt.Errorf("failed to create assistant: %w", err)
	}

	thread, err := p.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return SessionHandle{}, fmt.Errorf("failed to create thread: %w", err)
	}

	return SessionHandle{AssistantID: assistant.ID, ThreadID: thread.ID}, nil
}

// SendMessage appends the user message to the thread, runs the
// assistant, and returns the newest assistant message.
func (p *AssistantProvider) SendMessage(ctx context.Context, opts SendMessageOptions) (*MessageResult, error) {
	if !opts.Handle.IsThreadBacked() {
		return nil, fmt.Errorf("assistant provider requires an assistant/thread handle")
	}

	_, err := p.client.Beta.Threads.Messages.New(ctx, opts.Handle.ThreadID, openai.BetaThreadMessageNewParams{
		Role: "user",
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(opts.Message),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add thread message: %w", err)
	}

	run, err := p.client.Beta.Threads.Runs.New(ctx, opts.Handle.ThreadID, openai.BetaThreadRunNewParams{
		AssistantID: opts.Handle.AssistantID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run assistant: %w", err)
	}
	run, err = p.waitForRun(ctx, opts.Handle.ThreadID, run.ID)
	if err != nil {
		return nil, err
	}
	if run.Status != openai.RunStatusCompleted {
		return nil, fmt.Errorf("assistant run ended with status %s", run.Status)
	}

	page, err := p.client.Beta.Threads.Messages.List(ctx, opts.Handle.ThreadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
		Limit: openai.Int(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list thread messages: %w", err)
	}
	if len(page.Data) == 0 {
		return nil, fmt.Errorf("assistant run produced no messages")
	}

	text := ""
	for _, block := range page.Data[0].Content {
		if block.Type == "text" {
			text += block.Text.Value
		}
	}

	return &MessageResult{
		Message: text,
		Usage: &TokenUsage{
			InputTokens:  int(run.Usage.PromptTokens),
			OutputTokens: int(run.Usage.CompletionTokens),
		},
	}, nil
}

// waitForRun polls the run until it leaves the queued and in-progress
// states. The assistants API has no blocking variant of run creation.
func (p *AssistantProvider) waitForRun(ctx context.Context, threadID, runID string) (*openai.Run, error) {
	const pollInterval = 500 * time.Millisecond
	for {
		run, err := p.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll assistant run: %w", err)
		}
		switch run.Status {
		case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
		default:
			return run, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// EvaluateSolution grades through a one-shot chat completion; the
// assistants machinery buys nothing for a stateless exchange.
func (p *AssistantProvider) EvaluateSolution(ctx context.Context, opts EvaluateOptions) (*Evaluation, error) {
	return evaluateWithChat(ctx, p.client, p.model, opts)
}

// evaluateWithChat runs the shared grading prompt through the chat
// completions API of any OpenAI-compatible client.
func evaluateWithChat(ctx context.Context, client openai.Client, model string, opts EvaluateOptions) (*Evaluation, error) {
	response, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(evalInstructions),
			openai.UserMessage(buildEvalPrompt(opts)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("evaluation call failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}
	return parseEvaluation(response.Choices[0].Message.Content)
}
