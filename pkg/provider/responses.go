package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// ResponsesProvider implements the capability contract over the OpenAI
// responses API. The session handle is the last response id plus the
// instructions; chaining happens through previous_response_id.
type ResponsesProvider struct {
	client openai.Client
	model  string
}

// NewResponsesProvider creates a responses-API provider.
func NewResponsesProvider(apiKey, model string) *ResponsesProvider {
	return &ResponsesProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Name returns the provider key.
func (p *ResponsesProvider) Name() string { return "responses" }

// CreateSession issues an empty seed response so follow-ups have a
// response id to chain from.
func (p *ResponsesProvider) CreateSession(ctx context.Context, opts CreateSessionOptions) (SessionHandle, error) {
	response, err := p.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:        shared.ResponsesModel(p.model),
		Instructions: openai.String(opts.Instructions),
		Input:        responses.ResponseNewParamsInputUnion{OfString: openai.String("Session start.")},
	})
	if err != nil {
		return SessionHandle{}, fmt.Errorf("failed to create response session: %w", err)
	}

	return SessionHandle{
		ConversationID: response.ID,
		Instructions:   opts.Instructions,
	}, nil
}

// SendMessage continues the response chain with one user message and
// reports the new response id so the session record can chain from it.
func (p *ResponsesProvider) SendMessage(ctx context.Context, opts SendMessageOptions) (*MessageResult, error) {
	if opts.Handle.ConversationID == "" {
		return nil, fmt.Errorf("responses provider requires a conversation handle")
	}

	response, err := p.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:              shared.ResponsesModel(p.model),
		Instructions:       openai.String(opts.Handle.Instructions),
		Input:              responses.ResponseNewParamsInputUnion{OfString: openai.String(opts.Message)},
		PreviousResponseID: openai.String(opts.Handle.ConversationID),
	})
	if err != nil {
		return nil, fmt.Errorf("response call failed: %w", err)
	}

	text := response.OutputText()
	if text == "" {
		return nil, fmt.Errorf("response contained no output text")
	}

	return &MessageResult{
		Message:        text,
		ConversationID: response.ID,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}

// EvaluateSolution grades through a one-shot chat completion.
func (p *ResponsesProvider) EvaluateSolution(ctx context.Context, opts EvaluateOptions) (*Evaluation, error) {
	return evaluateWithChat(ctx, p.client, p.model, opts)
}
