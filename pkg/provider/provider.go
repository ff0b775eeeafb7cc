package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no provider satisfies a lookup.
var ErrNotFound = errors.New("provider not found")

// Provider is the capability contract every model backend implements.
type Provider interface {
	// Name returns the unique provider key.
	Name() string

	// CreateSession establishes provider-side session state and returns
	// its handle.
	CreateSession(ctx context.Context, opts CreateSessionOptions) (SessionHandle, error)

	// SendMessage exchanges one user message for a textual reply.
	SendMessage(ctx context.Context, opts SendMessageOptions) (*MessageResult, error)

	// EvaluateSolution scores a student solution against an expected one.
	EvaluateSolution(ctx context.Context, opts EvaluateOptions) (*Evaluation, error)
}

// ToolCapable is implemented by providers that can drive the wizard
// loop: given message history and a tool catalog, return either tool
// calls or plain text.
type ToolCapable interface {
	Provider
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

const evalInstructions = "You are a strict grader. Compare the student solution " +
	"against the expected solution and respond with a single JSON object " +
	`{"score": <0-100>, "evaluation": "<feedback>"} and nothing else.`

func buildEvalPrompt(opts EvaluateOptions) string {
	var b strings.Builder
	if opts.Format != "" {
		fmt.Fprintf(&b, "Solution format: %s\n\n", opts.Format)
	}
	fmt.Fprintf(&b, "Expected solution:\n%s\n\nStudent solution:\n%s\n", opts.ExpectedSolution, opts.StudentSolution)
	return b.String()
}

// parseEvaluation extracts the JSON verdict from a model reply, tolerating
// prose or fencing around the object.
func parseEvaluation(raw string) (*Evaluation, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in evaluation response")
	}

	var eval Evaluation
	if err := json.Unmarshal([]byte(raw[start:end+1]), &eval); err != nil {
		return nil, fmt.Errorf("failed to parse evaluation response: %w", err)
	}
	return &eval, nil
}
