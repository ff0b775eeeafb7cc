package provider

// Message represents one role-tagged entry of a conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a single request by the model to invoke a named tool.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolSpec describes one tool offered to the model: a name plus a
// JSON-Schema argument shape. Providers treat the schema as opaque.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// TokenUsage tracks token consumption of one provider call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// SessionHandle is the provider-specific state of one session. Exactly
// one of the two shapes is populated: an assistant/thread pair for
// thread-backed providers, or a conversation id plus instructions for
// stateless ones.
type SessionHandle struct {
	AssistantID    string `json:"assistantId,omitempty"`
	ThreadID       string `json:"threadId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Instructions   string `json:"instructions,omitempty"`
}

// IsThreadBacked reports whether the handle carries an assistant/thread pair.
func (h SessionHandle) IsThreadBacked() bool {
	return h.AssistantID != "" && h.ThreadID != ""
}

// CreateSessionOptions configures session creation.
type CreateSessionOptions struct {
	SessionID    string
	Instructions string
}

// SendMessageOptions carries one user message plus the context a
// stateless provider needs to replay the conversation. Thread-backed
// providers ignore History.
type SendMessageOptions struct {
	Handle  SessionHandle
	Message string
	History []Message
}

// MessageResult is the provider's textual reply. ConversationID is set
// by providers whose chaining id advances on every exchange; callers
// persist it back into the session record.
type MessageResult struct {
	Message        string      `json:"message"`
	ConversationID string      `json:"conversationId,omitempty"`
	Usage          *TokenUsage `json:"usage,omitempty"`
}

// EvaluateOptions configures a one-shot solution evaluation.
type EvaluateOptions struct {
	ExpectedSolution string
	StudentSolution  string
	Format           string
}

// Evaluation is the scored outcome of EvaluateSolution.
type Evaluation struct {
	Score      float64 `json:"score"`
	Evaluation string  `json:"evaluation"`
}

// CompletionRequest is a tool-enabled round trip used by the wizard loop.
type CompletionRequest struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	MaxTokens   int
	Temperature float64
}

// Completion is the model's next action: either plain text or one or
// more tool calls.
type Completion struct {
	Content   string      `json:"content"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	Usage     *TokenUsage `json:"usage,omitempty"`
}
