package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/leialab/leia/internal/metrics"
	"github.com/leialab/leia/pkg/provider"
	"github.com/leialab/leia/pkg/session"
	"github.com/rs/zerolog"
)

// maxIterations bounds the model round trips of one turn.
const maxIterations = 15

const systemPrompt = "You are the LEIA wizard. You help an educator assemble an " +
	"educational agent out of three components: a persona, a problem, and a " +
	"behaviour. Use the available tools to search the catalog, generate " +
	"components, and refine them. Ask clarifying questions when the request " +
	"is underspecified. Announce when all three components are in place."

// eventBuffer is the capacity of a turn's event channel. The consumer is
// a websocket writer; a small buffer absorbs bursts without blocking the
// loop on every emit.
const eventBuffer = 16

// Config wires an Orchestrator.
type Config struct {
	Registry *provider.Registry
	Sessions *session.Manager
	Tools    *Toolset
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Orchestrator drives the bounded tool-calling loop of the wizard.
type Orchestrator struct {
	registry *provider.Registry
	sessions *session.Manager
	tools    *Toolset
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates an orchestrator from its wired dependencies.
func New(cfg Config) *Orchestrator {
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Orchestrator{
		registry: cfg.Registry,
		sessions: cfg.Sessions,
		tools:    cfg.Tools,
		metrics:  m,
		logger:   cfg.Logger.With().Str("component", "wizard").Logger(),
	}
}

// CreateSession opens a provider-side session for the requested model and
// persists its record. The model name may be the "default" sentinel.
func (o *Orchestrator) CreateSession(ctx context.Context, modelName, userToken string) (*session.Session, error) {
	p, err := o.registry.GetModel(modelName)
	if err != nil {
		return nil, err
	}

	handle, err := p.CreateSession(ctx, provider.CreateSessionOptions{Instructions: systemPrompt})
	if err != nil {
		return nil, fmt.Errorf("failed to open provider session: %w", err)
	}

	sess, err := o.sessions.Create(ctx, "", p.Name(), handle)
	if err != nil {
		return nil, err
	}

	conv := &session.Conversation{SessionID: sess.ID, UserToken: userToken}
	if err := o.sessions.SaveConversation(ctx, conv); err != nil {
		return nil, err
	}

	o.metrics.SessionsCreatedTotal.Inc()
	return sess, nil
}

// EndSession discards the session record and its conversation.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) error {
	return o.sessions.Delete(ctx, sessionID)
}

// Evaluate grades a student solution against the session's stored
// expected solution using the session's model.
func (o *Orchestrator) Evaluate(ctx context.Context, sessionID, studentSolution string) (*provider.Evaluation, error) {
	if strings.TrimSpace(studentSolution) == "" {
		return nil, fmt.Errorf("student solution cannot be empty: %w", ErrValidation)
	}
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	meta, err := o.sessions.LoadMeta(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p, err := o.registry.GetModel(sess.ModelName)
	if err != nil {
		return nil, err
	}
	return p.EvaluateSolution(ctx, provider.EvaluateOptions{
		ExpectedSolution: meta.ExpectedSolution,
		StudentSolution:  studentSolution,
		Format:           meta.Format,
	})
}

// StartTurn runs one wizard turn asynchronously and returns its event
// stream. The channel is closed after the terminal event; cancelling ctx
// abandons the turn.
func (o *Orchestrator) StartTurn(ctx context.Context, sessionID, userMessage string) <-chan Event {
	events := make(chan Event, eventBuffer)
	go func() {
		defer close(events)
		o.runTurn(ctx, sessionID, userMessage, events)
	}()
	return events
}

func (o *Orchestrator) runTurn(ctx context.Context, sessionID, userMessage string, events chan<- Event) {
	log := o.logger.With().Str("session_id", sessionID).Logger()

	if !emit(ctx, events, Event{Type: EventConnected, SessionID: sessionID}) {
		return
	}

	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		o.failTurn(ctx, events, log, sessionID, err, !errors.Is(err, session.ErrNotFound))
		return
	}

	p, err := o.registry.GetModel(sess.ModelName)
	if err != nil {
		o.failTurn(ctx, events, log, sessionID, err, false)
		return
	}

	conv, err := o.sessions.LoadConversation(ctx, sessionID)
	if err != nil {
		o.failTurn(ctx, events, log, sessionID, err, true)
		return
	}

	model, ok := p.(provider.ToolCapable)
	if !ok {
		// Providers without tool calling still hold a conversation; they
		// just never produce artifacts.
		o.runPlainTurn(ctx, events, log, sess, p, conv, userMessage)
		return
	}

	conv.Append(provider.Message{Role: "user", Content: userMessage})

	hctx := &HandlerContext{
		Session:      sess,
		Conversation: conv,
		Model:        model,
		UserToken:    conv.UserToken,
	}

	for iteration := 1; iteration <= maxIterations; iteration++ {
		if ctx.Err() != nil {
			return
		}
		if !emit(ctx, events, Event{Type: EventThinking, SessionID: sessionID}) {
			return
		}

		completion, err := model.Complete(ctx, provider.CompletionRequest{
			System:   systemPrompt,
			Messages: conv.Messages,
			Tools:    o.tools.Specs(),
		})
		if err != nil {
			o.metrics.ProviderCallsTotal.WithLabelValues(sess.ModelName, "error").Inc()
			o.saveQuietly(ctx, log, conv)
			o.metrics.WizardTurnsTotal.WithLabelValues("error").Inc()
			o.failTurn(ctx, events, log, sessionID,
				fmt.Errorf("provider call failed: %w", err), true)
			return
		}
		o.metrics.ProviderCallsTotal.WithLabelValues(sess.ModelName, "ok").Inc()

		if len(completion.ToolCalls) == 0 {
			conv.Append(provider.Message{Role: "assistant", Content: completion.Content})
			o.finishTurn(ctx, events, log, conv, completion.Content, iteration)
			return
		}

		conv.Append(provider.Message{
			Role:      "assistant",
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})
		o.runToolCalls(ctx, events, log, hctx, completion.ToolCalls)
	}

	// Ceiling reached without a final text reply. Persist what was built
	// so a follow-up turn can continue from it.
	o.saveQuietly(ctx, log, conv)
	o.metrics.WizardTurnsTotal.WithLabelValues("exhausted").Inc()
	o.metrics.WizardTurnIterations.Observe(float64(maxIterations))
	log.Warn().Int("iterations", maxIterations).Msg("Turn hit the iteration ceiling")
	emit(ctx, events, Event{
		Type:      EventError,
		SessionID: conv.SessionID,
		Error:     ErrIterations.Error(),
		Retryable: true,
	})
}

// runPlainTurn drives a single exchange on a provider without tool
// calling. Thread-backed providers keep the conversation server-side;
// when the returned conversation id moves, the session handle is
// rewritten so the next turn chains from it.
func (o *Orchestrator) runPlainTurn(ctx context.Context, events chan<- Event, log zerolog.Logger,
	sess *session.Session, p provider.Provider, conv *session.Conversation, userMessage string) {
	if !emit(ctx, events, Event{Type: EventThinking, SessionID: sess.ID}) {
		return
	}

	result, err := p.SendMessage(ctx, provider.SendMessageOptions{
		Handle:  sess.Handle,
		Message: userMessage,
		History: conv.Messages,
	})
	if err != nil {
		o.metrics.ProviderCallsTotal.WithLabelValues(sess.ModelName, "error").Inc()
		o.metrics.WizardTurnsTotal.WithLabelValues("error").Inc()
		o.failTurn(ctx, events, log, sess.ID,
			fmt.Errorf("provider call failed: %w", err), true)
		return
	}
	o.metrics.ProviderCallsTotal.WithLabelValues(sess.ModelName, "ok").Inc()

	if result.ConversationID != "" && result.ConversationID != sess.Handle.ConversationID {
		handle := sess.Handle
		handle.ConversationID = result.ConversationID
		if err := o.sessions.UpdateHandle(ctx, sess.ID, handle); err != nil {
			log.Error().Err(err).Msg("Failed to chain the conversation handle")
		}
	}

	conv.Append(provider.Message{Role: "user", Content: userMessage})
	conv.Append(provider.Message{Role: "assistant", Content: result.Message})
	o.finishTurn(ctx, events, log, conv, result.Message, 1)
}

// runToolCalls executes the calls of one completion in request order,
// appending exactly one tool-role message per executed call.
func (o *Orchestrator) runToolCalls(ctx context.Context, events chan<- Event, log zerolog.Logger,
	hctx *HandlerContext, calls []provider.ToolCall) {
	conv := hctx.Conversation
	for _, call := range calls {
		tool, known := o.tools.Get(call.Name)
		if !known {
			log.Warn().Str("tool", call.Name).Msg("Model requested an unknown tool")
			o.metrics.ToolExecutionsTotal.WithLabelValues(call.Name, "unknown").Inc()
			continue
		}

		if !emit(ctx, events, Event{Type: EventFunctionCallStart, SessionID: conv.SessionID, Tool: call.Name}) {
			return
		}

		outcome, err := o.tools.Dispatch(ctx, hctx, call)
		if err != nil {
			log.Warn().Err(err).Str("tool", call.Name).Msg("Tool execution aborted")
			o.metrics.ToolExecutionsTotal.WithLabelValues(call.Name, "error").Inc()
			continue
		}

		status := "ok"
		if !outcome.Success {
			status = "failed"
		}
		o.metrics.ToolExecutionsTotal.WithLabelValues(call.Name, status).Inc()

		conv.Append(provider.Message{
			Role:       "tool",
			ToolCallID: call.ID,
			Content:    outcome.serialize(),
		})

		if outcome.Success && tool.ArtifactKind != "" {
			o.applyArtifact(log, conv, tool.ArtifactKind, outcome)
		}

		if !emit(ctx, events, Event{
			Type:      EventFunctionCallComplete,
			SessionID: conv.SessionID,
			Tool:      call.Name,
			Success:   outcome.Success,
		}) {
			return
		}
	}
}

// applyArtifact copies a successful tool result into its conversation
// slot. The "refined" kind resolves the slot from the payload.
func (o *Orchestrator) applyArtifact(log zerolog.Logger, conv *session.Conversation, kind string, outcome *Outcome) {
	if kind == "refined" {
		slot, _ := outcome.Payload["componentType"].(string)
		content := toRaw(outcome.Payload["refined"])
		if slot == "" || content == nil {
			log.Warn().Msg("Refined payload missing componentType or content")
			return
		}
		if err := conv.SetArtifact(slot, content); err != nil {
			log.Warn().Err(err).Msg("Failed to apply refined artifact")
		}
		return
	}

	content := toRaw(outcome.Payload[kind])
	if content == nil {
		log.Warn().Str("artifact", kind).Msg("Generation payload missing artifact content")
		return
	}
	if err := conv.SetArtifact(kind, content); err != nil {
		log.Warn().Err(err).Msg("Failed to apply artifact")
	}
}

// finishTurn persists the conversation and emits the terminal events of a
// turn that ended with a text reply.
func (o *Orchestrator) finishTurn(ctx context.Context, events chan<- Event, log zerolog.Logger,
	conv *session.Conversation, reply string, iterations int) {
	if err := o.sessions.SaveConversation(ctx, conv); err != nil {
		o.metrics.WizardTurnsTotal.WithLabelValues("error").Inc()
		o.failTurn(ctx, events, log, conv.SessionID,
			fmt.Errorf("failed to persist conversation: %w", err), true)
		return
	}

	if !emit(ctx, events, Event{Type: EventMessage, SessionID: conv.SessionID, Message: reply}) {
		return
	}

	o.metrics.WizardTurnsTotal.WithLabelValues("ok").Inc()
	o.metrics.WizardTurnIterations.Observe(float64(iterations))

	if conv.Completed {
		emit(ctx, events, Event{
			Type:      EventComplete,
			SessionID: conv.SessionID,
			Persona:   conv.Persona,
			Problem:   conv.Problem,
			Behaviour: conv.Behaviour,
		})
		return
	}
	emit(ctx, events, Event{Type: EventStreamEnd, SessionID: conv.SessionID})
}

// failTurn logs and reports a turn failure on the event stream.
func (o *Orchestrator) failTurn(ctx context.Context, events chan<- Event, log zerolog.Logger,
	sessionID string, err error, retryable bool) {
	log.Error().Err(err).Msg("Wizard turn failed")
	emit(ctx, events, Event{
		Type:      EventError,
		SessionID: sessionID,
		Error:     err.Error(),
		Retryable: retryable,
	})
}

// saveQuietly persists the conversation on error paths where the turn is
// already failing; a save failure is logged, not reported twice.
func (o *Orchestrator) saveQuietly(ctx context.Context, log zerolog.Logger, conv *session.Conversation) {
	if err := o.sessions.SaveConversation(ctx, conv); err != nil {
		log.Error().Err(err).Msg("Failed to persist conversation after turn error")
	}
}

// toRaw normalizes a payload value into JSON for an artifact slot.
func toRaw(v interface{}) json.RawMessage {
	switch val := v.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return val
	case string:
		if json.Valid([]byte(val)) {
			return json.RawMessage(val)
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
