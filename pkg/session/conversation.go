package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leialab/leia/pkg/provider"
	"github.com/leialab/leia/pkg/store"
)

// Conversation is the orchestrator-facing state of one wizard session:
// the ordered message history plus the three artifact slots.
type Conversation struct {
	SessionID string             `json:"sessionId"`
	Messages  []provider.Message `json:"messages"`
	Persona   json.RawMessage    `json:"persona,omitempty"`
	Problem   json.RawMessage    `json:"problem,omitempty"`
	Behaviour json.RawMessage    `json:"behaviour,omitempty"`
	Completed bool               `json:"completed"`
	UserToken string             `json:"userToken,omitempty"`
}

// Append adds a message to the history. History is strictly append-only
// within a turn; nothing reorders or prunes it.
func (c *Conversation) Append(msg provider.Message) {
	c.Messages = append(c.Messages, msg)
}

// SetArtifact fills one artifact slot and re-derives the completed flag.
func (c *Conversation) SetArtifact(kind string, content json.RawMessage) error {
	switch kind {
	case "persona":
		c.Persona = content
	case "problem":
		c.Problem = content
	case "behaviour":
		c.Behaviour = content
	default:
		return fmt.Errorf("unknown artifact kind %q", kind)
	}
	c.refreshCompleted()
	return nil
}

// Artifact returns the current content of one slot.
func (c *Conversation) Artifact(kind string) (json.RawMessage, error) {
	switch kind {
	case "persona":
		return c.Persona, nil
	case "problem":
		return c.Problem, nil
	case "behaviour":
		return c.Behaviour, nil
	default:
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}
}

// refreshCompleted enforces the invariant: completed iff all three
// artifacts are non-null.
func (c *Conversation) refreshCompleted() {
	c.Completed = len(c.Persona) > 0 && len(c.Problem) > 0 && len(c.Behaviour) > 0
}

const conversationField = "conversation"

// LoadConversation reads the conversation of a session, returning a
// fresh empty one when none has been written yet.
func (m *Manager) LoadConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	raw, ok, err := m.store.HGet(ctx, store.SessionKey(sessionID), conversationField)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if !ok {
		return &Conversation{SessionID: sessionID}, nil
	}

	var conv Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return nil, fmt.Errorf("failed to parse conversation: %w", err)
	}
	conv.SessionID = sessionID
	return &conv, nil
}

// SaveConversation serializes the full conversation back to the session
// record, restarting the nominal TTL. There is no partial update that
// preserves the old expiry.
func (m *Manager) SaveConversation(ctx context.Context, conv *Conversation) error {
	conv.refreshCompleted()

	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := m.store.HSet(ctx, store.SessionKey(conv.SessionID),
		map[string]string{conversationField: string(data)}, ConversationTTL); err != nil {
		return fmt.Errorf("failed to persist conversation: %w", err)
	}
	return nil
}
