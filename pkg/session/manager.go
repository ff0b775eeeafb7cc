package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/leialab/leia/pkg/provider"
	"github.com/leialab/leia/pkg/store"
	"github.com/rs/zerolog"
)

// ConversationTTL is the nominal lifetime of session state; every write
// restarts it.
const ConversationTTL = time.Hour

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Session is the persisted identity of one conversation.
type Session struct {
	ID        string
	ModelName string
	Handle    provider.SessionHandle
	CreatedAt int64 // epoch millis
}

// Meta is side-channel metadata attached to a session, stored under
// "leia:meta:<id>".
type Meta struct {
	ExpectedSolution string `json:"expectedSolution,omitempty"`
	Format           string `json:"format,omitempty"`
}

// Clock abstracts time for record timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Manager owns the store layout of sessions, conversations, and metadata.
type Manager struct {
	store  *store.Store
	clock  Clock
	logger zerolog.Logger
}

// NewManager creates a session manager over the given store.
func NewManager(st *store.Store, clock Clock, logger zerolog.Logger) *Manager {
	if clock == nil {
		clock = systemClock{}
	}
	return &Manager{store: st, clock: clock, logger: logger}
}

// Create persists a new session record. An empty id is replaced by a
// generated one.
func (m *Manager) Create(ctx context.Context, id, modelName string, handle provider.SessionHandle) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	sess := &Session{
		ID:        id,
		ModelName: modelName,
		Handle:    handle,
		CreatedAt: m.clock.Now().UnixMilli(),
	}

	fields := map[string]string{
		"sessionId": sess.ID,
		"modelName": sess.ModelName,
		"createdAt": strconv.FormatInt(sess.CreatedAt, 10),
	}
	if handle.IsThreadBacked() {
		fields["assistantId"] = handle.AssistantID
		fields["threadId"] = handle.ThreadID
	} else {
		fields["conversationId"] = handle.ConversationID
		fields["instructions"] = handle.Instructions
	}

	if err := m.store.HSet(ctx, store.SessionKey(id), fields, ConversationTTL); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	m.logger.Info().Str("session_id", id).Str("model", modelName).Msg("Session created")
	return sess, nil
}

// Get loads a session record. Absent or expired records yield ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}

	fields, ok, err := m.store.HGetAll(ctx, store.SessionKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	createdAt, _ := strconv.ParseInt(fields["createdAt"], 10, 64)
	return &Session{
		ID:        fields["sessionId"],
		ModelName: fields["modelName"],
		CreatedAt: createdAt,
		Handle: provider.SessionHandle{
			AssistantID:    fields["assistantId"],
			ThreadID:       fields["threadId"],
			ConversationID: fields["conversationId"],
			Instructions:   fields["instructions"],
		},
	}, nil
}

// UpdateHandle rewrites the provider handle of a session, refreshing the
// record's TTL. Used by providers whose chaining id advances per exchange.
func (m *Manager) UpdateHandle(ctx context.Context, id string, handle provider.SessionHandle) error {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.Handle = handle

	fields := map[string]string{
		"sessionId": sess.ID,
		"modelName": sess.ModelName,
		"createdAt": strconv.FormatInt(sess.CreatedAt, 10),
	}
	if handle.IsThreadBacked() {
		fields["assistantId"] = handle.AssistantID
		fields["threadId"] = handle.ThreadID
	} else {
		fields["conversationId"] = handle.ConversationID
		fields["instructions"] = handle.Instructions
	}
	return m.store.HSet(ctx, store.SessionKey(id), fields, ConversationTTL)
}

// Delete removes a session record together with its conversation and
// metadata. Deleting an unknown session is not an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	if _, err := m.store.Delete(ctx, store.SessionKey(id), store.MetaKey(id)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	m.logger.Info().Str("session_id", id).Msg("Session deleted")
	return nil
}

// SaveMeta stores side metadata with the nominal TTL.
func (m *Manager) SaveMeta(ctx context.Context, id string, meta Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	return m.store.Put(ctx, store.MetaKey(id), string(data), ConversationTTL)
}

// LoadMeta reads side metadata; ErrNotFound when absent.
func (m *Manager) LoadMeta(ctx context.Context, id string) (*Meta, error) {
	raw, ok, err := m.store.Get(ctx, store.MetaKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load session metadata: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("metadata for session %s: %w", id, ErrNotFound)
	}

	var meta Meta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse session metadata: %w", err)
	}
	return &meta, nil
}
