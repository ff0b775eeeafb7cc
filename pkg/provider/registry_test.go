package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStateStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{data: make(map[string]string)}
}

func (f *fakeStateStore) Put(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeStateStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

type fakeProvider struct {
	name       string
	failCreate bool
	failSend   bool
	emptyReply bool
	sendCount  int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) CreateSession(context.Context, CreateSessionOptions) (SessionHandle, error) {
	if p.failCreate {
		return SessionHandle{}, errors.New("create boom")
	}
	return SessionHandle{ConversationID: "conv-" + p.name}, nil
}

func (p *fakeProvider) SendMessage(context.Context, SendMessageOptions) (*MessageResult, error) {
	p.sendCount++
	if p.failSend {
		return nil, errors.New("send boom")
	}
	if p.emptyReply {
		return &MessageResult{}, nil
	}
	return &MessageResult{Message: "hello"}, nil
}

func (p *fakeProvider) EvaluateSolution(context.Context, EvaluateOptions) (*Evaluation, error) {
	return &Evaluation{Score: 100}, nil
}

func newTestRegistry(t *testing.T, defaultName string, providers ...Provider) (*Registry, *fakeStateStore) {
	t.Helper()
	st := newFakeStateStore()
	reg := NewRegistry(RegistryConfig{
		Providers:   providers,
		DefaultName: defaultName,
		Store:       st,
		Logger:      zerolog.Nop(),
	})
	return reg, st
}

func TestRegistry_InitializeValidatesProviders(t *testing.T) {
	good := &fakeProvider{name: "assistant"}
	bad := &fakeProvider{name: "responses", failSend: true}
	reg, st := newTestRegistry(t, "assistant", good, bad)

	err := reg.Initialize(context.Background())
	require.NoError(t, err, "one failing provider must not abort initialization")

	assert.Equal(t, []string{"assistant"}, reg.ValidatedModels())

	flag, ok, _ := st.Get(context.Background(), "models:validated:assistant")
	assert.True(t, ok)
	assert.Equal(t, "true", flag)

	flag, ok, _ = st.Get(context.Background(), "models:validated:responses")
	assert.True(t, ok)
	assert.Equal(t, "false", flag)

	catalog, ok, _ := st.Get(context.Background(), "models:catalog")
	assert.True(t, ok)
	assert.JSONEq(t, `["assistant"]`, catalog)
}

func TestRegistry_EmptyReplyFailsValidation(t *testing.T) {
	reg, _ := newTestRegistry(t, "assistant", &fakeProvider{name: "assistant", emptyReply: true})

	require.NoError(t, reg.Initialize(context.Background()))
	assert.Empty(t, reg.ValidatedModels())

	_, err := reg.GetModel("assistant")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_GetModelDefault(t *testing.T) {
	tests := []struct {
		name        string
		defaultName string
		providers   []Provider
		want        string
		wantErr     bool
	}{
		{
			name:        "default validated",
			defaultName: "responses",
			providers:   []Provider{&fakeProvider{name: "assistant"}, &fakeProvider{name: "responses"}},
			want:        "responses",
		},
		{
			name:        "default invalid falls back to any validated",
			defaultName: "responses",
			providers:   []Provider{&fakeProvider{name: "assistant"}, &fakeProvider{name: "responses", failCreate: true}},
			want:        "assistant",
		},
		{
			name:        "no validated providers",
			defaultName: "responses",
			providers:   []Provider{&fakeProvider{name: "responses", failCreate: true}},
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _ := newTestRegistry(t, tt.defaultName, tt.providers...)
			require.NoError(t, reg.Initialize(context.Background()))

			p, err := reg.GetModel(DefaultModel)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}
}

func TestRegistry_GetModelByName(t *testing.T) {
	reg, _ := newTestRegistry(t, "assistant", &fakeProvider{name: "assistant"})
	require.NoError(t, reg.Initialize(context.Background()))

	p, err := reg.GetModel("assistant")
	require.NoError(t, err)
	assert.Equal(t, "assistant", p.Name())

	_, err = reg.GetModel("unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_RegisterModel(t *testing.T) {
	reg, st := newTestRegistry(t, "assistant", &fakeProvider{name: "assistant"})
	require.NoError(t, reg.Initialize(context.Background()))

	result := reg.RegisterModel(context.Background(), "claude", &fakeProvider{name: "claude"})
	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"assistant", "claude"}, reg.ValidatedModels())

	catalog, _, _ := st.Get(context.Background(), "models:catalog")
	assert.JSONEq(t, `["assistant","claude"]`, catalog)
}

func TestRegistry_RegisterModelFailureLeavesSetUnchanged(t *testing.T) {
	reg, _ := newTestRegistry(t, "assistant", &fakeProvider{name: "assistant"})
	require.NoError(t, reg.Initialize(context.Background()))
	before := reg.ValidatedModels()

	result := reg.RegisterModel(context.Background(), "broken", &fakeProvider{name: "broken", failSend: true})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
	assert.Equal(t, before, reg.ValidatedModels())

	_, err := reg.GetModel("broken")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_RegisterModelRejectsReservedName(t *testing.T) {
	reg, _ := newTestRegistry(t, "assistant")

	result := reg.RegisterModel(context.Background(), DefaultModel, &fakeProvider{name: "default"})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}

func TestParseEvaluation(t *testing.T) {
	eval, err := parseEvaluation(`Here you go: {"score": 82.5, "evaluation": "solid"} thanks`)
	require.NoError(t, err)
	assert.Equal(t, 82.5, eval.Score)
	assert.Equal(t, "solid", eval.Evaluation)

	_, err = parseEvaluation("no json here")
	assert.Error(t, err)
}
