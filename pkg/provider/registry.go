package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/leialab/leia/pkg/store"
	"github.com/rs/zerolog"
)

// DefaultModel is the sentinel name resolving to the configured default
// provider, falling back to any validated one.
const DefaultModel = "default"

const smokeTestInstructions = "You are a connectivity self-test. Answer briefly."
const smokeTestMessage = "Reply with a short greeting."

// StateStore is the slice of the session store the registry needs to
// mirror validation state for other processes.
type StateStore interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
}

// RegistryConfig holds registry construction parameters.
type RegistryConfig struct {
	Providers   []Provider
	DefaultName string
	Store       StateStore
	Logger      zerolog.Logger
}

// Registry owns the set of available providers, validates each at load
// time, and serves read-only lookups.
type Registry struct {
	providers   map[string]Provider
	validated   map[string]bool
	defaultName string
	store       StateStore
	logger      zerolog.Logger
	mu          sync.RWMutex
}

// RegisterResult reports the outcome of a hot registration.
type RegisterResult struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}

// NewRegistry creates a registry over a fixed provider set. Nothing is
// validated until Initialize runs.
func NewRegistry(cfg RegistryConfig) *Registry {
	providers := make(map[string]Provider, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers[p.Name()] = p
	}
	return &Registry{
		providers:   providers,
		validated:   make(map[string]bool),
		defaultName: cfg.DefaultName,
		store:       cfg.Store,
		logger:      cfg.Logger,
	}
}

// Initialize smoke-tests every registered provider. One provider's
// failure is logged and excluded without aborting the others. Validation
// flags and the visible model list are written to the store.
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		r.mu.RLock()
		p := r.providers[name]
		r.mu.RUnlock()

		if err := r.smokeTest(ctx, p); err != nil {
			r.logger.Warn().Str("model", name).Err(err).Msg("Provider failed validation")
			r.setValidated(ctx, name, false)
			continue
		}
		r.setValidated(ctx, name, true)
		r.logger.Info().Str("model", name).Msg("Provider validated")
	}

	if err := r.syncCatalog(ctx); err != nil {
		return fmt.Errorf("failed to sync model catalog: %w", err)
	}
	return nil
}

// GetModel returns the validated provider for name. The sentinel
// "default" resolves to the configured default if validated, otherwise
// to any validated provider. ErrNotFound when none qualifies.
func (r *Registry) GetModel(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == DefaultModel {
		if r.validated[r.defaultName] {
			return r.providers[r.defaultName], nil
		}
		// Deterministic fallback: first validated provider by name.
		names := make([]string, 0, len(r.validated))
		for n, ok := range r.validated {
			if ok {
				names = append(names, n)
			}
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("no validated providers: %w", ErrNotFound)
		}
		sort.Strings(names)
		return r.providers[names[0]], nil
	}

	if !r.validated[name] {
		return nil, fmt.Errorf("model %s: %w", name, ErrNotFound)
	}
	return r.providers[name], nil
}

// RegisterModel hot-loads a provider instance, re-runs the smoke test,
// and admits it only on success. On success the externally visible
// model list is resynchronized.
func (r *Registry) RegisterModel(ctx context.Context, name string, p Provider) RegisterResult {
	if name == "" || name == DefaultModel {
		return RegisterResult{Errors: []string{fmt.Sprintf("invalid model name %q", name)}}
	}

	if err := r.smokeTest(ctx, p); err != nil {
		r.logger.Warn().Str("model", name).Err(err).Msg("Registration smoke test failed")
		return RegisterResult{Errors: []string{err.Error()}}
	}

	r.mu.Lock()
	r.providers[name] = p
	r.mu.Unlock()

	r.setValidated(ctx, name, true)
	if err := r.syncCatalog(ctx); err != nil {
		r.logger.Error().Str("model", name).Err(err).Msg("Failed to resync model catalog")
		return RegisterResult{Success: true, Errors: []string{err.Error()}}
	}

	r.logger.Info().Str("model", name).Msg("Model registered")
	return RegisterResult{Success: true}
}

// ValidatedModels lists validated provider names, sorted.
func (r *Registry) ValidatedModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.validated))
	for name, ok := range r.validated {
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// smokeTest exercises the two mandatory capabilities: create a session
// with a fixed instruction, send a canned message, require a non-empty
// textual reply.
func (r *Registry) smokeTest(ctx context.Context, p Provider) error {
	if p == nil {
		return fmt.Errorf("nil provider")
	}

	handle, err := p.CreateSession(ctx, CreateSessionOptions{Instructions: smokeTestInstructions})
	if err != nil {
		return fmt.Errorf("createSession failed: %w", err)
	}

	result, err := p.SendMessage(ctx, SendMessageOptions{Handle: handle, Message: smokeTestMessage})
	if err != nil {
		return fmt.Errorf("sendMessage failed: %w", err)
	}
	if result == nil || result.Message == "" {
		return fmt.Errorf("sendMessage returned an empty response")
	}
	return nil
}

func (r *Registry) setValidated(ctx context.Context, name string, ok bool) {
	r.mu.Lock()
	r.validated[name] = ok
	r.mu.Unlock()

	if r.store == nil {
		return
	}
	value := "false"
	if ok {
		value = "true"
	}
	if err := r.store.Put(ctx, store.ModelsKey("validated:"+name), value, 0); err != nil {
		r.logger.Error().Str("model", name).Err(err).Msg("Failed to persist validation flag")
	}
}

// syncCatalog writes the validated model list so other processes observe
// the same provider set.
func (r *Registry) syncCatalog(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	names := r.ValidatedModels()
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, store.ModelsKey("catalog"), string(data), 0)
}
