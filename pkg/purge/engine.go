package purge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/leialab/leia/internal/metrics"
	"github.com/leialab/leia/pkg/store"
	"github.com/rs/zerolog"
)

// batchSize bounds the key count of one delete operation.
const batchSize = 100

// Request describes one purge. Exactly one of TimeFrame and SpecificDate
// must be set; the remaining filters are optional and only narrow the
// candidate set.
type Request struct {
	TimeFrame    string            `json:"timeFrame,omitempty"`
	SpecificDate string            `json:"specificDate,omitempty"`
	SessionID    string            `json:"sessionId,omitempty"`
	ModelName    string            `json:"modelName,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Result reports a purge outcome. It is returned even on partial
// failure; Errors carries per-batch failures.
type Result struct {
	Success        bool     `json:"success"`
	TotalKeysFound int      `json:"totalKeysFound"`
	DeletedKeys    int      `json:"deletedKeys"`
	AppliedFilters []string `json:"appliedFilters"`
	Errors         []string `json:"errors,omitempty"`
}

// Clock abstracts time for cutoff computation.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config wires an Engine.
type Config struct {
	Store   *store.Store
	Clock   Clock
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Engine deletes store records matching a filter pipeline.
type Engine struct {
	store   *store.Store
	clock   Clock
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewEngine creates a purge engine over the given store.
func NewEngine(cfg Config) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Engine{
		store:   cfg.Store,
		clock:   clock,
		metrics: m,
		logger:  cfg.Logger.With().Str("component", "purge").Logger(),
	}
}

// Run executes one purge. Filters apply as a strict pipeline in fixed
// order: time, then session id, then model name, then metadata. Each
// stage only narrows the candidate set, so adding a filter can never
// delete more keys than the same request without it.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	cutoff, all, applied, err := e.resolveCutoff(req)
	if err != nil {
		return nil, err
	}

	candidates, err := e.enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate keys: %w", err)
	}

	candidates, err = e.filterTime(ctx, candidates, cutoff, all)
	if err != nil {
		return nil, err
	}

	if req.SessionID != "" {
		applied = append(applied, "sessionId")
		candidates = filterSessionID(candidates, req.SessionID)
	}
	if req.ModelName != "" {
		applied = append(applied, "modelName")
		candidates, err = e.filterModelName(ctx, candidates, req.ModelName)
		if err != nil {
			return nil, err
		}
	}
	if len(req.Metadata) > 0 {
		applied = append(applied, "metadata")
		candidates, err = e.filterMetadata(ctx, candidates, req.Metadata)
		if err != nil {
			return nil, err
		}
	}

	result := &Result{
		TotalKeysFound: len(candidates),
		AppliedFilters: applied,
	}

	for start := 0; start < len(candidates); start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		deleted, err := e.store.Delete(ctx, candidates[start:end]...)
		result.DeletedKeys += deleted
		if err != nil {
			// Continue with the remaining batches; the caller sees the
			// partial failure in Errors.
			e.logger.Error().Err(err).Int("batch_start", start).Msg("Purge batch failed")
			result.Errors = append(result.Errors, err.Error())
		}
	}

	result.Success = len(result.Errors) == 0
	e.metrics.PurgeRunsTotal.Inc()
	e.metrics.PurgeDeletedKeysTotal.Add(float64(result.DeletedKeys))
	e.logger.Info().
		Int("found", result.TotalKeysFound).
		Int("deleted", result.DeletedKeys).
		Strs("filters", result.AppliedFilters).
		Msg("Purge finished")
	return result, nil
}

// resolveCutoff validates the mutually exclusive time criterion and
// returns the absolute cutoff, the all flag, and the applied-filter tag.
func (e *Engine) resolveCutoff(req Request) (time.Time, bool, []string, error) {
	switch {
	case req.TimeFrame != "" && req.SpecificDate != "":
		return time.Time{}, false, nil, fmt.Errorf("timeFrame and specificDate are mutually exclusive")
	case req.TimeFrame != "":
		window, all, err := ParseTimeFrame(req.TimeFrame)
		if err != nil {
			return time.Time{}, false, nil, err
		}
		if all {
			return time.Time{}, true, []string{"timeFrame"}, nil
		}
		return e.clock.Now().Add(-window), false, []string{"timeFrame"}, nil
	case req.SpecificDate != "":
		cutoff, err := ParseSpecificDate(req.SpecificDate)
		if err != nil {
			return time.Time{}, false, nil, err
		}
		return cutoff, false, []string{"specificDate"}, nil
	default:
		return time.Time{}, false, nil, fmt.Errorf("a time criterion (timeFrame or specificDate) is required")
	}
}

// enumerate lists every purgeable key across the store namespaces.
func (e *Engine) enumerate(ctx context.Context) ([]string, error) {
	var keys []string
	for _, pattern := range []string{
		store.SessionPrefix + "*",
		store.MetaPrefix + "*",
		store.ModelsPrefix + "*",
	} {
		matched, err := e.store.Keys(ctx, pattern)
		if err != nil {
			return nil, err
		}
		keys = append(keys, matched...)
	}
	return keys, nil
}

// filterTime keeps session-namespace records whose createdAt is no newer
// than the cutoff. Session records without a timestamp are dropped, not
// conservatively kept. Records of other namespaces pass unconditionally.
func (e *Engine) filterTime(ctx context.Context, keys []string, cutoff time.Time, all bool) ([]string, error) {
	if all {
		return keys, nil
	}

	cutoffMillis := cutoff.UnixMilli()
	kept := keys[:0]
	for _, key := range keys {
		if !strings.HasPrefix(key, store.SessionPrefix) {
			kept = append(kept, key)
			continue
		}
		raw, ok, err := e.store.HGet(ctx, key, "createdAt")
		if err != nil {
			return nil, fmt.Errorf("failed to read createdAt of %s: %w", key, err)
		}
		if !ok {
			continue
		}
		createdAt, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if createdAt <= cutoffMillis {
			kept = append(kept, key)
		}
	}
	return kept, nil
}

// filterSessionID keeps only the records addressed by the given session
// id, resolved from the key naming scheme.
func filterSessionID(keys []string, sessionID string) []string {
	sessionKey := store.SessionKey(sessionID)
	metaKey := store.MetaKey(sessionID)

	kept := keys[:0]
	for _, key := range keys {
		if key == sessionKey || key == metaKey {
			kept = append(kept, key)
		}
	}
	return kept
}

// filterModelName keeps records whose modelName field matches. Records
// without the field (metadata, model listings) are dropped.
func (e *Engine) filterModelName(ctx context.Context, keys []string, modelName string) ([]string, error) {
	kept := keys[:0]
	for _, key := range keys {
		name, ok, err := e.store.HGet(ctx, key, "modelName")
		if err != nil {
			return nil, fmt.Errorf("failed to read modelName of %s: %w", key, err)
		}
		if ok && name == modelName {
			kept = append(kept, key)
		}
	}
	return kept, nil
}

// filterMetadata keeps records whose fields carry every given key/value
// pair.
func (e *Engine) filterMetadata(ctx context.Context, keys []string, metadata map[string]string) ([]string, error) {
	kept := keys[:0]
	for _, key := range keys {
		fields, ok, err := e.store.HGetAll(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read fields of %s: %w", key, err)
		}
		if !ok {
			continue
		}
		matches := true
		for k, v := range metadata {
			if fields[k] != v {
				matches = false
				break
			}
		}
		if matches {
			kept = append(kept, key)
		}
	}
	return kept, nil
}
