package purge

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/leialab/leia/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type engineFixture struct {
	engine *Engine
	store  *store.Store
	clock  *fakeClock
}

func setupTestEngine(t *testing.T) *engineFixture {
	t.Helper()

	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	st, err := store.Open(store.Config{
		Path:   filepath.Join(t.TempDir(), "purge.db"),
		Clock:  clock,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	engine := NewEngine(Config{Store: st, Clock: clock, Logger: zerolog.Nop()})
	return &engineFixture{engine: engine, store: st, clock: clock}
}

// seedSession writes a session record with the given age relative to the
// fixture clock.
func (fx *engineFixture) seedSession(t *testing.T, id, modelName string, age time.Duration) {
	t.Helper()
	createdAt := fx.clock.Now().Add(-age).UnixMilli()
	fields := map[string]string{
		"sessionId": id,
		"modelName": modelName,
		"createdAt": strconv.FormatInt(createdAt, 10),
	}
	require.NoError(t, fx.store.HSet(context.Background(), store.SessionKey(id), fields, 0))
}

func (fx *engineFixture) keys(t *testing.T) []string {
	t.Helper()
	keys, err := fx.store.Keys(context.Background(), "*")
	require.NoError(t, err)
	return keys
}

func TestPurgeTimeWindow(t *testing.T) {
	fx := setupTestEngine(t)
	fx.seedSession(t, "old", "wizard", 25*time.Hour)
	fx.seedSession(t, "fresh", "wizard", time.Hour)

	result, err := fx.engine.Run(context.Background(), Request{TimeFrame: "24h"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TotalKeysFound)
	assert.Equal(t, 1, result.DeletedKeys)
	assert.Equal(t, []string{"timeFrame"}, result.AppliedFilters)

	assert.Equal(t, []string{store.SessionKey("fresh")}, fx.keys(t))
}

func TestPurgeSpecificDate(t *testing.T) {
	fx := setupTestEngine(t)

	// Clock is 2024-06-01; ages place one record before the cutoff date
	// and one after it.
	fx.seedSession(t, "january", "wizard", 150*24*time.Hour)
	fx.seedSession(t, "may", "wizard", 24*time.Hour)

	result, err := fx.engine.Run(context.Background(), Request{SpecificDate: "2024-01-15"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DeletedKeys)
	assert.Equal(t, []string{"specificDate"}, result.AppliedFilters)

	assert.Equal(t, []string{store.SessionKey("may")}, fx.keys(t))
}

func TestPurgeAllWipesEveryNamespace(t *testing.T) {
	fx := setupTestEngine(t)
	ctx := context.Background()

	fx.seedSession(t, "a", "wizard", time.Minute)
	require.NoError(t, fx.store.Put(ctx, store.MetaKey("a"), `{"expectedSolution":"42"}`, 0))
	require.NoError(t, fx.store.Put(ctx, store.ModelsKey("catalog"), `["wizard"]`, 0))

	result, err := fx.engine.Run(ctx, Request{TimeFrame: "all"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalKeysFound)
	assert.Equal(t, 3, result.DeletedKeys)
	assert.Empty(t, fx.keys(t))
}

func TestPurgeNonSessionNamespacesPassTimeFilter(t *testing.T) {
	fx := setupTestEngine(t)
	ctx := context.Background()

	fx.seedSession(t, "fresh", "wizard", time.Minute)
	require.NoError(t, fx.store.Put(ctx, store.MetaKey("fresh"), `{}`, 0))

	result, err := fx.engine.Run(ctx, Request{TimeFrame: "24h"})
	require.NoError(t, err)
	// The metadata record carries no createdAt and is not in the session
	// namespace, so the time filter lets it through.
	assert.Equal(t, 1, result.DeletedKeys)
	assert.Equal(t, []string{store.SessionKey("fresh")}, fx.keys(t))
}

func TestPurgeSessionWithoutTimestampIsSkipped(t *testing.T) {
	fx := setupTestEngine(t)
	ctx := context.Background()

	require.NoError(t, fx.store.HSet(ctx, store.SessionKey("legacy"),
		map[string]string{"sessionId": "legacy"}, 0))

	result, err := fx.engine.Run(ctx, Request{TimeFrame: "24h"})
	require.NoError(t, err)
	assert.Zero(t, result.DeletedKeys)
	assert.Equal(t, []string{store.SessionKey("legacy")}, fx.keys(t))
}

func TestPurgeBySessionID(t *testing.T) {
	fx := setupTestEngine(t)
	ctx := context.Background()

	fx.seedSession(t, "target", "wizard", 2*time.Hour)
	fx.seedSession(t, "other", "wizard", 2*time.Hour)
	require.NoError(t, fx.store.Put(ctx, store.MetaKey("target"), `{}`, 0))
	require.NoError(t, fx.store.Put(ctx, store.MetaKey("other"), `{}`, 0))

	result, err := fx.engine.Run(ctx, Request{TimeFrame: "1h", SessionID: "target"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.DeletedKeys)
	assert.Equal(t, []string{"timeFrame", "sessionId"}, result.AppliedFilters)

	remaining := fx.keys(t)
	assert.Contains(t, remaining, store.SessionKey("other"))
	assert.Contains(t, remaining, store.MetaKey("other"))
	assert.NotContains(t, remaining, store.SessionKey("target"))
	assert.NotContains(t, remaining, store.MetaKey("target"))
}

func TestPurgeByModelName(t *testing.T) {
	fx := setupTestEngine(t)

	fx.seedSession(t, "a", "claude", 2*time.Hour)
	fx.seedSession(t, "b", "wizard", 2*time.Hour)

	result, err := fx.engine.Run(context.Background(), Request{TimeFrame: "1h", ModelName: "claude"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DeletedKeys)
	assert.Equal(t, []string{"timeFrame", "modelName"}, result.AppliedFilters)
	assert.Equal(t, []string{store.SessionKey("b")}, fx.keys(t))
}

func TestPurgeByMetadata(t *testing.T) {
	fx := setupTestEngine(t)
	ctx := context.Background()

	fx.seedSession(t, "a", "wizard", 2*time.Hour)
	fx.seedSession(t, "b", "wizard", 2*time.Hour)
	require.NoError(t, fx.store.HSet(ctx, store.SessionKey("a"),
		map[string]string{"tenant": "acme"}, 0))

	result, err := fx.engine.Run(ctx, Request{
		TimeFrame: "1h",
		Metadata:  map[string]string{"tenant": "acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DeletedKeys)
	assert.Equal(t, []string{"timeFrame", "metadata"}, result.AppliedFilters)
	assert.Equal(t, []string{store.SessionKey("b")}, fx.keys(t))
}

func TestPurgeFiltersOnlyNarrow(t *testing.T) {
	fx := setupTestEngine(t)
	fx.seedSession(t, "a", "wizard", 2*time.Hour)
	fx.seedSession(t, "b", "wizard", 3*time.Hour)
	fx.seedSession(t, "c", "claude", 4*time.Hour)

	narrow, err := fx.engine.Run(context.Background(), Request{TimeFrame: "1h", SessionID: "a"})
	require.NoError(t, err)

	broad, err := fx.engine.Run(context.Background(), Request{TimeFrame: "1h"})
	require.NoError(t, err)

	assert.LessOrEqual(t, narrow.DeletedKeys, narrow.TotalKeysFound)
	assert.LessOrEqual(t, narrow.DeletedKeys+broad.DeletedKeys, 3)
	assert.Equal(t, 1, narrow.DeletedKeys)
	assert.Equal(t, 2, broad.DeletedKeys)
}

func TestPurgeRequestValidation(t *testing.T) {
	fx := setupTestEngine(t)
	ctx := context.Background()

	_, err := fx.engine.Run(ctx, Request{})
	assert.Error(t, err)

	_, err = fx.engine.Run(ctx, Request{TimeFrame: "1h", SpecificDate: "2024-01-15"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")

	_, err = fx.engine.Run(ctx, Request{TimeFrame: "bogus"})
	assert.Error(t, err)
}

func TestPurgeLargeBatchCount(t *testing.T) {
	fx := setupTestEngine(t)

	// More candidates than one batch holds.
	for i := 0; i < 250; i++ {
		fx.seedSession(t, "s"+strconv.Itoa(i), "wizard", 2*time.Hour)
	}

	result, err := fx.engine.Run(context.Background(), Request{TimeFrame: "1h"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 250, result.TotalKeysFound)
	assert.Equal(t, 250, result.DeletedKeys)
	assert.Empty(t, fx.keys(t))
}
