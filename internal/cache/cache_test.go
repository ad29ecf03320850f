package cache_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/veritas/internal/cache"
	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
)

const articleURL = "https://example.com/a"

var errStoreDown = errors.New("store down")

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errStoreDown }
func (failingStore) Set(context.Context, string, []byte) error   { return errStoreDown }

func sampleResult() domain.AnalysisResult {
	bias := "center-left"
	return domain.AnalysisResult{
		Score:        85,
		Confidence:   0.5,
		Verdict:      domain.VerdictCredible,
		Reasons:      []string{"well sourced"},
		Sources:      []string{},
		BiasDetected: &bias,
	}
}

func stores(t *testing.T) map[string]cache.Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sqliteStore, err := cache.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cache", "veritas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]cache.Store{
		"memory": cache.NewMemoryStore(),
		"redis":  cache.NewRedisStore(client, "veritas:"),
		"sqlite": sqliteStore,
	}
}

func TestResultCache_RoundTripFreshness(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := cache.NewResultCache(store, time.Hour, infralogger.NewNop(), nil)
			written := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			c.Put(ctx, articleURL, sampleResult(), written)

			entry, ok := c.Get(ctx, articleURL, written.Add(3599*time.Second))
			require.True(t, ok, "entry should be fresh just under an hour")
			assert.Equal(t, sampleResult(), entry.Result)
			assert.True(t, entry.Timestamp.Equal(written))

			_, ok = c.Get(ctx, articleURL, written.Add(time.Hour))
			assert.False(t, ok, "entry should be stale at exactly an hour")
		})
	}
}

func TestResultCache_OverwriteLastWriterWins(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := cache.NewResultCache(store, 0, infralogger.NewNop(), nil)
			now := time.Now()

			c.Put(ctx, articleURL, sampleResult(), now.Add(-2*time.Hour))
			_, ok := c.Get(ctx, articleURL, now)
			require.False(t, ok)

			updated := sampleResult()
			updated.Score = 42
			c.Put(ctx, articleURL, updated, now)

			entry, ok := c.Get(ctx, articleURL, now)
			require.True(t, ok)
			assert.Equal(t, 42, entry.Result.Score)
		})
	}
}

func TestResultCache_MissingKey(t *testing.T) {
	c := cache.NewResultCache(cache.NewMemoryStore(), time.Hour, infralogger.NewNop(), nil)

	_, ok := c.Get(context.Background(), "https://never.seen", time.Now())
	assert.False(t, ok)
}

func TestResultCache_StorageErrorsAreSwallowed(t *testing.T) {
	c := cache.NewResultCache(failingStore{}, time.Hour, infralogger.NewNop(), nil)
	ctx := context.Background()

	c.Put(ctx, articleURL, sampleResult(), time.Now())
	_, ok := c.Get(ctx, articleURL, time.Now())
	assert.False(t, ok)
}

func TestResultCache_CorruptEntryIsMiss(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), cache.Key(articleURL), []byte("{not json")))

	c := cache.NewResultCache(store, time.Hour, infralogger.NewNop(), nil)
	_, ok := c.Get(context.Background(), articleURL, time.Now())
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "analysis_https://example.com/a", cache.Key(articleURL))
}

func TestStores_NotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "missing")
			assert.ErrorIs(t, err, cache.ErrNotFound)
		})
	}
}
