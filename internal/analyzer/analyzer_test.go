package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/devcrew/internal/cache"
)

func newCache(t *testing.T) (*cache.Cache, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte(`{"name":"shop"}`), 0o644))

	store, err := cache.NewFileStore(filepath.Join(t.TempDir(), "cache"), true)
	require.NoError(t, err)
	c, err := cache.New(store, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, root
}

func countingAnalyzer(calls *atomic.Int32) Analyzer {
	return Func(func(ctx context.Context, root string) (map[string]any, error) {
		calls.Add(1)
		return StaticAnalyzer{}.Analyze(ctx, root)
	})
}

func TestStaticAnalyzer(t *testing.T) {
	got, err := StaticAnalyzer{}.Analyze(context.Background(), "/projects/shop")
	require.NoError(t, err)
	assert.Equal(t, "Vue.js", got["framework"])
	assert.Equal(t, "shop", got["project_name"])
	assert.Contains(t, got, "dependencies")
	assert.Contains(t, got, "metrics")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = StaticAnalyzer{}.Analyze(ctx, "/x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCachedAnalyzer_Modes(t *testing.T) {
	ctx := context.Background()
	c, root := newCache(t)
	var calls atomic.Int32
	a := NewCachedAnalyzer(countingAnalyzer(&calls), c, nil)

	first, err := a.Analyze(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, "full", first[cache.ModeKey])
	assert.Equal(t, false, first[CacheHitKey])
	assert.Contains(t, first, ExecutionTimeKey)

	second, err := a.Analyze(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, "cached", second[cache.ModeKey])
	assert.Equal(t, true, second[CacheHitKey])
	assert.Equal(t, "Vue.js", second["framework"])
	assert.Equal(t, int32(1), calls.Load())

	forced, err := a.Analyze(ctx, Options{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, "full", forced[cache.ModeKey])
	assert.Equal(t, int32(2), calls.Load())

	require.NoError(t, os.WriteFile(filepath.Join(root, "App.vue"), []byte("<template/>"), 0o644))
	diff, err := a.Analyze(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, "differential", diff[cache.ModeKey])
	assert.Equal(t, true, diff[CacheHitKey])
	assert.NotEqual(t, diff[cache.OldProjectHashKey], diff[cache.NewProjectHashKey])
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedAnalyzer_OperationsAreSeparate(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t)
	var calls atomic.Int32
	a := NewCachedAnalyzer(countingAnalyzer(&calls), c, nil)

	_, err := a.Analyze(ctx, Options{Operation: "structure"})
	require.NoError(t, err)
	_, err = a.Analyze(ctx, Options{Operation: "dependencies"})
	require.NoError(t, err)
	_, err = a.Analyze(ctx, Options{Operation: "structure", Params: map[string]any{"depth": 2}})
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
}

func TestCachedAnalyzer_AnalyzerError(t *testing.T) {
	c, _ := newCache(t)
	a := NewCachedAnalyzer(Func(func(context.Context, string) (map[string]any, error) {
		return nil, fmt.Errorf("parser crashed")
	}), c, nil)

	_, err := a.Analyze(context.Background(), Options{})
	assert.ErrorContains(t, err, "parser crashed")

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.Entries, "failed analyses are not cached")
}
