package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/domain"
	"docchat/internal/vectorindex"
)

func openTest(t *testing.T, dir string) *Backend {
	t.Helper()
	b, err := Open(Config{Path: dir, Collection: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBackend_UpsertAndSearch(t *testing.T) {
	b := openTest(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, b.Upsert(ctx, []vectorindex.Record{
		{ID: "c0", Document: "east", Metadata: map[string]any{"page": float64(1)}, Vector: []float32{1, 0}},
		{ID: "c1", Document: "north", Metadata: map[string]any{"page": float64(2)}, Vector: []float32{0, 1}},
		{ID: "c2", Document: "northeast", Metadata: map[string]any{"page": float64(3)}, Vector: []float32{1, 1}},
	}))

	got, err := b.Search(ctx, []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c0", got[0].ID)
	assert.Equal(t, "c2", got[1].ID)
	assert.Equal(t, "east", got[0].Content)
	assert.Equal(t, float64(1), got[0].Metadata["page"])
	assert.Greater(t, got[0].Score, got[1].Score)

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestBackend_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := Open(Config{Path: dir, Collection: "test"})
	require.NoError(t, err)
	require.NoError(t, b.Upsert(ctx, []vectorindex.Record{
		{ID: "c0", Document: "persisted chunk", Metadata: map[string]any{}, Vector: []float32{0.5, 0.25}},
	}))
	require.NoError(t, b.Close())

	b = openTest(t, dir)
	got, err := b.Search(ctx, []float32{0.5, 0.25}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "persisted chunk", got[0].Content)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
}

func TestBackend_ReupsertReplacesWithoutDuplicating(t *testing.T) {
	b := openTest(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, b.Upsert(ctx, []vectorindex.Record{
		{ID: "c0", Document: "old text", Metadata: map[string]any{}, Vector: []float32{1, 0}},
	}))
	require.NoError(t, b.Upsert(ctx, []vectorindex.Record{
		{ID: "c0", Document: "new text", Metadata: map[string]any{}, Vector: []float32{0, 1}},
	}))

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := b.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new text", got[0].Content)
}

func TestBackend_ReupsertKeepsInsertionOrderOnTies(t *testing.T) {
	b := openTest(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, b.Upsert(ctx, []vectorindex.Record{
		{ID: "first", Document: "a", Metadata: map[string]any{}, Vector: []float32{1, 0}},
		{ID: "second", Document: "b", Metadata: map[string]any{}, Vector: []float32{1, 0}},
	}))
	// Rewriting "first" must not move it behind "second".
	require.NoError(t, b.Upsert(ctx, []vectorindex.Record{
		{ID: "first", Document: "a2", Metadata: map[string]any{}, Vector: []float32{1, 0}},
	}))

	got, err := b.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].ID)
	assert.Equal(t, "second", got[1].ID)
}

func TestBackend_DimensionMismatchRejected(t *testing.T) {
	b := openTest(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, b.Upsert(ctx, []vectorindex.Record{
		{ID: "c0", Document: "two dims", Metadata: map[string]any{}, Vector: []float32{1, 0}},
	}))
	err := b.Upsert(ctx, []vectorindex.Record{
		{ID: "c1", Document: "three dims", Metadata: map[string]any{}, Vector: []float32{1, 0, 0}},
	})
	assert.ErrorIs(t, err, domain.ErrStorage)

	// The failed batch must not be partially applied.
	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBackend_DimensionSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := Open(Config{Path: dir, Collection: "test"})
	require.NoError(t, err)
	require.NoError(t, b.Upsert(ctx, []vectorindex.Record{
		{ID: "c0", Document: "two dims", Metadata: map[string]any{}, Vector: []float32{1, 0}},
	}))
	require.NoError(t, b.Close())

	b = openTest(t, dir)
	err = b.Upsert(ctx, []vectorindex.Record{
		{ID: "c1", Document: "four dims", Metadata: map[string]any{}, Vector: []float32{1, 0, 0, 0}},
	})
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestOpen_RejectsMetricMismatch(t *testing.T) {
	dir := t.TempDir()

	b, err := Open(Config{Path: dir, Collection: "test"})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	// Simulate a collection persisted by a build with a different metric.
	db, err := sql.Open("sqlite", filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE collections SET metric = 'dot' WHERE name = 'test'`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(Config{Path: dir, Collection: "test"})
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestCollections_AreIsolated(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a, err := Open(Config{Path: dir, Collection: "alpha"})
	require.NoError(t, err)
	defer a.Close()
	z, err := Open(Config{Path: dir, Collection: "zeta"})
	require.NoError(t, err)
	defer z.Close()

	require.NoError(t, a.Upsert(ctx, []vectorindex.Record{
		{ID: "c0", Document: "in alpha", Metadata: map[string]any{}, Vector: []float32{1}},
	}))

	n, err := z.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestVectorRoundTrip(t *testing.T) {
	v := []float32{0.1, -2.5, 0, 1e-7, 3.14159}
	assert.Equal(t, v, bytesToVector(vectorToBytes(v)))
	assert.Nil(t, vectorToBytes(nil))
	assert.Nil(t, bytesToVector(nil))
}
