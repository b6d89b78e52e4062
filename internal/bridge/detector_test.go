package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polymath-app/polymath-go/internal/apptype"
	"github.com/polymath-app/polymath-go/internal/matching"
)

type fakeStore struct {
	items       map[string]*apptype.KnowledgeItem
	withEnt     []apptype.KnowledgeItem
	similar     []apptype.SimilarItem
	inWindow    []apptype.KnowledgeItem
	windowLimit int
	upserted    []apptype.Bridge
	upsertErr   error
	semanticErr error
}

func (f *fakeStore) GetItem(_ context.Context, _ string, _ apptype.ItemType, id string) (*apptype.KnowledgeItem, error) {
	if item, ok := f.items[id]; ok {
		return item, nil
	}
	return nil, apptype.NotFoundf("item %s", id)
}

func (f *fakeStore) ListItemsWithEntities(_ context.Context, _ string, _ apptype.ItemType, _ string, _ int) ([]apptype.KnowledgeItem, error) {
	return f.withEnt, nil
}

func (f *fakeStore) NearestByEmbedding(_ context.Context, _ string, _ apptype.ItemType, _ []float32, _ float64, _ int, _ string) ([]apptype.SimilarItem, error) {
	if f.semanticErr != nil {
		return nil, f.semanticErr
	}
	return f.similar, nil
}

func (f *fakeStore) ListItemsInWindow(_ context.Context, _ string, _ apptype.ItemType, _ time.Time, _ int, _ string, limit int) ([]apptype.KnowledgeItem, error) {
	f.windowLimit = limit
	return f.inWindow, nil
}

func (f *fakeStore) UpsertBridges(_ context.Context, _ string, bridges []apptype.Bridge) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.upserted = append(f.upserted, bridges...)
	return len(bridges), nil
}

func thought(id string, entities apptype.EntitySet, createdAt time.Time) *apptype.KnowledgeItem {
	return &apptype.KnowledgeItem{
		UserID:    "u1",
		Type:      apptype.ItemTypeThought,
		ID:        id,
		Title:     "thought " + id,
		Entities:  entities,
		CreatedAt: createdAt,
	}
}

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newStoreWithSource(src *apptype.KnowledgeItem) *fakeStore {
	return &fakeStore{items: map[string]*apptype.KnowledgeItem{src.ID: src}}
}

func TestDetectValidation(t *testing.T) {
	d := NewDetector(&fakeStore{items: map[string]*apptype.KnowledgeItem{}}, matching.DefaultPolicy())

	_, err := d.Detect(context.Background(), "", apptype.ItemTypeThought, "m1")
	assert.ErrorIs(t, err, apptype.ErrInvalidRequest)

	_, err = d.Detect(context.Background(), "u1", "playlist", "m1")
	assert.ErrorIs(t, err, apptype.ErrInvalidRequest)

	_, err = d.Detect(context.Background(), "u1", apptype.ItemTypeThought, "missing")
	assert.ErrorIs(t, err, apptype.ErrNotFound)
}

func TestDetectNonThoughtIsNoOp(t *testing.T) {
	store := &fakeStore{items: map[string]*apptype.KnowledgeItem{}}
	d := NewDetector(store, matching.DefaultPolicy())

	res, err := d.Detect(context.Background(), "u1", apptype.ItemTypeArticle, "a1")
	require.NoError(t, err)
	assert.Empty(t, res.Bridges)
	assert.Zero(t, res.Persisted)
	assert.Empty(t, store.upserted)
}

func TestEntityBridgeRequiresTwoShared(t *testing.T) {
	src := thought("m1", apptype.EntitySet{"people": {"Ada"}, "topics": {"compilers", "gardening"}}, baseTime)
	store := newStoreWithSource(src)
	store.withEnt = []apptype.KnowledgeItem{
		// Only one shared entity: no bridge.
		*thought("m2", apptype.EntitySet{"topics": {"gardening", "cooking"}}, baseTime.AddDate(0, -1, 0)),
		// Two shared entities: bridge.
		*thought("m3", apptype.EntitySet{"people": {"Ada"}, "topics": {"compilers"}}, baseTime.AddDate(0, -2, 0)),
	}
	d := NewDetector(store, matching.DefaultPolicy())

	res, err := d.Detect(context.Background(), "u1", apptype.ItemTypeThought, "m1")
	require.NoError(t, err)
	require.Len(t, res.Bridges, 1)
	assert.Equal(t, 1, res.Persisted)

	b := res.Bridges[0]
	assert.Equal(t, apptype.BridgeEntityMatch, b.BridgeType)
	assert.ElementsMatch(t, []string{"Ada", "compilers"}, b.EntitiesShared)
	// 2 shared / max(3, 2) entities, rounded to two decimals.
	assert.InDelta(t, 0.67, b.Strength, 1e-9)
}

func TestSemanticBridgeSkippedWithoutEmbedding(t *testing.T) {
	src := thought("m1", nil, baseTime)
	store := newStoreWithSource(src)
	store.similar = []apptype.SimilarItem{
		{Item: *thought("m2", nil, baseTime), Similarity: 0.9},
	}
	d := NewDetector(store, matching.DefaultPolicy())

	res, err := d.Detect(context.Background(), "u1", apptype.ItemTypeThought, "m1")
	require.NoError(t, err)
	assert.Empty(t, res.Bridges, "no embedding on the source means no semantic strategy")

	src.Embedding = []float32{0, 0, 0}
	res, err = d.Detect(context.Background(), "u1", apptype.ItemTypeThought, "m1")
	require.NoError(t, err)
	assert.Empty(t, res.Bridges, "an all-zero vector counts as no embedding")
}

func TestSemanticBridgeStrength(t *testing.T) {
	src := thought("m1", nil, baseTime)
	src.Embedding = []float32{0.1, 0.2, 0.3}
	store := newStoreWithSource(src)
	store.similar = []apptype.SimilarItem{
		{Item: *thought("m2", nil, baseTime.AddDate(0, -1, 0)), Similarity: 0.876},
	}
	d := NewDetector(store, matching.DefaultPolicy())

	res, err := d.Detect(context.Background(), "u1", apptype.ItemTypeThought, "m1")
	require.NoError(t, err)
	require.Len(t, res.Bridges, 1)
	assert.Equal(t, apptype.BridgeSemanticSimilarity, res.Bridges[0].BridgeType)
	assert.InDelta(t, 0.88, res.Bridges[0].Strength, 1e-9)
}

func TestTemporalBridgeAcceptanceWindow(t *testing.T) {
	src := thought("m1", nil, baseTime)
	store := newStoreWithSource(src)
	store.inWindow = []apptype.KnowledgeItem{
		// 6 hours apart: accepted.
		*thought("m2", nil, baseTime.Add(6*time.Hour)),
		// 2 days apart: inside the fetch window, outside acceptance.
		*thought("m3", nil, baseTime.Add(48*time.Hour)),
	}
	d := NewDetector(store, matching.DefaultPolicy())

	res, err := d.Detect(context.Background(), "u1", apptype.ItemTypeThought, "m1")
	require.NoError(t, err)
	require.Len(t, res.Bridges, 1)

	b := res.Bridges[0]
	assert.Equal(t, apptype.BridgeTemporalProximity, b.BridgeType)
	assert.Equal(t, "m2", b.MemoryB)
	// 1 - 0.25/7 = 0.9642..., rounded.
	assert.InDelta(t, 0.96, b.Strength, 1e-9)
}

func TestTemporalBridgeUsesOwnScanLimit(t *testing.T) {
	src := thought("m1", nil, baseTime)
	store := newStoreWithSource(src)
	policy := matching.DefaultPolicy()
	policy.EntityScanLimit = 25
	policy.TemporalScanLimit = 40
	d := NewDetector(store, policy)

	_, err := d.Detect(context.Background(), "u1", apptype.ItemTypeThought, "m1")
	require.NoError(t, err)
	assert.Equal(t, 40, store.windowLimit)
}

func TestDedupKeepsStrongestPerPair(t *testing.T) {
	in := []apptype.Bridge{
		{MemoryA: "m9", MemoryB: "m1", BridgeType: apptype.BridgeEntityMatch, Strength: 0.4, EntitiesShared: []string{"Ada"}},
		// Same pair from two other strategies, one stronger.
		{MemoryA: "m1", MemoryB: "m9", BridgeType: apptype.BridgeTemporalProximity, Strength: 0.9},
		{MemoryA: "m1", MemoryB: "m9", BridgeType: apptype.BridgeSemanticSimilarity, Strength: 0.7},
		// Different pair: untouched.
		{MemoryA: "m1", MemoryB: "m2", BridgeType: apptype.BridgeEntityMatch, Strength: 0.5},
	}

	out := dedupeMaxStrength(in)
	require.Len(t, out, 2)

	// One row per unordered pair, keeping the strongest strategy's bridge.
	seen := map[string]int{}
	for _, b := range out {
		seen[b.MemoryA+"|"+b.MemoryB]++
	}
	for pair, n := range seen {
		assert.Equal(t, 1, n, "pair %s must appear once", pair)
	}

	assert.Equal(t, "m1", out[0].MemoryA)
	assert.Equal(t, "m9", out[0].MemoryB)
	assert.Equal(t, apptype.BridgeTemporalProximity, out[0].BridgeType)
	assert.InDelta(t, 0.9, out[0].Strength, 1e-9)
	assert.Empty(t, out[0].EntitiesShared, "the winning bridge carries its own entity list")
	assert.Equal(t, "m2", out[1].MemoryB)
}

func TestDetectPersistFailureStillReturnsBridges(t *testing.T) {
	src := thought("m1", apptype.EntitySet{"people": {"Ada"}, "topics": {"compilers"}}, baseTime)
	store := newStoreWithSource(src)
	store.withEnt = []apptype.KnowledgeItem{
		*thought("m2", apptype.EntitySet{"people": {"Ada"}, "topics": {"compilers"}}, baseTime.AddDate(0, -1, 0)),
	}
	store.upsertErr = errors.New("disk full")
	d := NewDetector(store, matching.DefaultPolicy())

	res, err := d.Detect(context.Background(), "u1", apptype.ItemTypeThought, "m1")
	require.NoError(t, err, "a failed write must not fail the detection run")
	assert.Len(t, res.Bridges, 1)
	assert.Zero(t, res.Persisted)
}

func TestDetectStrategyFailureDoesNotAbort(t *testing.T) {
	src := thought("m1", nil, baseTime)
	src.Embedding = []float32{0.1, 0.2, 0.3}
	store := newStoreWithSource(src)
	store.semanticErr = errors.New("vector index unavailable")
	store.inWindow = []apptype.KnowledgeItem{
		*thought("m2", nil, baseTime.Add(3 * time.Hour)),
	}
	d := NewDetector(store, matching.DefaultPolicy())

	res, err := d.Detect(context.Background(), "u1", apptype.ItemTypeThought, "m1")
	require.NoError(t, err)
	require.Len(t, res.Bridges, 1)
	assert.Equal(t, apptype.BridgeTemporalProximity, res.Bridges[0].BridgeType)
}
