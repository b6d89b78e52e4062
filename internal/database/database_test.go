package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polymath-app/polymath-go/internal/apptype"
)

const testUser = "user-1"

func setupTestStore(t *testing.T) (*Store, func()) {
	config := &Config{
		// The `cache=shared` is crucial for sharing the connection across
		// different calls to `sql.Open` within the same process. The database
		// name comes from the test so each test gets its own empty database.
		URL:           fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		EmbeddingDims: 4,
	}
	store, err := NewStore(config)
	require.NoError(t, err)

	cleanup := func() {
		err := store.Close()
		assert.NoError(t, err)
	}

	return store, cleanup
}

func testItem(id string, itemType apptype.ItemType) apptype.KnowledgeItem {
	return apptype.KnowledgeItem{
		UserID:    testUser,
		Type:      itemType,
		ID:        id,
		Title:     "title " + id,
		Body:      "body " + id,
		CreatedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreateAndGetItem(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	item := testItem("t1", apptype.ItemTypeThought)
	item.Entities = apptype.EntitySet{"people": {"Ada"}, "topics": {"compilers"}}
	item.Embedding = []float32{0.1, 0.2, 0.3, 0.4}

	require.NoError(t, store.CreateItem(ctx, item))

	got, err := store.GetItem(ctx, testUser, apptype.ItemTypeThought, "t1")
	require.NoError(t, err)
	assert.Equal(t, item.Title, got.Title)
	assert.Equal(t, item.Body, got.Body)
	assert.Equal(t, item.Entities, got.Entities)
	require.Len(t, got.Embedding, 4)
	assert.InDelta(t, 0.1, got.Embedding[0], 1e-5)
	assert.Equal(t, item.CreatedAt, got.CreatedAt)
}

func TestCreateItemValidation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	bad := testItem("t1", "playlist")
	assert.ErrorIs(t, store.CreateItem(ctx, bad), apptype.ErrInvalidRequest)

	noUser := testItem("t1", apptype.ItemTypeThought)
	noUser.UserID = ""
	assert.ErrorIs(t, store.CreateItem(ctx, noUser), apptype.ErrInvalidRequest)

	_, err := store.GetItem(ctx, testUser, apptype.ItemTypeThought, "missing")
	assert.ErrorIs(t, err, apptype.ErrNotFound)
}

func TestCreateItemUpserts(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	item := testItem("t1", apptype.ItemTypeThought)
	require.NoError(t, store.CreateItem(ctx, item))

	item.Title = "revised title"
	require.NoError(t, store.CreateItem(ctx, item))

	got, err := store.GetItem(ctx, testUser, apptype.ItemTypeThought, "t1")
	require.NoError(t, err)
	assert.Equal(t, "revised title", got.Title)
}

func TestSetItemEmbedding(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.CreateItem(ctx, testItem("t1", apptype.ItemTypeThought)))

	require.NoError(t, store.SetItemEmbedding(ctx, testUser, apptype.ItemTypeThought, "t1", []float32{1, 0, 0, 0}))

	got, err := store.GetItem(ctx, testUser, apptype.ItemTypeThought, "t1")
	require.NoError(t, err)
	require.Len(t, got.Embedding, 4)
	assert.InDelta(t, 1.0, got.Embedding[0], 1e-5)

	err = store.SetItemEmbedding(ctx, testUser, apptype.ItemTypeThought, "missing", []float32{1, 0, 0, 0})
	assert.ErrorIs(t, err, apptype.ErrNotFound)
}

func TestListItemsByTypeExcludes(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	for _, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, store.CreateItem(ctx, testItem(id, apptype.ItemTypeArticle)))
	}
	require.NoError(t, store.CreateItem(ctx, testItem("t1", apptype.ItemTypeThought)))

	items, err := store.ListItemsByType(ctx, testUser, apptype.ItemTypeArticle, []string{"a2"}, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.NotEqual(t, "a2", item.ID)
		assert.Equal(t, apptype.ItemTypeArticle, item.Type)
	}
}

func TestListItemsInWindow(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	center := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	near := testItem("near", apptype.ItemTypeThought)
	near.CreatedAt = center.Add(12 * time.Hour)
	far := testItem("far", apptype.ItemTypeThought)
	far.CreatedAt = center.AddDate(0, 0, 30)
	self := testItem("self", apptype.ItemTypeThought)
	self.CreatedAt = center

	for _, item := range []apptype.KnowledgeItem{near, far, self} {
		require.NoError(t, store.CreateItem(ctx, item))
	}

	items, err := store.ListItemsInWindow(ctx, testUser, apptype.ItemTypeThought, center, 7, "self", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "near", items[0].ID)
}

func TestNearestByEmbedding(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	nearby := testItem("close", apptype.ItemTypeThought)
	nearby.Embedding = []float32{1, 0, 0, 0}
	farAway := testItem("far", apptype.ItemTypeThought)
	farAway.Embedding = []float32{0, 1, 0, 0}
	noVec := testItem("novec", apptype.ItemTypeThought)

	for _, item := range []apptype.KnowledgeItem{nearby, farAway, noVec} {
		require.NoError(t, store.CreateItem(ctx, item))
	}

	results, err := store.NearestByEmbedding(ctx, testUser, apptype.ItemTypeThought, []float32{1, 0, 0, 0}, 0.75, 5, "self")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "close", results[0].Item.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
}

func TestSuggestionLifecycle(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	sg := apptype.ConnectionSuggestion{
		UserID:     testUser,
		From:       apptype.ItemRef{Type: apptype.ItemTypeThought, ID: "t1"},
		To:         apptype.ItemRef{Type: apptype.ItemTypeArticle, ID: "a1"},
		Reasoning:  "both cover the same trip",
		Confidence: 0.91,
	}
	require.NoError(t, store.CreateSuggestion(ctx, &sg))
	assert.NotEmpty(t, sg.ID, "id defaults to a generated uuid")
	assert.Equal(t, apptype.SuggestionPending, sg.Status)

	pending, err := store.ListSuggestions(ctx, testUser, apptype.SuggestionPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].ResolvedAt)

	resolved, err := store.ResolveSuggestion(ctx, testUser, sg.ID, apptype.SuggestionAccepted)
	require.NoError(t, err)
	assert.Equal(t, apptype.SuggestionAccepted, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	pending, err = store.ListSuggestions(ctx, testUser, apptype.SuggestionPending, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = store.ResolveSuggestion(ctx, testUser, sg.ID, "archived")
	assert.ErrorIs(t, err, apptype.ErrInvalidRequest)

	_, err = store.ResolveSuggestion(ctx, testUser, "missing", apptype.SuggestionDismissed)
	assert.ErrorIs(t, err, apptype.ErrNotFound)
}

func TestUpsertBridgesIdempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	first := []apptype.Bridge{{
		MemoryA:        "m9",
		MemoryB:        "m1",
		BridgeType:     apptype.BridgeEntityMatch,
		Strength:       0.5,
		EntitiesShared: []string{"Ada"},
	}}
	n, err := store.UpsertBridges(ctx, testUser, first)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Same unordered pair and type again: the row is refreshed, not doubled.
	second := []apptype.Bridge{{
		MemoryA:        "m1",
		MemoryB:        "m9",
		BridgeType:     apptype.BridgeEntityMatch,
		Strength:       0.8,
		EntitiesShared: []string{"Ada", "Rome"},
	}}
	_, err = store.UpsertBridges(ctx, testUser, second)
	require.NoError(t, err)

	bridges, err := store.ListBridges(ctx, testUser, "m1", 10)
	require.NoError(t, err)
	require.Len(t, bridges, 1)
	assert.Equal(t, "m1", bridges[0].MemoryA)
	assert.Equal(t, "m9", bridges[0].MemoryB)
	assert.InDelta(t, 0.8, bridges[0].Strength, 1e-9)
	assert.Equal(t, []string{"Ada", "Rome"}, bridges[0].EntitiesShared)

	// A different strategy for the same pair replaces the row; a pair never
	// holds more than one bridge.
	third := []apptype.Bridge{{
		MemoryA:    "m9",
		MemoryB:    "m1",
		BridgeType: apptype.BridgeTemporalProximity,
		Strength:   0.95,
	}}
	_, err = store.UpsertBridges(ctx, testUser, third)
	require.NoError(t, err)

	bridges, err = store.ListBridges(ctx, testUser, "m1", 10)
	require.NoError(t, err)
	require.Len(t, bridges, 1)
	assert.Equal(t, apptype.BridgeTemporalProximity, bridges[0].BridgeType)
	assert.InDelta(t, 0.95, bridges[0].Strength, 1e-9)
	assert.Empty(t, bridges[0].EntitiesShared)
}

func TestConnections(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	conn := apptype.Connection{
		UserID:         testUser,
		Source:         apptype.ItemRef{Type: apptype.ItemTypeThought, ID: "t1"},
		Target:         apptype.ItemRef{Type: apptype.ItemTypeArticle, ID: "a1"},
		ConnectionType: "related",
		CreatedBy:      "ai",
		AIReasoning:    "same trip",
	}
	require.NoError(t, store.CreateConnection(ctx, &conn))
	require.NotEmpty(t, conn.ID)

	list, err := store.ListConnections(ctx, testUser, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ai", list[0].CreatedBy)
	assert.Equal(t, "same trip", list[0].AIReasoning)

	ids, err := store.ConnectedItemIDs(ctx, testUser, apptype.ItemRef{Type: apptype.ItemTypeThought, ID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids)

	ids, err = store.ConnectedItemIDs(ctx, testUser, apptype.ItemRef{Type: apptype.ItemTypeArticle, ID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, ids)

	require.NoError(t, store.DeleteConnection(ctx, testUser, conn.ID))
	assert.ErrorIs(t, store.DeleteConnection(ctx, testUser, conn.ID), apptype.ErrNotFound)
}
