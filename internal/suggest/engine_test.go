package suggest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polymath-app/polymath-go/internal/apptype"
	"github.com/polymath-app/polymath-go/internal/matching"
	"github.com/polymath-app/polymath-go/internal/reasoning"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		v, ok := f.vectors[in]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

type fakeReasoner struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeReasoner) Name() string  { return "fake-chat" }
func (f *fakeReasoner) Model() string { return "fake-model-1" }

func (f *fakeReasoner) Complete(_ context.Context, prompt string, _ reasoning.Options) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeCandidates struct {
	items      []apptype.KnowledgeItem
	excludeIDs []string
}

func (f *fakeCandidates) Collect(_ context.Context, _ string, _ apptype.ItemType, excludeIDs []string) []apptype.KnowledgeItem {
	f.excludeIDs = excludeIDs
	var out []apptype.KnowledgeItem
	for _, item := range f.items {
		excluded := false
		for _, id := range excludeIDs {
			if item.ID == id {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, item)
		}
	}
	return out
}

type fakeSink struct {
	created []apptype.ConnectionSuggestion
	failFor map[string]bool
}

func (f *fakeSink) CreateSuggestion(_ context.Context, sg *apptype.ConnectionSuggestion) error {
	if f.failFor[sg.To.ID] {
		return errors.New("insert failed")
	}
	f.created = append(f.created, *sg)
	return nil
}

func candidate(id string, vec []float32) apptype.KnowledgeItem {
	return apptype.KnowledgeItem{
		UserID:    "u1",
		Type:      apptype.ItemTypeArticle,
		ID:        id,
		Title:     "article " + id,
		Embedding: vec,
	}
}

func sourceItem() apptype.KnowledgeItem {
	return apptype.KnowledgeItem{
		UserID: "u1",
		Type:   apptype.ItemTypeThought,
		ID:     "t1",
		Title:  "Trail photography",
		Body:   "Notes on hiking with a camera",
	}
}

func TestSuggestRejectsInvalidRequests(t *testing.T) {
	engine := NewEngine(&fakeEmbedder{}, nil, &fakeCandidates{}, &fakeSink{}, matching.DefaultPolicy())

	_, err := engine.Suggest(context.Background(), Request{UserID: "", Source: sourceItem()})
	assert.ErrorIs(t, err, apptype.ErrInvalidRequest)

	bad := sourceItem()
	bad.Type = "playlist"
	_, err = engine.Suggest(context.Background(), Request{UserID: "u1", Source: bad})
	assert.ErrorIs(t, err, apptype.ErrInvalidRequest)

	empty := sourceItem()
	empty.Title, empty.Body = "", ""
	_, err = engine.Suggest(context.Background(), Request{UserID: "u1", Source: empty})
	assert.ErrorIs(t, err, apptype.ErrInvalidRequest)
}

func TestSuggestEmbeddingFailureAborts(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("rate limited")}
	sink := &fakeSink{}
	engine := NewEngine(embedder, nil, &fakeCandidates{}, sink, matching.DefaultPolicy())

	_, err := engine.Suggest(context.Background(), Request{UserID: "u1", Source: sourceItem()})
	require.Error(t, err)
	var provErr *apptype.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "fake", provErr.Provider)
	assert.Empty(t, sink.created)
}

func TestSuggestNoCandidatesAboveThreshold(t *testing.T) {
	src := sourceItem()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		src.Content(): {1, 0, 0},
	}}
	// Orthogonal vectors score 0.0, well under the threshold.
	cands := &fakeCandidates{items: []apptype.KnowledgeItem{
		candidate("a1", []float32{0, 1, 0}),
		candidate("a2", []float32{0, 0, 1}),
	}}
	sink := &fakeSink{}
	engine := NewEngine(embedder, &fakeReasoner{}, cands, sink, matching.DefaultPolicy())

	got, err := engine.Suggest(context.Background(), Request{UserID: "u1", Source: src})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, sink.created, "nothing should be persisted when no candidate qualifies")
}

func TestSuggestCapsAndOrdersResults(t *testing.T) {
	src := sourceItem()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		src.Content(): {1, 0, 0},
	}}

	// Seven qualifying candidates with distinct similarities.
	var items []apptype.KnowledgeItem
	for i := 0; i < 7; i++ {
		// Mixing in a small orthogonal component lowers similarity as i grows.
		items = append(items, candidate(fmt.Sprintf("a%d", i), []float32{1, float32(i) * 0.05, 0}))
	}
	cands := &fakeCandidates{items: items}
	sink := &fakeSink{}
	reasoner := &fakeReasoner{response: `{"reasons":[
		{"index":1,"reasoning":"both cover trail logistics"},
		{"index":2,"reasoning":"same gear list"},
		{"index":3,"reasoning":"overlapping route"},
		{"index":4,"reasoning":"shared subject"},
		{"index":5,"reasoning":"related theme"}]}`}
	engine := NewEngine(embedder, reasoner, cands, sink, matching.DefaultPolicy())

	got, err := engine.Suggest(context.Background(), Request{UserID: "u1", Source: src})
	require.NoError(t, err)
	require.Len(t, got, 5)
	require.Len(t, sink.created, 5)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Confidence, got[i].Confidence, "results must be ordered by descending similarity")
	}
	assert.Equal(t, "a0", got[0].To.ID, "closest candidate comes first")
	assert.InDelta(t, 1.0, got[0].Confidence, 1e-9)

	for _, sg := range got {
		assert.Equal(t, apptype.SuggestionPending, sg.Status)
		assert.Equal(t, "fake-model-1", sg.ModelVersion)
		assert.False(t, sg.Degraded)
		assert.NotEqual(t, FallbackReasoning, sg.Reasoning)
		assert.Equal(t, src.ID, sg.From.ID)
	}
}

func TestSuggestMalformedReasoningDegrades(t *testing.T) {
	src := sourceItem()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		src.Content(): {1, 0, 0},
	}}
	cands := &fakeCandidates{items: []apptype.KnowledgeItem{
		candidate("a1", []float32{1, 0, 0}),
		candidate("a2", []float32{1, 0.1, 0}),
	}}
	sink := &fakeSink{}
	reasoner := &fakeReasoner{response: "sorry, I cannot produce JSON today"}
	engine := NewEngine(embedder, reasoner, cands, sink, matching.DefaultPolicy())

	got, err := engine.Suggest(context.Background(), Request{UserID: "u1", Source: src})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, sg := range got {
		assert.Equal(t, FallbackReasoning, sg.Reasoning)
		assert.True(t, sg.Degraded)
		assert.Equal(t, "fake-model-1", sg.ModelVersion)
	}
}

func TestSuggestPartialReasoningDegradesOnlyMissingRows(t *testing.T) {
	src := sourceItem()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		src.Content(): {1, 0, 0},
	}}
	cands := &fakeCandidates{items: []apptype.KnowledgeItem{
		candidate("a1", []float32{1, 0, 0}),
		candidate("a2", []float32{1, 0.1, 0}),
	}}
	sink := &fakeSink{}
	reasoner := &fakeReasoner{response: `{"reasons":[{"index":2,"reasoning":"same trip"}]}`}
	engine := NewEngine(embedder, reasoner, cands, sink, matching.DefaultPolicy())

	got, err := engine.Suggest(context.Background(), Request{UserID: "u1", Source: src})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, FallbackReasoning, got[0].Reasoning)
	assert.True(t, got[0].Degraded)
	assert.Equal(t, "same trip", got[1].Reasoning)
	assert.False(t, got[1].Degraded)
}

func TestSuggestDoesNotExcludeSourceIDFromCandidates(t *testing.T) {
	src := sourceItem()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		src.Content(): {1, 0, 0},
	}}
	// An article reusing the source thought's id. Ids are only unique within
	// a type, so this is a legitimate, unrelated candidate.
	sameID := candidate(src.ID, []float32{1, 0, 0})
	cands := &fakeCandidates{items: []apptype.KnowledgeItem{sameID}}
	sink := &fakeSink{}
	engine := NewEngine(embedder, nil, cands, sink, matching.DefaultPolicy())

	got, err := engine.Suggest(context.Background(), Request{
		UserID:     "u1",
		Source:     src,
		ExcludeIDs: []string{"already-connected"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, src.ID, got[0].To.ID)
	assert.Equal(t, apptype.ItemTypeArticle, got[0].To.Type)
	assert.Equal(t, []string{"already-connected"}, cands.excludeIDs,
		"only already-connected ids reach the collector")
}

func TestSuggestPersistFailureSkipsRow(t *testing.T) {
	src := sourceItem()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		src.Content(): {1, 0, 0},
	}}
	cands := &fakeCandidates{items: []apptype.KnowledgeItem{
		candidate("a1", []float32{1, 0, 0}),
		candidate("a2", []float32{1, 0.1, 0}),
	}}
	sink := &fakeSink{failFor: map[string]bool{"a1": true}}
	engine := NewEngine(embedder, &fakeReasoner{response: `{"reasons":[]}`}, cands, sink, matching.DefaultPolicy())

	got, err := engine.Suggest(context.Background(), Request{UserID: "u1", Source: src})
	require.NoError(t, err, "a single failed insert must not fail the run")
	require.Len(t, got, 1)
	assert.Equal(t, "a2", got[0].To.ID)
}

func TestSuggestIdenticalVectorsRankFirst(t *testing.T) {
	src := apptype.KnowledgeItem{
		UserID: "u1",
		Type:   apptype.ItemTypeThought,
		ID:     "t1",
		Title:  "I love hiking and photography",
	}
	match := apptype.KnowledgeItem{
		UserID:    "u1",
		Type:      apptype.ItemTypeArticle,
		ID:        "a-match",
		Title:     "Photography is my passion, I go hiking weekly",
		Embedding: []float32{0.6, 0.8, 0},
	}
	other := candidate("a-other", []float32{0.7, 0.6, 0.2})

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		src.Content(): {0.6, 0.8, 0},
	}}
	sink := &fakeSink{}
	engine := NewEngine(embedder, nil, &fakeCandidates{items: []apptype.KnowledgeItem{other, match}}, sink, matching.DefaultPolicy())

	got, err := engine.Suggest(context.Background(), Request{UserID: "u1", Source: src})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "a-match", got[0].To.ID)
	assert.InDelta(t, 1.0, got[0].Confidence, 1e-9)
}

func TestSuggestEmbedsCandidatesMissingVectors(t *testing.T) {
	src := sourceItem()
	noVec := candidate("a1", nil)
	zeroVec := candidate("a2", []float32{0, 0, 0})
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		src.Content():     {1, 0, 0},
		noVec.Content():   {1, 0, 0},
		zeroVec.Content(): {1, 0.05, 0},
	}}
	sink := &fakeSink{}
	engine := NewEngine(embedder, nil, &fakeCandidates{items: []apptype.KnowledgeItem{noVec, zeroVec}}, sink, matching.DefaultPolicy())

	got, err := engine.Suggest(context.Background(), Request{UserID: "u1", Source: src})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, embedder.calls, "one call for the source, one batch for the candidates")

	// No reasoner configured: everything persists with the fallback text.
	for _, sg := range got {
		assert.Equal(t, FallbackReasoning, sg.Reasoning)
		assert.True(t, sg.Degraded)
		assert.Empty(t, sg.ModelVersion)
	}
}
