package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/polymath-app/polymath-go/internal/apptype"
	"github.com/polymath-app/polymath-go/internal/matching"
	"github.com/polymath-app/polymath-go/internal/metrics"
	"github.com/polymath-app/polymath-go/internal/reasoning"
)

// FallbackReasoning is stored when the reasoning provider fails or returns
// output we cannot parse. Rows carrying it are flagged Degraded.
const FallbackReasoning = "Related content"

// Embedder is the slice of the embeddings provider the engine uses.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Reasoner is the slice of the chat provider the engine uses.
type Reasoner interface {
	Name() string
	Model() string
	Complete(ctx context.Context, prompt string, opts reasoning.Options) (string, error)
}

// CandidateSource supplies cross-type candidates for one source item.
type CandidateSource interface {
	Collect(ctx context.Context, userID string, sourceType apptype.ItemType, excludeIDs []string) []apptype.KnowledgeItem
}

// SuggestionSink persists finished suggestions.
type SuggestionSink interface {
	CreateSuggestion(ctx context.Context, sg *apptype.ConnectionSuggestion) error
}

// Request describes one auto-suggest run.
type Request struct {
	UserID string
	// Source is the item to suggest connections for. Title and Body feed the
	// embedding; Type and ID identify it in the persisted suggestions.
	Source apptype.KnowledgeItem
	// ExcludeIDs removes already-connected items from the candidate pool.
	ExcludeIDs []string
}

// Engine runs the auto-suggest pipeline.
type Engine struct {
	embedder   Embedder
	reasoner   Reasoner
	candidates CandidateSource
	sink       SuggestionSink
	policy     matching.Policy
}

// NewEngine wires an engine. reasoner may be nil, in which case every
// suggestion is persisted with FallbackReasoning and the Degraded flag.
func NewEngine(embedder Embedder, reasoner Reasoner, candidates CandidateSource, sink SuggestionSink, policy matching.Policy) *Engine {
	return &Engine{
		embedder:   embedder,
		reasoner:   reasoner,
		candidates: candidates,
		sink:       sink,
		policy:     policy,
	}
}

type scoredCandidate struct {
	item       apptype.KnowledgeItem
	similarity float64
}

// Suggest embeds the source item, scores cross-type candidates, keeps those
// above the similarity threshold, generates reasoning for the top few, and
// persists them as pending suggestions. The returned slice holds only the
// rows that were actually persisted.
func (e *Engine) Suggest(ctx context.Context, req Request) ([]apptype.ConnectionSuggestion, error) {
	done := metrics.TimeEngine("auto_suggest")
	success := false
	defer func() { done(success) }()

	if req.UserID == "" {
		return nil, apptype.InvalidRequestf("user id must be a non-empty string")
	}
	if !req.Source.Type.Valid() {
		return nil, apptype.InvalidRequestf("unknown item type %q", req.Source.Type)
	}
	if req.Source.ID == "" {
		return nil, apptype.InvalidRequestf("item id must be a non-empty string")
	}
	content := req.Source.Content()
	if strings.TrimSpace(content) == "" {
		return nil, apptype.InvalidRequestf("item has no content to embed")
	}
	if e.embedder == nil {
		return nil, &apptype.ProviderError{Provider: "embeddings", Err: errors.New("no embeddings provider configured")}
	}

	vecs, err := e.embedder.Embed(ctx, []string{content})
	if err != nil {
		return nil, &apptype.ProviderError{Provider: e.embedder.Name(), Err: err}
	}
	if len(vecs) != 1 {
		return nil, &apptype.ProviderError{Provider: e.embedder.Name(), Err: fmt.Errorf("expected 1 embedding, got %d", len(vecs))}
	}
	sourceVec := vecs[0]

	// The collector only fetches the other two types, and ids are unique per
	// type, so the source id needs no exclusion. Adding it could wrongly drop
	// an unrelated candidate that happens to reuse the id.
	candidates := e.candidates.Collect(ctx, req.UserID, req.Source.Type, req.ExcludeIDs)

	candidates, err = e.fillMissingEmbeddings(ctx, candidates)
	if err != nil {
		return nil, err
	}

	var scored []scoredCandidate
	for _, cand := range candidates {
		sim := matching.CosineSimilarity(sourceVec, cand.Embedding)
		// NaN (zero vector, dimension mismatch) fails this comparison and
		// drops the candidate, which is the intended treatment.
		if sim > e.policy.SimilarityThreshold {
			scored = append(scored, scoredCandidate{item: cand, similarity: sim})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].similarity > scored[j].similarity
	})
	if len(scored) > e.policy.MaxSuggestions {
		scored = scored[:e.policy.MaxSuggestions]
	}
	if len(scored) == 0 {
		success = true
		return nil, nil
	}

	reasons, modelVersion := e.generateReasoning(ctx, content, scored)

	var persisted []apptype.ConnectionSuggestion
	for i, sc := range scored {
		sg := apptype.ConnectionSuggestion{
			UserID:       req.UserID,
			From:         apptype.ItemRef{Type: req.Source.Type, ID: req.Source.ID},
			To:           apptype.ItemRef{Type: sc.item.Type, ID: sc.item.ID},
			Reasoning:    reasons[i].text,
			Confidence:   sc.similarity,
			Status:       apptype.SuggestionPending,
			ModelVersion: modelVersion,
			Degraded:     reasons[i].degraded,
		}
		if err := e.sink.CreateSuggestion(ctx, &sg); err != nil {
			log.Error().Err(err).
				Str("user_id", req.UserID).
				Str("to_item", sc.item.ID).
				Msg("failed to persist suggestion, skipping row")
			continue
		}
		persisted = append(persisted, sg)
	}

	success = true
	return persisted, nil
}

// fillMissingEmbeddings batch-embeds candidates that have no stored vector.
// One provider call covers all of them; a failure aborts the run since
// unscored candidates cannot be ranked.
func (e *Engine) fillMissingEmbeddings(ctx context.Context, candidates []apptype.KnowledgeItem) ([]apptype.KnowledgeItem, error) {
	var missing []int
	var inputs []string
	for i, cand := range candidates {
		if len(cand.Embedding) == 0 || isZeroVector(cand.Embedding) {
			missing = append(missing, i)
			inputs = append(inputs, cand.Content())
		}
	}
	if len(missing) == 0 {
		return candidates, nil
	}

	vecs, err := e.embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, &apptype.ProviderError{Provider: e.embedder.Name(), Err: err}
	}
	if len(vecs) != len(missing) {
		return nil, &apptype.ProviderError{Provider: e.embedder.Name(), Err: fmt.Errorf("expected %d embeddings, got %d", len(missing), len(vecs))}
	}
	for j, idx := range missing {
		candidates[idx].Embedding = vecs[j]
	}
	return candidates, nil
}

func isZeroVector(v []float32) bool {
	for _, n := range v {
		if n != 0 {
			return false
		}
	}
	return true
}

type reasonRow struct {
	text     string
	degraded bool
}

type reasoningResponse struct {
	Reasons []struct {
		Index     int    `json:"index"`
		Reasoning string `json:"reasoning"`
	} `json:"reasons"`
}

// generateReasoning makes one batched chat call covering every finalist and
// correlates replies by the echoed index. Any failure degrades the affected
// rows to FallbackReasoning instead of failing the run.
func (e *Engine) generateReasoning(ctx context.Context, sourceContent string, scored []scoredCandidate) ([]reasonRow, string) {
	rows := make([]reasonRow, len(scored))
	for i := range rows {
		rows[i] = reasonRow{text: FallbackReasoning, degraded: true}
	}
	if e.reasoner == nil {
		return rows, ""
	}
	modelVersion := e.reasoner.Model()

	var b strings.Builder
	b.WriteString("You connect ideas in a personal knowledge base. ")
	b.WriteString("For each numbered candidate below, write one short sentence explaining why it relates to the source item.\n\n")
	b.WriteString("Source:\n")
	b.WriteString(truncate(sourceContent, 1000))
	b.WriteString("\n\nCandidates:\n")
	for i, sc := range scored {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, sc.item.Type, truncate(sc.item.Content(), 500))
	}
	b.WriteString("\nRespond with a JSON object of the form ")
	b.WriteString(`{"reasons":[{"index":1,"reasoning":"..."}]}`)
	b.WriteString(" containing one entry per candidate, echoing each candidate's number as index.")

	raw, err := e.reasoner.Complete(ctx, b.String(), reasoning.Options{
		MaxTokens:   512,
		Temperature: 0.3,
		JSONMode:    true,
	})
	if err != nil {
		log.Warn().Err(err).Str("provider", e.reasoner.Name()).Msg("reasoning call failed, using fallback reasoning")
		return rows, modelVersion
	}

	var resp reasoningResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		log.Warn().Err(err).Str("provider", e.reasoner.Name()).Msg("unparseable reasoning response, using fallback reasoning")
		return rows, modelVersion
	}

	for _, r := range resp.Reasons {
		idx := r.Index - 1
		if idx < 0 || idx >= len(rows) {
			continue
		}
		text := strings.TrimSpace(r.Reasoning)
		if text == "" {
			continue
		}
		rows[idx] = reasonRow{text: text, degraded: false}
	}
	return rows, modelVersion
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
