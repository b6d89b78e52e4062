// Package polymath is the library facade over the matching engine: item
// storage, auto-suggested connections, bridge detection, and similarity
// search behind one service type. The HTTP and MCP surfaces both sit on it.
package polymath

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/polymath-app/polymath-go/internal/apptype"
	"github.com/polymath-app/polymath-go/internal/bridge"
	"github.com/polymath-app/polymath-go/internal/database"
	"github.com/polymath-app/polymath-go/internal/embeddings"
	"github.com/polymath-app/polymath-go/internal/matching"
	"github.com/polymath-app/polymath-go/internal/reasoning"
	"github.com/polymath-app/polymath-go/internal/suggest"
)

// Service wires storage, providers, the suggestion engine, and the bridge
// detector together.
type Service struct {
	store    *database.Store
	embedder embeddings.Provider
	reasoner reasoning.Provider
	engine   *suggest.Engine
	detector *bridge.Detector
	policy   matching.Policy
}

// New builds a service. embedder and reasoner may be nil; operations that
// need a missing provider fail with a ProviderError (embeddings) or degrade
// (reasoning).
func New(store *database.Store, embedder embeddings.Provider, reasoner reasoning.Provider, policy matching.Policy) *Service {
	collector := suggest.NewCollector(store, policy.CandidatePageSize)

	var emb suggest.Embedder
	if embedder != nil {
		emb = embedder
	}
	var rsn suggest.Reasoner
	if reasoner != nil {
		rsn = reasoner
	}

	return &Service{
		store:    store,
		embedder: embedder,
		reasoner: reasoner,
		engine:   suggest.NewEngine(emb, rsn, collector, store, policy),
		detector: bridge.NewDetector(store, policy),
		policy:   policy,
	}
}

var errNoEmbedder = errors.New("no embeddings provider configured")

// Store exposes the underlying store for callers that need raw access.
func (s *Service) Store() *database.Store { return s.store }

// Close releases the database and its cached statements.
func (s *Service) Close() error { return s.store.Close() }

// Policy returns the active matching thresholds.
func (s *Service) Policy() matching.Policy { return s.policy }

// CreateItem stores an item, embedding its content first when an embeddings
// provider is available. An embedding failure is logged and the item is
// stored without a vector; it can be backfilled later.
func (s *Service) CreateItem(ctx context.Context, item apptype.KnowledgeItem) (*apptype.KnowledgeItem, error) {
	if len(item.Embedding) == 0 && s.embedder != nil && item.Content() != "" {
		vecs, err := s.embedder.Embed(ctx, []string{item.Content()})
		if err != nil || len(vecs) != 1 {
			log.Warn().Err(err).
				Str("item_id", item.ID).
				Msg("embedding failed on item create, storing without vector")
		} else {
			item.Embedding = vecs[0]
		}
	}
	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetItem fetches one item.
func (s *Service) GetItem(ctx context.Context, userID string, itemType apptype.ItemType, id string) (*apptype.KnowledgeItem, error) {
	return s.store.GetItem(ctx, userID, itemType, id)
}

// ListItems fetches items of one type, newest first.
func (s *Service) ListItems(ctx context.Context, userID string, itemType apptype.ItemType, limit int) ([]apptype.KnowledgeItem, error) {
	if !itemType.Valid() {
		return nil, apptype.InvalidRequestf("unknown item type %q", itemType)
	}
	return s.store.ListItemsByType(ctx, userID, itemType, nil, limit)
}

// SuggestConnections runs the auto-suggest pipeline for one source item.
// Items already connected to the source are excluded from the pool.
func (s *Service) SuggestConnections(ctx context.Context, userID string, source apptype.KnowledgeItem) ([]apptype.ConnectionSuggestion, error) {
	var excludeIDs []string
	if source.ID != "" {
		ids, err := s.store.ConnectedItemIDs(ctx, userID, apptype.ItemRef{Type: source.Type, ID: source.ID})
		if err != nil {
			log.Warn().Err(err).Str("item_id", source.ID).Msg("could not load existing connections, pool is unfiltered")
		} else {
			excludeIDs = ids
		}
	}
	return s.engine.Suggest(ctx, suggest.Request{
		UserID:     userID,
		Source:     source,
		ExcludeIDs: excludeIDs,
	})
}

// DetectBridges runs bridge detection for one memory.
func (s *Service) DetectBridges(ctx context.Context, userID string, itemType apptype.ItemType, id string) (*bridge.Result, error) {
	return s.detector.Detect(ctx, userID, itemType, id)
}

// ListBridges returns bridges touching one memory, or all for the user when
// memoryID is empty.
func (s *Service) ListBridges(ctx context.Context, userID, memoryID string, limit int) ([]apptype.Bridge, error) {
	return s.store.ListBridges(ctx, userID, memoryID, limit)
}

// SearchSimilar embeds a free-text query and returns the nearest items of one
// type above threshold.
func (s *Service) SearchSimilar(ctx context.Context, userID string, itemType apptype.ItemType, query string, threshold float64, limit int) ([]apptype.SimilarItem, error) {
	if !itemType.Valid() {
		return nil, apptype.InvalidRequestf("unknown item type %q", itemType)
	}
	if query == "" {
		return nil, apptype.InvalidRequestf("query must be a non-empty string")
	}
	if s.embedder == nil {
		return nil, &apptype.ProviderError{Provider: "embeddings", Err: errNoEmbedder}
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &apptype.ProviderError{Provider: s.embedder.Name(), Err: err}
	}
	if threshold <= 0 {
		threshold = s.policy.SimilarityThreshold
	}
	return s.store.NearestByEmbedding(ctx, userID, itemType, vecs[0], threshold, limit, "")
}

// ListSuggestions returns a user's suggestions, optionally filtered by status.
func (s *Service) ListSuggestions(ctx context.Context, userID string, status apptype.SuggestionStatus, limit int) ([]apptype.ConnectionSuggestion, error) {
	return s.store.ListSuggestions(ctx, userID, status, limit)
}

// ResolveSuggestion accepts or dismisses a suggestion. Accepting also
// materializes a connection carrying the suggestion's reasoning; a failure
// there is logged, the resolution itself stands.
func (s *Service) ResolveSuggestion(ctx context.Context, userID, id string, status apptype.SuggestionStatus) (*apptype.ConnectionSuggestion, error) {
	sg, err := s.store.ResolveSuggestion(ctx, userID, id, status)
	if err != nil {
		return nil, err
	}
	if status == apptype.SuggestionAccepted {
		conn := apptype.Connection{
			UserID:         userID,
			Source:         sg.From,
			Target:         sg.To,
			ConnectionType: "related",
			CreatedBy:      "ai",
			AIReasoning:    sg.Reasoning,
		}
		if cErr := s.store.CreateConnection(ctx, &conn); cErr != nil {
			log.Error().Err(cErr).Str("suggestion_id", sg.ID).Msg("failed to materialize connection for accepted suggestion")
		}
	}
	return sg, nil
}

// CreateConnection stores a manual connection.
func (s *Service) CreateConnection(ctx context.Context, conn *apptype.Connection) error {
	return s.store.CreateConnection(ctx, conn)
}

// ListConnections returns a user's connections, newest first.
func (s *Service) ListConnections(ctx context.Context, userID string, limit int) ([]apptype.Connection, error) {
	return s.store.ListConnections(ctx, userID, limit)
}

// DeleteConnection removes a connection.
func (s *Service) DeleteConnection(ctx context.Context, userID, id string) error {
	return s.store.DeleteConnection(ctx, userID, id)
}

// Health reports the wiring state: providers present and pool usage.
type Health struct {
	Status             string `json:"status"`
	EmbeddingsProvider string `json:"embeddingsProvider,omitempty"`
	ReasoningProvider  string `json:"reasoningProvider,omitempty"`
	ReasoningModel     string `json:"reasoningModel,omitempty"`
	PoolInUse          int    `json:"poolInUse"`
	PoolIdle           int    `json:"poolIdle"`
}

// HealthCheck returns the current health snapshot.
func (s *Service) HealthCheck(_ context.Context) Health {
	h := Health{Status: "ok"}
	if s.embedder != nil {
		h.EmbeddingsProvider = s.embedder.Name()
	}
	if s.reasoner != nil {
		h.ReasoningProvider = s.reasoner.Name()
		h.ReasoningModel = s.reasoner.Model()
	}
	h.PoolInUse, h.PoolIdle = s.store.PoolStats()
	return h
}
