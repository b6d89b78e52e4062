// Package bridge detects non-obvious links between thoughts. Three strategies
// run per source memory: shared extracted entities, provider-side vector
// similarity, and creation-time proximity. Results are merged, deduplicated
// per unordered pair, and upserted.
package bridge

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/polymath-app/polymath-go/internal/apptype"
	"github.com/polymath-app/polymath-go/internal/matching"
	"github.com/polymath-app/polymath-go/internal/metrics"
)

// Store is the slice of storage the detector needs.
type Store interface {
	GetItem(ctx context.Context, userID string, itemType apptype.ItemType, id string) (*apptype.KnowledgeItem, error)
	ListItemsWithEntities(ctx context.Context, userID string, itemType apptype.ItemType, excludeID string, limit int) ([]apptype.KnowledgeItem, error)
	NearestByEmbedding(ctx context.Context, userID string, itemType apptype.ItemType, vector []float32, threshold float64, count int, excludeID string) ([]apptype.SimilarItem, error)
	ListItemsInWindow(ctx context.Context, userID string, itemType apptype.ItemType, center time.Time, windowDays int, excludeID string, limit int) ([]apptype.KnowledgeItem, error)
	UpsertBridges(ctx context.Context, userID string, bridges []apptype.Bridge) (int, error)
}

// Detector runs bridge detection for one memory at a time.
type Detector struct {
	store  Store
	policy matching.Policy
}

// NewDetector wires a detector against a store.
func NewDetector(store Store, policy matching.Policy) *Detector {
	return &Detector{store: store, policy: policy}
}

// Result is one detection run's outcome. Persisted may be lower than
// len(Bridges) when the write failed; detection results are still returned.
type Result struct {
	Bridges   []apptype.Bridge `json:"bridges"`
	Persisted int              `json:"persisted"`
}

// Detect finds bridges from one memory to other thoughts and upserts them.
// Items that are not thoughts are valid input but produce no bridges. A
// missing source memory is ErrNotFound.
func (d *Detector) Detect(ctx context.Context, userID string, itemType apptype.ItemType, id string) (*Result, error) {
	done := metrics.TimeEngine("bridge_detect")
	success := false
	defer func() { done(success) }()

	if userID == "" {
		return nil, apptype.InvalidRequestf("user id must be a non-empty string")
	}
	if id == "" {
		return nil, apptype.InvalidRequestf("memory id must be a non-empty string")
	}
	if !itemType.Valid() {
		return nil, apptype.InvalidRequestf("unknown item type %q", itemType)
	}
	if itemType != apptype.ItemTypeThought {
		success = true
		return &Result{}, nil
	}

	source, err := d.store.GetItem(ctx, userID, itemType, id)
	if err != nil {
		return nil, err
	}

	// Strategies are independent; one failing fetch is logged and the other
	// strategies still contribute.
	var found []apptype.Bridge
	found = append(found, d.entityBridges(ctx, userID, source)...)
	found = append(found, d.semanticBridges(ctx, userID, source)...)
	found = append(found, d.temporalBridges(ctx, userID, source)...)

	bridges := dedupeMaxStrength(found)

	persisted := 0
	if len(bridges) > 0 {
		persisted, err = d.store.UpsertBridges(ctx, userID, bridges)
		if err != nil {
			log.Error().Err(err).
				Str("user_id", userID).
				Str("memory_id", id).
				Int("bridges", len(bridges)).
				Msg("failed to persist bridges")
			persisted = 0
		}
	}

	success = true
	return &Result{Bridges: bridges, Persisted: persisted}, nil
}

// entityBridges links thoughts that share extracted entities. The raw shared
// count gates the match; the overlap ratio only sets the strength.
func (d *Detector) entityBridges(ctx context.Context, userID string, source *apptype.KnowledgeItem) []apptype.Bridge {
	srcEntities := source.Entities.Flatten()
	if len(srcEntities) == 0 {
		return nil
	}

	others, err := d.store.ListItemsWithEntities(ctx, userID, apptype.ItemTypeThought, source.ID, d.policy.EntityScanLimit)
	if err != nil {
		log.Warn().Err(err).Str("memory_id", source.ID).Msg("entity bridge scan failed")
		return nil
	}

	var out []apptype.Bridge
	for _, other := range others {
		otherEntities := other.Entities.Flatten()
		shared := matching.SharedEntities(srcEntities, otherEntities)
		if len(shared) < d.policy.MinSharedEntities {
			continue
		}
		out = append(out, apptype.Bridge{
			UserID:         userID,
			MemoryA:        source.ID,
			MemoryB:        other.ID,
			BridgeType:     apptype.BridgeEntityMatch,
			Strength:       matching.Round2(matching.EntityOverlapScore(srcEntities, otherEntities)),
			EntitiesShared: shared,
		})
	}
	return out
}

// semanticBridges links thoughts by stored-vector similarity. Skipped when
// the source has no embedding; a zero vector would match nothing meaningful.
func (d *Detector) semanticBridges(ctx context.Context, userID string, source *apptype.KnowledgeItem) []apptype.Bridge {
	if len(source.Embedding) == 0 || isZeroVector(source.Embedding) {
		return nil
	}

	similar, err := d.store.NearestByEmbedding(ctx, userID, apptype.ItemTypeThought, source.Embedding,
		d.policy.SemanticBridgeThreshold, d.policy.SemanticBridgeLimit, source.ID)
	if err != nil {
		log.Warn().Err(err).Str("memory_id", source.ID).Msg("semantic bridge search failed")
		return nil
	}

	var out []apptype.Bridge
	for _, s := range similar {
		out = append(out, apptype.Bridge{
			UserID:     userID,
			MemoryA:    source.ID,
			MemoryB:    s.Item.ID,
			BridgeType: apptype.BridgeSemanticSimilarity,
			Strength:   matching.Round2(s.Similarity),
		})
	}
	return out
}

// temporalBridges links thoughts captured close together in time. The fetch
// window is wider than the acceptance window; the wide window is also the
// decay denominator, so same-day pairs land near 1.0 rather than at it.
func (d *Detector) temporalBridges(ctx context.Context, userID string, source *apptype.KnowledgeItem) []apptype.Bridge {
	window, err := d.store.ListItemsInWindow(ctx, userID, apptype.ItemTypeThought, source.CreatedAt,
		d.policy.TemporalWindowDays, source.ID, d.policy.TemporalScanLimit)
	if err != nil {
		log.Warn().Err(err).Str("memory_id", source.ID).Msg("temporal bridge scan failed")
		return nil
	}

	var out []apptype.Bridge
	for _, other := range window {
		if matching.DaysBetween(source.CreatedAt, other.CreatedAt) > d.policy.TemporalAcceptDays {
			continue
		}
		out = append(out, apptype.Bridge{
			UserID:     userID,
			MemoryA:    source.ID,
			MemoryB:    other.ID,
			BridgeType: apptype.BridgeTemporalProximity,
			Strength:   matching.Round2(matching.TemporalProximityScore(source.CreatedAt, other.CreatedAt, d.policy.TemporalWindowDays)),
		})
	}
	return out
}

// dedupeMaxStrength canonicalizes pairs and keeps one bridge per unordered
// pair: the strongest across all strategies, carrying the winning strategy's
// type. Preserves first-seen order among survivors.
func dedupeMaxStrength(bridges []apptype.Bridge) []apptype.Bridge {
	type key struct {
		a, b string
	}
	index := make(map[key]int, len(bridges))
	var out []apptype.Bridge
	for _, b := range bridges {
		if b.MemoryA > b.MemoryB {
			b.MemoryA, b.MemoryB = b.MemoryB, b.MemoryA
		}
		k := key{a: b.MemoryA, b: b.MemoryB}
		if i, ok := index[k]; ok {
			if b.Strength > out[i].Strength {
				out[i] = b
			}
			continue
		}
		index[k] = len(out)
		out = append(out, b)
	}
	return out
}

func isZeroVector(v []float32) bool {
	for _, n := range v {
		if n != 0 {
			return false
		}
	}
	return true
}
