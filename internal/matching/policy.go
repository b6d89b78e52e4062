package matching

// Policy collects every numeric threshold used by the suggestion engine and
// the bridge detector. Values live here rather than as literals in the
// orchestration code so the matching behavior can be tuned and tested on its
// own.
type Policy struct {
	// SimilarityThreshold is the minimum cosine similarity for a candidate
	// to survive auto-suggest filtering.
	SimilarityThreshold float64
	// MaxSuggestions caps how many suggestions one run persists.
	MaxSuggestions int
	// CandidatePageSize caps how many items of each other type the
	// collector fetches.
	CandidatePageSize int

	// MinSharedEntities is the raw shared-element count (not the ratio)
	// required for an entity-match bridge. Two, so a single coincidental
	// word cannot dominate low-cardinality sets.
	MinSharedEntities int
	// EntityScanLimit caps how many entity-bearing thoughts the entity
	// strategy scans.
	EntityScanLimit int

	// SemanticBridgeThreshold is the minimum similarity for the DB-side
	// nearest-neighbor bridge strategy.
	SemanticBridgeThreshold float64
	// SemanticBridgeLimit is the nearest-neighbor count for that strategy.
	SemanticBridgeLimit int

	// TemporalWindowDays is the fetch window around the source item's
	// creation time. TemporalAcceptDays narrows which fetched pairs
	// actually produce a bridge; the wider fetch window feeds the decay
	// formula's denominator.
	TemporalWindowDays int
	TemporalAcceptDays float64
	// TemporalScanLimit caps how many thoughts the temporal strategy
	// fetches from the window.
	TemporalScanLimit int
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		SimilarityThreshold:     0.7,
		MaxSuggestions:          5,
		CandidatePageSize:       50,
		MinSharedEntities:       2,
		EntityScanLimit:         100,
		SemanticBridgeThreshold: 0.75,
		SemanticBridgeLimit:     5,
		TemporalWindowDays:      7,
		TemporalAcceptDays:      1,
		TemporalScanLimit:       100,
	}
}
