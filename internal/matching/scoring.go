// Package matching holds the pure scoring primitives shared by the
// auto-suggest engine and the bridge detector. Nothing here touches the
// network or the database.
package matching

import (
	"math"
	"time"
)

// CosineSimilarity computes dot(a,b) / (|a|*|b|). The result is NaN when
// either vector has zero norm or the lengths differ; callers must treat NaN
// as "no match" rather than comparing it. No clamping is applied.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SharedEntities returns the elements of a that also appear in b,
// case-sensitive, preserving a's order. Duplicates in a count once.
func SharedEntities(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	inB := make(map[string]struct{}, len(b))
	for _, e := range b {
		inB[e] = struct{}{}
	}
	seen := make(map[string]struct{}, len(a))
	var shared []string
	for _, e := range a {
		if _, ok := inB[e]; !ok {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		shared = append(shared, e)
	}
	return shared
}

// EntityOverlapScore is the shared-element count divided by
// max(len(a), len(b), 1), clamped to [0, 1]. Whether a pair qualifies as a
// match is decided by the raw shared count against Policy.MinSharedEntities,
// not by this ratio.
func EntityOverlapScore(a, b []string) float64 {
	shared := len(SharedEntities(a, b))
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	if denom < 1 {
		denom = 1
	}
	return math.Min(float64(shared)/float64(denom), 1.0)
}

// DaysBetween returns the absolute distance between two timestamps in
// fractional days.
func DaysBetween(a, b time.Time) float64 {
	return math.Abs(a.Sub(b).Hours() / 24)
}

// TemporalProximityScore is 1 - |days apart| / windowDays. The formula
// permits a continuum over the whole window; the temporal bridge strategy
// narrows acceptance to Policy.TemporalAcceptDays before calling it.
func TemporalProximityScore(a, b time.Time, windowDays int) float64 {
	if windowDays <= 0 {
		windowDays = 7
	}
	return 1.0 - DaysBetween(a, b)/float64(windowDays)
}

// Round2 rounds a strength to two decimals, the precision bridges persist.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
