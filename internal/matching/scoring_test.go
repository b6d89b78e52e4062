package matching

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarityIdentity(t *testing.T) {
	v := []float32{0.3, -1.2, 4.5, 0.01}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarityScaleInvariance(t *testing.T) {
	v := []float32{1, 2, 3}
	scaled := []float32{2.5, 5, 7.5}
	negated := []float32{-1, -2, -3}

	assert.InDelta(t, 1.0, CosineSimilarity(v, scaled), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity(v, negated), 1e-6)
}

func TestCosineSimilarityUndefined(t *testing.T) {
	v := []float32{1, 2, 3}
	zero := []float32{0, 0, 0}

	assert.True(t, math.IsNaN(CosineSimilarity(v, zero)))
	assert.True(t, math.IsNaN(CosineSimilarity(v, []float32{1, 2})))
	assert.True(t, math.IsNaN(CosineSimilarity(nil, nil)))

	// NaN must not pass a threshold comparison.
	assert.False(t, CosineSimilarity(v, zero) > 0.7)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestSharedEntities(t *testing.T) {
	a := []string{"Alice", "Tokyo", "photography", "Tokyo"}
	b := []string{"photography", "Alice", "Berlin"}

	assert.Equal(t, []string{"Alice", "photography"}, SharedEntities(a, b))
	assert.Nil(t, SharedEntities(nil, b))
	// Case-sensitive, no stemming.
	assert.Empty(t, SharedEntities([]string{"alice"}, []string{"Alice"}))
}

func TestEntityOverlapScoreSymmetric(t *testing.T) {
	a := []string{"x", "y", "z"}
	b := []string{"y", "z", "w", "v"}

	assert.Equal(t, EntityOverlapScore(a, b), EntityOverlapScore(b, a))
	assert.InDelta(t, 0.5, EntityOverlapScore(a, b), 1e-9)
}

func TestEntityOverlapScoreBounds(t *testing.T) {
	assert.Equal(t, 0.0, EntityOverlapScore(nil, nil))
	assert.Equal(t, 1.0, EntityOverlapScore([]string{"a"}, []string{"a"}))
	// Duplicates in the first set cannot push the ratio past 1.
	assert.LessOrEqual(t, EntityOverlapScore([]string{"a", "a", "a"}, []string{"a"}), 1.0)
}

func TestTemporalProximityScore(t *testing.T) {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.InDelta(t, 1.0, TemporalProximityScore(base, base, 7), 1e-9)
	nextDay := base.Add(24 * time.Hour)
	assert.InDelta(t, 1.0-1.0/7.0, TemporalProximityScore(base, nextDay, 7), 1e-9)
	// Symmetric in its arguments.
	assert.Equal(t, TemporalProximityScore(base, nextDay, 7), TemporalProximityScore(nextDay, base, 7))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 0.86, Round2(1.0-1.0/7.0))
	assert.Equal(t, 0.67, Round2(2.0/3.0))
}
