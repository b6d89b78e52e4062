package database

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
)

// vectorZeroString builds a zero vector string for current embedding dims
func (s *Store) vectorZeroString() string {
	dims := s.config.EmbeddingDims
	if dims <= 0 {
		dims = 4
	}
	parts := make([]string, dims)
	for i := range parts {
		parts[i] = "0.0"
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}

// vectorToString converts a float32 array to libSQL vector string format
func (s *Store) vectorToString(numbers []float32) (string, error) {
	// If no embedding provided, store a default zero vector
	if len(numbers) == 0 {
		return s.vectorZeroString(), nil
	}

	// Validate vector dimensions match schema (use configured dims)
	dims := s.config.EmbeddingDims
	if dims <= 0 {
		dims = 4
	}
	if len(numbers) != dims {
		return "", fmt.Errorf("vector must have exactly %d dimensions, got %d", dims, len(numbers))
	}

	// Validate all elements are finite numbers
	sanitized := make([]float32, len(numbers))
	for i, n := range numbers {
		if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
			log.Warn().Float32("value", n).Msg("invalid vector value, using 0.0")
			sanitized[i] = 0.0
		} else {
			sanitized[i] = n
		}
	}

	strNumbers := make([]string, len(sanitized))
	for i, n := range sanitized {
		strNumbers[i] = fmt.Sprintf("%f", n)
	}

	return fmt.Sprintf("[%s]", strings.Join(strNumbers, ", ")), nil
}

// extractVector extracts a vector from binary format (F32_BLOB)
func (s *Store) extractVector(embedding []byte) ([]float32, error) {
	if len(embedding) == 0 {
		return nil, nil
	}

	dims := s.config.EmbeddingDims
	if dims <= 0 {
		dims = 4
	}
	expectedBytes := dims * 4
	if len(embedding) != expectedBytes {
		return nil, fmt.Errorf("invalid embedding size: expected %d bytes for %d-dimensional vector, got %d", expectedBytes, dims, len(embedding))
	}

	vector := make([]float32, dims)
	for i := 0; i < dims; i++ {
		bits := binary.LittleEndian.Uint32(embedding[i*4 : (i+1)*4])
		vector[i] = math.Float32frombits(bits)
	}

	return vector, nil
}

// isZeroVector reports whether every element is zero, the stored placeholder
// for "no embedding".
func isZeroVector(v []float32) bool {
	for _, n := range v {
		if n != 0 {
			return false
		}
	}
	return true
}
