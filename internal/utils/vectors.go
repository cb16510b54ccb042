package utils

import (
	"fmt"
	"math"
)

// CosineSimilarity returns the cosine of the angle between two embedding
// vectors: 1 for the same direction, 0 for orthogonal, -1 for opposite.
// The vectors must be non-empty and share a dimension. A zero-magnitude
// vector has no direction and yields 0.
//
// Products are accumulated in float64 so long vectors don't lose precision
// to float32 rounding.
func CosineSimilarity(vec1, vec2 []float32) (float32, error) {
	if len(vec1) == 0 || len(vec2) == 0 {
		return 0, fmt.Errorf("vectors cannot be empty")
	}
	if len(vec1) != len(vec2) {
		return 0, fmt.Errorf("vectors must have the same dimension")
	}

	var dot, sumSq1, sumSq2 float64
	for i := range vec1 {
		dot += float64(vec1[i]) * float64(vec2[i])
		sumSq1 += float64(vec1[i]) * float64(vec1[i])
		sumSq2 += float64(vec2[i]) * float64(vec2[i])
	}

	if sumSq1 == 0 || sumSq2 == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(sumSq1) * math.Sqrt(sumSq2))), nil
}

// CosineDistance is 1 - CosineSimilarity; smaller values mean more similar
// vectors. Nearest-neighbor results are ordered by ascending distance.
func CosineDistance(vec1, vec2 []float32) (float64, error) {
	sim, err := CosineSimilarity(vec1, vec2)
	if err != nil {
		return 0, err
	}
	return 1 - float64(sim), nil
}
