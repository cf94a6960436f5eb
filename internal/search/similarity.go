// Package search implements semantic and keyword retrieval over indexed
// crate metadata.
//
// The semantic path is exact brute-force cosine similarity across all
// stored embeddings; the keyword path runs PostgreSQL full-text queries
// with optional natural-language rewriting, and a hybrid reranker blends
// both scores.
package search

import "math"

// VectorDimension is the embedding dimension used across the system.
// It must match the vector(768) column declared by the migrations.
const VectorDimension = 768

// CosineSimilarity returns the cosine similarity of a and b.
// Mismatched dimensions, empty inputs, and zero-norm vectors all yield 0
// rather than an error: such pairs carry no usable signal for ranking.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA <= 0 || normB <= 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
