package store

import (
	"encoding/binary"
	"math"
	"sort"
)

// embeddingToBytes encodes a vector as little-endian float32s.
func embeddingToBytes(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToEmbedding converts a little-endian byte slice to []float32.
// A short trailing chunk is ignored.
func bytesToEmbedding(data []byte) []float32 {
	if data == nil {
		return nil
	}
	result := make([]float32, len(data)/4)
	for i := range result {
		result[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : i*4+4]))
	}
	return result
}

// CosineSimilarity computes cosine similarity between two vectors.
// Returns 0.0 for zero-norm vectors or mismatched lengths.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type candidate struct {
	match     AssetMatch
	embedding []float32
}

// rankMatches keeps candidates whose similarity exceeds threshold, sorted by
// descending similarity and capped at count.
func rankMatches(query []float32, candidates []candidate, threshold float64, count int) []AssetMatch {
	results := []AssetMatch{}
	for _, c := range candidates {
		sim := CosineSimilarity(query, c.embedding)
		if sim > threshold {
			m := c.match
			m.Similarity = sim
			results = append(results, m)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if count > 0 && len(results) > count {
		results = results[:count]
	}
	return results
}
