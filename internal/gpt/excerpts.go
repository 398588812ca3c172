package gpt

import (
	"math"
	"sort"
	"strings"
)

// TopRelevant は変数の埋め込みとチャンク埋め込みのコサイン類似度で
// 上位 limit 件のチャンクを返します。変数名を文字どおり含むチャンクは
// 類似度に関係なく先頭に含めます。
func TopRelevant(embeddings [][]float32, chunks []string, varEmbedding []float32, limit int, varName string) []string {
	if len(embeddings) != len(chunks) || len(chunks) == 0 {
		return nil
	}

	pinned := make(map[int]bool)
	var selected []string
	for i, chunk := range chunks {
		if varName != "" && strings.Contains(chunk, varName) {
			pinned[i] = true
			selected = append(selected, chunk)
		}
	}

	type scored struct {
		index      int
		similarity float64
	}
	scores := make([]scored, 0, len(chunks))
	for i := range chunks {
		scores = append(scores, scored{index: i, similarity: cosineSimilarity(varEmbedding, embeddings[i])})
	}
	sort.Slice(scores, func(i, j int) bool {
		return scores[i].similarity > scores[j].similarity
	})

	for _, s := range scores {
		if limit > 0 && len(selected) >= len(pinned)+limit {
			break
		}
		if pinned[s.index] {
			continue
		}
		selected = append(selected, chunks[s.index])
	}
	return selected
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
