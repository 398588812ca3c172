package gpt

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// 1バッチあたりの埋め込み入力トークン上限。正確なトークナイザは持たずに
// 文字数/4 の概算で収めます。
const embeddingTokenBudget = 8000

// EmbedChunks はチャンク列の埋め込みをまとめて生成します。キャッシュが
// 設定されていれば同一内容の再計算を避けます。
func (c *Client) EmbedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	var cacheKey string
	if c.cache != nil {
		cacheKey = c.cache.Key(c.embeddingModel, chunks)
		if cached, ok := c.cache.Get(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	embeddings := make([][]float32, 0, len(chunks))
	for _, batch := range batchByTokenBudget(chunks) {
		response, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.embeddingModel),
			Input: batch,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		if len(response.Data) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(batch), len(response.Data))
		}
		for _, d := range response.Data {
			embeddings = append(embeddings, d.Embedding)
		}
	}

	if c.cache != nil {
		c.cache.Put(ctx, cacheKey, embeddings)
	}
	return embeddings, nil
}

// EmbedText は単一テキストの埋め込みを返します。
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedChunks(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("unexpected embedding count: %d", len(embeddings))
	}
	return embeddings[0], nil
}

func batchByTokenBudget(chunks []string) [][]string {
	var (
		batches [][]string
		current []string
		tokens  int
	)
	for _, chunk := range chunks {
		estimate := len(chunk)/4 + 1
		if tokens+estimate > embeddingTokenBudget && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			tokens = 0
		}
		current = append(current, chunk)
		tokens += estimate
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
