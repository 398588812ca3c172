package gpt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "embcache:"

// Cache は生成済み埋め込みをRedisに保持します。同じ文書を繰り返し解析する
// 際の埋め込みAPI呼び出しを省くための、あくまで任意の最適化です。
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache は Cache を作成します。
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Key はモデルとチャンク内容から決まるキャッシュキーを返します。
func (c *Cache) Key(model string, chunks []string) string {
	h := sha256.New()
	h.Write([]byte(model))
	for _, chunk := range chunks {
		h.Write([]byte{0})
		h.Write([]byte(chunk))
	}
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get はキャッシュ済み埋め込みを返します。失敗はキャッシュミス扱いです。
func (c *Cache) Get(ctx context.Context, key string) ([][]float32, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var embeddings [][]float32
	if err := json.Unmarshal(data, &embeddings); err != nil {
		return nil, false
	}
	return embeddings, true
}

// Put は埋め込みをキャッシュします。失敗しても呼び出し元には影響させません。
func (c *Cache) Put(ctx context.Context, key string, embeddings [][]float32) {
	payload, err := json.Marshal(embeddings)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key, payload, c.ttl).Err()
}
