package llm

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedEmbedder memoizes embeddings by exact text. Sub-questions repeated
// across runs and memory lookups then skip the provider call.
type CachedEmbedder struct {
	next  Embedder
	cache *cache.Cache
}

// NewCachedEmbedder keeps each embedding for ttl.
func NewCachedEmbedder(next Embedder, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if x, found := e.cache.Get(text); found {
		return x.([]float32), nil
	}
	emb, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, emb, cache.DefaultExpiration)
	return emb, nil
}

// Len reports how many embeddings are cached.
func (e *CachedEmbedder) Len() int {
	return e.cache.ItemCount()
}
