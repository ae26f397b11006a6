// Package retrieval finds supporting passages for a query in the indexed
// document corpus.
package retrieval

import (
	"context"
	"fmt"
	"strings"
)

// DefaultTopK is the number of chunks returned when none is configured.
const DefaultTopK = 5

// Chunk is one ranked passage from the document index.
type Chunk struct {
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Source string  `json:"source,omitempty"`
}

// Index is the document search capability.
type Index interface {
	Search(ctx context.Context, query string, topK int) ([]Chunk, error)
}

// Retriever queries an Index for the top-K chunks. It does not cache.
type Retriever struct {
	index Index
	topK  int
}

func NewRetriever(index Index, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{index: index, topK: topK}
}

// Retrieve returns chunks in relevance order. An empty result is valid.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Chunk, error) {
	chunks, err := r.index.Search(ctx, query, r.topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	if len(chunks) > r.topK {
		chunks = chunks[:r.topK]
	}
	return chunks, nil
}

// Text joins chunk texts with a blank line, keeping retrieval order.
func Text(chunks []Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n")
}
