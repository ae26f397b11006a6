package memory

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/finbrain/finbrain/internal/llm"
)

// VectorRepository persists embedded conversation fragments per session.
type VectorRepository interface {
	// Insert stores entry unless an entry with the same ID exists.
	Insert(ctx context.Context, entry VectorEntry) error
	Search(ctx context.Context, sessionID string, embedding []float32, limit int) ([]string, error)
	Clear(ctx context.Context, sessionID string) error
}

// ContentID derives a stable identifier for content within a session, so
// writing the same fragment twice stores it once.
func ContentID(sessionID, content string) string {
	sum := blake2b.Sum256([]byte(sessionID + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

// VectorBlock embeds conversation fragments and recalls the ones most
// similar to the current query.
type VectorBlock struct {
	repo     VectorRepository
	embedder llm.Embedder
	// query embeds recall queries. It defaults to embedder.
	query llm.Embedder
	topK  int
}

func NewVectorBlock(repo VectorRepository, embedder llm.Embedder, topK int) *VectorBlock {
	if topK < 1 {
		topK = 1
	}
	return &VectorBlock{repo: repo, embedder: embedder, query: embedder, topK: topK}
}

// WithQueryEmbedder embeds recall queries with e instead of the fragment
// embedder, for models that embed queries and documents differently.
func (b *VectorBlock) WithQueryEmbedder(e llm.Embedder) *VectorBlock {
	b.query = e
	return b
}

func (b *VectorBlock) Name() string  { return "vector_memory" }
func (b *VectorBlock) Priority() int { return 2 }

func (b *VectorBlock) Put(ctx context.Context, sessionID string, turns []Turn) error {
	content := formatTurns(turns)
	if strings.TrimSpace(content) == "" {
		return nil
	}

	emb, err := b.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embedding memory: %w", err)
	}
	entry := VectorEntry{
		ID:        ContentID(sessionID, content),
		SessionID: sessionID,
		Content:   content,
		Embedding: emb,
	}
	if err := b.repo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("storing memory vector: %w", err)
	}
	return nil
}

func (b *VectorBlock) Get(ctx context.Context, sessionID, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil
	}
	emb, err := b.query.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embedding query: %w", err)
	}
	hits, err := b.repo.Search(ctx, sessionID, emb, b.topK)
	if err != nil {
		return "", fmt.Errorf("searching memory vectors: %w", err)
	}
	return strings.Join(hits, "\n\n"), nil
}

func (b *VectorBlock) Clear(ctx context.Context, sessionID string) error {
	return b.repo.Clear(ctx, sessionID)
}
