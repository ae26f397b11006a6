package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbrain/finbrain/internal/llm/llmtest"
)

type memFactRepo struct {
	mu    sync.Mutex
	next  int64
	facts map[string][]Fact
}

func newMemFactRepo() *memFactRepo {
	return &memFactRepo{facts: make(map[string][]Fact)}
}

func (r *memFactRepo) List(_ context.Context, sessionID string) ([]Fact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Fact(nil), r.facts[sessionID]...), nil
}

func (r *memFactRepo) Add(_ context.Context, sessionID string, contents []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range contents {
		r.next++
		r.facts[sessionID] = append(r.facts[sessionID], Fact{ID: r.next, SessionID: sessionID, Content: c})
	}
	return nil
}

func (r *memFactRepo) Replace(ctx context.Context, sessionID string, contents []string) error {
	r.mu.Lock()
	delete(r.facts, sessionID)
	r.mu.Unlock()
	return r.Add(ctx, sessionID, contents)
}

func (r *memFactRepo) Clear(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.facts, sessionID)
	return nil
}

func (r *memFactRepo) contents(sessionID string) []string {
	facts, _ := r.List(context.Background(), sessionID)
	return factContents(facts)
}

type memVectorRepo struct {
	mu      sync.Mutex
	entries map[string]VectorEntry
}

func (r *memVectorRepo) Insert(_ context.Context, e VectorEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[string]VectorEntry)
	}
	if _, ok := r.entries[e.ID]; !ok {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *memVectorRepo) Search(_ context.Context, sessionID string, _ []float32, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		if e.SessionID == sessionID && len(out) < limit {
			out = append(out, e.Content)
		}
	}
	return out, nil
}

func (r *memVectorRepo) Clear(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.SessionID == sessionID {
			delete(r.entries, id)
		}
	}
	return nil
}

var sampleTurns = []Turn{
	{Role: RoleUser, Content: "I hold AAPL and prefer dividend stocks."},
	{Role: RoleAssistant, Content: "Noted."},
}

func TestFactBlock_PutExtractsFacts(t *testing.T) {
	repo := newMemFactRepo()
	completer := &llmtest.Completer{Rules: []llmtest.Rule{
		{Match: "extracting durable facts", Response: "- Holds AAPL\n- Prefers dividend stocks"},
	}}
	b := NewFactBlock(repo, completer, 10)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "s1", sampleTurns))
	assert.Equal(t, []string{"Holds AAPL", "Prefers dividend stocks"}, repo.contents("s1"))
	assert.Contains(t, completer.Prompts()[0], "user: I hold AAPL and prefer dividend stocks.")

	got, err := b.Get(ctx, "s1", "")
	require.NoError(t, err)
	assert.Equal(t, "- Holds AAPL\n- Prefers dividend stocks", got)
}

func TestFactBlock_NoNewFacts(t *testing.T) {
	repo := newMemFactRepo()
	b := NewFactBlock(repo, &llmtest.Completer{Fallback: "NONE"}, 10)

	require.NoError(t, b.Put(context.Background(), "s1", sampleTurns))
	assert.Empty(t, repo.contents("s1"))

	got, err := b.Get(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestFactBlock_CondensesOverLimit(t *testing.T) {
	repo := newMemFactRepo()
	require.NoError(t, repo.Add(context.Background(), "s1", []string{"old one", "old two"}))
	completer := &llmtest.Completer{Rules: []llmtest.Rule{
		{Match: "extracting durable facts", Response: "- new fact"},
		{Match: "have grown too long", Response: "- merged a\n- merged b\n- merged c"},
	}}
	b := NewFactBlock(repo, completer, 2)

	require.NoError(t, b.Put(context.Background(), "s1", sampleTurns))
	assert.Equal(t, []string{"merged b", "merged c"}, repo.contents("s1"), "newest facts win when condensing overshoots")
}

func TestFactBlock_CondenseFailureDropsOldest(t *testing.T) {
	repo := newMemFactRepo()
	require.NoError(t, repo.Add(context.Background(), "s1", []string{"old one", "old two"}))
	completer := &llmtest.Completer{Rules: []llmtest.Rule{
		{Match: "extracting durable facts", Response: "- new fact"},
		{Match: "have grown too long", Err: errors.New("provider down")},
	}}
	b := NewFactBlock(repo, completer, 2)

	require.NoError(t, b.Put(context.Background(), "s1", sampleTurns))
	assert.Equal(t, []string{"old two", "new fact"}, repo.contents("s1"))
}

func TestFactBlock_ExtractionError(t *testing.T) {
	completer := &llmtest.Completer{Rules: []llmtest.Rule{
		{Match: "extracting durable facts", Err: errors.New("provider down")},
	}}
	b := NewFactBlock(newMemFactRepo(), completer, 2)

	assert.Error(t, b.Put(context.Background(), "s1", sampleTurns))
}

func TestVectorBlock_DeduplicatesByContent(t *testing.T) {
	repo := &memVectorRepo{}
	embedder := &llmtest.Embedder{}
	b := NewVectorBlock(repo, embedder, 3)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "s1", sampleTurns))
	require.NoError(t, b.Put(ctx, "s1", sampleTurns))
	require.NoError(t, b.Put(ctx, "s2", sampleTurns))
	assert.Len(t, repo.entries, 2)

	got, err := b.Get(ctx, "s1", "dividends")
	require.NoError(t, err)
	assert.Equal(t, "user: I hold AAPL and prefer dividend stocks.\nassistant: Noted.", got)
}

func TestVectorBlock_EmptyQuerySkipsEmbedding(t *testing.T) {
	embedder := &llmtest.Embedder{}
	b := NewVectorBlock(&memVectorRepo{}, embedder, 3)

	got, err := b.Get(context.Background(), "s1", "  ")
	require.NoError(t, err)
	assert.Equal(t, "", got)
	assert.Equal(t, 0, embedder.Calls())
}

func TestVectorBlock_QueryEmbedderServesRecall(t *testing.T) {
	repo := &memVectorRepo{}
	docs := &llmtest.Embedder{}
	queries := &llmtest.Embedder{}
	b := NewVectorBlock(repo, docs, 3).WithQueryEmbedder(queries)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "s1", sampleTurns))
	_, err := b.Get(ctx, "s1", "dividends")
	require.NoError(t, err)

	assert.Equal(t, 1, docs.Calls())
	assert.Equal(t, 1, queries.Calls())
}

func TestContentID(t *testing.T) {
	a := ContentID("s1", "hello")
	assert.Len(t, a, 64)
	assert.Equal(t, a, ContentID("s1", "hello"))
	assert.NotEqual(t, a, ContentID("s2", "hello"))
	assert.NotEqual(t, a, ContentID("s1", "hello!"))
}
