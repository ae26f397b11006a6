package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbrain/finbrain/internal/llm/llmtest"
)

type fakeIndex struct {
	chunks []Chunk
	err    error
	calls  int
	topK   int
}

func (f *fakeIndex) Search(_ context.Context, _ string, topK int) ([]Chunk, error) {
	f.calls++
	f.topK = topK
	return f.chunks, f.err
}

func TestRetriever_Retrieve(t *testing.T) {
	t.Run("passes top k and keeps order", func(t *testing.T) {
		idx := &fakeIndex{chunks: []Chunk{{Text: "a", Score: 0.9}, {Text: "b", Score: 0.8}}}
		r := NewRetriever(idx, 0)

		got, err := r.Retrieve(context.Background(), "solar costs")
		require.NoError(t, err)
		assert.Equal(t, DefaultTopK, idx.topK)
		assert.Equal(t, []string{"a", "b"}, []string{got[0].Text, got[1].Text})
	})

	t.Run("no caching between calls", func(t *testing.T) {
		idx := &fakeIndex{}
		r := NewRetriever(idx, 3)
		_, _ = r.Retrieve(context.Background(), "q")
		_, _ = r.Retrieve(context.Background(), "q")
		assert.Equal(t, 2, idx.calls)
	})

	t.Run("empty result is valid", func(t *testing.T) {
		r := NewRetriever(&fakeIndex{chunks: []Chunk{}}, 3)
		got, err := r.Retrieve(context.Background(), "q")
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, "", Text(got))
	})

	t.Run("index error propagates", func(t *testing.T) {
		sentinel := errors.New("index offline")
		r := NewRetriever(&fakeIndex{err: sentinel}, 3)
		_, err := r.Retrieve(context.Background(), "q")
		assert.ErrorIs(t, err, sentinel)
	})
}

func TestText(t *testing.T) {
	assert.Equal(t, "first\n\nsecond", Text([]Chunk{{Text: "first"}, {Text: "second"}}))
}

func TestSplitText(t *testing.T) {
	t.Run("short text is one chunk", func(t *testing.T) {
		assert.Equal(t, []string{"hello world"}, SplitText("hello world", 100, 10))
	})

	t.Run("long text is covered with overlap", func(t *testing.T) {
		words := make([]string, 200)
		for i := range words {
			words[i] = "word"
		}
		text := strings.Join(words, " ")
		chunks := SplitText(text, 100, 20)

		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, len([]rune(c)), 100)
			assert.False(t, strings.HasPrefix(c, "ord"), "cut in the middle of a word: %q", c)
		}
		total := 0
		for _, c := range chunks {
			total += len(c)
		}
		assert.GreaterOrEqual(t, total, len(text)-len(chunks))
	})
}

type fakeStore struct {
	mu       sync.Mutex
	count    int64
	inserted []StoredChunk
}

func (s *fakeStore) Count(context.Context) (int64, error) { return s.count, nil }

func (s *fakeStore) InsertChunks(_ context.Context, chunks []StoredChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, chunks...)
	return nil
}

func TestLoader_EnsureIndex(t *testing.T) {
	t.Run("missing directory on empty index", func(t *testing.T) {
		l := NewLoader(&fakeStore{}, &llmtest.Embedder{}, 100, 10)
		_, err := l.EnsureIndex(context.Background(), filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, ErrDocumentsNotFound)
	})

	t.Run("populated index is reused", func(t *testing.T) {
		emb := &llmtest.Embedder{}
		store := &fakeStore{count: 12}
		l := NewLoader(store, emb, 100, 10)

		n, err := l.EnsureIndex(context.Background(), "/does/not/matter")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, 0, emb.Calls())
	})

	t.Run("builds from text files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "solar.txt"), []byte("Solar panels convert sunlight."), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "wind"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "wind", "turbines.md"), []byte("Wind turbines spin."), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.png"), []byte{0x89, 0x50}, 0o644))

		emb := &llmtest.Embedder{Dimensions: 4}
		store := &fakeStore{}
		n, err := NewLoader(store, emb, 100, 10).EnsureIndex(context.Background(), dir)
		require.NoError(t, err)

		assert.Equal(t, 2, n)
		require.Len(t, store.inserted, 2)
		assert.Equal(t, "solar.txt", store.inserted[0].Source)
		assert.Equal(t, "wind/turbines.md", store.inserted[1].Source)
		for _, c := range store.inserted {
			assert.Len(t, c.Embedding, 4)
		}
	})
}
