package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/finbrain/finbrain/internal/llm"
)

// ErrDocumentsNotFound is returned when a fresh index is requested and the
// documents directory does not exist.
var ErrDocumentsNotFound = errors.New("documents directory not found")

// Extensions of files read by the loader.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true, ".json": true, ".html": true,
}

// Document is one source file read from disk.
type Document struct {
	Source string
	Text   string
}

// ChunkStore is the write side of the document index.
type ChunkStore interface {
	Count(ctx context.Context) (int64, error)
	InsertChunks(ctx context.Context, chunks []StoredChunk) error
}

// Loader builds the document index from a directory of text files.
type Loader struct {
	store       ChunkStore
	embedder    llm.Embedder
	chunkSize   int
	overlap     int
	concurrency int
}

func NewLoader(store ChunkStore, embedder llm.Embedder, chunkSize, overlap int) *Loader {
	return &Loader{
		store:       store,
		embedder:    embedder,
		chunkSize:   chunkSize,
		overlap:     overlap,
		concurrency: 4,
	}
}

// EnsureIndex reuses a populated index as is. Otherwise it reads dir, splits
// every document into chunks, embeds them, and stores them. It returns the
// number of chunks inserted.
func (l *Loader) EnsureIndex(ctx context.Context, dir string) (int, error) {
	n, err := l.store.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("loading existing document index", "chunks", n)
		return 0, nil
	}

	slog.Info("building document index", "dir", dir)
	docs, err := ReadDocuments(dir)
	if err != nil {
		return 0, err
	}

	var pending []StoredChunk
	for _, doc := range docs {
		for i, text := range SplitText(doc.Text, l.chunkSize, l.overlap) {
			pending = append(pending, StoredChunk{Source: doc.Source, ChunkIndex: i, Content: text})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i := range pending {
		g.Go(func() error {
			emb, err := l.embedder.Embed(gctx, pending[i].Content)
			if err != nil {
				return fmt.Errorf("embedding %s chunk %d: %w", pending[i].Source, pending[i].ChunkIndex, err)
			}
			pending[i].Embedding = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := l.store.InsertChunks(ctx, pending); err != nil {
		return 0, err
	}
	slog.Info("document index built", "documents", len(docs), "chunks", len(pending))
	return len(pending), nil
}

// ReadDocuments reads every text file under dir, sorted by path.
func ReadDocuments(dir string) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, ErrDocumentsNotFound)
	}

	var docs []Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !textExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			rel, _ := filepath.Rel(dir, path)
			docs = append(docs, Document{Source: filepath.ToSlash(rel), Text: text})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking documents: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Source < docs[j].Source })
	return docs, nil
}

// SplitText cuts text into windows of at most size runes, each starting
// overlap runes before the previous one ended. Cuts are moved back to the
// nearest whitespace when one exists in the second half of the window.
func SplitText(text string, size, overlap int) []string {
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}
		for cut := end; cut > start+size/2; cut-- {
			if unicode.IsSpace(runes[cut]) {
				end = cut
				break
			}
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[start:end])))

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}
