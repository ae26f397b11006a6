package retrieval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/finbrain/finbrain/internal/llm"
)

// StoredChunk is a document chunk with its embedding, ready for insertion.
type StoredChunk struct {
	ID         uuid.UUID
	Source     string
	ChunkIndex int
	Content    string
	Embedding  []float32
}

// PostgresIndex implements Index over the document_chunks pgvector table.
type PostgresIndex struct {
	pool     *pgxpool.Pool
	embedder llm.Embedder
}

func NewPostgresIndex(pool *pgxpool.Pool, embedder llm.Embedder) *PostgresIndex {
	return &PostgresIndex{pool: pool, embedder: embedder}
}

func (x *PostgresIndex) Search(ctx context.Context, query string, topK int) ([]Chunk, error) {
	emb, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := x.pool.Query(ctx,
		`SELECT content, source, 1 - (embedding <=> $1) AS score
		 FROM document_chunks
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(emb), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("querying document chunks: %w", err)
	}
	defer rows.Close()

	chunks := []Chunk{}
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.Text, &c.Source, &c.Score); err != nil {
			return nil, fmt.Errorf("scanning document chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (x *PostgresIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := x.pool.QueryRow(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting document chunks: %w", err)
	}
	return n, nil
}

// InsertChunks stores chunks in one batch. Chunks already present for the
// same source and position are left untouched.
func (x *PostgresIndex) InsertChunks(ctx context.Context, chunks []StoredChunk) error {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		batch.Queue(
			`INSERT INTO document_chunks (id, source, chunk_index, content, embedding)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (source, chunk_index) DO NOTHING`,
			c.ID, c.Source, c.ChunkIndex, c.Content, pgvector.NewVector(c.Embedding),
		)
	}

	br := x.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("inserting document chunk: %w", err)
		}
	}
	return nil
}

// Reset removes every chunk so the next EnsureIndex rebuilds the index.
func (x *PostgresIndex) Reset(ctx context.Context) error {
	if _, err := x.pool.Exec(ctx, `TRUNCATE document_chunks`); err != nil {
		return fmt.Errorf("truncating document chunks: %w", err)
	}
	return nil
}
