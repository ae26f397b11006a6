package memory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// PostgresFactRepository implements FactRepository on the memory_facts table.
type PostgresFactRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresFactRepository(pool *pgxpool.Pool) *PostgresFactRepository {
	return &PostgresFactRepository{pool: pool}
}

func (r *PostgresFactRepository) List(ctx context.Context, sessionID string) ([]Fact, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, content, created_at
		 FROM memory_facts
		 WHERE session_id = $1
		 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Content, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (r *PostgresFactRepository) Add(ctx context.Context, sessionID string, contents []string) error {
	batch := &pgx.Batch{}
	for _, c := range contents {
		batch.Queue(`INSERT INTO memory_facts (session_id, content) VALUES ($1, $2)`, sessionID, c)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting facts: %w", err)
	}
	return nil
}

// Replace swaps the session's facts for contents in one transaction.
func (r *PostgresFactRepository) Replace(ctx context.Context, sessionID string, contents []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM memory_facts WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("deleting facts: %w", err)
	}
	for _, c := range contents {
		if _, err := tx.Exec(ctx,
			`INSERT INTO memory_facts (session_id, content) VALUES ($1, $2)`,
			sessionID, c,
		); err != nil {
			return fmt.Errorf("inserting fact: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresFactRepository) Clear(ctx context.Context, sessionID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM memory_facts WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("deleting facts: %w", err)
	}
	return nil
}

// PostgresVectorRepository implements VectorRepository with pgvector.
type PostgresVectorRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresVectorRepository(pool *pgxpool.Pool) *PostgresVectorRepository {
	return &PostgresVectorRepository{pool: pool}
}

func (r *PostgresVectorRepository) Insert(ctx context.Context, entry VectorEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO memory_vectors (id, session_id, content, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.SessionID, entry.Content, pgvector.NewVector(entry.Embedding),
	)
	if err != nil {
		return fmt.Errorf("inserting memory vector: %w", err)
	}
	return nil
}

func (r *PostgresVectorRepository) Search(ctx context.Context, sessionID string, embedding []float32, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT content
		 FROM memory_vectors
		 WHERE session_id = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		sessionID, pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching memory vectors: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning memory vector: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresVectorRepository) Clear(ctx context.Context, sessionID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM memory_vectors WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("deleting memory vectors: %w", err)
	}
	return nil
}
