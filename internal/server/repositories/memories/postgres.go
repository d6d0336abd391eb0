// Package memories stores embedded memory chunks in PostgreSQL (pgvector)
// and answers hybrid similarity + full-text queries over them.
package memories

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/claimgate/internal/dbx"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// Weights of the two signals in the hybrid score.
const (
	vectorWeight = 0.7
	textWeight   = 0.3
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, chunk *models.MemoryChunk) (string, error) {
	// tags is NOT NULL; a nil slice would be sent as NULL
	tags := chunk.Tags
	if tags == nil {
		tags = []string{}
	}

	query :=
		`INSERT INTO memories (account_id, content, embedding, tags)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id
		 `

	var id string
	err := r.db.QueryRowContext(ctx, query, chunk.AccountID, chunk.Content, pgvector.NewVector(chunk.Embedding), tags).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	chunk.ID = id
	return id, nil
}

func (r *PostgresRepository) Search(ctx context.Context, p SearchParams) ([]*models.MemoryMatch, error) {
	query := fmt.Sprintf(
		`SELECT id, content, tags, similarity, text_rank, %[1]g * similarity + %[2]g * text_rank AS score, created_at
		 FROM (
		     SELECT id, content, tags, created_at,
		            1 - (embedding <=> $2::vector) AS similarity,
		            ts_rank(content_tsv, plainto_tsquery('english', $3)) AS text_rank,
		            content_tsv @@ plainto_tsquery('english', $3) AS text_hit
		     FROM memories
		     WHERE account_id = $1
		 ) m
		 WHERE similarity >= $4 OR text_hit
		 ORDER BY score DESC
		 LIMIT $5
		 `, vectorWeight, textWeight)

	rows, err := r.db.QueryContext(ctx, query, p.AccountID, pgvector.NewVector(p.Embedding), p.Query, p.Threshold, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	// database/sql cannot scan TEXT[] on its own
	types := pgtype.NewMap()

	result := []*models.MemoryMatch{}
	for rows.Next() {
		var m models.MemoryMatch
		if err := rows.Scan(&m.ID, &m.Content, types.SQLScanner(&m.Tags), &m.Similarity, &m.TextRank, &m.Score, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if m.Tags == nil {
			m.Tags = []string{}
		}
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
