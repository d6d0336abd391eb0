// Package accounts provides PostgreSQL-backed access to billable accounts.
// Balances are only changed through the ledger repository.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/dbx"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, credits int64) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (credits)
		 VALUES ($1)
		 RETURNING id, credits, is_active, created_at
		 `

	a := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, credits).Scan(&a.ID, &a.Credits, &a.IsActive, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Account, error) {
	query :=
		`SELECT id, credits, is_active, created_at FROM accounts
		 WHERE id = $1
		 `
	return r.scanOne(ctx, query, id)
}

func (r *PostgresRepository) FindByLegacyKey(ctx context.Context, apiKey string) (*models.Account, error) {
	query :=
		`SELECT id, credits, is_active, created_at FROM accounts
		 WHERE api_key = $1
		 `
	return r.scanOne(ctx, query, apiKey)
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	a := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&a.ID, &a.Credits, &a.IsActive, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}
