// Package apikeys provides PostgreSQL-backed storage of hashed API keys.
package apikeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/dbx"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
)

const selectColumns = `id, account_id, name, key_hash, lookup_hash, key_prefix, is_active, created_at, last_used_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*models.APIKey, error) {
	var (
		k        models.APIKey
		lookup   sql.NullString
		lastUsed sql.NullTime
	)
	if err := row.Scan(&k.ID, &k.AccountID, &k.Name, &k.KeyHash, &lookup, &k.KeyPrefix, &k.IsActive, &k.CreatedAt, &lastUsed); err != nil {
		return nil, err
	}
	k.LookupHash = lookup.String
	if lastUsed.Valid {
		t := lastUsed.Time
		k.LastUsedAt = &t
	}
	return &k, nil
}

func (r *PostgresRepository) Create(ctx context.Context, key *models.APIKey) (*models.APIKey, error) {
	query :=
		`INSERT INTO api_keys (account_id, name, key_hash, lookup_hash, key_prefix)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		key.AccountID, key.Name, key.KeyHash, key.LookupHash, key.KeyPrefix).Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	key.IsActive = true
	return key, nil
}

func (r *PostgresRepository) FindByLookupHash(ctx context.Context, lookupHash string) (*models.APIKey, error) {
	query := `SELECT ` + selectColumns + ` FROM api_keys WHERE lookup_hash = $1`

	k, err := scanKey(r.db.QueryRowContext(ctx, query, lookupHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return k, nil
}

func (r *PostgresRepository) ListUnmigrated(ctx context.Context, limit int) ([]*models.APIKey, error) {
	query := `SELECT ` + selectColumns + ` FROM api_keys WHERE lookup_hash IS NULL ORDER BY created_at LIMIT $1`
	return r.list(ctx, query, limit)
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.APIKey, error) {
	query := `SELECT ` + selectColumns + ` FROM api_keys WHERE account_id = $1 ORDER BY created_at`
	return r.list(ctx, query, accountID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg any) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) SetLookupHash(ctx context.Context, id, lookupHash string) error {
	query :=
		`UPDATE api_keys SET lookup_hash = $2
		 WHERE id = $1 AND lookup_hash IS NULL
		 `
	if _, err := r.db.ExecContext(ctx, query, id, lookupHash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id, accountID string) error {
	query :=
		`UPDATE api_keys SET is_active = FALSE
		 WHERE id = $1 AND account_id = $2
		 `
	res, err := r.db.ExecContext(ctx, query, id, accountID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) TouchLastUsed(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
