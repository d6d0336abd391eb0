// Package ledger provides the PostgreSQL balance primitives behind the
// credit ledger. Every decrement is a single conditional UPDATE, so the
// balance check and the write can never be separated.
package ledger

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

func (r *PostgresRepository) Balance(ctx context.Context, accountID string) (int64, error) {
	var credits int64
	err := r.db.QueryRowContext(ctx, `SELECT credits FROM accounts WHERE id = $1`, accountID).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrAccountNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return credits, nil
}

func (r *PostgresRepository) DeductIfSufficient(ctx context.Context, accountID string, amount int64) (int64, error) {
	query :=
		`UPDATE accounts SET credits = credits - $2
		 WHERE id = $1 AND credits >= $2
		 RETURNING credits
		 `

	var balance int64
	err := r.db.QueryRowContext(ctx, query, accountID, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("db error: %w", err)
	}

	// nothing updated: either the row is missing or the balance is short
	if _, err := r.Balance(ctx, accountID); err != nil {
		return 0, err
	}
	return 0, common.ErrInsufficientCredits
}

func (r *PostgresRepository) Credit(ctx context.Context, accountID string, amount int64) (int64, error) {
	query :=
		`UPDATE accounts SET credits = credits + $2
		 WHERE id = $1
		 RETURNING credits
		 `

	var balance int64
	err := r.db.QueryRowContext(ctx, query, accountID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrAccountNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return balance, nil
}

func (r *PostgresRepository) Record(ctx context.Context, tx *models.LedgerTransaction) error {
	query :=
		`INSERT INTO credit_transactions (account_id, amount, action, balance_after)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at
		 `
	err := r.db.QueryRowContext(ctx, query, tx.AccountID, tx.Amount, tx.Action, tx.BalanceAfter).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
