// Package verificationlogs stores the analytics trail of /verify calls.
package verificationlogs

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/claimgate/internal/dbx"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, l *models.VerificationLog) error
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, l *models.VerificationLog) error {
	query :=
		`INSERT INTO verification_logs (account_id, claim, evidence, result, confidence)
		 VALUES ($1, $2, $3, $4, $5)
		 `
	if _, err := r.db.ExecContext(ctx, query, l.AccountID, l.Claim, l.Evidence, l.Result, l.Confidence); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
