package ledger

import (
	"context"

	"github.com/dmitrijs2005/claimgate/internal/server/models"
)

// Repository holds the single-statement balance primitives. Callers that
// need several of them to apply together run them on one transaction.
type Repository interface {
	Balance(ctx context.Context, accountID string) (int64, error)
	// DeductIfSufficient decrements the balance only when it covers amount.
	// It returns common.ErrInsufficientCredits or common.ErrAccountNotFound
	// without changing anything otherwise.
	DeductIfSufficient(ctx context.Context, accountID string, amount int64) (int64, error)
	Credit(ctx context.Context, accountID string, amount int64) (int64, error)
	Record(ctx context.Context, tx *models.LedgerTransaction) error
}
