package accounts

import (
	"context"

	"github.com/dmitrijs2005/claimgate/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, credits int64) (*models.Account, error)
	Get(ctx context.Context, id string) (*models.Account, error)
	// FindByLegacyKey looks an account up by the deprecated plaintext key column.
	FindByLegacyKey(ctx context.Context, apiKey string) (*models.Account, error)
}
