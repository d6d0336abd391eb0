package apikeys

import (
	"context"

	"github.com/dmitrijs2005/claimgate/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, key *models.APIKey) (*models.APIKey, error)
	FindByLookupHash(ctx context.Context, lookupHash string) (*models.APIKey, error)
	// ListUnmigrated returns up to limit keys that have no lookup hash yet.
	ListUnmigrated(ctx context.Context, limit int) ([]*models.APIKey, error)
	// SetLookupHash backfills the fingerprint. It is a no-op for rows that
	// already have one.
	SetLookupHash(ctx context.Context, id, lookupHash string) error
	ListByAccount(ctx context.Context, accountID string) ([]*models.APIKey, error)
	Deactivate(ctx context.Context, id, accountID string) error
	TouchLastUsed(ctx context.Context, id string) error
}
