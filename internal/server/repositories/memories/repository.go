package memories

import (
	"context"

	"github.com/dmitrijs2005/claimgate/internal/server/models"
)

// SearchParams drives a hybrid (vector + full text) search.
type SearchParams struct {
	AccountID string
	Embedding []float32
	Query     string
	Threshold float64
	Limit     int
}

type Repository interface {
	Insert(ctx context.Context, chunk *models.MemoryChunk) (string, error)
	Search(ctx context.Context, p SearchParams) ([]*models.MemoryMatch, error)
}
