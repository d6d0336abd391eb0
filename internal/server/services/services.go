// Package services holds the request-level business operations of the
// gateway. Each operation resolves billing through the credit ledger and
// persists through the repository manager.
package services

import (
	"context"

	"github.com/dmitrijs2005/claimgate/internal/server/models"
)

// Ledger action labels.
const (
	ActionVerifyClaim    = "verify_claim"
	ActionVerifyReject   = "verify_reject"
	ActionCaptureReject  = "capture_reject"
	ActionMemorySearch   = "memory_search"
	ActionMemoryVerified = "memory_verified"
)

// Verifier renders verdicts. It never fails; faults are encoded in the
// result.
type Verifier interface {
	Verify(ctx context.Context, claim, evidence string) *models.VerificationResult
}

// Ledger is the subset of the credit ledger the services charge through.
type Ledger interface {
	Deduct(ctx context.Context, accountID string, amount int64, action string) (int64, error)
	CaptureAtomic(ctx context.Context, accountID string, totalCost int64, chunks []*models.MemoryChunk, action string) (*models.CaptureResult, error)
}

// Costs is the credit price list.
type Costs struct {
	Verify          int64
	StoragePerChunk int64
	Search          int64
	VerifiedMemory  int64
}

func DefaultCosts() Costs {
	return Costs{Verify: 1, StoragePerChunk: 2, Search: 1, VerifiedMemory: 3}
}
