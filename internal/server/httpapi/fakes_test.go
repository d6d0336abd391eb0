package httpapi

import (
	"context"
	"time"

	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
	"github.com/dmitrijs2005/claimgate/internal/server/services"
)

type fakeResolver struct {
	bearer, apiKey string
	accountID      string
	err            error
}

func (f *fakeResolver) Resolve(_ context.Context, bearer, apiKey string) (string, error) {
	f.bearer, f.apiKey = bearer, apiKey
	if bearer == "" && apiKey == "" {
		return "", common.ErrUnauthenticated
	}
	return f.accountID, f.err
}

type fakeVerifier struct {
	accountID, claim, evidence string
	res                        *models.VerificationResult
	err                        error
}

func (f *fakeVerifier) Verify(_ context.Context, accountID, claim, evidence string) (*models.VerificationResult, error) {
	f.accountID, f.claim, f.evidence = accountID, claim, evidence
	return f.res, f.err
}

type fakeMemory struct {
	stored   *services.Stored
	capture  *services.CaptureOutcome
	verified *services.VerifiedOutcome
	matches  []*models.MemoryMatch
	err      error

	tags []string
}

func (f *fakeMemory) Add(_ context.Context, _, _ string, tags []string) (*services.Stored, error) {
	f.tags = tags
	return f.stored, f.err
}

func (f *fakeMemory) Capture(context.Context, string, string, bool, []string) (*services.CaptureOutcome, error) {
	return f.capture, f.err
}

func (f *fakeMemory) Search(context.Context, string, string) ([]*models.MemoryMatch, error) {
	return f.matches, f.err
}

func (f *fakeMemory) Verified(context.Context, string, string, string, []string) (*services.VerifiedOutcome, error) {
	return f.verified, f.err
}

type fakeKeys struct {
	revoked string
	err     error
}

func (f *fakeKeys) Issue(_ context.Context, _, name string) (*services.IssuedKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.IssuedKey{ID: "k1", Name: name, Key: "sk-layers-secret", Prefix: "sk-layers-secret...", CreatedAt: time.Unix(0, 0).UTC()}, nil
}

func (f *fakeKeys) List(context.Context, string) ([]*models.APIKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*models.APIKey{
		{ID: "k1", Name: "ci", KeyPrefix: "sk-layers-abc...", IsActive: true},
		{ID: "k0", Name: "old", IsActive: false},
	}, nil
}

func (f *fakeKeys) Revoke(_ context.Context, _, keyID string) error {
	f.revoked = keyID
	return f.err
}

type fakeBalances struct {
	balance int64
	err     error
}

func (f *fakeBalances) Balance(context.Context, string) (int64, error) {
	return f.balance, f.err
}

type fakeReputation struct{}

func (fakeReputation) Status(domain string) string {
	if domain == "bad.example" {
		return "BLOCKED"
	}
	return "OK"
}
