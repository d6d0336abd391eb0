package httpapi

import (
	"time"

	"github.com/dmitrijs2005/claimgate/internal/server/models"
)

type verifyRequest struct {
	Claim    string `json:"claim" validate:"required,max=4000"`
	Evidence string `json:"evidence" validate:"max=20000"`
}

type verifyResponse struct {
	Result     string   `json:"result"`
	Confidence float64  `json:"confidence"`
	Claim      string   `json:"claim"`
	Evidence   string   `json:"evidence"`
	Sources    []string `json:"sources"`
}

type memoryAddRequest struct {
	Content string   `json:"content" validate:"required"`
	Tags    []string `json:"tags" validate:"max=20,dive,max=64"`
}

type memoryCaptureRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Verify bool     `json:"verify"`
	Tags   []string `json:"tags" validate:"max=20,dive,max=64"`
}

type memorySearchRequest struct {
	Query string `json:"query" validate:"required,max=2000"`
}

type memoryVerifiedRequest struct {
	Claim    string   `json:"claim" validate:"required,max=4000"`
	Evidence string   `json:"evidence" validate:"max=20000"`
	Tags     []string `json:"tags" validate:"max=20,dive,max=64"`
}

type storedResponse struct {
	Status          string                     `json:"status"`
	IDs             []string                   `json:"ids"`
	ChunksCreated   int                        `json:"chunks_created"`
	CreditsDeducted int64                      `json:"credits_deducted"`
	NewBalance      *int64                     `json:"new_balance,omitempty"`
	Title           string                     `json:"title,omitempty"`
	Verification    *models.VerificationResult `json:"verification,omitempty"`
	SnapshotURL     string                     `json:"snapshot_url,omitempty"`
}

type verifiedResponse struct {
	Status       string                     `json:"status"`
	ID           string                     `json:"id"`
	NewBalance   int64                      `json:"new_balance"`
	Verification *models.VerificationResult `json:"verification"`
}

type rejectedResponse struct {
	Status     string  `json:"status"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

type searchResponse struct {
	Results []*models.MemoryMatch `json:"results"`
}

type keyCreateRequest struct {
	Name string `json:"name" validate:"max=100"`
}

type keyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	IsActive   bool       `json:"is_active"`
	APIKey     string     `json:"api_key,omitempty"`
}

type balanceResponse struct {
	Credits int64 `json:"credits"`
}

type reputationResponse struct {
	Status string `json:"status"`
	Domain string `json:"domain"`
}

type statusResponse struct {
	Status string `json:"status"`
}
