// Package httpapi exposes the gateway over HTTP/JSON. Every route except
// /health and /reputation requires an API key or bearer token.
package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/claimgate/internal/logging"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
	"github.com/dmitrijs2005/claimgate/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type Resolver interface {
	Resolve(ctx context.Context, bearer, apiKey string) (string, error)
}

type Verifier interface {
	Verify(ctx context.Context, accountID, claim, evidence string) (*models.VerificationResult, error)
}

type Memory interface {
	Add(ctx context.Context, accountID, content string, tags []string) (*services.Stored, error)
	Capture(ctx context.Context, accountID, rawURL string, verify bool, tags []string) (*services.CaptureOutcome, error)
	Search(ctx context.Context, accountID, query string) ([]*models.MemoryMatch, error)
	Verified(ctx context.Context, accountID, claim, evidence string, tags []string) (*services.VerifiedOutcome, error)
}

type Keys interface {
	Issue(ctx context.Context, accountID, name string) (*services.IssuedKey, error)
	List(ctx context.Context, accountID string) ([]*models.APIKey, error)
	Revoke(ctx context.Context, accountID, keyID string) error
}

type Balances interface {
	Balance(ctx context.Context, accountID string) (int64, error)
}

type Reputation interface {
	Status(domain string) string
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Resolver   Resolver
	Verifier   Verifier
	Memory     Memory
	Keys       Keys
	Balances   Balances
	Reputation Reputation

	// MCP serves the MCP tools at /mcp when set. It runs behind authenticate
	// and reads the caller with AccountID.
	MCP http.Handler
}

type handlers struct {
	deps     Deps
	validate *validator.Validate
	logger   logging.Logger
}

// NewRouter builds the HTTP handler tree.
func NewRouter(deps Deps, logger logging.Logger) http.Handler {
	h := &handlers{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("module", "httpapi"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.Get("/health", h.health)
	r.Get("/reputation", h.reputation)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Post("/verify", h.verify)
		r.Get("/credits", h.credits)

		r.Route("/memory", func(r chi.Router) {
			r.Post("/add", h.memoryAdd)
			r.Post("/capture", h.memoryCapture)
			r.Post("/search", h.memorySearch)
			r.Post("/verified", h.memoryVerified)
		})

		r.Route("/auth/keys", func(r chi.Router) {
			r.Get("/", h.listKeys)
			r.Post("/", h.createKey)
			r.Delete("/{keyID}", h.revokeKey)
		})

		if deps.MCP != nil {
			r.Handle("/mcp", deps.MCP)
		}
	})

	return r
}
