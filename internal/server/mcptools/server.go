// Package mcptools exposes the gateway to MCP clients (agents, IDEs) as
// four tools: verify_claim, check_reputation, save_memory and
// recall_memory. Tools run as the authenticated caller and are billed
// exactly like the matching HTTP routes.
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/logging"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
	"github.com/dmitrijs2005/claimgate/internal/server/services"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ServerName    = "claimgate"
	ServerVersion = "1.0.0"
)

type Verifier interface {
	Verify(ctx context.Context, accountID, claim, evidence string) (*models.VerificationResult, error)
}

type Memory interface {
	Search(ctx context.Context, accountID, query string) ([]*models.MemoryMatch, error)
	Verified(ctx context.Context, accountID, claim, evidence string, tags []string) (*services.VerifiedOutcome, error)
}

type Reputation interface {
	Status(domain string) string
}

// AccountFunc extracts the authenticated account id from a request context.
type AccountFunc func(ctx context.Context) string

type accountKey struct{}

type Tools struct {
	verifier   Verifier
	memory     Memory
	reputation Reputation
	logger     logging.Logger
}

func NewTools(v Verifier, m Memory, r Reputation, logger logging.Logger) *Tools {
	return &Tools{verifier: v, memory: m, reputation: r, logger: logger.With("module", "mcp")}
}

// NewServer registers the tools on a fresh MCP server.
func (t *Tools) NewServer() *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("verify_claim",
		mcp.WithDescription("Verifies a claim against evidence. Returns TRUE if the evidence supports the claim, FALSE if it contradicts it, UNCERTAIN if confidence is low. Without evidence the web is searched. Costs 1 credit."),
		mcp.WithString("claim", mcp.Required(), mcp.Description("The statement to verify.")),
		mcp.WithString("evidence", mcp.Description("Evidence text. Leave empty to search the web.")),
	), t.verifyClaim)

	s.AddTool(mcp.NewTool("check_reputation",
		mcp.WithDescription("Checks whether a domain is on the blocklist. Returns BLOCKED or OK."),
		mcp.WithString("domain", mcp.Required(), mcp.Description("Domain name, e.g. example.com.")),
	), t.checkReputation)

	s.AddTool(mcp.NewTool("save_memory",
		mcp.WithDescription("Verifies a statement and stores it in memory unless it is found FALSE."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The statement to verify and remember.")),
	), t.saveMemory)

	s.AddTool(mcp.NewTool("recall_memory",
		mcp.WithDescription("Searches stored memories. Costs 1 credit."),
		mcp.WithString("query", mcp.Required(), mcp.Description("What to look for.")),
	), t.recallMemory)

	return s
}

// Handler serves the tools over streamable HTTP. It must sit behind the
// authentication middleware; account resolves the caller from the request.
func (t *Tools) Handler(account AccountFunc) http.Handler {
	return server.NewStreamableHTTPServer(t.NewServer(),
		server.WithStateLess(true),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return WithAccount(ctx, account(r.Context()))
		}),
	)
}

// WithAccount returns ctx carrying the caller's account id.
func WithAccount(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountKey{}, accountID)
}

func accountFrom(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(accountKey{}).(string)
	return id, id != ""
}

func (t *Tools) verifyClaim(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account, ok := accountFrom(ctx)
	if !ok {
		return mcp.NewToolResultError(common.ErrUnauthenticated.Error()), nil
	}
	claim, err := req.RequireString("claim")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.verifier.Verify(ctx, account, claim, req.GetString("evidence", ""))
	if err != nil {
		return t.failure(ctx, "verify_claim", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Result: %s (Confidence: %.2f)", res.Result, res.Confidence)), nil
}

func (t *Tools) checkReputation(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	domain, err := req.RequireString("domain")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Status: %s for %s", t.reputation.Status(domain), domain)), nil
}

func (t *Tools) saveMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account, ok := accountFrom(ctx)
	if !ok {
		return mcp.NewToolResultError(common.ErrUnauthenticated.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := t.memory.Verified(ctx, account, text, "", nil)
	if err != nil {
		return t.failure(ctx, "save_memory", err), nil
	}
	if out.Rejected != nil {
		return mcp.NewToolResultText(fmt.Sprintf("REJECTED: this was found to be FALSE. Reason: %s", out.Rejected.Reason)), nil
	}

	var id string
	if out.Stored != nil && len(out.Stored.IDs) > 0 {
		id = out.Stored.IDs[0]
	}
	return mcp.NewToolResultText(fmt.Sprintf("SAVED: Memory ID %s (Confidence: %.2f)", id, out.Verification.Confidence)), nil
}

func (t *Tools) recallMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account, ok := accountFrom(ctx)
	if !ok {
		return mcp.NewToolResultError(common.ErrUnauthenticated.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	matches, err := t.memory.Search(ctx, account, query)
	if err != nil {
		return t.failure(ctx, "recall_memory", err), nil
	}
	if len(matches) == 0 {
		return mcp.NewToolResultText("No relevant memories found."), nil
	}

	var sb strings.Builder
	sb.WriteString("Found Memories:")
	for _, m := range matches {
		fmt.Fprintf(&sb, "\n- %s (Score: %.2f)", m.Content, m.Score)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// failure turns a service error into a tool error. Store and upstream
// details stay in the log.
func (t *Tools) failure(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrInsufficientCredits),
		errors.Is(err, common.ErrAccountNotFound):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, common.ErrCaptureFailed):
		return mcp.NewToolResultError("failed to store memory, no credits were deducted")
	case errors.Is(err, common.ErrEngineUnavailable):
		return mcp.NewToolResultError(common.ErrEngineUnavailable.Error())
	case errors.Is(err, common.ErrServiceUnavailable):
		t.logger.Error(ctx, "tool failed", "tool", tool, "error", err)
		return mcp.NewToolResultError("service temporarily unavailable, please retry")
	default:
		t.logger.Error(ctx, "tool failed", "tool", tool, "error", err)
		return mcp.NewToolResultError("internal error")
	}
}
