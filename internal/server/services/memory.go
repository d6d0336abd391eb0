package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/claimgate/internal/chunker"
	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/logging"
	"github.com/dmitrijs2005/claimgate/internal/server/archive"
	"github.com/dmitrijs2005/claimgate/internal/server/evidence"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/memories"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/repomanager"
	"golang.org/x/sync/errgroup"
)

const (
	SearchThreshold = 0.5
	SearchLimit     = 20

	DefaultCaptureMaxChars = 4000

	// verifyExcerptLen is how much captured text backs the title check.
	verifyExcerptLen = 500

	embedConcurrency = 4

	rejectedClaim   = "Trust OS determined this is FALSE."
	rejectedCapture = "Trust OS found the title/content to be misleading or false."
)

var verifiedTags = []string{"verified", "trust-os"}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*evidence.Page, error)
}

// Archiver keeps snapshots of captured pages.
type Archiver interface {
	Store(ctx context.Context, snap *archive.Snapshot) (string, error)
	URL(ctx context.Context, key string) (string, error)
}

// Chunking configures how stored text is split.
type Chunking struct {
	Size            int
	Overlap         int
	CaptureMaxChars int
}

// Stored is the outcome of a committed memory write.
type Stored struct {
	IDs             []string
	ChunksCreated   int
	CreditsDeducted int64
	NewBalance      int64
}

// Rejection is returned instead of a write when verification found the
// content FALSE. Only the verification was charged.
type Rejection struct {
	Reason     string
	Confidence float64
}

type CaptureOutcome struct {
	Rejected     *Rejection
	Stored       *Stored
	Title        string
	Verification *models.VerificationResult
	SnapshotURL  string
}

type VerifiedOutcome struct {
	Rejected     *Rejection
	Stored       *Stored
	Verification *models.VerificationResult
}

type MemoryOption func(*MemoryService)

// WithArchive enables snapshot archiving of captured pages.
func WithArchive(a Archiver) MemoryOption {
	return func(s *MemoryService) { s.archive = a }
}

type MemoryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ledger      Ledger
	embedder    Embedder
	engine      Verifier
	fetcher     PageFetcher
	archive     Archiver
	costs       Costs
	chunking    Chunking
	logger      logging.Logger
}

func NewMemoryService(db *sql.DB, m repomanager.RepositoryManager, ledger Ledger, embedder Embedder, engine Verifier,
	fetcher PageFetcher, costs Costs, chunking Chunking, logger logging.Logger, opts ...MemoryOption) *MemoryService {

	if chunking.CaptureMaxChars <= 0 {
		chunking.CaptureMaxChars = DefaultCaptureMaxChars
	}
	s := &MemoryService{
		db:          db,
		repomanager: m,
		ledger:      ledger,
		embedder:    embedder,
		engine:      engine,
		fetcher:     fetcher,
		costs:       costs,
		chunking:    chunking,
		logger:      logger.With("module", "memory"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add stores content as one or more chunks and charges per chunk, all in
// one atomic capture.
func (s *MemoryService) Add(ctx context.Context, accountID, content string, tags []string) (*Stored, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is required", common.ErrValidation)
	}

	chunks, err := s.prepare(ctx, accountID, content, tags)
	if err != nil {
		return nil, err
	}

	cost := int64(len(chunks)) * s.costs.StoragePerChunk
	return s.store(ctx, accountID, cost, chunks, fmt.Sprintf("memory_add_%d_chunks", len(chunks)))
}

// Capture fetches a page and stores its text. With verify set the page
// title is first checked against the start of its text; a FALSE verdict
// charges the verification only and stores nothing.
func (s *MemoryService) Capture(ctx context.Context, accountID, rawURL string, verify bool, tags []string) (*CaptureOutcome, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	page, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch URL: %v", common.ErrValidation, err)
	}

	title := strings.TrimSpace(page.Title)
	if title == "" {
		title = rawURL
	}
	text := common.TruncateRunes(page.Text, s.chunking.CaptureMaxChars, "")
	content := fmt.Sprintf("Source: %s\nTitle: %s\n\n%s", rawURL, title, text)

	out := &CaptureOutcome{Title: title}
	var verifyCost int64

	if verify {
		res := s.engine.Verify(ctx, title, common.TruncateRunes(text, verifyExcerptLen, ""))
		out.Verification = res

		if res.Result == common.ResultFalse {
			if _, err := s.ledger.Deduct(ctx, accountID, s.costs.Verify, ActionCaptureReject); err != nil {
				return nil, err
			}
			out.Rejected = &Rejection{Reason: rejectedCapture, Confidence: res.Confidence}
			return out, nil
		}
		if res.Result != common.ResultError {
			verifyCost = s.costs.Verify
		}
	}

	chunks, err := s.prepare(ctx, accountID, content, tags)
	if err != nil {
		return nil, err
	}

	cost := int64(len(chunks))*s.costs.StoragePerChunk + verifyCost
	stored, err := s.store(ctx, accountID, cost, chunks, fmt.Sprintf("memory_capture_%d_chunks", len(chunks)))
	if err != nil {
		return nil, err
	}
	out.Stored = stored
	out.SnapshotURL = s.snapshot(ctx, accountID, page)

	return out, nil
}

// Search runs a hybrid search over the caller's memories and charges for it
// once results are in hand.
func (s *MemoryService) Search(ctx context.Context, accountID, query string) ([]*models.MemoryMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", common.ErrValidation)
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := s.repomanager.Memories(s.db).Search(ctx, memories.SearchParams{
		AccountID: accountID,
		Embedding: vec,
		Query:     query,
		Threshold: SearchThreshold,
		Limit:     SearchLimit,
	})
	if err != nil {
		s.logger.Error(ctx, "memory search failed", "account", common.ShortID(accountID), "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrServiceUnavailable, err)
	}

	if s.costs.Search > 0 {
		if _, err := s.ledger.Deduct(ctx, accountID, s.costs.Search, ActionMemorySearch); err != nil {
			return nil, err
		}
	}
	return matches, nil
}

// Verified verifies claim and, unless it is FALSE, stores it together with
// the evidence it was judged against.
func (s *MemoryService) Verified(ctx context.Context, accountID, claim, evidence string, tags []string) (*VerifiedOutcome, error) {
	if strings.TrimSpace(claim) == "" {
		return nil, fmt.Errorf("%w: claim is required", common.ErrValidation)
	}

	res := s.engine.Verify(ctx, claim, evidence)
	out := &VerifiedOutcome{Verification: res}

	if res.Result == common.ResultFalse {
		if _, err := s.ledger.Deduct(ctx, accountID, s.costs.Verify, ActionVerifyReject); err != nil {
			return nil, err
		}
		out.Rejected = &Rejection{Reason: rejectedClaim, Confidence: res.Confidence}
		return out, nil
	}

	content := fmt.Sprintf("%s (Evidence: %s)", claim, res.Evidence)
	vec, err := s.embed(ctx, content)
	if err != nil {
		return nil, err
	}

	all := make([]string, 0, len(tags)+len(verifiedTags))
	all = append(append(all, tags...), verifiedTags...)

	chunk := &models.MemoryChunk{AccountID: accountID, Content: content, Embedding: vec, Tags: all}
	stored, err := s.store(ctx, accountID, s.costs.VerifiedMemory, []*models.MemoryChunk{chunk}, ActionMemoryVerified)
	if err != nil {
		return nil, err
	}
	out.Stored = stored
	return out, nil
}

// prepare splits content and embeds every chunk. Embeddings run in parallel;
// the first failure cancels the rest.
func (s *MemoryService) prepare(ctx context.Context, accountID, content string, tags []string) ([]*models.MemoryChunk, error) {
	parts, err := chunker.SplitWithOverlap(content, s.chunking.Size, s.chunking.Overlap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	chunks := make([]*models.MemoryChunk, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, part := range parts {
		g.Go(func() error {
			vec, err := s.embed(gctx, part)
			if err != nil {
				return err
			}
			chunks[i] = &models.MemoryChunk{
				AccountID: accountID,
				Content:   part,
				Embedding: vec,
				Tags:      chunker.Tags(tags, i, len(parts)),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (s *MemoryService) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, common.ErrEngineUnavailable
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Error(ctx, "embedding failed", "error", err)
		return nil, fmt.Errorf("%w: embed: %v", common.ErrEngineUnavailable, err)
	}
	return vec, nil
}

func (s *MemoryService) store(ctx context.Context, accountID string, cost int64, chunks []*models.MemoryChunk, action string) (*Stored, error) {
	res, err := s.ledger.CaptureAtomic(ctx, accountID, cost, chunks, action)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "memory stored", "account", common.ShortID(accountID), "chunks", len(chunks), "cost", cost)
	return &Stored{
		IDs:             res.InsertedIDs,
		ChunksCreated:   len(res.InsertedIDs),
		CreditsDeducted: cost,
		NewBalance:      res.NewBalance,
	}, nil
}

// snapshot archives the fetched page and returns a download link, or "" when
// archiving is off or fails. It never affects the capture outcome.
func (s *MemoryService) snapshot(ctx context.Context, accountID string, page *evidence.Page) string {
	if s.archive == nil || len(page.HTML) == 0 {
		return ""
	}

	key, err := s.archive.Store(ctx, &archive.Snapshot{
		AccountID:   accountID,
		URL:         page.URL,
		HTML:        page.HTML,
		ContentType: page.ContentType,
		Markdown:    page.Markdown,
	})
	if err != nil {
		s.logger.Warn(ctx, "snapshot archive failed", "url", page.URL, "error", err)
		return ""
	}

	link, err := s.archive.URL(ctx, key)
	if err != nil {
		s.logger.Warn(ctx, "snapshot link failed", "key", key, "error", err)
		return ""
	}
	return link
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", common.ErrValidation)
	}
	return nil
}
