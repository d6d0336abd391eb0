// Package evidence gathers web evidence for a claim: it searches the web,
// extracts text from the top results and concatenates labelled excerpts.
package evidence

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/logging"
	"golang.org/x/sync/errgroup"
)

const (
	// NoEvidence is returned as the text when the search found nothing.
	NoEvidence = "No evidence found on the web."

	DefaultMaxResults = 3
	DefaultMaxLen     = 1000
	excerptLen        = 500
	truncatedMarker   = "... (truncated)"
)

type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]SearchResult, error)
}

type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

type Retriever struct {
	searcher   Searcher
	fetcher    PageFetcher
	maxResults int
	logger     logging.Logger
}

func NewRetriever(s Searcher, f PageFetcher, maxResults int, logger logging.Logger) *Retriever {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Retriever{searcher: s, fetcher: f, maxResults: maxResults, logger: logger.With("module", "evidence")}
}

// GetEvidence returns labelled excerpts from the top search results and the
// URLs they came from. Every result URL is listed as a source even when
// nothing could be read from it. Search and fetch failures never surface:
// a failed search reads as no results and a failed page falls back to its
// snippet.
func (r *Retriever) GetEvidence(ctx context.Context, claim string, maxLen int) (string, []string) {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}

	results, err := r.searcher.Search(ctx, claim, r.maxResults)
	if err != nil {
		r.logger.Warn(ctx, "search failed", "error", err)
		results = nil
	}
	if len(results) > r.maxResults {
		results = results[:r.maxResults]
	}
	if len(results) == 0 {
		return NoEvidence, []string{}
	}

	parts := make([]string, len(results))
	sources := make([]string, len(results))

	var g errgroup.Group
	for i, res := range results {
		sources[i] = res.URL
		g.Go(func() error {
			parts[i] = r.excerpt(ctx, res)
			return nil
		})
	}
	_ = g.Wait()

	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}

	return common.TruncateRunes(strings.Join(kept, "\n\n"), maxLen, truncatedMarker), sources
}

func (r *Retriever) excerpt(ctx context.Context, res SearchResult) string {
	page, err := r.fetcher.Fetch(ctx, res.URL)
	if err != nil {
		r.logger.Warn(ctx, "page extraction failed", "url", res.URL, "error", err)
	}
	if err == nil && page.Text != "" {
		text := strings.ReplaceAll(common.TruncateRunes(page.Text, excerptLen, ""), "\n", " ")
		return fmt.Sprintf("[Source: %s] %s...", res.URL, text)
	}
	if res.Snippet != "" {
		return fmt.Sprintf("[Source: %s] (Snippet) %s", res.URL, res.Snippet)
	}
	return ""
}
