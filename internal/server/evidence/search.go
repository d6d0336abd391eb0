package evidence

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/time/rate"
)

// DefaultSearchEndpoint is DuckDuckGo's JavaScript-free results page.
const DefaultSearchEndpoint = "https://html.duckduckgo.com/html/"

type SearchResult struct {
	URL     string
	Title   string
	Snippet string
}

// DuckDuckGo scrapes web search results from the HTML endpoint. Outbound
// queries are throttled because the endpoint blocks bursts.
type DuckDuckGo struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewDuckDuckGo returns a searcher allowing rps queries per second. rps <= 0
// disables throttling.
func NewDuckDuckGo(endpoint string, timeout time.Duration, rps float64) *DuckDuckGo {
	if endpoint == "" {
		endpoint = DefaultSearchEndpoint
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &DuckDuckGo{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, 1),
	}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, max int) ([]SearchResult, error) {
	if max <= 0 {
		max = DefaultMaxResults
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := d.endpoint + "?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: status %d", resp.StatusCode)
	}

	return parseResults(io.LimitReader(resp.Body, maxPageBytes), max)
}

// parseResults reads result links (a.result__a) and their snippets
// (.result__snippet) in page order. Ads and links back into the search
// engine itself are skipped.
func parseResults(r io.Reader, max int) ([]SearchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var (
		results []SearchResult
		current *SearchResult
	)

	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if hasClass(n, "result--ad") {
				return true
			}
			switch {
			case n.DataAtom == atom.A && hasClass(n, "result__a"):
				if current != nil {
					results = append(results, *current)
					current = nil
				}
				if len(results) >= max {
					return false
				}
				if target := resolveLink(attr(n, "href")); target != "" {
					current = &SearchResult{URL: target, Title: strings.Join(strings.Fields(nodeText(n)), " ")}
				}
				return true
			case hasClass(n, "result__snippet"):
				if current != nil && current.Snippet == "" {
					current.Snippet = strings.Join(strings.Fields(nodeText(n)), " ")
				}
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(doc)

	if current != nil && len(results) < max {
		results = append(results, *current)
	}
	return results, nil
}

// resolveLink unwraps DuckDuckGo's redirect links (//duckduckgo.com/l/?uddg=...).
func resolveLink(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") {
		target := u.Query().Get("uddg")
		if target == "" {
			return ""
		}
		u, err = url.Parse(target)
		if err != nil {
			return ""
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
