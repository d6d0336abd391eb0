package evidence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	userAgent    = "Mozilla/5.0 (compatible; claimgate/1.0)"
	maxPageBytes = 4 << 20
)

// Page is a fetched and extracted web page.
type Page struct {
	URL         string
	Title       string
	Text        string
	Markdown    string
	HTML        []byte
	ContentType string
}

// Fetcher downloads pages and extracts their readable text.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	title, text, err := ExtractText(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}

	p := &Page{
		URL:         url,
		Title:       title,
		Text:        text,
		HTML:        raw,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if md, err := htmltomarkdown.ConvertString(string(raw)); err == nil {
		p.Markdown = strings.TrimSpace(md)
	}
	return p, nil
}

// skipped holds elements whose text is page chrome rather than content.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Template: true,
}

// ExtractText returns the page title and its visible body text with
// whitespace collapsed.
func ExtractText(r io.Reader) (string, string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var (
		title string
		words []string
	)

	var walk func(n *html.Node, inBody bool)
	walk = func(n *html.Node, inBody bool) {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.Title && title == "" {
				title = strings.Join(strings.Fields(nodeText(n)), " ")
				return
			}
			if skipped[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Body {
				inBody = true
			}
		}
		if n.Type == html.TextNode && inBody {
			words = append(words, strings.Fields(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inBody)
		}
	}
	walk(doc, false)

	return title, strings.Join(words, " "), nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
