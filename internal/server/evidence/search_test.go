package evidence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<html><body>
<div class="result results_links result--ad">
  <h2 class="result__title"><a class="result__a" href="https://duckduckgo.com/y.js?ad_provider=x">Buy sky paint</a></h2>
  <a class="result__snippet">Sponsored</a>
</div>
<div class="result results_links">
  <h2 class="result__title"><a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fen.wikipedia.org%2Fwiki%2FDiffuse_sky_radiation&amp;rut=abc">Diffuse sky radiation - Wikipedia</a></h2>
  <a class="result__snippet" href="#">The <b>sky</b> is blue because of Rayleigh scattering.</a>
</div>
<div class="result results_links">
  <h2 class="result__title"><a class="result__a" href="https://example.org/sky">Why is the sky blue?</a></h2>
  <a class="result__snippet">Short wavelengths scatter more.</a>
</div>
<div class="result results_links">
  <h2 class="result__title"><a class="result__a" href="https://example.net/no-snippet">Third</a></h2>
</div>
<div class="result results_links">
  <h2 class="result__title"><a class="result__a" href="https://example.com/fourth">Fourth</a></h2>
</div>
</body></html>`

func TestParseResults(t *testing.T) {
	got, err := parseResults(strings.NewReader(resultsPage), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "https://en.wikipedia.org/wiki/Diffuse_sky_radiation", got[0].URL)
	assert.Equal(t, "Diffuse sky radiation - Wikipedia", got[0].Title)
	assert.Equal(t, "The sky is blue because of Rayleigh scattering.", got[0].Snippet)
	assert.Equal(t, "https://example.org/sky", got[1].URL)
	assert.Equal(t, "https://example.net/no-snippet", got[2].URL)
	assert.Empty(t, got[2].Snippet)
}

func TestParseResults_Empty(t *testing.T) {
	got, err := parseResults(strings.NewReader(`<html><body><div class="no-results">No results.</div></body></html>`), 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveLink(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fa.example%2Fx", "https://a.example/x"},
		{"https://b.example/y", "https://b.example/y"},
		{"https://duckduckgo.com/y.js?ad=1", ""},
		{"javascript:alert(1)", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveLink(tt.in), tt.in)
	}
}

func TestDuckDuckGo_Search(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	d := NewDuckDuckGo(srv.URL, time.Second, 0)
	got, err := d.Search(context.Background(), "is the sky blue", 2)
	require.NoError(t, err)
	assert.Equal(t, "is the sky blue", gotQuery)
	assert.Len(t, got, 2)
}

func TestDuckDuckGo_SearchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewDuckDuckGo(srv.URL, time.Second, 0).Search(context.Background(), "q", 3)
	require.Error(t, err)
}

func TestDuckDuckGo_ThrottleHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	d := NewDuckDuckGo(srv.URL, time.Second, 0.001)
	_, err := d.Search(context.Background(), "first", 3)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = d.Search(ctx, "second", 3)
	require.Error(t, err)
}
