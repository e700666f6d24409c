package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEngine(t *testing.T, serverURL string, opts ...Option) *Engine {
	t.Helper()
	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	e, err := New(Config{
		AllowedDomains: []string{u.Hostname()},
		UserAgent:      "test-agent",
		Concurrency:    2,
		RatePerDomain:  100,
		RequestTimeout: 5 * time.Second,
	}, zap.NewNop(), opts...)
	require.NoError(t, err)
	return e
}

func collectPages() (func(Page), func() []Page) {
	var mu sync.Mutex
	var pages []Page
	return func(p Page) {
			mu.Lock()
			defer mu.Unlock()
			pages = append(pages, p)
		}, func() []Page {
			mu.Lock()
			defer mu.Unlock()
			return pages
		}
}

func TestCrawlFollowsLinks(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="/ucty">Účty</a><p>Domov</p></body></html>`))
	})
	mux.HandleFunc("/ucty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>Osobný účet</p></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e := testEngine(t, server.URL)
	onPage, pages := collectPages()

	stats, err := e.Crawl(context.Background(), Request{
		Seeds:        []string{server.URL + "/"},
		MaxPages:     10,
		MaxDepth:     2,
		IgnoreRobots: true,
	}, onPage)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.PagesCrawled)
	assert.Zero(t, stats.PagesFailed)
	assert.Len(t, pages(), 2)
}

func TestCrawlRespectsMaxPages(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>
			<a href="/a">a</a><a href="/b">b</a><a href="/c">c</a>
		</body></html>`))
	})
	for _, p := range []string{"/a", "/b", "/c"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><p>stránka</p></body></html>`))
		})
	}
	server := httptest.NewServer(mux)
	defer server.Close()

	e := testEngine(t, server.URL)
	onPage, pages := collectPages()

	stats, err := e.Crawl(context.Background(), Request{
		Seeds:        []string{server.URL + "/"},
		MaxPages:     2,
		MaxDepth:     2,
		IgnoreRobots: true,
	}, onPage)
	require.NoError(t, err)

	assert.LessOrEqual(t, stats.PagesCrawled, 2)
	assert.LessOrEqual(t, len(pages()), 2)
}

func TestCrawlAllowPatternsFilterLinks(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>
			<a href="/ludia/ucty">účty</a>
			<a href="/biznis/uvery">úvery</a>
		</body></html>`))
	})
	mux.HandleFunc("/ludia/ucty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>účty</p></body></html>`))
	})
	var biznisHit bool
	mux.HandleFunc("/biznis/uvery", func(w http.ResponseWriter, r *http.Request) {
		biznisHit = true
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>úvery</p></body></html>`))
	})
	// Sitemap seeding is attempted when patterns are set; absent here.
	server := httptest.NewServer(mux)
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	e, err := New(Config{
		AllowedDomains: []string{u.Hostname()},
		UserAgent:      "test-agent",
		Concurrency:    2,
		RatePerDomain:  100,
	}, zap.NewNop())
	require.NoError(t, err)

	onPage, pages := collectPages()
	_, err = e.Crawl(context.Background(), Request{
		Seeds:         []string{server.URL + "/"},
		MaxPages:      10,
		MaxDepth:      2,
		AllowPatterns: []string{"^http://" + u.Host + "/ludia/"},
		IgnoreRobots:  true,
	}, onPage)
	require.NoError(t, err)

	assert.False(t, biznisHit, "link outside allow patterns must not be fetched")
	urls := make([]string, 0, len(pages()))
	for _, p := range pages() {
		urls = append(urls, p.URL)
	}
	assert.Contains(t, urls, server.URL+"/ludia/ucty")
}

func TestCrawlSkipsDisallowedSeeds(t *testing.T) {
	t.Parallel()

	e, err := New(Config{
		AllowedDomains: []string{"slsp.sk"},
		UserAgent:      "test-agent",
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = e.Crawl(context.Background(), Request{
		Seeds: []string{"https://elsewhere.example/"},
	}, func(Page) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no seeds")
}

type fakeRenderer struct {
	body []byte
	err  error
}

func (f *fakeRenderer) Render(context.Context, string) ([]byte, error) { return f.body, f.err }
func (f *fakeRenderer) Close(context.Context) error                    { return nil }

type alwaysDetector struct{ needs bool }

func (d alwaysDetector) NeedsJS([]byte) bool { return d.needs }

func TestCrawlPromotesToHeadless(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><div id="app"></div></body></html>`))
	}))
	defer server.Close()

	rendered := []byte(`<html><body><main><p>Osobný účet</p></main></body></html>`)
	e := testEngine(t, server.URL,
		WithHeadless(alwaysDetector{needs: true}, &fakeRenderer{body: rendered}, nil),
	)

	onPage, pages := collectPages()
	_, err := e.Crawl(context.Background(), Request{
		Seeds:        []string{server.URL + "/"},
		MaxPages:     1,
		MaxDepth:     1,
		IgnoreRobots: true,
	}, onPage)
	require.NoError(t, err)

	got := pages()
	require.Len(t, got, 1)
	assert.True(t, got[0].UsedJS)
	assert.Equal(t, rendered, got[0].Body)
}

func TestCrawlKeepsPlainBodyOnRenderFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>statický obsah</p></body></html>`))
	}))
	defer server.Close()

	e := testEngine(t, server.URL,
		WithHeadless(alwaysDetector{needs: true}, &fakeRenderer{err: ErrRendererDisabled}, nil),
	)

	onPage, pages := collectPages()
	_, err := e.Crawl(context.Background(), Request{
		Seeds:        []string{server.URL + "/"},
		MaxPages:     1,
		MaxDepth:     1,
		IgnoreRobots: true,
	}, onPage)
	require.NoError(t, err)

	got := pages()
	require.Len(t, got, 1)
	assert.False(t, got[0].UsedJS)
	assert.Contains(t, string(got[0].Body), "statický obsah")
}
