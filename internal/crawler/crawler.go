// Package crawler fetches allowlisted site content for ingestion. It
// wraps a Colly collector with host allowlisting, allow-pattern link
// filtering, optional headless rendering for script-heavy pages, and
// filesystem snapshots of fetched HTML.
package crawler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Config carries crawl-wide settings shared by all jobs.
type Config struct {
	AllowedDomains []string
	UserAgent      string
	Concurrency    int
	RatePerDomain  int
	RequestTimeout time.Duration
	MaxPageBytes   int64
}

// Request captures per-job crawl knobs.
type Request struct {
	Seeds         []string
	MaxPages      int
	MaxDepth      int
	AllowPatterns []string
	IgnoreRobots  bool
}

// Page is one fetched page delivered to the ingestion pipeline.
type Page struct {
	URL      string
	FinalURL string
	Body     []byte
	UsedJS   bool
}

// Stats summarizes a finished crawl.
type Stats struct {
	PagesCrawled int
	PagesFailed  int
}

// Renderer executes a page with JavaScript and returns the DOM snapshot.
type Renderer interface {
	Render(ctx context.Context, rawURL string) ([]byte, error)
	Close(ctx context.Context) error
}

// Detector decides whether a fetched body warrants headless rendering.
type Detector interface {
	NeedsJS(body []byte) bool
}

// RobotsPolicy gates the headless fetch path; plain fetches rely on the
// collector's own robots handling.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Sink persists raw HTML snapshots.
type Sink interface {
	SaveHTML(ctx context.Context, rawURL string, body []byte) (string, error)
}

// Engine crawls allowlisted pages and streams them to a callback.
type Engine struct {
	cfg       Config
	allowlist *Allowlist
	detector  Detector
	renderer  Renderer
	robots    RobotsPolicy
	sink      Sink
	logger    *zap.Logger
}

// New constructs an Engine. Detector, renderer, robots policy, and sink
// are all optional.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if len(cfg.AllowedDomains) == 0 {
		return nil, fmt.Errorf("at least one allowed domain is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.RatePerDomain <= 0 {
		cfg.RatePerDomain = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:       cfg,
		allowlist: NewAllowlist(cfg.AllowedDomains),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Option customizes an Engine.
type Option func(*Engine)

// WithHeadless enables headless promotion of script-heavy pages.
func WithHeadless(d Detector, r Renderer, robots RobotsPolicy) Option {
	return func(e *Engine) {
		e.detector = d
		e.renderer = r
		e.robots = robots
	}
}

// WithSink enables HTML snapshot persistence.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// Crawl fetches pages breadth-first from the seeds, invoking onPage for
// each stored page. Seeds outside the allowlist are dropped; when allow
// patterns are given, the seed set is extended from each seed host's
// sitemap and followed links must match a pattern.
func (e *Engine) Crawl(ctx context.Context, req Request, onPage func(Page)) (Stats, error) {
	matcher, err := CompileAllowPatterns(req.AllowPatterns, e.cfg.AllowedDomains)
	if err != nil {
		return Stats{}, fmt.Errorf("compile allow patterns: %w", err)
	}

	seeds := e.seedSet(ctx, req, matcher)
	if len(seeds) == 0 {
		return Stats{}, fmt.Errorf("no seeds within allowed domains")
	}

	var (
		mu    sync.Mutex
		stats Stats
	)
	pageBudgetLeft := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return req.MaxPages <= 0 || stats.PagesCrawled < req.MaxPages
	}

	collector := e.newCollector(req)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil || !pageBudgetLeft() {
			r.Abort()
			return
		}
		rawURL := r.URL.String()
		if !e.allowlist.Allowed(rawURL) || HasDeniedExtension(rawURL) {
			r.Abort()
			return
		}
		// Seeds enter at depth 1; only followed links are subject to
		// the allow patterns.
		if r.Depth > 1 && !matcher.Match(rawURL) {
			r.Abort()
		}
	})

	collector.OnHTML("a[href]", func(el *colly.HTMLElement) {
		link := el.Request.AbsoluteURL(el.Attr("href"))
		if link == "" {
			return
		}
		norm, err := NormalizeURL(link)
		if err != nil {
			return
		}
		// Revisit and depth violations are expected; the collector
		// reports them as errors.
		_ = el.Request.Visit(norm)
	})

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode != http.StatusOK || len(r.Body) == 0 {
			return
		}
		if !pageBudgetLeft() {
			return
		}

		page := Page{
			URL:      r.Request.URL.String(),
			FinalURL: r.Request.URL.String(),
			Body:     append([]byte{}, r.Body...),
		}
		e.maybeRender(ctx, &page)
		e.snapshot(ctx, page)

		mu.Lock()
		stats.PagesCrawled++
		mu.Unlock()
		onPage(page)
	})

	collector.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		stats.PagesFailed++
		mu.Unlock()
		e.logger.Warn("page fetch failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status_code", r.StatusCode),
			zap.Error(err),
		)
	})

	for _, seed := range seeds {
		if err := collector.Visit(seed); err != nil {
			e.logger.Warn("seed visit rejected", zap.String("url", seed), zap.Error(err))
		}
	}
	collector.Wait()

	return stats, ctx.Err()
}

func (e *Engine) newCollector(req Request) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.Async(true),
		colly.UserAgent(e.cfg.UserAgent),
	}
	if req.MaxDepth > 0 {
		// Collector depth counts the seed as 1; the request cap is in
		// link hops.
		opts = append(opts, colly.MaxDepth(req.MaxDepth+1))
	}
	if e.cfg.MaxPageBytes > 0 {
		opts = append(opts, colly.MaxBodySize(int(e.cfg.MaxPageBytes)))
	}
	collector := colly.NewCollector(opts...)
	collector.AllowURLRevisit = false
	collector.IgnoreRobotsTxt = req.IgnoreRobots
	if e.cfg.RequestTimeout > 0 {
		collector.SetRequestTimeout(e.cfg.RequestTimeout)
	}

	delay := time.Second / time.Duration(e.cfg.RatePerDomain)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: e.cfg.Concurrency,
		Delay:       delay,
	}); err != nil {
		e.logger.Warn("failed to set collector limits", zap.Error(err))
	}
	return collector
}

// seedSet filters seeds through the allowlist and extends them from
// sitemaps when allow patterns are present.
func (e *Engine) seedSet(ctx context.Context, req Request, matcher *PatternMatcher) []string {
	seen := make(map[string]struct{}, len(req.Seeds))
	var seeds []string
	add := func(rawURL string) {
		norm, err := NormalizeURL(rawURL)
		if err != nil || !e.allowlist.Allowed(norm) {
			return
		}
		if _, dup := seen[norm]; dup {
			return
		}
		seen[norm] = struct{}{}
		seeds = append(seeds, norm)
	}

	for _, u := range req.Seeds {
		add(u)
	}
	if len(req.AllowPatterns) > 0 {
		client := &http.Client{Timeout: 15 * time.Second}
		for _, u := range req.Seeds {
			for _, s := range SitemapSeeds(ctx, client, u, e.allowlist, matcher, e.logger) {
				add(s)
			}
		}
	}
	return seeds
}

// maybeRender promotes the page through the headless renderer when the
// detector flags it and robots permit.
func (e *Engine) maybeRender(ctx context.Context, page *Page) {
	if e.detector == nil || e.renderer == nil {
		return
	}
	if !e.detector.NeedsJS(page.Body) {
		return
	}
	if e.robots != nil && !e.robots.Allowed(ctx, page.URL) {
		return
	}
	body, err := e.renderer.Render(ctx, page.URL)
	if err != nil {
		e.logger.Warn("headless render failed; keeping plain body",
			zap.String("url", page.URL), zap.Error(err))
		return
	}
	page.Body = body
	page.UsedJS = true
}

func (e *Engine) snapshot(ctx context.Context, page Page) {
	if e.sink == nil {
		return
	}
	if _, err := e.sink.SaveHTML(ctx, page.URL, page.Body); err != nil {
		e.logger.Debug("snapshot save failed", zap.String("url", page.URL), zap.Error(err))
	}
}
