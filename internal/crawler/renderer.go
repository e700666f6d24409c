package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrRendererDisabled indicates rendering has been disabled via configuration.
var ErrRendererDisabled = errors.New("renderer disabled")

// expandScript opens collapsed content before the snapshot: <details>
// elements, accordion and tab triggers, and "show more" style buttons,
// then scrolls to trigger lazy loading.
const expandScript = `
() => {
  document.querySelectorAll('details').forEach(d => d.open = true);
  const clickables = [
    ...document.querySelectorAll('[aria-expanded="false"], [aria-haspopup="true"]'),
    ...document.querySelectorAll('nav button, nav [role="button"], nav a[role="tab"]'),
    ...document.querySelectorAll('[data-toggle], [data-target], .accordion-button, .tab, .tab-link')
  ];
  clickables.forEach(el => { try { el.click(); } catch (e) {} });
  const labels = ['viac', 'zobrazit viac', 'show more', 'more', 'detail', 'expand'];
  [...document.querySelectorAll('button, a')].forEach(el => {
    const t = (el.innerText || el.textContent || '').trim().toLowerCase();
    if (labels.some(l => t.includes(l))) { try { el.click(); } catch (e) {} }
  });
  const h = document.documentElement.scrollHeight || 4000;
  window.scrollTo(0, 0);
  setTimeout(() => window.scrollTo(0, h), 50);
}`

// expandExpression wraps the arrow function in parentheses before the
// call; a bare arrow function followed by () is a syntax error.
const expandExpression = "(" + expandScript + ")()"

// RendererConfig tunes the headless rendering subsystem.
type RendererConfig struct {
	MaxParallel int
	NavTimeout  time.Duration
	DomainQPS   float64
	UserAgent   string
}

// ChromedpRenderer renders pages in headless Chrome, bounded by a
// parallelism semaphore and a per-domain rate limit.
type ChromedpRenderer struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	sem             chan struct{}
	timeout         time.Duration
	domainQPS       float64
	domainLimiters  sync.Map
	userAgent       string
}

// NewChromedpRenderer starts a shared browser for rendering.
func NewChromedpRenderer(cfg RendererConfig, logger *zap.Logger) (*ChromedpRenderer, error) {
	if cfg.MaxParallel <= 0 {
		return nil, ErrRendererDisabled
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &ChromedpRenderer{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		sem:             make(chan struct{}, cfg.MaxParallel),
		timeout:         cfg.NavTimeout,
		domainQPS:       cfg.DomainQPS,
		userAgent:       cfg.UserAgent,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (r *ChromedpRenderer) Close(context.Context) error {
	if r == nil {
		return nil
	}
	r.browserCancel()
	r.allocatorCancel()
	return nil
}

// Render executes the page with JavaScript enabled, expands collapsed
// content, and returns the resulting DOM.
func (r *ChromedpRenderer) Render(ctx context.Context, rawURL string) ([]byte, error) {
	if r == nil {
		return nil, ErrRendererDisabled
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render slot: %w", ctx.Err())
	}

	if err := r.waitDomainBudget(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("render rate limit: %w", err)
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	taskCtx := tabCtx
	if r.timeout > 0 {
		var cancelTask context.CancelFunc
		taskCtx, cancelTask = context.WithTimeout(tabCtx, r.timeout)
		defer cancelTask()
	}

	stop := forwardCancel(ctx, cancelTab)
	defer stop()

	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(r.userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(expandExpression, nil),
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	return []byte(html), nil
}

func (r *ChromedpRenderer) waitDomainBudget(ctx context.Context, rawURL string) error {
	if r.domainQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse render url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := r.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(r.domainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait limiter: %w", err)
	}
	return nil
}

// forwardCancel propagates parent cancellation into the chromedp tab.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
