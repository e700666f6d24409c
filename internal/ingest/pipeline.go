package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quirkfly/ivesna/internal/chunker"
	"github.com/quirkfly/ivesna/internal/crawler"
	"github.com/quirkfly/ivesna/internal/extract"
	"github.com/quirkfly/ivesna/internal/llm"
	"github.com/quirkfly/ivesna/internal/progress"
	"github.com/quirkfly/ivesna/internal/store"
)

// Crawler streams fetched pages into the pipeline.
type Crawler interface {
	Crawl(ctx context.Context, req crawler.Request, onPage func(crawler.Page)) (crawler.Stats, error)
}

// Pipeline turns crawled pages into embedded, stored chunks.
type Pipeline struct {
	crawl    Crawler
	chunks   *chunker.Chunker
	embedder llm.Embedder
	docs     store.DocumentStore
	emitter  progress.Emitter
	lang     string
	logger   *zap.Logger
}

// NewPipeline constructs a Pipeline. The emitter may be nil.
func NewPipeline(
	crawl Crawler,
	chunks *chunker.Chunker,
	embedder llm.Embedder,
	docs store.DocumentStore,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		crawl:    crawl,
		chunks:   chunks,
		embedder: embedder,
		docs:     docs,
		emitter:  emitter,
		lang:     "sk",
		logger:   logger,
	}
}

// Run crawls from the job parameters and ingests every stored page:
// extract text, split into chunks, embed, and persist document plus
// chunks in one unit. Page-level failures are counted, not fatal.
func (p *Pipeline) Run(ctx context.Context, jobID, tenant string, params store.JobParameters) (store.JobCounters, error) {
	// The collector delivers pages from multiple goroutines.
	var mu sync.Mutex
	var counters store.JobCounters

	stats, err := p.crawl.Crawl(ctx, crawler.Request{
		Seeds:         params.URLs,
		MaxPages:      params.MaxPages,
		MaxDepth:      params.MaxDepth,
		AllowPatterns: params.AllowPatterns,
		IgnoreRobots:  params.IgnoreRobots,
	}, func(page crawler.Page) {
		p.ingestPage(ctx, jobID, tenant, page, &mu, &counters)
	})

	mu.Lock()
	counters.PagesCrawled = stats.PagesCrawled
	counters.PagesFailed += stats.PagesFailed
	mu.Unlock()

	if err != nil {
		return counters, fmt.Errorf("crawl: %w", err)
	}
	return counters, nil
}

func (p *Pipeline) ingestPage(ctx context.Context, jobID, tenant string, page crawler.Page, mu *sync.Mutex, counters *store.JobCounters) {
	start := time.Now()

	content, err := extract.FromHTML(page.URL, page.Body)
	if err != nil || content.Empty() {
		p.pageFailed(jobID, tenant, page.URL, err)
		mu.Lock()
		counters.PagesFailed++
		mu.Unlock()
		return
	}

	parts := p.chunks.Split(content.Combined())
	if len(parts) == 0 {
		p.pageFailed(jobID, tenant, page.URL, fmt.Errorf("no chunks produced"))
		mu.Lock()
		counters.PagesFailed++
		mu.Unlock()
		return
	}

	vecs, err := p.embedder.EmbedTexts(ctx, parts)
	if err != nil {
		p.pageFailed(jobID, tenant, page.URL, err)
		mu.Lock()
		counters.PagesFailed++
		mu.Unlock()
		return
	}

	chunks := make([]store.Chunk, len(parts))
	for i, text := range parts {
		chunks[i] = store.Chunk{
			Tenant:    tenant,
			Ordinal:   i,
			Text:      text,
			Embedding: vecs[i],
		}
	}

	doc := store.Document{
		Tenant: tenant,
		URL:    page.URL,
		Title:  content.Title,
		Lang:   p.lang,
	}
	if _, err := p.docs.SaveDocument(ctx, doc, chunks); err != nil {
		p.pageFailed(jobID, tenant, page.URL, err)
		mu.Lock()
		counters.PagesFailed++
		mu.Unlock()
		return
	}

	mu.Lock()
	counters.DocumentsStored++
	counters.ChunksStored += len(chunks)
	mu.Unlock()

	if p.emitter != nil {
		p.emitter.Emit(progress.Event{
			JobID:  jobID,
			Tenant: tenant,
			TS:     time.Now().UTC(),
			Stage:  progress.StagePageStored,
			URL:    page.URL,
			Chunks: int64(len(chunks)),
			Dur:    time.Since(start),
		})
	}
	p.logger.Debug("page ingested",
		zap.String("job_id", jobID),
		zap.String("url", page.URL),
		zap.Int("chunks", len(chunks)),
		zap.Bool("used_js", page.UsedJS),
	)
}

func (p *Pipeline) pageFailed(jobID, tenant, url string, err error) {
	note := ""
	if err != nil {
		note = err.Error()
	}
	if p.emitter != nil {
		p.emitter.Emit(progress.Event{
			JobID:  jobID,
			Tenant: tenant,
			TS:     time.Now().UTC(),
			Stage:  progress.StagePageFailed,
			URL:    url,
			Note:   note,
		})
	}
	p.logger.Warn("page ingestion failed",
		zap.String("job_id", jobID),
		zap.String("url", url),
		zap.Error(err),
	)
}
