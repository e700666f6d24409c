package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quirkfly/ivesna/internal/app"
	"github.com/quirkfly/ivesna/internal/config"
	"github.com/quirkfly/ivesna/internal/ingest"
	"github.com/quirkfly/ivesna/internal/store"
)

type ingestFlags struct {
	urls          []string
	urlFile       string
	tenant        string
	maxPages      int
	maxDepth      int
	allowPatterns []string
	ignoreRobots  bool
}

func newIngestCmd() *cobra.Command {
	flags := &ingestFlags{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Crawl and index a site, then exit",
		Long: `Runs one ingestion job to completion in the foreground: crawl the
given URLs, extract and chunk the text, embed it, and store the result.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngestCommand(cmd, flags)
		},
	}
	cmd.Flags().StringSliceVar(&flags.urls, "url", nil, "seed URL to crawl (repeatable)")
	cmd.Flags().StringVar(&flags.urlFile, "url-file", "", "file with one seed URL per line")
	cmd.Flags().StringVar(&flags.tenant, "tenant", "", "tenant to ingest into (defaults to the configured tenant)")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "page budget (defaults to crawler.max_pages_default)")
	cmd.Flags().IntVar(&flags.maxDepth, "max-depth", 0, "link depth (defaults to crawler.max_depth_default)")
	cmd.Flags().StringSliceVar(&flags.allowPatterns, "allow", nil, "URL allow pattern (repeatable)")
	cmd.Flags().BoolVar(&flags.ignoreRobots, "ignore-robots", false, "crawl without robots.txt checks")
	return cmd
}

func resolveSeeds(flags *ingestFlags) ([]string, error) {
	urls := append([]string(nil), flags.urls...)
	if flags.urlFile != "" {
		data, err := os.ReadFile(flags.urlFile)
		if err != nil {
			return nil, fmt.Errorf("read url file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			urls = append(urls, line)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one seed URL is required (--url or --url-file)")
	}
	return urls, nil
}

func runIngestCommand(cmd *cobra.Command, flags *ingestFlags) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	seeds, err := resolveSeeds(flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Close(closeCtx)
	}()

	tenant := flags.tenant
	if tenant == "" {
		tenant = cfg.Tenant.Default
	}
	params := store.JobParameters{
		URLs:          seeds,
		MaxPages:      flags.maxPages,
		MaxDepth:      flags.maxDepth,
		AllowPatterns: flags.allowPatterns,
		IgnoreRobots:  flags.ignoreRobots || cfg.Crawler.IgnoreRobots,
	}
	if params.MaxPages <= 0 {
		params.MaxPages = cfg.Crawler.MaxPagesDefault
	}
	if params.MaxDepth <= 0 {
		params.MaxDepth = cfg.Crawler.MaxDepthDefault
	}

	jobID := uuid.NewString()
	job := store.IngestJob{
		ID:         jobID,
		Tenant:     tenant,
		Status:     store.JobStatusQueued,
		Submitted:  time.Now().UTC(),
		Parameters: params,
	}
	if err := a.Provider().CreateJob(ctx, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		a.Dispatcher().Run(workerCtx)
	}()

	if err := a.Dispatcher().Enqueue(ctx, ingest.Task{JobID: jobID, Tenant: tenant, Params: params}); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}

	logger := a.Logger()
	logger.Info("ingestion started",
		zap.String("job_id", jobID),
		zap.String("tenant", tenant),
		zap.Strings("urls", params.URLs),
	)

	final, err := waitForJob(ctx, a, jobID)
	stopWorkers()
	<-workersDone
	if err != nil {
		return err
	}

	logger.Info("ingestion finished",
		zap.String("job_id", jobID),
		zap.String("status", string(final.Status)),
		zap.Int("pages_crawled", final.Counters.PagesCrawled),
		zap.Int("pages_failed", final.Counters.PagesFailed),
		zap.Int("documents_stored", final.Counters.DocumentsStored),
		zap.Int("chunks_stored", final.Counters.ChunksStored),
	)
	if final.Status != store.JobStatusSucceeded {
		return fmt.Errorf("job %s %s: %s", jobID, final.Status, final.ErrorText)
	}
	return nil
}

func waitForJob(ctx context.Context, a *app.App, jobID string) (store.IngestJob, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return store.IngestJob{}, fmt.Errorf("interrupted: %w", ctx.Err())
		case <-ticker.C:
			job, err := a.Provider().GetJob(ctx, jobID)
			if err != nil {
				return store.IngestJob{}, fmt.Errorf("poll job: %w", err)
			}
			if job.Status.IsTerminal() {
				return job, nil
			}
		}
	}
}
