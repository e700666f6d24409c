// Package api exposes the HTTP interface for the assistant service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/quirkfly/ivesna/internal/config"
	"github.com/quirkfly/ivesna/internal/crawler"
	"github.com/quirkfly/ivesna/internal/ingest"
	"github.com/quirkfly/ivesna/internal/llm"
	"github.com/quirkfly/ivesna/internal/metrics"
	"github.com/quirkfly/ivesna/internal/prompt"
	"github.com/quirkfly/ivesna/internal/retrieval"
	"github.com/quirkfly/ivesna/internal/store"
)

// Retriever ranks stored chunks against a user question.
type Retriever interface {
	Retrieve(ctx context.Context, tenant, query string, k int) ([]retrieval.Hit, error)
}

// Enqueuer accepts ingestion tasks for background processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, task ingest.Task) error
}

// Server wires HTTP handlers to retrieval, the chat model, and the
// ingestion dispatcher.
type Server struct {
	router    chi.Router
	retriever Retriever
	chat      llm.ChatModel
	provider  store.Provider
	enqueuer  Enqueuer
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	retriever Retriever,
	chat llm.ChatModel,
	provider store.Provider,
	enqueuer Enqueuer,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		retriever: retriever,
		chat:      chat,
		provider:  provider,
		enqueuer:  enqueuer,
		cfg:       cfg,
		logger:    logger,
	}

	requestTimeout := time.Duration(cfg.Server.RequestTimeout) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
	}).Handler)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/chat", s.chatHandler)
		r.Post("/ingest", s.submitIngest)
		r.Get("/ingest/{job_id}", s.getIngestJob)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "tenant": s.cfg.Tenant.Name})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.provider.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type chatRequest struct {
	Message string `json:"message"`
	Tenant  string `json:"tenant,omitempty"`
	PageURL string `json:"page_url,omitempty"`
	Locale  string `json:"locale,omitempty"`
	TopK    int    `json:"top_k,omitempty"`
}

type chatResponse struct {
	Answer    string            `json:"answer"`
	Citations []prompt.Citation `json:"citations"`
	Usage     *llm.Usage        `json:"usage,omitempty"`
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message required")
		return
	}
	tenant := req.Tenant
	if tenant == "" {
		tenant = s.cfg.Tenant.Default
	}

	hits, err := s.retriever.Retrieve(r.Context(), tenant, req.Message, req.TopK)
	if err != nil {
		s.logger.Error("retrieval failed", zap.String("tenant", tenant), zap.Error(err))
		metrics.ObserveChat("error", 0)
		writeError(w, http.StatusInternalServerError, "retrieval failed")
		return
	}
	if len(hits) == 0 {
		metrics.ObserveChat("fallback", 0)
		writeJSON(w, http.StatusOK, chatResponse{
			Answer:    prompt.Fallback,
			Citations: []prompt.Citation{},
		})
		return
	}

	sources := make([]prompt.Source, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, prompt.Source{
			Text:  hit.Chunk.Text,
			URL:   hit.Document.URL,
			Title: hit.Document.Title,
		})
	}
	userPrompt, citations := prompt.Build(req.Message, sources)

	answer, usage, err := s.chat.Answer(r.Context(), prompt.System, userPrompt)
	if err != nil {
		s.logger.Error("chat completion failed", zap.String("tenant", tenant), zap.Error(err))
		metrics.ObserveChat("error", len(hits))
		writeError(w, http.StatusBadGateway, "model unavailable")
		return
	}

	metrics.ObserveChat("answered", len(hits))
	metrics.ObserveTokens(usage.PromptTokens, usage.CompletionTokens)
	writeJSON(w, http.StatusOK, chatResponse{
		Answer:    answer,
		Citations: citations,
		Usage:     &usage,
	})
}

type ingestRequest struct {
	URLs          []string `json:"urls"`
	Tenant        string   `json:"tenant,omitempty"`
	MaxPages      *int     `json:"max_pages"`
	MaxDepth      *int     `json:"max_depth"`
	AllowPatterns []string `json:"allow_patterns,omitempty"`
	IgnoreRobots  *bool    `json:"ignore_robots"`
}

func (s *Server) submitIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	params, tenant, err := s.toJobParameters(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := s.enqueueJob(r.Context(), tenant, params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) getIngestJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.provider.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) enqueueJob(ctx context.Context, tenant string, params store.JobParameters) (string, error) {
	jobID := uuid.NewString()
	job := store.IngestJob{
		ID:         jobID,
		Tenant:     tenant,
		Status:     store.JobStatusQueued,
		Submitted:  time.Now().UTC(),
		Parameters: params,
	}
	if err := s.provider.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	task := ingest.Task{JobID: jobID, Tenant: tenant, Params: params}
	if err := s.enqueuer.Enqueue(queueCtx, task); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

func (s *Server) toJobParameters(req ingestRequest) (store.JobParameters, string, error) {
	if len(req.URLs) == 0 {
		return store.JobParameters{}, "", errors.New("urls required")
	}
	allowlist := crawler.NewAllowlist(s.cfg.Crawler.AllowedDomains)
	urls := make([]string, 0, len(req.URLs))
	for _, raw := range req.URLs {
		if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
			return store.JobParameters{}, "", fmt.Errorf("url %q must be absolute http(s)", raw)
		}
		// Seeds outside the allowed domains are dropped silently.
		if !allowlist.Allowed(raw) {
			continue
		}
		urls = append(urls, raw)
	}
	if len(urls) == 0 {
		return store.JobParameters{}, "", errors.New("no urls within allowed domains")
	}
	tenant := req.Tenant
	if tenant == "" {
		tenant = s.cfg.Tenant.Default
	}
	params := store.JobParameters{
		URLs:          urls,
		MaxPages:      valueOrDefault(req.MaxPages, s.cfg.Crawler.MaxPagesDefault),
		MaxDepth:      valueOrDefault(req.MaxDepth, s.cfg.Crawler.MaxDepthDefault),
		AllowPatterns: req.AllowPatterns,
		IgnoreRobots:  valueOrDefault(req.IgnoreRobots, s.cfg.Crawler.IgnoreRobots),
	}
	if params.MaxPages <= 0 {
		return store.JobParameters{}, "", errors.New("max_pages must be positive")
	}
	if params.MaxDepth < 0 {
		return store.JobParameters{}, "", errors.New("max_depth must not be negative")
	}
	return params, tenant, nil
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
