// Package store defines the persistence model for crawled documents,
// their embedded chunks, and ingestion job metadata.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Document is one crawled page belonging to a tenant partition.
type Document struct {
	ID        int64     `json:"id"`
	Tenant    string    `json:"tenant"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Lang      string    `json:"lang"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is an embedded slice of a document's text.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	Tenant     string    `json:"tenant"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding"`
}

// JobStatus represents the lifecycle state of an ingestion job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// IsTerminal reports whether the status ends the job lifecycle.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// JobParameters captures per-job crawl knobs requested by the client.
type JobParameters struct {
	URLs          []string `json:"urls"`
	MaxPages      int      `json:"max_pages"`
	MaxDepth      int      `json:"max_depth"`
	AllowPatterns []string `json:"allow_patterns,omitempty"`
	IgnoreRobots  bool     `json:"ignore_robots"`
}

// JobCounters tracks progress stats per ingestion job.
type JobCounters struct {
	PagesCrawled    int `json:"pages_crawled"`
	PagesFailed     int `json:"pages_failed"`
	DocumentsStored int `json:"documents_stored"`
	ChunksStored    int `json:"chunks_stored"`
}

// IngestJob is the metadata persisted for each submitted ingestion request.
type IngestJob struct {
	ID         string        `json:"id"`
	Tenant     string        `json:"tenant"`
	Status     JobStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters JobParameters `json:"parameters"`
	Counters   JobCounters   `json:"counters"`
}

// DocumentStore persists documents and their chunks.
type DocumentStore interface {
	// SaveDocument stores a document with its chunks in one unit and
	// returns the document ID. Chunk ordinals must start at 0.
	SaveDocument(ctx context.Context, doc Document, chunks []Chunk) (int64, error)
	// ChunksByTenant returns every chunk for the tenant.
	ChunksByTenant(ctx context.Context, tenant string) ([]Chunk, error)
	// DocumentsByIDs returns the documents keyed by ID.
	DocumentsByIDs(ctx context.Context, ids []int64) (map[int64]Document, error)
}

// JobStore persists ingestion job metadata.
type JobStore interface {
	CreateJob(ctx context.Context, job IngestJob) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	GetJob(ctx context.Context, jobID string) (IngestJob, error)
}

// Provider bundles the stores plus lifecycle management.
type Provider interface {
	DocumentStore
	JobStore
	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
	Close()
}
