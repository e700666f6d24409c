// Package memory provides an in-memory store implementation for
// development and testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quirkfly/ivesna/internal/store"
)

// Store keeps documents, chunks, and jobs in process memory.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	docs   map[int64]store.Document
	chunks []store.Chunk
	jobs   map[string]store.IngestJob
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		nextID: 1,
		docs:   make(map[int64]store.Document),
		jobs:   make(map[string]store.IngestJob),
	}
}

// SaveDocument stores the document and its chunks, assigning IDs.
func (s *Store) SaveDocument(_ context.Context, doc store.Document, chunks []store.Chunk) (int64, error) {
	if doc.Tenant == "" {
		return 0, errors.New("document tenant is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc.ID = s.nextID
	s.nextID++
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	s.docs[doc.ID] = doc

	for i, ch := range chunks {
		ch.ID = s.nextID
		s.nextID++
		ch.DocumentID = doc.ID
		ch.Tenant = doc.Tenant
		ch.Ordinal = i
		s.chunks = append(s.chunks, ch)
	}
	return doc.ID, nil
}

// ChunksByTenant returns a copy of every chunk for the tenant.
func (s *Store) ChunksByTenant(_ context.Context, tenant string) ([]store.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Chunk
	for _, ch := range s.chunks {
		if ch.Tenant == tenant {
			out = append(out, ch)
		}
	}
	return out, nil
}

// DocumentsByIDs returns documents keyed by ID; missing IDs are skipped.
func (s *Store) DocumentsByIDs(_ context.Context, ids []int64) (map[int64]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]store.Document, len(ids))
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			out[id] = doc
		}
	}
	return out, nil
}

// CreateJob stores a new job; duplicate IDs are rejected.
func (s *Store) CreateJob(_ context.Context, job store.IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus transitions a job and stamps start/finish times.
func (s *Store) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status store.JobStatus,
	errText string,
	counters store.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := time.Now().UTC()
	if status == store.JobStatusRunning && job.Started == nil {
		job.Started = &now
	}
	if status.IsTerminal() && job.Finished == nil {
		job.Finished = &now
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(_ context.Context, jobID string) (store.IngestJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.IngestJob{}, store.ErrNotFound
	}
	return job, nil
}

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}
