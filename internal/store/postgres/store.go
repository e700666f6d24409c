// Package postgres provides a pgx-backed store implementation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quirkfly/ivesna/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool abstracts pgxpool.Pool so tests can substitute pgxmock.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store persists documents, chunks, and ingestion jobs in Postgres.
type Store struct {
	pool pool
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         BIGSERIAL PRIMARY KEY,
	tenant     TEXT NOT NULL,
	url        TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	lang       TEXT NOT NULL DEFAULT 'sk',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS documents_tenant_idx ON documents (tenant);
CREATE INDEX IF NOT EXISTS documents_url_idx ON documents (url);

CREATE TABLE IF NOT EXISTS chunks (
	id          BIGSERIAL PRIMARY KEY,
	document_id BIGINT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
	tenant      TEXT NOT NULL,
	ordinal     INTEGER NOT NULL,
	text        TEXT NOT NULL,
	embedding   JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_tenant_idx ON chunks (tenant);

CREATE TABLE IF NOT EXISTS ingest_jobs (
	id         TEXT PRIMARY KEY,
	tenant     TEXT NOT NULL,
	status     TEXT NOT NULL,
	submitted  TIMESTAMPTZ NOT NULL,
	started    TIMESTAMPTZ,
	finished   TIMESTAMPTZ,
	error_text TEXT NOT NULL DEFAULT '',
	parameters JSONB NOT NULL,
	counters   JSONB NOT NULL
);
`

// New connects a pooled Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveDocument stores the document and its chunks in one transaction.
func (s *Store) SaveDocument(ctx context.Context, doc store.Document, chunks []store.Chunk) (int64, error) {
	if doc.Tenant == "" {
		return 0, fmt.Errorf("document tenant is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var docID int64
	err = tx.QueryRow(ctx, `
INSERT INTO documents (tenant, url, title, lang)
VALUES ($1, $2, $3, $4)
RETURNING id`,
		doc.Tenant, doc.URL, doc.Title, doc.Lang,
	).Scan(&docID)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}

	for i, ch := range chunks {
		embJSON, err := json.Marshal(ch.Embedding)
		if err != nil {
			return 0, fmt.Errorf("marshal embedding: %w", err)
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO chunks (document_id, tenant, ordinal, text, embedding)
VALUES ($1, $2, $3, $4, $5)`,
			docID, doc.Tenant, i, ch.Text, embJSON,
		); err != nil {
			return 0, fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return docID, nil
}

// ChunksByTenant loads every chunk for the tenant.
func (s *Store) ChunksByTenant(ctx context.Context, tenant string) ([]store.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, document_id, tenant, ordinal, text, embedding
FROM chunks
WHERE tenant = $1
ORDER BY document_id, ordinal`,
		tenant,
	)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []store.Chunk
	for rows.Next() {
		var (
			ch      store.Chunk
			embJSON []byte
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Tenant, &ch.Ordinal, &ch.Text, &embJSON); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(embJSON, &ch.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding for chunk %d: %w", ch.ID, err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

// DocumentsByIDs returns documents keyed by ID.
func (s *Store) DocumentsByIDs(ctx context.Context, ids []int64) (map[int64]store.Document, error) {
	out := make(map[int64]store.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, tenant, url, title, lang, created_at
FROM documents
WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc store.Document
		if err := rows.Scan(&doc.ID, &doc.Tenant, &doc.URL, &doc.Title, &doc.Lang, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// CreateJob inserts a new ingestion job row.
func (s *Store) CreateJob(ctx context.Context, job store.IngestJob) error {
	paramsJSON, err := json.Marshal(job.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	countersJSON, err := json.Marshal(job.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
INSERT INTO ingest_jobs (id, tenant, status, submitted, error_text, parameters, counters)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.Tenant, string(job.Status), job.Submitted, job.ErrorText, paramsJSON, countersJSON,
	); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus transitions a job; start/finish stamps are set in SQL.
func (s *Store) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status store.JobStatus,
	errText string,
	counters store.JobCounters,
) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE ingest_jobs SET
	status     = $2,
	error_text = $3,
	counters   = $4,
	started    = CASE WHEN $2 = 'running' AND started IS NULL THEN now() ELSE started END,
	finished   = CASE WHEN $2 IN ('succeeded', 'failed', 'canceled') AND finished IS NULL THEN now() ELSE finished END
WHERE id = $1`,
		jobID, string(status), errText, countersJSON,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (store.IngestJob, error) {
	var (
		job          store.IngestJob
		status       string
		paramsJSON   []byte
		countersJSON []byte
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, tenant, status, submitted, started, finished, error_text, parameters, counters
FROM ingest_jobs
WHERE id = $1`,
		jobID,
	).Scan(&job.ID, &job.Tenant, &status, &job.Submitted, &job.Started, &job.Finished,
		&job.ErrorText, &paramsJSON, &countersJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.IngestJob{}, store.ErrNotFound
		}
		return store.IngestJob{}, fmt.Errorf("select job: %w", err)
	}
	job.Status = store.JobStatus(status)
	if err := json.Unmarshal(paramsJSON, &job.Parameters); err != nil {
		return store.IngestJob{}, fmt.Errorf("decode parameters: %w", err)
	}
	if err := json.Unmarshal(countersJSON, &job.Counters); err != nil {
		return store.IngestJob{}, fmt.Errorf("decode counters: %w", err)
	}
	return job, nil
}

// Ping verifies the pool is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
