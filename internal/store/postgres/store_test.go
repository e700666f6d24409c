package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/quirkfly/ivesna/internal/store"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

func TestSaveDocumentCommitsDocAndChunks(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO documents").
		WithArgs("slsp", "https://www.slsp.sk/sk/ludia/ucty", "Účty", "sk").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs(int64(7), "slsp", 0, "prvý blok", []byte(`[0.5,0.25]`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs(int64(7), "slsp", 1, "druhý blok", []byte(`[1,0]`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	docID, err := s.SaveDocument(context.Background(), store.Document{
		Tenant: "slsp",
		URL:    "https://www.slsp.sk/sk/ludia/ucty",
		Title:  "Účty",
		Lang:   "sk",
	}, []store.Chunk{
		{Text: "prvý blok", Embedding: []float32{0.5, 0.25}},
		{Text: "druhý blok", Embedding: []float32{1, 0}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), docID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDocumentRollsBackOnChunkFailure(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO documents").
		WithArgs("slsp", "https://www.slsp.sk", "", "sk").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs(int64(3), "slsp", 0, "zlyhá", []byte(`null`)).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	_, err := s.SaveDocument(context.Background(), store.Document{
		Tenant: "slsp",
		URL:    "https://www.slsp.sk",
		Lang:   "sk",
	}, []store.Chunk{{Text: "zlyhá"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChunksByTenantDecodesEmbeddings(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"id", "document_id", "tenant", "ordinal", "text", "embedding"}).
		AddRow(int64(1), int64(7), "slsp", 0, "blok", []byte(`[0.5,-0.5]`))
	mock.ExpectQuery("SELECT id, document_id, tenant, ordinal, text, embedding").
		WithArgs("slsp").
		WillReturnRows(rows)

	chunks, err := s.ChunksByTenant(context.Background(), "slsp")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, []float32{0.5, -0.5}, chunks[0].Embedding)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentsByIDsEmptyInputSkipsQuery(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	docs, err := s.DocumentsByIDs(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, docs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobInsertsRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	submitted := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO ingest_jobs").
		WithArgs(
			"job-1",
			"slsp",
			"queued",
			submitted,
			"",
			[]byte(`{"urls":["https://www.slsp.sk"],"max_pages":10,"max_depth":2,"ignore_robots":false}`),
			[]byte(`{"pages_crawled":0,"pages_failed":0,"documents_stored":0,"chunks_stored":0}`),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.CreateJob(context.Background(), store.IngestJob{
		ID:        "job-1",
		Tenant:    "slsp",
		Status:    store.JobStatusQueued,
		Submitted: submitted,
		Parameters: store.JobParameters{
			URLs:     []string{"https://www.slsp.sk"},
			MaxPages: 10,
			MaxDepth: 2,
		},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobStatusNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE ingest_jobs").
		WithArgs(
			"missing",
			"failed",
			"boom",
			[]byte(`{"pages_crawled":0,"pages_failed":0,"documents_stored":0,"chunks_stored":0}`),
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateJobStatus(context.Background(), "missing", store.JobStatusFailed, "boom", store.JobCounters{})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobRoundTrip(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	submitted := time.Unix(1700000000, 0).UTC()

	rows := pgxmock.NewRows([]string{
		"id", "tenant", "status", "submitted", "started", "finished", "error_text", "parameters", "counters",
	}).AddRow(
		"job-1", "slsp", "succeeded", submitted, (*time.Time)(nil), (*time.Time)(nil), "",
		[]byte(`{"urls":["https://www.slsp.sk"],"max_pages":10,"max_depth":2,"ignore_robots":false}`),
		[]byte(`{"pages_crawled":4,"pages_failed":1,"documents_stored":3,"chunks_stored":9}`),
	)
	mock.ExpectQuery("SELECT id, tenant, status, submitted").
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, store.JobStatusSucceeded, job.Status)
	require.Equal(t, 4, job.Counters.PagesCrawled)
	require.Equal(t, []string{"https://www.slsp.sk"}, job.Parameters.URLs)
	require.NoError(t, mock.ExpectationsWereMet())
}
