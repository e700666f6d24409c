package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quirkfly/ivesna/internal/chunker"
	"github.com/quirkfly/ivesna/internal/crawler"
	"github.com/quirkfly/ivesna/internal/progress"
	"github.com/quirkfly/ivesna/internal/store"
	"github.com/quirkfly/ivesna/internal/store/memory"
)

func queuedJob(t *testing.T, st *memory.Store, jobID string) {
	t.Helper()
	require.NoError(t, st.CreateJob(context.Background(), store.IngestJob{
		ID:        jobID,
		Tenant:    "slsp",
		Status:    store.JobStatusQueued,
		Submitted: time.Now().UTC(),
	}))
}

func runWorkerOnce(t *testing.T, w *Worker, q *Queue, task Task) {
	t.Helper()
	require.NoError(t, q.Enqueue(context.Background(), task))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// Wait for the job to reach a terminal state, then stop the worker.
	require.Eventually(t, func() bool {
		job, err := w.jobs.GetJob(context.Background(), task.JobID)
		return err == nil && job.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}

func TestWorkerSucceedsJob(t *testing.T) {
	t.Parallel()

	st := memory.New()
	queuedJob(t, st, "job-1")

	fc := &fakeCrawler{
		pages: []crawler.Page{
			htmlPage("https://www.slsp.sk/sk/ludia/ucty",
				`<html><head><title>Účty</title></head><body><p>Osobný účet.</p></body></html>`),
		},
		stats: crawler.Stats{PagesCrawled: 1},
	}
	emitter := &captureEmitter{}
	pipeline := NewPipeline(fc, chunker.New(900, 120), &fakeEmbedder{}, st, emitter, zap.NewNop())

	q := NewQueue(4)
	w := NewWorker(q, st, pipeline, emitter, zap.NewNop())
	runWorkerOnce(t, w, q, Task{JobID: "job-1", Tenant: "slsp"})

	job, err := st.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusSucceeded, job.Status)
	assert.Equal(t, 1, job.Counters.DocumentsStored)
	assert.NotNil(t, job.Started)
	assert.NotNil(t, job.Finished)

	stages := emitter.stages()
	assert.Contains(t, stages, progress.StageJobStart)
	assert.Contains(t, stages, progress.StageJobDone)
}

func TestWorkerFailsJobOnCrawlError(t *testing.T) {
	t.Parallel()

	st := memory.New()
	queuedJob(t, st, "job-2")

	fc := &fakeCrawler{err: errors.New("no seeds within allowed domains")}
	emitter := &captureEmitter{}
	pipeline := NewPipeline(fc, chunker.New(900, 120), &fakeEmbedder{}, st, emitter, zap.NewNop())

	q := NewQueue(4)
	w := NewWorker(q, st, pipeline, emitter, zap.NewNop())
	runWorkerOnce(t, w, q, Task{JobID: "job-2", Tenant: "slsp"})

	job, err := st.GetJob(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorText, "no seeds")
	assert.Contains(t, emitter.stages(), progress.StageJobError)
}

func TestWorkerFailsJobWithoutDocuments(t *testing.T) {
	t.Parallel()

	st := memory.New()
	queuedJob(t, st, "job-3")

	// Crawl succeeds but nothing gets stored.
	fc := &fakeCrawler{stats: crawler.Stats{PagesCrawled: 0}}
	pipeline := NewPipeline(fc, chunker.New(900, 120), &fakeEmbedder{}, st, nil, zap.NewNop())

	q := NewQueue(4)
	w := NewWorker(q, st, pipeline, nil, zap.NewNop())
	runWorkerOnce(t, w, q, Task{JobID: "job-3", Tenant: "slsp"})

	job, err := st.GetJob(context.Background(), "job-3")
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusFailed, job.Status)
	assert.Equal(t, "no documents stored", job.ErrorText)
}

func TestWorkerStopsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	st := memory.New()
	q := NewQueue(1)
	fc := &fakeCrawler{}
	pipeline := NewPipeline(fc, chunker.New(900, 120), &fakeEmbedder{}, st, nil, zap.NewNop())
	w := NewWorker(q, st, pipeline, nil, zap.NewNop())

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}

func TestDispatcherRunsWorkersUntilCancel(t *testing.T) {
	t.Parallel()

	st := memory.New()
	queuedJob(t, st, "job-4")

	fc := &fakeCrawler{
		pages: []crawler.Page{
			htmlPage("https://www.slsp.sk/sk/a", `<html><head><title>A</title></head><body><p>obsah</p></body></html>`),
		},
		stats: crawler.Stats{PagesCrawled: 1},
	}
	pipeline := NewPipeline(fc, chunker.New(900, 120), &fakeEmbedder{}, st, nil, zap.NewNop())

	q := NewQueue(4)
	workers := []*Worker{
		NewWorker(q, st, pipeline, nil, zap.NewNop()),
		NewWorker(q, st, pipeline, nil, zap.NewNop()),
	}
	d := NewDispatcher(q, workers)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.NoError(t, d.Enqueue(context.Background(), Task{JobID: "job-4", Tenant: "slsp"}))

	require.Eventually(t, func() bool {
		job, err := st.GetJob(context.Background(), "job-4")
		return err == nil && job.Status == store.JobStatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}
