package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/quirkfly/ivesna/internal/progress"
	"github.com/quirkfly/ivesna/internal/store"
)

// Worker consumes queued tasks and executes the ingestion pipeline.
type Worker struct {
	queue    *Queue
	jobs     store.JobStore
	pipeline *Pipeline
	emitter  progress.Emitter
	logger   *zap.Logger
}

// NewWorker constructs a Worker. The emitter may be nil.
func NewWorker(queue *Queue, jobs store.JobStore, pipeline *Pipeline, emitter progress.Emitter, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		jobs:     jobs,
		pipeline: pipeline,
		emitter:  emitter,
		logger:   logger,
	}
}

// Run blocks, consuming tasks until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", task.JobID))
		w.processTask(ctx, task)
	}
}

func (w *Worker) processTask(ctx context.Context, task Task) {
	start := time.Now()

	if err := w.jobs.UpdateJobStatus(ctx, task.JobID, store.JobStatusRunning, "", store.JobCounters{}); err != nil {
		w.logger.Error("update job status failed",
			zap.String("job_id", task.JobID), zap.Error(err))
		return
	}
	w.emit(progress.Event{
		JobID:  task.JobID,
		Tenant: task.Tenant,
		TS:     time.Now().UTC(),
		Stage:  progress.StageJobStart,
	})

	counters, err := w.pipeline.Run(ctx, task.JobID, task.Tenant, task.Params)

	status := store.JobStatusSucceeded
	errText := ""
	stage := progress.StageJobDone
	switch {
	case err != nil && ctx.Err() != nil:
		status = store.JobStatusCanceled
		errText = err.Error()
		stage = progress.StageJobError
	case err != nil:
		status = store.JobStatusFailed
		errText = err.Error()
		stage = progress.StageJobError
	case counters.DocumentsStored == 0:
		status = store.JobStatusFailed
		errText = "no documents stored"
		stage = progress.StageJobError
	}

	// A canceled context must not block the final status write.
	finalCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		finalCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := w.jobs.UpdateJobStatus(finalCtx, task.JobID, status, errText, counters); err != nil {
		w.logger.Error("final job status update failed",
			zap.String("job_id", task.JobID), zap.Error(err))
	}

	w.emit(progress.Event{
		JobID:  task.JobID,
		Tenant: task.Tenant,
		TS:     time.Now().UTC(),
		Stage:  stage,
		Dur:    time.Since(start),
		Note:   errText,
	})
	w.logger.Info("job finished",
		zap.String("job_id", task.JobID),
		zap.String("status", string(status)),
		zap.Int("pages_crawled", counters.PagesCrawled),
		zap.Int("documents_stored", counters.DocumentsStored),
		zap.Int("chunks_stored", counters.ChunksStored),
		zap.Duration("dur", time.Since(start)),
	)
}

func (w *Worker) emit(evt progress.Event) {
	if w.emitter != nil {
		w.emitter.Emit(evt)
	}
}
