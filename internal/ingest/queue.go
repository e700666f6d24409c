// Package ingest runs the asynchronous crawl-chunk-embed-store pipeline
// behind the ingestion API.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quirkfly/ivesna/internal/store"
)

// Task wraps an ingestion job ready to run.
type Task struct {
	JobID  string
	Tenant string
	Params store.JobParameters
}

// ErrQueueClosed is returned by operations on a closed queue.
var ErrQueueClosed = errors.New("queue closed")

// Queue is a bounded in-memory task queue with context-aware operations.
// The task channel itself is never closed, so an enqueue racing Close
// cannot panic; shutdown is signaled through a separate done channel.
type Queue struct {
	ch        chan Task
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{
		ch:   make(chan Task, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends
// or the queue has been closed.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	select {
	case <-q.done:
		return fmt.Errorf("enqueue: %w", ErrQueueClosed)
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return fmt.Errorf("enqueue: %w", ErrQueueClosed)
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation. Tasks
// still buffered when the queue closes are dropped.
func (q *Queue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case <-ctx.Done():
		return Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return Task{}, fmt.Errorf("dequeue: %w", ErrQueueClosed)
	case task := <-q.ch:
		return task, nil
	}
}

// Close marks the queue closed for shutdown. Safe to call multiple
// times and concurrently with Enqueue.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
