// Package queue is an in-process asynchronous job queue with at-least-once
// delivery and automatic retry. Webhook handling and the start workflow
// enqueue here so their HTTP requests return promptly; the pipelines that
// wait on external calls run on the worker goroutines.
package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Job names for the registered pipelines.
const (
	JobDispatch = "task.dispatch"
	JobMerge    = "task.merge"
)

// Handler executes one job attempt. Returning an error triggers a retry
// until the attempt budget is exhausted, so handlers must be safe to repeat.
type Handler func(ctx context.Context, taskID uint) error

// Job is one queued unit of work.
type Job struct {
	Name    string
	TaskID  uint
	Attempt int // 1-based, set by the queue
}

// Opts holds queue sizing parameters.
type Opts struct {
	Workers     int
	Buffer      int
	MaxAttempts int
	Backoff     time.Duration // base delay; grows linearly with the attempt
}

// Queue dispatches jobs to named handlers on a fixed worker pool.
type Queue struct {
	jobs        chan Job
	workers     int
	maxAttempts int
	backoff     time.Duration

	mu       sync.Mutex
	handlers map[string]Handler
	closed   bool

	wg sync.WaitGroup
}

// New creates a Queue. Zero-valued opts fall back to small sane defaults so
// tests can use queue.New(queue.Opts{}) directly.
func New(opts Opts) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	return &Queue{
		jobs:        make(chan Job, opts.Buffer),
		workers:     opts.Workers,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		handlers:    make(map[string]Handler),
	}
}

// Register binds a handler to a job name. Must be called before Enqueue for
// that name.
func (q *Queue) Register(name string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = h
}

// Enqueue submits a job for asynchronous execution. Fails when the job name
// has no registered handler or the queue is saturated.
func (q *Queue) Enqueue(name string, taskID uint) error {
	q.mu.Lock()
	_, ok := q.handlers[name]
	closed := q.closed
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("queue: no handler registered for %q", name)
	}
	if closed {
		return fmt.Errorf("queue: closed")
	}

	q.wg.Add(1)
	select {
	case q.jobs <- Job{Name: name, TaskID: taskID, Attempt: 1}:
		return nil
	default:
		q.wg.Done()
		return fmt.Errorf("queue: full, dropping %s for task %d", name, taskID)
	}
}

// Start launches the worker pool. Workers run until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		go q.worker(ctx)
	}
}

// Wait blocks until every enqueued job (including pending retries) has been
// fully processed. Intended for tests and graceful shutdown.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Close stops accepting new jobs.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *Queue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.run(ctx, job)
		}
	}
}

// run executes one attempt and schedules a retry on failure.
func (q *Queue) run(ctx context.Context, job Job) {
	q.mu.Lock()
	h := q.handlers[job.Name]
	q.mu.Unlock()
	if h == nil {
		log.Printf("queue: %s: handler disappeared, dropping task %d", job.Name, job.TaskID)
		q.wg.Done()
		return
	}

	err := q.safeCall(ctx, h, job)
	if err == nil {
		q.wg.Done()
		return
	}

	if job.Attempt >= q.maxAttempts {
		log.Printf("queue: %s: task %d failed after %d attempts: %v", job.Name, job.TaskID, job.Attempt, err)
		q.wg.Done()
		return
	}

	delay := q.backoff * time.Duration(job.Attempt)
	log.Printf("queue: %s: task %d attempt %d failed, retrying in %s: %v",
		job.Name, job.TaskID, job.Attempt, delay, err)

	job.Attempt++
	time.AfterFunc(delay, func() {
		select {
		case q.jobs <- job:
		case <-ctx.Done():
			q.wg.Done()
		}
	})
}

// safeCall invokes a handler, converting panics into errors so one bad job
// cannot take down a worker.
func (q *Queue) safeCall(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: %s: task %d panic: %v", job.Name, job.TaskID, r)
		}
	}()
	return h(ctx, job.TaskID)
}
