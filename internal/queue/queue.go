// Package queue serializes extraction jobs through a single in-process
// consumer. Submission is cheap and synchronous; all provider work happens
// on the consumer goroutine, so at most one extraction runs at a time.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/graphmill/graphmill/pkg/ai"
	"github.com/graphmill/graphmill/pkg/common"
	"github.com/graphmill/graphmill/pkg/gate"
	"github.com/graphmill/graphmill/pkg/logger"
	"github.com/graphmill/graphmill/pkg/provider"
	"github.com/graphmill/graphmill/pkg/store"
)

const defaultJobTimeout = 180 * time.Second

// Processor runs the extraction pipeline for one content item.
type Processor interface {
	Process(ctx context.Context, input common.ContentInput) (*common.ProcessingResult, error)
}

// Queue accepts content items, gates them, and works them off in FIFO order
// on a single consumer goroutine started by Run.
//
// A Queue should be created using NewQueue.
type Queue struct {
	gate       *gate.Gate
	processor  Processor
	store      store.ResultStore
	governor   *provider.Governor
	backends   map[string]ai.Backend
	jobTimeout time.Duration

	mu      sync.Mutex
	pending []*Job
	jobs    map[string]*Job
	current *Job
	notify  chan struct{}

	completedCount    int
	completedDuration time.Duration
}

// NewQueueParams contains the dependencies of a Queue.
//
// JobTimeout bounds one job's extraction and defaults to 180 seconds; a
// job's TimeoutMs option overrides it per job. Backends, when set, are the
// provider backends whose model metrics the consumer logs and resets after
// each job.
type NewQueueParams struct {
	Gate       *gate.Gate
	Processor  Processor
	Store      store.ResultStore
	Governor   *provider.Governor
	Backends   map[string]ai.Backend
	JobTimeout time.Duration
}

// NewQueue creates a queue. Run must be called for jobs to make progress.
func NewQueue(params NewQueueParams) *Queue {
	jobTimeout := params.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	return &Queue{
		gate:       params.Gate,
		processor:  params.Processor,
		store:      params.Store,
		governor:   params.Governor,
		backends:   params.Backends,
		jobTimeout: jobTimeout,
		jobs:       make(map[string]*Job),
		notify:     make(chan struct{}, 1),
	}
}

// Submit gates the content and enqueues a job for it, returning a snapshot
// of the enqueued job; the consumer owns the live job and may already be
// mutating it by the time Submit returns. A budget rejection returns
// ErrBudgetExceeded, any other gate rejection an IneligibleError; in both
// cases no job exists afterwards.
func (q *Queue) Submit(input common.ContentInput) (Job, error) {
	reason := q.gate.Check(input.Text, q.governor.TodaySpend())
	switch reason {
	case gate.ReasonOK:
	case gate.ReasonBudgetExceeded:
		return Job{}, ErrBudgetExceeded
	default:
		return Job{}, &IneligibleError{Reason: reason}
	}

	id, err := gonanoid.New()
	if err != nil {
		return Job{}, fmt.Errorf("failed to generate job id: %w", err)
	}

	job := &Job{
		ID:        id,
		SessionID: input.SessionID,
		ContentID: input.ContentID,
		Status:    JobPending,
		CreatedAt: time.Now(),
		input:     input,
	}

	q.mu.Lock()
	q.pending = append(q.pending, job)
	q.jobs[job.ID] = job
	snapshot := *job
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	logger.Debug("[Queue] Job submitted", "jobId", snapshot.ID, "sessionId", snapshot.SessionID, "contentId", snapshot.ContentID)
	return snapshot, nil
}

// Job returns a snapshot of the job with the given ID.
func (q *Queue) Job(jobID string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Cancel removes a pending job from the queue. Jobs that already started
// processing, or already finished, are not cancellable and Cancel reports
// false for them.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok || job.Status != JobPending {
		return false
	}

	for i, pending := range q.pending {
		if pending.ID == jobID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	job.Status = JobCancelled
	now := time.Now()
	job.CompletedAt = &now

	logger.Debug("[Queue] Job cancelled", "jobId", jobID)
	return true
}

// Run is the consumer loop. It blocks until ctx is cancelled, working off
// pending jobs strictly in submission order.
func (q *Queue) Run(ctx context.Context) error {
	logger.Info("[Queue] Consumer started", "jobTimeout", q.jobTimeout)
	for {
		job := q.pop()
		if job == nil {
			select {
			case <-ctx.Done():
				logger.Info("[Queue] Consumer stopped")
				return ctx.Err()
			case <-q.notify:
				continue
			}
		}
		q.process(ctx, job)
		q.logModelMetrics()

		if ctx.Err() != nil {
			logger.Info("[Queue] Consumer stopped")
			return ctx.Err()
		}
	}
}

func (q *Queue) pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]

	now := time.Now()
	job.Status = JobProcessing
	job.StartedAt = &now
	q.current = job
	return job
}

// process runs one job under its timeout and records the outcome. A timeout
// discards whatever partial work the extractor produced; an aborted
// extraction persists its zeroed result so consumers can read the failure
// shape back.
func (q *Queue) process(ctx context.Context, job *Job) {
	timeout := q.jobTimeout
	if job.input.Options.TimeoutMs > 0 {
		timeout = time.Duration(job.input.Options.TimeoutMs) * time.Millisecond
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := q.processor.Process(jobCtx, job.input)
	elapsed := time.Since(start)

	timedOut := jobCtx.Err() != nil && ctx.Err() == nil

	// Persist before taking the queue lock so a slow store cannot stall
	// submissions and status reads.
	var storeErr error
	if !timedOut && result != nil {
		storeErr = q.putResult(job, result)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	job.CompletedAt = &now
	q.current = nil
	q.completedCount++
	q.completedDuration += elapsed

	if timedOut {
		job.Status = JobFailed
		job.Error = fmt.Sprintf("job timed out after %s", timeout)
		logger.Warn("[Queue] Job timed out", "jobId", job.ID, "timeout", timeout)
		return
	}

	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		logger.Error("[Queue] Job failed", "jobId", job.ID, "duration", elapsed, "err", err)
		return
	}

	if storeErr != nil {
		job.Status = JobFailed
		job.Error = fmt.Sprintf("failed to store result: %v", storeErr)
		return
	}

	job.Status = JobCompleted
	logger.Info("[Queue] Job completed",
		"jobId", job.ID,
		"duration", elapsed,
		"entities", len(result.Entities),
		"relationships", len(result.Relationships),
		"cost", result.Processing.TotalCost)
}

// logModelMetrics reports each backend's accumulated token usage for the
// job that just finished and resets the counters.
func (q *Queue) logModelMetrics() {
	for id, backend := range q.backends {
		metrics := backend.GetMetrics()
		if metrics.TotalTokens == 0 {
			continue
		}
		logger.Info("[Queue] Model metrics",
			"provider", id,
			"input_tokens", metrics.InputTokens,
			"output_tokens", metrics.OutputTokens,
			"total_tokens", metrics.TotalTokens,
			"duration", (time.Duration(metrics.DurationMs) * time.Millisecond).String(),
			"tokens_per_second", metrics.TokenPerSecond)
		backend.ResetMetrics()
	}
}

// putResult hands the result to the store with a short independent timeout
// so a stuck store cannot wedge the consumer.
func (q *Queue) putResult(job *Job, result *common.ProcessingResult) error {
	storeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := store.ResultKey{
		SessionID: job.SessionID,
		ContentID: job.ContentID,
		JobID:     job.ID,
	}
	if err := q.store.PutResult(storeCtx, key, result); err != nil {
		logger.Error("[Queue] Failed to store result", "jobId", job.ID, "err", err)
		return err
	}
	return nil
}
