package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/graphmill/graphmill/pkg/ai"
	"github.com/graphmill/graphmill/pkg/common"
	"github.com/graphmill/graphmill/pkg/gate"
	"github.com/graphmill/graphmill/pkg/provider"
	"github.com/graphmill/graphmill/pkg/store"
)

type fakeProcessor struct {
	mu        sync.Mutex
	processed []string
	delay     time.Duration
	err       error
	result    *common.ProcessingResult
}

func (f *fakeProcessor) Process(ctx context.Context, input common.ContentInput) (*common.ProcessingResult, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(f.delay):
		}
	}

	f.mu.Lock()
	f.processed = append(f.processed, input.ContentID)
	f.mu.Unlock()

	if f.err != nil {
		failed := &common.ProcessingResult{
			Entities:      []common.Entity{},
			Relationships: []common.Relationship{},
			Processing:    common.ProcessingStats{Provider: common.FailedProvider},
		}
		return failed, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &common.ProcessingResult{
		Entities:      []common.Entity{{ID: "e1", Name: "Thing", Type: common.EntityConcept, Confidence: 0.9}},
		Relationships: []common.Relationship{},
		Processing:    common.ProcessingStats{Provider: "openai"},
	}, nil
}

func (f *fakeProcessor) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.processed))
	copy(out, f.processed)
	return out
}

type fakeBackend struct {
	mu      sync.Mutex
	metrics ai.ModelMetrics
	resets  int
}

func (f *fakeBackend) Generate(ctx context.Context, prompt string, opts ...ai.GenerateOption) (*ai.Response, error) {
	return &ai.Response{Text: "{}"}, nil
}

func (f *fakeBackend) GetMetrics() ai.ModelMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metrics
}

func (f *fakeBackend) ResetMetrics() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = ai.ModelMetrics{}
	f.resets++
}

func (f *fakeBackend) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// blockingStore holds every PutResult until released so tests can observe
// what the queue allows to proceed while a store write is in flight.
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
	inner   *store.MemoryStore
}

func (b *blockingStore) PutResult(ctx context.Context, key store.ResultKey, result *common.ProcessingResult) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return b.inner.PutResult(ctx, key, result)
}

func (b *blockingStore) GetResult(ctx context.Context, jobID string) (*common.ProcessingResult, error) {
	return b.inner.GetResult(ctx, jobID)
}

func eligibleContent() string {
	return strings.TrimSpace(strings.Repeat("The quick brown fox jumps over the lazy dog near the river. ", 6))
}

func newTestQueue(processor Processor, governor *provider.Governor) (*Queue, *store.MemoryStore) {
	memory := store.NewMemoryStore()
	q := NewQueue(NewQueueParams{
		Gate:       gate.NewGate(gate.NewGateParams{Enabled: true, DailyCostLimit: 10}),
		Processor:  processor,
		Store:      memory,
		Governor:   governor,
		JobTimeout: 5 * time.Second,
	})
	return q, memory
}

func waitForStatus(t *testing.T, q *Queue, jobID string, expected JobStatus) Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := q.Job(jobID)
		if !ok {
			t.Fatalf("job %s disappeared", jobID)
		}
		if job.Status == expected {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := q.Job(jobID)
	t.Fatalf("job %s never reached %s, stuck at %s", jobID, expected, job.Status)
	return Job{}
}

func submit(t *testing.T, q *Queue, sessionID string, contentID string) Job {
	t.Helper()
	job, err := q.Submit(common.ContentInput{
		SessionID: sessionID,
		ContentID: contentID,
		Text:      eligibleContent(),
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	return job
}

func TestQueueProcessesInSubmissionOrder(t *testing.T) {
	processor := &fakeProcessor{}
	governor := provider.NewGovernor(provider.NewGovernorParams{DailyCostLimit: 10})
	q, memory := newTestQueue(processor, governor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	first := submit(t, q, "s1", "c1")
	second := submit(t, q, "s1", "c2")
	third := submit(t, q, "s1", "c3")

	waitForStatus(t, q, third.ID, JobCompleted)
	waitForStatus(t, q, first.ID, JobCompleted)
	waitForStatus(t, q, second.ID, JobCompleted)

	order := processor.order()
	if len(order) != 3 || order[0] != "c1" || order[1] != "c2" || order[2] != "c3" {
		t.Fatalf("expected FIFO order c1,c2,c3, got %v", order)
	}

	if _, err := memory.GetResult(context.Background(), first.ID); err != nil {
		t.Fatalf("completed job must have a stored result: %v", err)
	}
}

func TestQueueCancelPendingOnly(t *testing.T) {
	processor := &fakeProcessor{delay: 100 * time.Millisecond}
	governor := provider.NewGovernor(provider.NewGovernorParams{DailyCostLimit: 10})
	q, _ := newTestQueue(processor, governor)

	blocker := submit(t, q, "s1", "c1")
	target := submit(t, q, "s1", "c2")

	if !q.Cancel(target.ID) {
		t.Fatalf("pending job should be cancellable")
	}
	job, _ := q.Job(target.ID)
	if job.Status != JobCancelled {
		t.Fatalf("expected cancelled status, got %s", job.Status)
	}
	if q.Cancel(target.ID) {
		t.Fatalf("cancel must not succeed twice")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	waitForStatus(t, q, blocker.ID, JobCompleted)
	if q.Cancel(blocker.ID) {
		t.Fatalf("finished job must not be cancellable")
	}

	order := processor.order()
	for _, contentID := range order {
		if contentID == "c2" {
			t.Fatalf("cancelled job must never be processed")
		}
	}
}

func TestQueueSubmitBudgetExceeded(t *testing.T) {
	processor := &fakeProcessor{}
	governor := provider.NewGovernor(provider.NewGovernorParams{DailyCostLimit: 10})
	governor.AddSpend(10)
	q, _ := newTestQueue(processor, governor)

	_, err := q.Submit(common.ContentInput{SessionID: "s1", ContentID: "c1", Text: eligibleContent()})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestQueueSubmitIneligibleContent(t *testing.T) {
	processor := &fakeProcessor{}
	governor := provider.NewGovernor(provider.NewGovernorParams{DailyCostLimit: 10})
	q, _ := newTestQueue(processor, governor)

	_, err := q.Submit(common.ContentInput{SessionID: "s1", ContentID: "c1", Text: "way too short"})
	var ineligible *IneligibleError
	if !errors.As(err, &ineligible) {
		t.Fatalf("expected IneligibleError, got %v", err)
	}
	if ineligible.Reason != gate.ReasonTooShort {
		t.Fatalf("expected too-short reason, got %q", ineligible.Reason)
	}
}

func TestQueueJobTimeout(t *testing.T) {
	processor := &fakeProcessor{delay: time.Second}
	governor := provider.NewGovernor(provider.NewGovernorParams{DailyCostLimit: 10})
	memory := store.NewMemoryStore()
	q := NewQueue(NewQueueParams{
		Gate:       gate.NewGate(gate.NewGateParams{Enabled: true, DailyCostLimit: 10}),
		Processor:  processor,
		Store:      memory,
		Governor:   governor,
		JobTimeout: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	job := submit(t, q, "s1", "c1")
	done := waitForStatus(t, q, job.ID, JobFailed)
	if !strings.Contains(done.Error, "timed out") {
		t.Fatalf("expected timeout error, got %q", done.Error)
	}
	if _, err := memory.GetResult(context.Background(), job.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("timed out job must not store a result, got %v", err)
	}
}

func TestQueueFailedExtractionPersistsZeroResult(t *testing.T) {
	processor := &fakeProcessor{err: errors.New("all providers failed after 3 passes")}
	governor := provider.NewGovernor(provider.NewGovernorParams{DailyCostLimit: 10})
	q, memory := newTestQueue(processor, governor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	job := submit(t, q, "s1", "c1")
	done := waitForStatus(t, q, job.ID, JobFailed)
	if done.Error == "" {
		t.Fatalf("failed job must carry the error")
	}

	result, err := memory.GetResult(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("aborted extraction must still persist its zero result: %v", err)
	}
	if !result.Failed() {
		t.Fatalf("persisted result must be marked failed")
	}
}

func TestQueueProgress(t *testing.T) {
	processor := &fakeProcessor{}
	governor := provider.NewGovernor(provider.NewGovernorParams{DailyCostLimit: 10})
	q, _ := newTestQueue(processor, governor)

	first := submit(t, q, "s1", "c1")
	submit(t, q, "s1", "c2")
	submit(t, q, "other", "c3")

	progress := q.Progress("s1")
	if progress.TotalJobs != 2 || progress.PendingJobs != 2 {
		t.Fatalf("expected 2 pending jobs for s1, got %+v", progress)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	waitForStatus(t, q, first.ID, JobCompleted)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		progress = q.Progress("s1")
		if progress.CompletedJobs == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if progress.CompletedJobs != 2 || progress.PendingJobs != 0 {
		t.Fatalf("expected 2 completed jobs, got %+v", progress)
	}
	if progress.FailedJobs != 0 {
		t.Fatalf("expected no failures, got %+v", progress)
	}

	other := q.Progress("other")
	if other.TotalJobs != 1 {
		t.Fatalf("sessions must not leak into each other, got %+v", other)
	}
}

func TestQueueProgressEstimate(t *testing.T) {
	processor := &fakeProcessor{delay: 20 * time.Millisecond}
	governor := provider.NewGovernor(provider.NewGovernorParams{DailyCostLimit: 10})
	q, _ := newTestQueue(processor, governor)

	first := submit(t, q, "s1", "c1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)
	waitForStatus(t, q, first.ID, JobCompleted)
	cancel()

	// With an established average, pending jobs should yield an estimate.
	submit(t, q, "s1", "c2")
	submit(t, q, "s1", "c3")
	progress := q.Progress("s1")
	if progress.EstimatedTimeRemainingMs <= 0 {
		t.Fatalf("expected positive estimate with pending jobs, got %d", progress.EstimatedTimeRemainingMs)
	}
}

func TestQueueSubmitReturnsSnapshot(t *testing.T) {
	processor := &fakeProcessor{}
	governor := provider.NewGovernor(provider.NewGovernorParams{DailyCostLimit: 10})
	q, _ := newTestQueue(processor, governor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	job := submit(t, q, "s1", "c1")
	waitForStatus(t, q, job.ID, JobCompleted)

	// The returned job is a copy taken at submission; the consumer's later
	// writes must not show through it.
	if job.Status != JobPending {
		t.Fatalf("submitted snapshot must stay pending, got %s", job.Status)
	}
	if job.StartedAt != nil || job.CompletedAt != nil {
		t.Fatalf("submitted snapshot must not carry consumer timestamps")
	}
}

func TestQueueReadsNotBlockedByStore(t *testing.T) {
	blocked := &blockingStore{entered: make(chan struct{}, 1), release: make(chan struct{}), inner: store.NewMemoryStore()}
	processor := &fakeProcessor{}
	governor := provider.NewGovernor(provider.NewGovernorParams{DailyCostLimit: 10})
	q := NewQueue(NewQueueParams{
		Gate:       gate.NewGate(gate.NewGateParams{Enabled: true, DailyCostLimit: 10}),
		Processor:  processor,
		Store:      blocked,
		Governor:   governor,
		JobTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	job := submit(t, q, "s1", "c1")
	select {
	case <-blocked.entered:
	case <-time.After(3 * time.Second):
		t.Fatalf("store was never reached")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Job(job.ID)
		q.Progress("s1")
		q.Submit(common.ContentInput{SessionID: "s1", ContentID: "c2", Text: eligibleContent()})
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("submissions and status reads must not wait on the store")
	}

	close(blocked.release)
	waitForStatus(t, q, job.ID, JobCompleted)
}

func TestQueueResetsModelMetricsAfterJob(t *testing.T) {
	backend := &fakeBackend{metrics: ai.ModelMetrics{InputTokens: 120, OutputTokens: 40, TotalTokens: 160, DurationMs: 900}}
	processor := &fakeProcessor{}
	governor := provider.NewGovernor(provider.NewGovernorParams{DailyCostLimit: 10})
	q := NewQueue(NewQueueParams{
		Gate:       gate.NewGate(gate.NewGateParams{Enabled: true, DailyCostLimit: 10}),
		Processor:  processor,
		Store:      store.NewMemoryStore(),
		Governor:   governor,
		Backends:   map[string]ai.Backend{"openai": backend},
		JobTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	job := submit(t, q, "s1", "c1")
	waitForStatus(t, q, job.ID, JobCompleted)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && backend.resetCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if backend.resetCount() == 0 {
		t.Fatalf("backend metrics must be reset after the job")
	}
	if got := backend.GetMetrics(); got.TotalTokens != 0 {
		t.Fatalf("expected zeroed metrics after reset, got %+v", got)
	}
}
