package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-sendgate/core"
)

type memoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]core.Job
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: map[string]core.Job{}}
}

func (s *memoryJobStore) Create(_ context.Context, job core.Job) (core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return job, nil
}

func (s *memoryJobStore) Get(_ context.Context, id string) (core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return core.Job{}, core.NewNotFound("job not found")
	}
	return job, nil
}

func (s *memoryJobStore) HasPending(_ context.Context, jobType core.JobType, before time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.Type == jobType && job.Status == core.JobStatusQueued && !job.RunAt.After(before) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryJobStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claimed := []core.Job{}
	for id, job := range s.jobs {
		if len(claimed) >= limit {
			break
		}
		if job.Status != core.JobStatusQueued || job.RunAt.After(now) {
			continue
		}
		job.Status = core.JobStatusRunning
		s.jobs[id] = job
		claimed = append(claimed, job)
	}
	return claimed, nil
}

func (s *memoryJobStore) MarkCompleted(_ context.Context, id string, attempts int) error {
	return s.update(id, func(job *core.Job) {
		job.Status = core.JobStatusCompleted
		job.Attempts = attempts
		job.LastError = ""
	})
}

func (s *memoryJobStore) MarkRetry(_ context.Context, id string, attempts int, runAt time.Time, lastError string) error {
	return s.update(id, func(job *core.Job) {
		job.Status = core.JobStatusQueued
		job.Attempts = attempts
		job.RunAt = runAt
		job.LastError = lastError
	})
}

func (s *memoryJobStore) MarkFailed(_ context.Context, id string, attempts int, lastError string) error {
	return s.update(id, func(job *core.Job) {
		job.Status = core.JobStatusFailed
		job.Attempts = attempts
		job.LastError = lastError
	})
}

func (s *memoryJobStore) update(id string, apply func(*core.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return core.NewNotFound("job not found")
	}
	apply(&job)
	s.jobs[id] = job
	return nil
}

type scriptedHandler struct {
	jobType  core.JobType
	failures int
	calls    int
}

func (h *scriptedHandler) Type() core.JobType { return h.jobType }

func (h *scriptedHandler) Execute(context.Context, core.Job) error {
	h.calls++
	if h.calls <= h.failures {
		return fmt.Errorf("simulated failure %d", h.calls)
	}
	return nil
}

func newTestScheduler(t *testing.T, store *memoryJobStore, handlers ...Handler) *Scheduler {
	t.Helper()
	registry, err := NewRegistry(handlers...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	sched := NewScheduler(store, registry)
	sched.Now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return sched
}

func TestEnqueueDefaults(t *testing.T) {
	store := newMemoryJobStore()
	queue := NewQueue(store)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	queue.Now = func() time.Time { return now }

	job, err := queue.Enqueue(context.Background(), core.JobTypeUsageSync, nil, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID == "" {
		t.Fatalf("expected generated id")
	}
	if job.Status != core.JobStatusQueued {
		t.Fatalf("expected queued status, got %s", job.Status)
	}
	if !job.RunAt.Equal(now) {
		t.Fatalf("zero runAt should default to now, got %v", job.RunAt)
	}
	if job.MaxAttempts != core.DefaultJobMaxAttempts {
		t.Fatalf("expected default max attempts, got %d", job.MaxAttempts)
	}
}

func TestEnqueueStampsConfiguredMaxAttempts(t *testing.T) {
	queue := NewQueue(newMemoryJobStore())
	queue.MaxAttempts = 2

	job, err := queue.Enqueue(context.Background(), core.JobTypeUsageSync, nil, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.MaxAttempts != 2 {
		t.Fatalf("expected configured max attempts, got %d", job.MaxAttempts)
	}
}

func TestEnqueueRejectsUnknownType(t *testing.T) {
	queue := NewQueue(newMemoryJobStore())

	if _, err := queue.Enqueue(context.Background(), core.JobType("bogus"), nil, time.Time{}); err == nil {
		t.Fatalf("expected unknown type rejection")
	}
}

func TestEnqueueRecurringSkipsDuplicates(t *testing.T) {
	store := newMemoryJobStore()
	queue := NewQueue(store)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	queue.Now = func() time.Time { return now }

	_, created, err := queue.EnqueueRecurring(context.Background(), core.JobTypeUsageSync, nil, now)
	if err != nil || !created {
		t.Fatalf("first enqueue should create: created=%v err=%v", created, err)
	}

	_, created, err = queue.EnqueueRecurring(context.Background(), core.JobTypeUsageSync, nil, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatalf("second enqueue within tolerance must be skipped")
	}

	// A different type is never considered a duplicate.
	_, created, err = queue.EnqueueRecurring(context.Background(), core.JobTypeKeySweep, nil, now)
	if err != nil || !created {
		t.Fatalf("different type should create: created=%v err=%v", created, err)
	}
}

func TestTickClaimsOnlyDueJobs(t *testing.T) {
	store := newMemoryJobStore()
	queue := NewQueue(store)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	queue.Now = func() time.Time { return now }

	handler := &scriptedHandler{jobType: core.JobTypeUsageSync}
	sched := newTestScheduler(t, store, handler)

	due, _ := queue.Enqueue(context.Background(), core.JobTypeUsageSync, nil, now.Add(-time.Minute))
	future, _ := queue.Enqueue(context.Background(), core.JobTypeUsageSync, nil, now.Add(time.Hour))

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	dueJob, _ := store.Get(context.Background(), due.ID)
	if dueJob.Status != core.JobStatusCompleted {
		t.Fatalf("due job should complete, got %s", dueJob.Status)
	}
	if dueJob.Attempts != 1 {
		t.Fatalf("expected attempts 1, got %d", dueJob.Attempts)
	}

	futureJob, _ := store.Get(context.Background(), future.ID)
	if futureJob.Status != core.JobStatusQueued {
		t.Fatalf("future job must stay queued, got %s", futureJob.Status)
	}
	if handler.calls != 1 {
		t.Fatalf("expected one execution, got %d", handler.calls)
	}
}

func TestTickKeepsRecurringJobsQueued(t *testing.T) {
	store := newMemoryJobStore()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	handler := &scriptedHandler{jobType: core.JobTypeUsageSync}
	sched := newTestScheduler(t, store, handler)
	sched.Recurring = []RecurringJob{{Type: core.JobTypeUsageSync, Interval: time.Hour}}

	// The first occurrence is due immediately and runs on the first tick.
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if handler.calls != 1 {
		t.Fatalf("expected first occurrence to run on the first tick, got %d calls", handler.calls)
	}

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	queued := queuedJobsOfType(store, core.JobTypeUsageSync)
	if len(queued) != 1 {
		t.Fatalf("expected one recurring row, got %d", len(queued))
	}
	if !queued[0].RunAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected next occurrence at %v, got %v", now.Add(time.Hour), queued[0].RunAt)
	}

	// Further ticks while the row is still on the books must not duplicate it.
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick 3: %v", err)
	}
	if got := len(queuedJobsOfType(store, core.JobTypeUsageSync)); got != 1 {
		t.Fatalf("expected recurring row to stay unique, got %d", got)
	}
	if handler.calls != 1 {
		t.Fatalf("expected no extra run before the interval elapses, got %d calls", handler.calls)
	}
}

func queuedJobsOfType(store *memoryJobStore, jobType core.JobType) []core.Job {
	store.mu.Lock()
	defer store.mu.Unlock()
	matched := []core.Job{}
	for _, job := range store.jobs {
		if job.Type == jobType && job.Status == core.JobStatusQueued {
			matched = append(matched, job)
		}
	}
	return matched
}

func TestRetryThenSuccess(t *testing.T) {
	store := newMemoryJobStore()
	queue := NewQueue(store)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	queue.Now = func() time.Time { return now }

	handler := &scriptedHandler{jobType: core.JobTypeUsageSync, failures: 1}
	sched := newTestScheduler(t, store, handler)
	sched.RetryBackoff = time.Minute

	created, _ := queue.Enqueue(context.Background(), core.JobTypeUsageSync, nil, now)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	job, _ := store.Get(context.Background(), created.ID)
	if job.Status != core.JobStatusQueued {
		t.Fatalf("failed attempt should requeue, got %s", job.Status)
	}
	if job.Attempts != 1 {
		t.Fatalf("expected attempts 1 after first failure, got %d", job.Attempts)
	}
	wantRunAt := sched.Now().Add(time.Minute)
	if !job.RunAt.Equal(wantRunAt) {
		t.Fatalf("expected backoff runAt %v, got %v", wantRunAt, job.RunAt)
	}
	if job.LastError == "" {
		t.Fatalf("expected last error recorded")
	}

	sched.Now = func() time.Time { return wantRunAt.Add(time.Second) }
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	job, _ = store.Get(context.Background(), created.ID)
	if job.Status != core.JobStatusCompleted {
		t.Fatalf("expected completed after second attempt, got %s", job.Status)
	}
	if job.Attempts != 2 {
		t.Fatalf("expected attempts 2, got %d", job.Attempts)
	}
}

func TestRetriesExhaustToFailed(t *testing.T) {
	store := newMemoryJobStore()
	queue := NewQueue(store)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	queue.Now = func() time.Time { return now }

	handler := &scriptedHandler{jobType: core.JobTypeUsageSync, failures: 100}
	sched := newTestScheduler(t, store, handler)
	sched.RetryBackoff = time.Minute

	created, _ := queue.Enqueue(context.Background(), core.JobTypeUsageSync, nil, now)

	tickAt := now
	for i := 0; i < core.DefaultJobMaxAttempts; i++ {
		tickAt = tickAt.Add(2 * time.Minute)
		sched.Now = func() time.Time { return tickAt }
		if err := sched.Tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
	}

	job, _ := store.Get(context.Background(), created.ID)
	if job.Status != core.JobStatusFailed {
		t.Fatalf("expected failed after exhausting retries, got %s", job.Status)
	}
	if job.Attempts != core.DefaultJobMaxAttempts {
		t.Fatalf("expected attempts %d, got %d", core.DefaultJobMaxAttempts, job.Attempts)
	}
	if job.LastError == "" {
		t.Fatalf("expected last error preserved on failed job")
	}
}

func TestUnknownJobTypeFailsImmediately(t *testing.T) {
	store := newMemoryJobStore()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	// Registered handler covers usage_sync only; the key_sweep job has no home.
	sched := newTestScheduler(t, store, &scriptedHandler{jobType: core.JobTypeUsageSync})

	orphan := core.Job{
		ID:          "job-orphan",
		Type:        core.JobTypeKeySweep,
		Status:      core.JobStatusQueued,
		RunAt:       now.Add(-time.Minute),
		MaxAttempts: core.DefaultJobMaxAttempts,
	}
	if _, err := store.Create(context.Background(), orphan); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	job, _ := store.Get(context.Background(), orphan.ID)
	if job.Status != core.JobStatusFailed {
		t.Fatalf("expected unhandled type to fail, got %s", job.Status)
	}
	if job.Attempts != 1 {
		t.Fatalf("expected attempts 1, got %d", job.Attempts)
	}
}

func TestHandlerPanicBecomesRetry(t *testing.T) {
	store := newMemoryJobStore()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	panics := &panicHandler{jobType: core.JobTypeUsageSync}
	sched := newTestScheduler(t, store, panics)

	job := core.Job{
		ID:          "job-panic",
		Type:        core.JobTypeUsageSync,
		Status:      core.JobStatusQueued,
		RunAt:       now.Add(-time.Minute),
		MaxAttempts: core.DefaultJobMaxAttempts,
	}
	if _, err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick must survive a handler panic: %v", err)
	}

	stored, _ := store.Get(context.Background(), job.ID)
	if stored.Status != core.JobStatusQueued {
		t.Fatalf("expected panic to requeue, got %s", stored.Status)
	}
}

type panicHandler struct {
	jobType core.JobType
}

func (h *panicHandler) Type() core.JobType { return h.jobType }

func (h *panicHandler) Execute(context.Context, core.Job) error {
	panic("boom")
}
