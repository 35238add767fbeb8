package jobs

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-sendgate/core"
)

const (
	defaultTickInterval      = 30 * time.Second
	defaultClaimBatchSize    = 5
	defaultRetryBackoff      = time.Minute
	defaultRecurringInterval = time.Hour
)

// RecurringJob names a job type the scheduler keeps alive on a fixed period.
type RecurringJob struct {
	Type     core.JobType
	Interval time.Duration
	Payload  map[string]any
}

// Scheduler drains due jobs on a fixed tick. Claiming happens through a
// conditional queued-to-running update in the store, so running several
// scheduler instances against the same database is safe.
type Scheduler struct {
	Store          core.JobStore
	Registry       *Registry
	Queue          *Queue
	Recurring      []RecurringJob
	Logger         core.Logger
	TickInterval   time.Duration
	ClaimBatchSize int
	RetryBackoff   time.Duration
	Now            func() time.Time

	seeded map[core.JobType]bool
}

func NewScheduler(store core.JobStore, registry *Registry) *Scheduler {
	return &Scheduler{
		Store:          store,
		Registry:       registry,
		Queue:          NewQueue(store),
		TickInterval:   defaultTickInterval,
		ClaimBatchSize: defaultClaimBatchSize,
		RetryBackoff:   defaultRetryBackoff,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks until the context is cancelled. Tick errors are logged and never
// stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}

	interval := s.TickInterval
	if interval <= 0 {
		interval = defaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger().Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick tops up the recurring jobs, then claims one batch of due jobs and
// executes them sequentially.
func (s *Scheduler) Tick(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}

	s.enqueueRecurring(ctx)

	batch := s.ClaimBatchSize
	if batch <= 0 {
		batch = defaultClaimBatchSize
	}
	claimed, err := s.Store.ClaimDue(ctx, s.now(), batch)
	if err != nil {
		return err
	}

	for _, job := range claimed {
		s.dispatch(ctx, job)
	}
	return nil
}

// enqueueRecurring writes the next occurrence for each configured recurring
// type. The first occurrence is due immediately so a fresh process runs its
// recurring work on the first tick; every later occurrence is pushed one
// interval out. A type with a queued row already on the books is left alone,
// so a slow run never piles up duplicates. Enqueue errors are logged and do
// not block the claim pass.
func (s *Scheduler) enqueueRecurring(ctx context.Context) {
	if len(s.Recurring) == 0 {
		return
	}
	queue := s.Queue
	if queue == nil {
		queue = NewQueue(s.Store)
	}
	if s.seeded == nil {
		s.seeded = make(map[core.JobType]bool, len(s.Recurring))
	}
	for _, recurring := range s.Recurring {
		interval := recurring.Interval
		if interval <= 0 {
			interval = defaultRecurringInterval
		}
		runAt := s.now()
		if s.seeded[recurring.Type] {
			runAt = runAt.Add(interval)
		}
		if _, _, err := queue.EnqueueRecurring(ctx, recurring.Type, recurring.Payload, runAt); err != nil {
			s.logger().Error("recurring enqueue failed",
				"type", string(recurring.Type),
				"error", err,
			)
			continue
		}
		s.seeded[recurring.Type] = true
	}
}

// dispatch runs one claimed job and records the outcome. Handler errors are
// converted into retry-or-fail bookkeeping here and never propagate.
func (s *Scheduler) dispatch(ctx context.Context, job core.Job) {
	attempts := job.Attempts + 1

	handler, ok := s.Registry.Lookup(job.Type)
	if !ok {
		message := fmt.Sprintf("no handler registered for job type %q", string(job.Type))
		if err := s.Store.MarkFailed(ctx, job.ID, attempts, message); err != nil {
			s.logger().Error("job bookkeeping failed", "job_id", job.ID, "error", err)
		}
		s.logger().Error("job failed", "job_id", job.ID, "type", string(job.Type), "reason", message)
		return
	}

	execErr := func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("jobs: handler panic: %v", recovered)
			}
		}()
		return handler.Execute(ctx, job)
	}()

	if execErr == nil {
		if err := s.Store.MarkCompleted(ctx, job.ID, attempts); err != nil {
			s.logger().Error("job bookkeeping failed", "job_id", job.ID, "error", err)
		}
		return
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = core.DefaultJobMaxAttempts
	}
	if attempts >= maxAttempts {
		if err := s.Store.MarkFailed(ctx, job.ID, attempts, execErr.Error()); err != nil {
			s.logger().Error("job bookkeeping failed", "job_id", job.ID, "error", err)
		}
		s.logger().Error("job exhausted retries",
			"job_id", job.ID,
			"type", string(job.Type),
			"attempts", attempts,
			"error", execErr,
		)
		return
	}

	backoff := s.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	runAt := s.now().Add(backoff)
	if err := s.Store.MarkRetry(ctx, job.ID, attempts, runAt, execErr.Error()); err != nil {
		s.logger().Error("job bookkeeping failed", "job_id", job.ID, "error", err)
	}
	s.logger().Warn("job retry scheduled",
		"job_id", job.ID,
		"type", string(job.Type),
		"attempts", attempts,
		"run_at", runAt,
		"error", execErr,
	)
}

func (s *Scheduler) ready() error {
	if s == nil {
		return fmt.Errorf("jobs: scheduler is not configured")
	}
	if s.Store == nil {
		return fmt.Errorf("jobs: job store is not configured")
	}
	if s.Registry == nil {
		return fmt.Errorf("jobs: handler registry is not configured")
	}
	return nil
}

func (s *Scheduler) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Scheduler) logger() core.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	return glog.Nop()
}
