package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-sendgate/core"
)

const defaultRecurringTolerance = time.Minute

// Queue persists background work. It never executes anything; the scheduler
// claims and runs what the queue writes.
type Queue struct {
	Store       core.JobStore
	Tolerance   time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func NewQueue(store core.JobStore) *Queue {
	return &Queue{
		Store:       store,
		Tolerance:   defaultRecurringTolerance,
		MaxAttempts: core.DefaultJobMaxAttempts,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue writes one queued job row due at runAt. A zero runAt means due
// immediately.
func (q *Queue) Enqueue(ctx context.Context, jobType core.JobType, payload map[string]any, runAt time.Time) (core.Job, error) {
	if q == nil || q.Store == nil {
		return core.Job{}, fmt.Errorf("jobs: queue store is not configured")
	}
	if err := jobType.Validate(); err != nil {
		return core.Job{}, core.NewBadInput(err.Error())
	}

	now := q.now()
	if runAt.IsZero() {
		runAt = now
	}
	maxAttempts := q.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = core.DefaultJobMaxAttempts
	}
	job := core.Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     payload,
		Status:      core.JobStatusQueued,
		RunAt:       runAt.UTC(),
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return q.Store.Create(ctx, job)
}

// EnqueueRecurring writes a job only when no queued job of the same type is
// already due near runAt, so a periodic producer that fires again before the
// scheduler catches up does not pile up duplicates. Reports whether a row
// was created.
func (q *Queue) EnqueueRecurring(ctx context.Context, jobType core.JobType, payload map[string]any, runAt time.Time) (core.Job, bool, error) {
	if q == nil || q.Store == nil {
		return core.Job{}, false, fmt.Errorf("jobs: queue store is not configured")
	}
	if err := jobType.Validate(); err != nil {
		return core.Job{}, false, core.NewBadInput(err.Error())
	}

	now := q.now()
	if runAt.IsZero() {
		runAt = now
	}
	tolerance := q.Tolerance
	if tolerance <= 0 {
		tolerance = defaultRecurringTolerance
	}

	pending, err := q.Store.HasPending(ctx, jobType, runAt.UTC().Add(tolerance))
	if err != nil {
		return core.Job{}, false, err
	}
	if pending {
		return core.Job{}, false, nil
	}

	job, err := q.Enqueue(ctx, jobType, payload, runAt)
	if err != nil {
		return core.Job{}, false, err
	}
	return job, true, nil
}

func (q *Queue) now() time.Time {
	if q != nil && q.Now != nil {
		return q.Now().UTC()
	}
	return time.Now().UTC()
}
