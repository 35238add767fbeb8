package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-sendgate/core"
)

// JobStore persists queue state. ClaimDue flips queued rows to running one
// at a time through a conditional update, so concurrent scheduler instances
// sharing the table never claim the same job.
type JobStore struct {
	db   *bun.DB
	repo repository.Repository[*jobRecord]
}

func NewJobStore(db *bun.DB) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*jobRecord](db, jobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid job repository wiring: %w", err)
		}
	}
	return &JobStore{db: db, repo: repo}, nil
}

func (s *JobStore) Create(ctx context.Context, job core.Job) (core.Job, error) {
	if s == nil || s.repo == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	if err := job.Type.Validate(); err != nil {
		return core.Job{}, core.NewBadInput(err.Error())
	}
	now := time.Now().UTC()
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = core.JobStatusQueued
	}
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = core.DefaultJobMaxAttempts
	}

	record := jobToRecord(job)
	record.CreatedAt = now
	record.UpdatedAt = now
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Job{}, err
	}
	return created.toDomain(), nil
}

func (s *JobStore) Get(ctx context.Context, id string) (core.Job, error) {
	if s == nil || s.repo == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Job{}, core.NewBadInput("job id is required")
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Job{}, core.NewNotFound(fmt.Sprintf("job %s not found", id))
		}
		return core.Job{}, err
	}
	return record.toDomain(), nil
}

func (s *JobStore) HasPending(ctx context.Context, jobType core.JobType, before time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: job store is not configured")
	}
	return s.db.NewSelect().
		Model((*jobRecord)(nil)).
		Where("?TableAlias.type = ?", string(jobType)).
		Where("?TableAlias.status = ?", string(core.JobStatusQueued)).
		Where("?TableAlias.run_at <= ?", before.UTC()).
		Exists(ctx)
}

func (s *JobStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]core.Job, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job store is not configured")
	}
	if limit <= 0 {
		return nil, core.NewBadInput("claim limit must be positive")
	}

	var candidates []jobRecord
	err := s.db.NewSelect().
		Model(&candidates).
		Where("?TableAlias.status = ?", string(core.JobStatusQueued)).
		Where("?TableAlias.run_at <= ?", now.UTC()).
		OrderExpr("?TableAlias.run_at ASC, ?TableAlias.id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	claimed := make([]core.Job, 0, len(candidates))
	for i := range candidates {
		record := candidates[i]
		res, err := s.db.NewUpdate().
			Model((*jobRecord)(nil)).
			Set("status = ?", string(core.JobStatusRunning)).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", record.ID).
			Where("status = ?", string(core.JobStatusQueued)).
			Exec(ctx)
		if err != nil {
			return claimed, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return claimed, err
		}
		// Zero rows means another scheduler won the claim; skip it.
		if affected == 0 {
			continue
		}
		record.Status = string(core.JobStatusRunning)
		claimed = append(claimed, record.toDomain())
	}
	return claimed, nil
}

func (s *JobStore) MarkCompleted(ctx context.Context, id string, attempts int) error {
	return s.finish(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", string(core.JobStatusCompleted)).
			Set("attempts = ?", attempts).
			Set("last_error = ?", "")
	})
}

func (s *JobStore) MarkRetry(ctx context.Context, id string, attempts int, runAt time.Time, lastError string) error {
	return s.finish(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", string(core.JobStatusQueued)).
			Set("attempts = ?", attempts).
			Set("run_at = ?", runAt.UTC()).
			Set("last_error = ?", truncateError(lastError))
	})
}

func (s *JobStore) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	return s.finish(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", string(core.JobStatusFailed)).
			Set("attempts = ?", attempts).
			Set("last_error = ?", truncateError(lastError))
	})
}

func (s *JobStore) finish(ctx context.Context, id string, apply func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: job store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.NewBadInput("job id is required")
	}

	query := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)
	res, err := apply(query).Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewNotFound(fmt.Sprintf("job %s not found", id))
	}
	return nil
}

const maxJobErrorBytes = 1024

func truncateError(message string) string {
	message = strings.TrimSpace(message)
	if len(message) > maxJobErrorBytes {
		return message[:maxJobErrorBytes]
	}
	return message
}

func jobToRecord(job core.Job) *jobRecord {
	return &jobRecord{
		ID:          job.ID,
		Type:        string(job.Type),
		Payload:     copyAnyMap(job.Payload),
		Status:      string(job.Status),
		RunAt:       job.RunAt.UTC(),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		LastError:   job.LastError,
	}
}

func (r *jobRecord) toDomain() core.Job {
	if r == nil {
		return core.Job{}
	}
	return core.Job{
		ID:          r.ID,
		Type:        core.JobType(r.Type),
		Payload:     copyAnyMap(r.Payload),
		Status:      core.JobStatus(r.Status),
		RunAt:       r.RunAt,
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		LastError:   r.LastError,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

var _ core.JobStore = (*JobStore)(nil)
