package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-sendgate/core"
)

// SendLogStore is append-only; rows are the daily-cap count source of truth
// and are never updated or deleted.
type SendLogStore struct {
	db   *bun.DB
	repo repository.Repository[*sendLogRecord]
}

func NewSendLogStore(db *bun.DB) (*SendLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*sendLogRecord](db, sendLogHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid send-log repository wiring: %w", err)
		}
	}
	return &SendLogStore{db: db, repo: repo}, nil
}

func (s *SendLogStore) Append(ctx context.Context, entry core.SendLogEntry) (core.SendLogEntry, error) {
	if s == nil || s.repo == nil {
		return core.SendLogEntry{}, fmt.Errorf("sqlstore: send-log store is not configured")
	}
	entry.OwnerID = strings.TrimSpace(entry.OwnerID)
	if entry.OwnerID == "" {
		return core.SendLogEntry{}, core.NewBadInput("owner id is required")
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}
	if strings.TrimSpace(entry.Status) == "" {
		entry.Status = core.SendStatusQueued
	}

	record := &sendLogRecord{
		ID:         entry.ID,
		OwnerID:    entry.OwnerID,
		Recipients: entry.Recipients,
		Status:     entry.Status,
		SentAt:     entry.SentAt.UTC(),
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.SendLogEntry{}, err
	}
	return created.toDomain(), nil
}

func (s *SendLogStore) CountSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: send-log store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return 0, core.NewBadInput("owner id is required")
	}

	count, err := s.db.NewSelect().
		Model((*sendLogRecord)(nil)).
		Where("?TableAlias.owner_id = ?", ownerID).
		Where("?TableAlias.sent_at >= ?", since.UTC()).
		Count(ctx)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *sendLogRecord) toDomain() core.SendLogEntry {
	if r == nil {
		return core.SendLogEntry{}
	}
	return core.SendLogEntry{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Recipients: r.Recipients,
		Status:     r.Status,
		SentAt:     r.SentAt,
	}
}

var _ core.SendLogStore = (*SendLogStore)(nil)
