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

// WebhookEventStore admits events through the unique constraint on
// dedupe_key: the insert either wins or resolves to the surviving row. There
// is no separate existence check to race against.
type WebhookEventStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEventRecord]
}

func NewWebhookEventStore(db *bun.DB) (*WebhookEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEventRecord](db, webhookEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook-event repository wiring: %w", err)
		}
	}
	return &WebhookEventStore{db: db, repo: repo}, nil
}

func (s *WebhookEventStore) Insert(ctx context.Context, event core.WebhookEvent) (core.WebhookEvent, bool, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, false, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	event.DedupeKey = strings.TrimSpace(event.DedupeKey)
	if event.DedupeKey == "" {
		return core.WebhookEvent{}, false, core.NewBadInput("webhook dedupe key is required")
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	record := eventToRecord(event)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, findErr := s.FindByDedupeKey(ctx, event.DedupeKey)
			if findErr != nil {
				return core.WebhookEvent{}, false, findErr
			}
			return existing, true, nil
		}
		return core.WebhookEvent{}, false, err
	}
	return record.toDomain(), false, nil
}

func (s *WebhookEventStore) FindByDedupeKey(ctx context.Context, dedupeKey string) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	dedupeKey = strings.TrimSpace(dedupeKey)
	if dedupeKey == "" {
		return core.WebhookEvent{}, core.NewBadInput("webhook dedupe key is required")
	}

	record := &webhookEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.dedupe_key = ?", dedupeKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.WebhookEvent{}, core.NewNotFound("webhook event not found")
		}
		return core.WebhookEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *WebhookEventStore) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.NewBadInput("webhook event id is required")
	}

	// Set-once: replays keep the original processing time.
	res, err := s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("processed_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("processed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	if _, err := res.RowsAffected(); err != nil {
		return err
	}
	exists, err := s.db.NewSelect().
		Model((*webhookEventRecord)(nil)).
		Where("?TableAlias.id = ?", id).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return core.NewNotFound(fmt.Sprintf("webhook event %s not found", id))
	}
	return nil
}

func eventToRecord(event core.WebhookEvent) *webhookEventRecord {
	return &webhookEventRecord{
		ID:              event.ID,
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.EventType,
		DedupeKey:       event.DedupeKey,
		OwnerID:         event.OwnerID,
		Payload:         copyAnyMap(event.Payload),
		ReceivedAt:      event.ReceivedAt.UTC(),
		ProcessedAt:     event.ProcessedAt,
	}
}

func (r *webhookEventRecord) toDomain() core.WebhookEvent {
	if r == nil {
		return core.WebhookEvent{}
	}
	return core.WebhookEvent{
		ID:              r.ID,
		Provider:        r.Provider,
		ProviderEventID: r.ProviderEventID,
		EventType:       r.EventType,
		DedupeKey:       r.DedupeKey,
		OwnerID:         r.OwnerID,
		Payload:         copyAnyMap(r.Payload),
		ReceivedAt:      r.ReceivedAt,
		ProcessedAt:     r.ProcessedAt,
	}
}

var _ core.WebhookEventStore = (*WebhookEventStore)(nil)
