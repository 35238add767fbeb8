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

// UsageStore keeps one snapshot per (owner, subaccount), overwritten
// wholesale on each sync.
type UsageStore struct {
	db   *bun.DB
	repo repository.Repository[*usageSnapshotRecord]
}

func NewUsageStore(db *bun.DB) (*UsageStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*usageSnapshotRecord](db, usageSnapshotHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid usage-snapshot repository wiring: %w", err)
		}
	}
	return &UsageStore{db: db, repo: repo}, nil
}

func (s *UsageStore) Put(ctx context.Context, snapshot core.UsageSnapshot) (core.UsageSnapshot, error) {
	if s == nil || s.db == nil {
		return core.UsageSnapshot{}, fmt.Errorf("sqlstore: usage store is not configured")
	}
	snapshot.OwnerID = strings.TrimSpace(snapshot.OwnerID)
	snapshot.Subaccount = strings.TrimSpace(snapshot.Subaccount)
	if snapshot.OwnerID == "" || snapshot.Subaccount == "" {
		return core.UsageSnapshot{}, core.NewBadInput("owner id and subaccount are required")
	}
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = time.Now().UTC()
	}

	var out core.UsageSnapshot
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &usageSnapshotRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.owner_id = ?", snapshot.OwnerID).
			Where("?TableAlias.subaccount = ?", snapshot.Subaccount).
			Limit(1).
			Scan(ctx)
		if err != nil && err != sql.ErrNoRows {
			return err
		}

		record := &usageSnapshotRecord{
			OwnerID:    snapshot.OwnerID,
			Subaccount: snapshot.Subaccount,
			SentToday:  snapshot.SentToday,
			SentMonth:  snapshot.SentMonth,
			CapturedAt: snapshot.CapturedAt.UTC(),
		}
		if err == sql.ErrNoRows {
			record.ID = uuid.NewString()
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
		} else {
			record.ID = existing.ID
			if _, updateErr := tx.NewUpdate().
				Model(record).
				Where("id = ?", record.ID).
				Exec(ctx); updateErr != nil {
				return updateErr
			}
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.UsageSnapshot{}, err
	}
	return out, nil
}

func (s *UsageStore) Get(ctx context.Context, ownerID string, subaccount string) (core.UsageSnapshot, error) {
	if s == nil || s.db == nil {
		return core.UsageSnapshot{}, fmt.Errorf("sqlstore: usage store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	subaccount = strings.TrimSpace(subaccount)
	if ownerID == "" || subaccount == "" {
		return core.UsageSnapshot{}, core.NewBadInput("owner id and subaccount are required")
	}

	record := &usageSnapshotRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.owner_id = ?", ownerID).
		Where("?TableAlias.subaccount = ?", subaccount).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.UsageSnapshot{}, core.NewNotFound(
				fmt.Sprintf("usage snapshot for %s/%s not found", ownerID, subaccount))
		}
		return core.UsageSnapshot{}, err
	}
	return record.toDomain(), nil
}

func (r *usageSnapshotRecord) toDomain() core.UsageSnapshot {
	if r == nil {
		return core.UsageSnapshot{}
	}
	return core.UsageSnapshot{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Subaccount: r.Subaccount,
		SentToday:  r.SentToday,
		SentMonth:  r.SentMonth,
		CapturedAt: r.CapturedAt,
	}
}

var _ core.UsageStore = (*UsageStore)(nil)
