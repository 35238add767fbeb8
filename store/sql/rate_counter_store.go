package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-sendgate/core"
)

// RateCounterStore backs the fixed-window limiter with one row per
// (owner, window). The conditional increment and the unique constraint on
// the pair make Increment atomic under concurrent senders: exactly limit
// increments succeed per window, and a denied call changes nothing.
type RateCounterStore struct {
	db *bun.DB
}

func NewRateCounterStore(db *bun.DB) (*RateCounterStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &RateCounterStore{db: db}, nil
}

func (s *RateCounterStore) Increment(ctx context.Context, ownerID string, windowKey string, limit int) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: rate counter store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	windowKey = strings.TrimSpace(windowKey)
	if ownerID == "" || windowKey == "" {
		return false, core.NewBadInput("owner id and window key are required")
	}
	if limit <= 0 {
		return false, core.NewBadInput("limit must be positive")
	}

	allowed := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		updated, err := incrementBelowLimitTx(ctx, tx, ownerID, windowKey, limit)
		if err != nil {
			return err
		}
		if updated {
			allowed = true
			return nil
		}

		exists, err := counterExistsTx(ctx, tx, ownerID, windowKey)
		if err != nil {
			return err
		}
		if exists {
			// Row is at the limit; reject without touching it.
			allowed = false
			return nil
		}

		record := &rateCounterRecord{
			ID:        uuid.NewString(),
			OwnerID:   ownerID,
			WindowKey: windowKey,
			Count:     1,
			UpdatedAt: time.Now().UTC(),
		}
		if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
			if !isUniqueViolation(insertErr) {
				return insertErr
			}
			// Lost the first-insert race; fall back to the conditional
			// increment against the winner's row.
			updated, retryErr := incrementBelowLimitTx(ctx, tx, ownerID, windowKey, limit)
			if retryErr != nil {
				return retryErr
			}
			allowed = updated
			return nil
		}
		allowed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// Count reports the current window counter, for diagnostics and tests.
func (s *RateCounterStore) Count(ctx context.Context, ownerID string, windowKey string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: rate counter store is not configured")
	}
	record := &rateCounterRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.owner_id = ?", strings.TrimSpace(ownerID)).
		Where("?TableAlias.window_key = ?", strings.TrimSpace(windowKey)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return record.Count, nil
}

func incrementBelowLimitTx(ctx context.Context, tx bun.Tx, ownerID string, windowKey string, limit int) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*rateCounterRecord)(nil)).
		Set("count = count + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("owner_id = ?", ownerID).
		Where("window_key = ?", windowKey).
		Where("count < ?", limit).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func counterExistsTx(ctx context.Context, tx bun.Tx, ownerID string, windowKey string) (bool, error) {
	return tx.NewSelect().
		Model((*rateCounterRecord)(nil)).
		Where("?TableAlias.owner_id = ?", ownerID).
		Where("?TableAlias.window_key = ?", windowKey).
		Exists(ctx)
}

var _ core.RateCounterStore = (*RateCounterStore)(nil)
