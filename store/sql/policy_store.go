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

// PolicyStore persists one policy row per owner with upsert semantics.
type PolicyStore struct {
	db   *bun.DB
	repo repository.Repository[*sendPolicyRecord]
}

func NewPolicyStore(db *bun.DB) (*PolicyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*sendPolicyRecord](db, sendPolicyHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid send-policy repository wiring: %w", err)
		}
	}
	return &PolicyStore{db: db, repo: repo}, nil
}

func (s *PolicyStore) Get(ctx context.Context, ownerID string) (core.SendPolicy, error) {
	if s == nil || s.db == nil {
		return core.SendPolicy{}, fmt.Errorf("sqlstore: policy store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return core.SendPolicy{}, core.NewBadInput("owner id is required")
	}

	record := &sendPolicyRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.owner_id = ?", ownerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.SendPolicy{}, core.NewNotFound(fmt.Sprintf("send policy for owner %s not found", ownerID))
		}
		return core.SendPolicy{}, err
	}
	return record.toDomain(), nil
}

func (s *PolicyStore) Upsert(ctx context.Context, policy core.SendPolicy) (core.SendPolicy, error) {
	if s == nil || s.db == nil {
		return core.SendPolicy{}, fmt.Errorf("sqlstore: policy store is not configured")
	}
	policy.OwnerID = strings.TrimSpace(policy.OwnerID)
	if err := policy.Validate(); err != nil {
		return core.SendPolicy{}, core.NewBadInput(err.Error())
	}

	now := time.Now().UTC()
	var out core.SendPolicy
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &sendPolicyRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.owner_id = ?", policy.OwnerID).
			Limit(1).
			Scan(ctx)
		if err != nil && err != sql.ErrNoRows {
			return err
		}

		if err == sql.ErrNoRows {
			record := policyToRecord(policy)
			record.ID = uuid.NewString()
			record.CreatedAt = now
			record.UpdatedAt = now
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			return nil
		}

		updated := policyToRecord(policy)
		updated.ID = existing.ID
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().
			Model(updated).
			Where("id = ?", updated.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = updated.toDomain()
		return nil
	})
	if err != nil {
		return core.SendPolicy{}, err
	}
	return out, nil
}

func policyToRecord(policy core.SendPolicy) *sendPolicyRecord {
	return &sendPolicyRecord{
		OwnerID:                 policy.OwnerID,
		MaxRecipientsPerMessage: policy.MaxRecipientsPerMessage,
		PerMinuteLimit:          policy.PerMinuteLimit,
		DailyCap:                policy.DailyCap,
		RequiredHeaders:         copyStringSlice(policy.RequiredHeaders),
		AllowList:               copyStringSlice(policy.AllowList),
		DenyList:                copyStringSlice(policy.DenyList),
	}
}

func (r *sendPolicyRecord) toDomain() core.SendPolicy {
	if r == nil {
		return core.SendPolicy{}
	}
	return core.SendPolicy{
		OwnerID:                 r.OwnerID,
		MaxRecipientsPerMessage: r.MaxRecipientsPerMessage,
		PerMinuteLimit:          r.PerMinuteLimit,
		DailyCap:                r.DailyCap,
		RequiredHeaders:         copyStringSlice(r.RequiredHeaders),
		AllowList:               copyStringSlice(r.AllowList),
		DenyList:                copyStringSlice(r.DenyList),
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
}

var _ core.PolicyStore = (*PolicyStore)(nil)
