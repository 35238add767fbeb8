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

// CredentialStore persists subaccount provider keys. Rotation demotes the
// active row and inserts the replacement inside one transaction so readers
// never observe zero live keys for a provisioned subaccount.
type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*subaccountKeyRecord]
}

func NewCredentialStore(db *bun.DB) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subaccountKeyRecord](db, subaccountKeyHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subaccount-key repository wiring: %w", err)
		}
	}
	return &CredentialStore{db: db, repo: repo}, nil
}

func (s *CredentialStore) ListBySubaccount(ctx context.Context, ownerID string, subaccount string) ([]core.Credential, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	subaccount = strings.TrimSpace(subaccount)
	if ownerID == "" || subaccount == "" {
		return nil, core.NewBadInput("owner id and subaccount are required")
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("owner_id", "=", ownerID),
		repository.SelectBy("subaccount", "=", subaccount),
		repository.OrderBy("created_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Credential, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *CredentialStore) Rotate(ctx context.Context, in core.RotateCredentialInput) (core.Credential, error) {
	if s == nil || s.db == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.Subaccount = strings.TrimSpace(in.Subaccount)
	in.ProviderKeyID = strings.TrimSpace(in.ProviderKeyID)
	if in.OwnerID == "" || in.Subaccount == "" {
		return core.Credential{}, core.NewBadInput("owner id and subaccount are required")
	}
	if in.ProviderKeyID == "" {
		return core.Credential{}, core.NewBadInput("provider key id is required")
	}

	now := time.Now().UTC()
	var out core.Credential
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model((*subaccountKeyRecord)(nil)).
			Set("status = ?", string(core.CredentialStatusRetiring)).
			Set("updated_at = ?", now).
			Where("owner_id = ?", in.OwnerID).
			Where("subaccount = ?", in.Subaccount).
			Where("status = ?", string(core.CredentialStatusActive)).
			Exec(ctx); err != nil {
			return err
		}

		record := &subaccountKeyRecord{
			ID:               uuid.NewString(),
			OwnerID:          in.OwnerID,
			Subaccount:       in.Subaccount,
			ProviderKeyID:    in.ProviderKeyID,
			Redacted:         strings.TrimSpace(in.Redacted),
			EncryptedPayload: copyBytes(in.Encrypted),
			Status:           string(core.CredentialStatusActive),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return err
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Credential{}, err
	}
	return out, nil
}

func (s *CredentialStore) MarkRevoked(ctx context.Context, id string, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.NewBadInput("credential id is required")
	}

	res, err := s.db.NewUpdate().
		Model((*subaccountKeyRecord)(nil)).
		Set("status = ?", string(core.CredentialStatusRevoked)).
		Set("revocation_reason = ?", strings.TrimSpace(reason)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status != ?", string(core.CredentialStatusRevoked)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewNotFound(fmt.Sprintf("credential %s not found or already revoked", id))
	}
	return nil
}

func (s *CredentialStore) ListSubaccounts(ctx context.Context) ([]core.SubaccountRef, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}

	var records []subaccountKeyRecord
	err := s.db.NewSelect().
		Model(&records).
		ColumnExpr("DISTINCT ?TableAlias.owner_id, ?TableAlias.subaccount").
		OrderExpr("?TableAlias.owner_id ASC, ?TableAlias.subaccount ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]core.SubaccountRef, 0, len(records))
	for _, record := range records {
		refs = append(refs, core.SubaccountRef{OwnerID: record.OwnerID, Subaccount: record.Subaccount})
	}
	return refs, nil
}

func (r *subaccountKeyRecord) toDomain() core.Credential {
	if r == nil {
		return core.Credential{}
	}
	return core.Credential{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Subaccount:    r.Subaccount,
		ProviderKeyID: r.ProviderKeyID,
		Redacted:      r.Redacted,
		Encrypted:     copyBytes(r.EncryptedPayload),
		Status:        core.CredentialStatus(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

var _ core.CredentialStore = (*CredentialStore)(nil)
