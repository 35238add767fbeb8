package rotation

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-sendgate/core"
)

const defaultLockTTL = 30 * time.Second

// RotationResult carries the one-time raw key value alongside the persisted
// credential row. The raw value is never stored unless PersistRawKeys is set,
// so callers must surface it immediately.
type RotationResult struct {
	KeyValue   string
	Redacted   string
	Credential core.Credential
}

// ReconcileFunc is invoked after a successful rotation so deployments can
// propagate the new key to dependent systems. A nil func is a no-op.
type ReconcileFunc func(ctx context.Context, cred core.Credential) error

// Manager owns the provider-key lifecycle for subaccounts. Rotation keeps at
// most two generations in flight: the new key goes live as active, the
// previous active is demoted to retiring, and any older retiring key is
// deleted upstream and revoked locally before the mint happens.
type Manager struct {
	Store          core.CredentialStore
	Provider       core.MailProviderAPI
	Usage          core.UsageStore
	Cipher         core.SecretCipher
	Locker         core.Locker
	Logger         core.Logger
	LockTTL        time.Duration
	PersistRawKeys bool
	Reconcile      ReconcileFunc
	Now            func() time.Time
}

func NewManager(store core.CredentialStore, provider core.MailProviderAPI) *Manager {
	return &Manager{
		Store:    store,
		Provider: provider,
		Locker:   core.NewMemoryLocker(),
		LockTTL:  defaultLockTTL,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Provision creates the upstream subaccount and mints its first key.
func (m *Manager) Provision(ctx context.Context, ownerID string, subaccount string) (RotationResult, error) {
	if err := m.ready(); err != nil {
		return RotationResult{}, err
	}
	ownerID = strings.TrimSpace(ownerID)
	subaccount = strings.TrimSpace(subaccount)
	if ownerID == "" || subaccount == "" {
		return RotationResult{}, core.NewBadInput("owner id and subaccount are required")
	}

	if err := m.Provider.CreateSubaccount(ctx, ownerID, subaccount); err != nil {
		return RotationResult{}, err
	}
	return m.mintAndStore(ctx, ownerID, subaccount)
}

// Rotate mints a replacement key for an existing subaccount. The previous
// active key stays valid as retiring so in-flight senders keep working until
// the next rotation sweeps it.
func (m *Manager) Rotate(ctx context.Context, ownerID string, subaccount string) (RotationResult, error) {
	if err := m.ready(); err != nil {
		return RotationResult{}, err
	}
	ownerID = strings.TrimSpace(ownerID)
	subaccount = strings.TrimSpace(subaccount)
	if ownerID == "" || subaccount == "" {
		return RotationResult{}, core.NewBadInput("owner id and subaccount are required")
	}

	unlock := func() {}
	if m.Locker != nil {
		handle, err := m.Locker.Acquire(ctx, "rotate:"+ownerID+"/"+subaccount, m.lockTTL())
		if err != nil {
			return RotationResult{}, core.MapError(err)
		}
		unlock = func() { _ = handle.Unlock(ctx) }
	}
	defer unlock()

	existing, err := m.Store.ListBySubaccount(ctx, ownerID, subaccount)
	if err != nil {
		return RotationResult{}, err
	}
	live := liveCredentials(existing)
	if len(live) == 0 {
		return RotationResult{}, core.NewNotFound(fmt.Sprintf("no credential provisioned for subaccount %s", subaccount))
	}

	// Two generations maximum: sweep the oldest live key before minting.
	// Upstream deletion goes first so a provider failure aborts the rotation
	// instead of leaving a locally revoked key still live at the provider.
	if len(live) >= 2 {
		oldest := live[len(live)-1]
		if err := m.Provider.DeleteKey(ctx, subaccount, oldest.ProviderKeyID); err != nil {
			return RotationResult{}, err
		}
		if err := m.Store.MarkRevoked(ctx, oldest.ID, "superseded"); err != nil {
			return RotationResult{}, err
		}
		m.logger().Info("revoked superseded key",
			"subaccount", subaccount,
			"provider_key_id", oldest.ProviderKeyID,
		)
	}

	return m.mintAndStore(ctx, ownerID, subaccount)
}

// SyncUsage reads the provider usage report and overwrites the local
// snapshot. Repeating a sync is harmless.
func (m *Manager) SyncUsage(ctx context.Context, ownerID string, subaccount string) (core.UsageSnapshot, error) {
	if err := m.ready(); err != nil {
		return core.UsageSnapshot{}, err
	}
	if m.Usage == nil {
		return core.UsageSnapshot{}, fmt.Errorf("rotation: usage store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	subaccount = strings.TrimSpace(subaccount)
	if ownerID == "" || subaccount == "" {
		return core.UsageSnapshot{}, core.NewBadInput("owner id and subaccount are required")
	}

	usage, err := m.Provider.GetUsage(ctx, subaccount)
	if err != nil {
		return core.UsageSnapshot{}, err
	}
	return m.Usage.Put(ctx, core.UsageSnapshot{
		OwnerID:    ownerID,
		Subaccount: subaccount,
		SentToday:  usage.SentToday,
		SentMonth:  usage.SentMonth,
		CapturedAt: m.now(),
	})
}

// SweepRetiring revokes retiring keys that have outlived the grace window.
// Upstream deletion goes first, same as in Rotate; a provider failure skips
// that key and leaves it for the next sweep.
func (m *Manager) SweepRetiring(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	if olderThan <= 0 {
		return 0, core.NewBadInput("sweep grace window must be positive")
	}

	refs, err := m.Store.ListSubaccounts(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := m.now().Add(-olderThan)
	swept := 0
	for _, ref := range refs {
		creds, err := m.Store.ListBySubaccount(ctx, ref.OwnerID, ref.Subaccount)
		if err != nil {
			return swept, err
		}
		for _, cred := range creds {
			if cred.Status != core.CredentialStatusRetiring {
				continue
			}
			age := cred.UpdatedAt
			if age.IsZero() {
				age = cred.CreatedAt
			}
			if age.After(cutoff) {
				continue
			}
			if err := m.Provider.DeleteKey(ctx, ref.Subaccount, cred.ProviderKeyID); err != nil {
				m.logger().Warn("retiring key sweep skipped",
					"subaccount", ref.Subaccount,
					"provider_key_id", cred.ProviderKeyID,
					"error", err,
				)
				continue
			}
			if err := m.Store.MarkRevoked(ctx, cred.ID, "expired"); err != nil {
				return swept, err
			}
			swept++
		}
	}
	return swept, nil
}

// ListSubaccounts exposes the provisioned identities for sweep-style jobs.
func (m *Manager) ListSubaccounts(ctx context.Context) ([]core.SubaccountRef, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.Store.ListSubaccounts(ctx)
}

func (m *Manager) mintAndStore(ctx context.Context, ownerID string, subaccount string) (RotationResult, error) {
	key, err := m.Provider.MintKey(ctx, subaccount)
	if err != nil {
		return RotationResult{}, err
	}

	var encrypted []byte
	if m.PersistRawKeys {
		if m.Cipher == nil {
			return RotationResult{}, fmt.Errorf("rotation: raw key persistence requires a cipher")
		}
		encrypted, err = m.Cipher.Encrypt(ctx, []byte(key.Value))
		if err != nil {
			return RotationResult{}, err
		}
	}

	redacted := redactKey(key.Value)
	cred, err := m.Store.Rotate(ctx, core.RotateCredentialInput{
		OwnerID:       ownerID,
		Subaccount:    subaccount,
		ProviderKeyID: key.ID,
		Redacted:      redacted,
		Encrypted:     encrypted,
	})
	if err != nil {
		return RotationResult{}, err
	}

	if m.Reconcile != nil {
		if err := m.Reconcile(ctx, cred); err != nil {
			m.logger().Warn("post-rotation reconcile failed",
				"subaccount", subaccount,
				"error", err,
			)
		}
	}

	m.logger().Info("rotated provider key",
		"owner_id", ownerID,
		"subaccount", subaccount,
		"redacted", redacted,
	)
	return RotationResult{KeyValue: key.Value, Redacted: redacted, Credential: cred}, nil
}

func (m *Manager) ready() error {
	if m == nil {
		return fmt.Errorf("rotation: manager is not configured")
	}
	if m.Store == nil {
		return fmt.Errorf("rotation: credential store is not configured")
	}
	if m.Provider == nil {
		return fmt.Errorf("rotation: mail provider is not configured")
	}
	return nil
}

func (m *Manager) lockTTL() time.Duration {
	if m != nil && m.LockTTL > 0 {
		return m.LockTTL
	}
	return defaultLockTTL
}

func (m *Manager) now() time.Time {
	if m != nil && m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Manager) logger() core.Logger {
	if m != nil && m.Logger != nil {
		return m.Logger
	}
	return glog.Nop()
}

// liveCredentials filters to active and retiring rows, preserving the
// store's newest-first ordering.
func liveCredentials(creds []core.Credential) []core.Credential {
	out := make([]core.Credential, 0, len(creds))
	for _, cred := range creds {
		switch cred.Status {
		case core.CredentialStatusActive, core.CredentialStatusRetiring:
			out = append(out, cred)
		}
	}
	return out
}

// redactKey keeps the first four and last two characters visible, enough for
// operators to match a key against the provider dashboard.
func redactKey(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= 6 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", len(value)-6) + value[len(value)-2:]
}
