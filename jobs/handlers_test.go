package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-sendgate/core"
)

type stubSyncer struct {
	refs    []core.SubaccountRef
	failFor map[string]bool
	synced  []string
}

func (s *stubSyncer) ListSubaccounts(context.Context) ([]core.SubaccountRef, error) {
	return s.refs, nil
}

func (s *stubSyncer) SyncUsage(_ context.Context, ownerID string, subaccount string) (core.UsageSnapshot, error) {
	if s.failFor[subaccount] {
		return core.UsageSnapshot{}, fmt.Errorf("provider unavailable")
	}
	s.synced = append(s.synced, ownerID+"/"+subaccount)
	return core.UsageSnapshot{OwnerID: ownerID, Subaccount: subaccount}, nil
}

func TestUsageSyncContinuesPastFailingSubaccount(t *testing.T) {
	syncer := &stubSyncer{
		refs: []core.SubaccountRef{
			{OwnerID: "o1", Subaccount: "a1"},
			{OwnerID: "o1", Subaccount: "a2"},
			{OwnerID: "o2", Subaccount: "b1"},
		},
		failFor: map[string]bool{"a2": true},
	}
	handler := &UsageSyncHandler{Syncer: syncer}

	if err := handler.Execute(context.Background(), core.Job{}); err != nil {
		t.Fatalf("partial failure must not fail the job: %v", err)
	}
	if len(syncer.synced) != 2 {
		t.Fatalf("expected 2 synced subaccounts, got %v", syncer.synced)
	}
}

func TestUsageSyncFailsWhenNothingSynced(t *testing.T) {
	syncer := &stubSyncer{
		refs:    []core.SubaccountRef{{OwnerID: "o1", Subaccount: "a1"}},
		failFor: map[string]bool{"a1": true},
	}
	handler := &UsageSyncHandler{Syncer: syncer}

	if err := handler.Execute(context.Background(), core.Job{}); err == nil {
		t.Fatalf("expected error when every subaccount fails")
	}
}

func TestUsageSyncNoSubaccounts(t *testing.T) {
	handler := &UsageSyncHandler{Syncer: &stubSyncer{}}
	if err := handler.Execute(context.Background(), core.Job{}); err != nil {
		t.Fatalf("empty fleet should be a no-op: %v", err)
	}
}

type stubVerifier struct {
	handles []string
	err     error
}

func (v *stubVerifier) ValidateWebhook(_ context.Context, handle string) error {
	if v.err != nil {
		return v.err
	}
	v.handles = append(v.handles, handle)
	return nil
}

func TestWebhookVerifyHandler(t *testing.T) {
	verifier := &stubVerifier{}
	handler := &WebhookVerifyHandler{Verifier: verifier}

	job := core.Job{Payload: map[string]any{"subaccount": "acct-1"}}
	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(verifier.handles) != 1 || verifier.handles[0] != "acct-1" {
		t.Fatalf("expected verification for acct-1, got %v", verifier.handles)
	}

	if err := handler.Execute(context.Background(), core.Job{}); err == nil {
		t.Fatalf("expected error on missing subaccount payload")
	}
}

type stubSweeper struct {
	olderThan time.Duration
	swept     int
	err       error
}

func (s *stubSweeper) SweepRetiring(_ context.Context, olderThan time.Duration) (int, error) {
	s.olderThan = olderThan
	return s.swept, s.err
}

func TestKeySweepHandlerDefaultsGrace(t *testing.T) {
	sweeper := &stubSweeper{swept: 3}
	handler := &KeySweepHandler{Sweeper: sweeper}

	if err := handler.Execute(context.Background(), core.Job{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sweeper.olderThan != defaultSweepGrace {
		t.Fatalf("expected default grace %v, got %v", defaultSweepGrace, sweeper.olderThan)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	a := &scriptedHandler{jobType: core.JobTypeUsageSync}
	b := &scriptedHandler{jobType: core.JobTypeUsageSync}

	if _, err := NewRegistry(a, b); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
