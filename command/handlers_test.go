package command

import (
	"context"
	"fmt"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-sendgate/core"
	"github.com/goliatone/go-sendgate/rotation"
	"github.com/goliatone/go-sendgate/webhooks"
)

func TestUpsertSendPolicyCommand_DelegatesAndStoresResult(t *testing.T) {
	expected := core.SendPolicy{
		OwnerID:                 "owner-1",
		MaxRecipientsPerMessage: 10,
		PerMinuteLimit:          5,
		DailyCap:                100,
	}
	called := false
	svc := stubPolicyService{
		upsertFn: func(_ context.Context, policy core.SendPolicy) (core.SendPolicy, error) {
			called = true
			if policy.OwnerID != "owner-1" {
				t.Fatalf("expected owner-1, got %q", policy.OwnerID)
			}
			return expected, nil
		},
	}

	cmd := NewUpsertSendPolicyCommand(svc)
	collector := gocmd.NewResult[core.SendPolicy]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, UpsertSendPolicyMessage{Policy: expected}); err != nil {
		t.Fatalf("execute upsert policy: %v", err)
	}
	if !called {
		t.Fatalf("expected policy service invocation")
	}
	stored, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if stored.DailyCap != expected.DailyCap {
		t.Fatalf("unexpected result: %#v", stored)
	}
}

func TestCredentialCommands_DelegateToService(t *testing.T) {
	t.Run("provision", func(t *testing.T) {
		called := false
		svc := stubCredentialService{
			provisionFn: func(_ context.Context, ownerID string, subaccount string) (rotation.RotationResult, error) {
				called = true
				if ownerID != "owner-1" || subaccount != "sub-a" {
					t.Fatalf("unexpected provision args: %q %q", ownerID, subaccount)
				}
				return rotation.RotationResult{KeyValue: "sgk-raw", Redacted: "sgk-***aw"}, nil
			},
		}
		collector := gocmd.NewResult[rotation.RotationResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewProvisionSubaccountCommand(svc).Execute(ctx, ProvisionSubaccountMessage{
			OwnerID:    "owner-1",
			Subaccount: "sub-a",
		}); err != nil {
			t.Fatalf("execute provision: %v", err)
		}
		if !called {
			t.Fatalf("expected provision invocation")
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected provision result")
		}
		if stored.KeyValue != "sgk-raw" {
			t.Fatalf("unexpected provision result: %#v", stored)
		}
	})

	t.Run("rotate", func(t *testing.T) {
		called := false
		svc := stubCredentialService{
			rotateFn: func(_ context.Context, ownerID string, subaccount string) (rotation.RotationResult, error) {
				called = true
				return rotation.RotationResult{Credential: core.Credential{ID: "cred-2"}}, nil
			},
		}
		collector := gocmd.NewResult[rotation.RotationResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewRotateCredentialCommand(svc).Execute(ctx, RotateCredentialMessage{
			OwnerID:    "owner-1",
			Subaccount: "sub-a",
		}); err != nil {
			t.Fatalf("execute rotate: %v", err)
		}
		if !called {
			t.Fatalf("expected rotate invocation")
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected rotate result")
		}
		if stored.Credential.ID != "cred-2" {
			t.Fatalf("unexpected rotate result: %#v", stored)
		}
	})

	t.Run("nil service", func(t *testing.T) {
		if err := NewRotateCredentialCommand(nil).Execute(context.Background(), RotateCredentialMessage{
			OwnerID:    "owner-1",
			Subaccount: "sub-a",
		}); err == nil {
			t.Fatalf("expected dependency error for nil service")
		}
	})
}

func TestIngestWebhookCommand_DelegatesAndStoresResult(t *testing.T) {
	called := false
	svc := stubWebhookService{
		storeEventFn: func(_ context.Context, in webhooks.IngestInput) (webhooks.StoreResult, error) {
			called = true
			if in.Provider != "mailer" {
				t.Fatalf("unexpected provider %q", in.Provider)
			}
			return webhooks.StoreResult{
				Event:     core.WebhookEvent{ID: "evt-row-1"},
				Duplicate: true,
			}, nil
		},
	}

	collector := gocmd.NewResult[webhooks.StoreResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewIngestWebhookCommand(svc).Execute(ctx, IngestWebhookMessage{Input: webhooks.IngestInput{
		Provider:        "mailer",
		ProviderEventID: "evt-1",
		EventType:       "delivered",
	}}); err != nil {
		t.Fatalf("execute ingest webhook: %v", err)
	}
	if !called {
		t.Fatalf("expected webhook service invocation")
	}
	stored, ok := collector.Load()
	if !ok {
		t.Fatalf("expected ingest result")
	}
	if !stored.Duplicate || stored.Event.ID != "evt-row-1" {
		t.Fatalf("unexpected ingest result: %#v", stored)
	}
}

func TestEnqueueJobCommand_RoutesRecurringEnqueues(t *testing.T) {
	runAt := time.Now().UTC().Add(time.Minute)
	svc := stubJobService{
		enqueueFn: func(_ context.Context, jobType core.JobType, _ map[string]any, at time.Time) (core.Job, error) {
			if jobType != core.JobTypeUsageSync || !at.Equal(runAt) {
				return core.Job{}, fmt.Errorf("unexpected enqueue args")
			}
			return core.Job{ID: "job-1", Type: jobType}, nil
		},
		enqueueRecurringFn: func(_ context.Context, jobType core.JobType, _ map[string]any, _ time.Time) (core.Job, bool, error) {
			return core.Job{ID: "job-existing", Type: jobType}, false, nil
		},
	}

	collector := gocmd.NewResult[EnqueueJobResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewEnqueueJobCommand(svc).Execute(ctx, EnqueueJobMessage{
		JobType: core.JobTypeUsageSync,
		RunAt:   runAt,
	}); err != nil {
		t.Fatalf("execute enqueue: %v", err)
	}
	stored, ok := collector.Load()
	if !ok {
		t.Fatalf("expected enqueue result")
	}
	if !stored.Created || stored.Job.ID != "job-1" {
		t.Fatalf("unexpected enqueue result: %#v", stored)
	}

	recurringCollector := gocmd.NewResult[EnqueueJobResult]()
	recurringCtx := gocmd.ContextWithResult(context.Background(), recurringCollector)
	if err := NewEnqueueJobCommand(svc).Execute(recurringCtx, EnqueueJobMessage{
		JobType:   core.JobTypeUsageSync,
		RunAt:     runAt,
		Recurring: true,
	}); err != nil {
		t.Fatalf("execute recurring enqueue: %v", err)
	}
	recurring, ok := recurringCollector.Load()
	if !ok {
		t.Fatalf("expected recurring enqueue result")
	}
	if recurring.Created || recurring.Job.ID != "job-existing" {
		t.Fatalf("unexpected recurring result: %#v", recurring)
	}
}

func TestMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{
			name: "policy valid",
			msg: UpsertSendPolicyMessage{Policy: core.SendPolicy{
				OwnerID:                 "owner-1",
				MaxRecipientsPerMessage: 5,
				PerMinuteLimit:          2,
				DailyCap:                50,
			}},
			wantErr: false,
		},
		{
			name:    "policy missing owner",
			msg:     UpsertSendPolicyMessage{Policy: core.SendPolicy{MaxRecipientsPerMessage: 5, PerMinuteLimit: 2, DailyCap: 50}},
			wantErr: true,
		},
		{
			name:    "rotate missing subaccount",
			msg:     RotateCredentialMessage{OwnerID: "owner-1"},
			wantErr: true,
		},
		{
			name:    "provision valid",
			msg:     ProvisionSubaccountMessage{OwnerID: "owner-1", Subaccount: "sub-a"},
			wantErr: false,
		},
		{
			name:    "ingest missing event id",
			msg:     IngestWebhookMessage{Input: webhooks.IngestInput{Provider: "mailer", EventType: "delivered"}},
			wantErr: true,
		},
		{
			name:    "enqueue unknown job type",
			msg:     EnqueueJobMessage{JobType: core.JobType("sendgate.unknown")},
			wantErr: true,
		},
		{
			name:    "enqueue valid",
			msg:     EnqueueJobMessage{JobType: core.JobTypeKeySweep},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type stubPolicyService struct {
	upsertFn func(ctx context.Context, policy core.SendPolicy) (core.SendPolicy, error)
}

func (s stubPolicyService) Upsert(ctx context.Context, policy core.SendPolicy) (core.SendPolicy, error) {
	if s.upsertFn == nil {
		return core.SendPolicy{}, fmt.Errorf("upsert not configured")
	}
	return s.upsertFn(ctx, policy)
}

type stubCredentialService struct {
	provisionFn func(ctx context.Context, ownerID string, subaccount string) (rotation.RotationResult, error)
	rotateFn    func(ctx context.Context, ownerID string, subaccount string) (rotation.RotationResult, error)
}

func (s stubCredentialService) Provision(ctx context.Context, ownerID string, subaccount string) (rotation.RotationResult, error) {
	if s.provisionFn == nil {
		return rotation.RotationResult{}, fmt.Errorf("provision not configured")
	}
	return s.provisionFn(ctx, ownerID, subaccount)
}

func (s stubCredentialService) Rotate(ctx context.Context, ownerID string, subaccount string) (rotation.RotationResult, error) {
	if s.rotateFn == nil {
		return rotation.RotationResult{}, fmt.Errorf("rotate not configured")
	}
	return s.rotateFn(ctx, ownerID, subaccount)
}

type stubWebhookService struct {
	storeEventFn func(ctx context.Context, in webhooks.IngestInput) (webhooks.StoreResult, error)
}

func (s stubWebhookService) StoreEvent(ctx context.Context, in webhooks.IngestInput) (webhooks.StoreResult, error) {
	if s.storeEventFn == nil {
		return webhooks.StoreResult{}, fmt.Errorf("store event not configured")
	}
	return s.storeEventFn(ctx, in)
}

type stubJobService struct {
	enqueueFn          func(ctx context.Context, jobType core.JobType, payload map[string]any, runAt time.Time) (core.Job, error)
	enqueueRecurringFn func(ctx context.Context, jobType core.JobType, payload map[string]any, runAt time.Time) (core.Job, bool, error)
}

func (s stubJobService) Enqueue(ctx context.Context, jobType core.JobType, payload map[string]any, runAt time.Time) (core.Job, error) {
	if s.enqueueFn == nil {
		return core.Job{}, fmt.Errorf("enqueue not configured")
	}
	return s.enqueueFn(ctx, jobType, payload, runAt)
}

func (s stubJobService) EnqueueRecurring(ctx context.Context, jobType core.JobType, payload map[string]any, runAt time.Time) (core.Job, bool, error) {
	if s.enqueueRecurringFn == nil {
		return core.Job{}, false, fmt.Errorf("enqueue recurring not configured")
	}
	return s.enqueueRecurringFn(ctx, jobType, payload, runAt)
}

var (
	_ PolicyMutatingService     = stubPolicyService{}
	_ CredentialMutatingService = stubCredentialService{}
	_ WebhookMutatingService    = stubWebhookService{}
	_ JobMutatingService        = stubJobService{}
)
