package sendgate

import (
	"context"
	"fmt"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	sendgatecommand "github.com/goliatone/go-sendgate/command"
	"github.com/goliatone/go-sendgate/core"
	"github.com/goliatone/go-sendgate/rotation"
	"github.com/goliatone/go-sendgate/webhooks"
)

func TestNewFacadeWiresEveryCommand(t *testing.T) {
	facade, err := NewFacade(stubMutatingService{})
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.UpsertSendPolicy == nil {
		t.Fatalf("expected upsert policy command")
	}
	if commands.ProvisionSubaccount == nil {
		t.Fatalf("expected provision subaccount command")
	}
	if commands.RotateCredential == nil {
		t.Fatalf("expected rotate credential command")
	}
	if commands.IngestWebhook == nil {
		t.Fatalf("expected ingest webhook command")
	}
	if commands.EnqueueJob == nil {
		t.Fatalf("expected enqueue job command")
	}
	if facade.Service() == nil {
		t.Fatalf("expected service accessor")
	}
}

func TestNewFacadeRequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected error for nil service")
	}
}

func TestFacadeCommandsExecuteAgainstService(t *testing.T) {
	svc := stubMutatingService{
		rotateFn: func(_ context.Context, ownerID string, subaccount string) (rotation.RotationResult, error) {
			if ownerID != "owner-1" || subaccount != "sub-a" {
				return rotation.RotationResult{}, fmt.Errorf("unexpected rotate args")
			}
			return rotation.RotationResult{Redacted: "sgk-***ed"}, nil
		},
	}
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	collector := gocmd.NewResult[rotation.RotationResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := facade.Commands().RotateCredential.Execute(ctx, sendgatecommand.RotateCredentialMessage{
		OwnerID:    "owner-1",
		Subaccount: "sub-a",
	}); err != nil {
		t.Fatalf("execute rotate via facade: %v", err)
	}
	stored, ok := collector.Load()
	if !ok {
		t.Fatalf("expected rotation result")
	}
	if stored.Redacted != "sgk-***ed" {
		t.Fatalf("unexpected rotation result: %#v", stored)
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	if _, err := New(Dependencies{}); err == nil {
		t.Fatalf("expected error for missing stores")
	}
	if _, err := New(Dependencies{Stores: stubStoreProvider{}}); err == nil {
		t.Fatalf("expected error for missing provider")
	}
	if _, err := New(Dependencies{
		Stores:   stubStoreProvider{},
		Provider: stubProviderAPI{},
		Config:   core.Config{ServiceName: "sendgate"},
	}); err == nil {
		t.Fatalf("expected config validation error")
	}
}

func TestNewBuildsSchedulerWithHandlers(t *testing.T) {
	service, err := New(Dependencies{
		Stores:   stubStoreProvider{},
		Provider: stubProviderAPI{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	scheduler, err := service.Scheduler()
	if err != nil {
		t.Fatalf("build scheduler: %v", err)
	}
	if scheduler.TickInterval != 30*time.Second {
		t.Fatalf("expected default tick interval, got %s", scheduler.TickInterval)
	}
	if scheduler.ClaimBatchSize != 5 {
		t.Fatalf("expected default batch size, got %d", scheduler.ClaimBatchSize)
	}
	if len(scheduler.Recurring) != len(core.KnownJobTypes()) {
		t.Fatalf("expected every built-in job type recurring, got %d", len(scheduler.Recurring))
	}
	for _, recurring := range scheduler.Recurring {
		if recurring.Interval != time.Hour {
			t.Fatalf("expected default hourly recurrence for %s, got %s", recurring.Type, recurring.Interval)
		}
	}
}

func TestQueueWorkerConsumesBrokerDeliveries(t *testing.T) {
	service, err := New(Dependencies{
		Stores:   stubStoreProvider{},
		Provider: stubProviderAPI{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	delivery := &brokerDelivery{msg: &job.ExecutionMessage{
		JobID:      "job-1",
		ScriptPath: string(core.JobTypeWebhookVerify),
		Parameters: map[string]any{"subaccount": "acct-1"},
	}}
	worker, err := service.QueueWorker(&brokerDequeuer{delivery: delivery})
	if err != nil {
		t.Fatalf("build worker: %v", err)
	}
	if worker.RetryBackoff != time.Minute {
		t.Fatalf("expected config retry backoff, got %s", worker.RetryBackoff)
	}

	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected verified webhook delivery to ack")
	}

	if _, err := service.QueueWorker(nil); err == nil {
		t.Fatalf("expected nil dequeuer rejection")
	}
}

type brokerDequeuer struct {
	delivery queue.Delivery
}

func (d *brokerDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return d.delivery, nil
}

type brokerDelivery struct {
	msg   *job.ExecutionMessage
	acked bool
}

func (d *brokerDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *brokerDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *brokerDelivery) Nack(context.Context, queue.NackOptions) error {
	return nil
}

type stubMutatingService struct {
	rotateFn func(ctx context.Context, ownerID string, subaccount string) (rotation.RotationResult, error)
}

func (s stubMutatingService) Upsert(context.Context, core.SendPolicy) (core.SendPolicy, error) {
	return core.SendPolicy{}, nil
}

func (s stubMutatingService) Provision(context.Context, string, string) (rotation.RotationResult, error) {
	return rotation.RotationResult{}, nil
}

func (s stubMutatingService) Rotate(ctx context.Context, ownerID string, subaccount string) (rotation.RotationResult, error) {
	if s.rotateFn == nil {
		return rotation.RotationResult{}, nil
	}
	return s.rotateFn(ctx, ownerID, subaccount)
}

func (s stubMutatingService) StoreEvent(context.Context, webhooks.IngestInput) (webhooks.StoreResult, error) {
	return webhooks.StoreResult{}, nil
}

func (s stubMutatingService) Enqueue(context.Context, core.JobType, map[string]any, time.Time) (core.Job, error) {
	return core.Job{}, nil
}

func (s stubMutatingService) EnqueueRecurring(context.Context, core.JobType, map[string]any, time.Time) (core.Job, bool, error) {
	return core.Job{}, false, nil
}

type stubStoreProvider struct{}

func (stubStoreProvider) PolicyStore() core.PolicyStore             { return nil }
func (stubStoreProvider) SendLogStore() core.SendLogStore           { return nil }
func (stubStoreProvider) RateCounterStore() core.RateCounterStore   { return nil }
func (stubStoreProvider) CredentialStore() core.CredentialStore     { return nil }
func (stubStoreProvider) JobStore() core.JobStore                   { return nil }
func (stubStoreProvider) WebhookEventStore() core.WebhookEventStore { return nil }
func (stubStoreProvider) UsageStore() core.UsageStore               { return nil }

type stubProviderAPI struct{}

func (stubProviderAPI) CreateSubaccount(context.Context, string, string) error { return nil }
func (stubProviderAPI) SuspendSubaccount(context.Context, string) error        { return nil }
func (stubProviderAPI) ActivateSubaccount(context.Context, string) error       { return nil }
func (stubProviderAPI) SetSendLimit(context.Context, string, int) error        { return nil }
func (stubProviderAPI) DeleteSendLimit(context.Context, string) error          { return nil }

func (stubProviderAPI) MintKey(context.Context, string) (core.ProviderKey, error) {
	return core.ProviderKey{}, nil
}

func (stubProviderAPI) DeleteKey(context.Context, string, string) error { return nil }

func (stubProviderAPI) GetUsage(context.Context, string) (core.ProviderUsage, error) {
	return core.ProviderUsage{}, nil
}

func (stubProviderAPI) Send(context.Context, string, core.Message) (string, error) {
	return "", nil
}

func (stubProviderAPI) ValidateWebhook(context.Context, string) error { return nil }

var (
	_ MutatingService      = stubMutatingService{}
	_ StoreProvider        = stubStoreProvider{}
	_ core.MailProviderAPI = stubProviderAPI{}
)
