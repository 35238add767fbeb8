package sendgate

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-job/queue"

	"github.com/goliatone/go-sendgate/adapters/gojob"
	"github.com/goliatone/go-sendgate/adapters/gologger"
	sendgatecommand "github.com/goliatone/go-sendgate/command"
	"github.com/goliatone/go-sendgate/core"
	"github.com/goliatone/go-sendgate/jobs"
	"github.com/goliatone/go-sendgate/policy"
	"github.com/goliatone/go-sendgate/ratelimit"
	"github.com/goliatone/go-sendgate/rotation"
	"github.com/goliatone/go-sendgate/webhooks"
)

// StoreProvider is the slice of the repository factory the service needs.
// *sqlstore.RepositoryFactory satisfies it.
type StoreProvider interface {
	PolicyStore() core.PolicyStore
	SendLogStore() core.SendLogStore
	RateCounterStore() core.RateCounterStore
	CredentialStore() core.CredentialStore
	JobStore() core.JobStore
	WebhookEventStore() core.WebhookEventStore
	UsageStore() core.UsageStore
}

type Dependencies struct {
	Stores         StoreProvider
	Provider       core.MailProviderAPI
	Cipher         core.SecretCipher
	Locker         core.Locker
	Logger         core.Logger
	LoggerProvider core.LoggerProvider
	Config         core.Config
}

// Service wires the policy engine, the key rotation manager, the webhook
// ingestor and the job queue over one store provider. It satisfies every
// command-layer mutating contract.
type Service struct {
	deps     Dependencies
	engine   *policy.Engine
	manager  *rotation.Manager
	ingestor *webhooks.Ingestor
	queue    *jobs.Queue
}

func New(deps Dependencies) (*Service, error) {
	if deps.Stores == nil {
		return nil, fmt.Errorf("sendgate: store provider is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("sendgate: mail provider is required")
	}
	cfg := deps.Config
	if cfg == (core.Config{}) {
		cfg = core.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	deps.Config = cfg

	locker := deps.Locker
	if locker == nil {
		locker = core.NewMemoryLocker()
	}

	// Every component logs through the same resolved instance.
	_, logger := gologger.Resolve(cfg.ServiceName, deps.LoggerProvider, deps.Logger)
	deps.Logger = logger

	service := &Service{deps: deps}
	service.engine = policy.NewEngine(
		deps.Stores.PolicyStore(),
		deps.Stores.SendLogStore(),
		ratelimit.NewFixedWindowLimiter(deps.Stores.RateCounterStore()),
	)
	service.manager = &rotation.Manager{
		Store:          deps.Stores.CredentialStore(),
		Provider:       deps.Provider,
		Usage:          deps.Stores.UsageStore(),
		Cipher:         deps.Cipher,
		Locker:         locker,
		Logger:         deps.Logger,
		LockTTL:        cfg.Rotation.LockTTL(),
		PersistRawKeys: cfg.Rotation.PersistRawKeys,
		Now:            func() time.Time { return time.Now().UTC() },
	}
	service.ingestor = webhooks.NewIngestor(deps.Stores.WebhookEventStore())
	service.queue = jobs.NewQueue(deps.Stores.JobStore())
	service.queue.Tolerance = cfg.Scheduler.Tolerance()
	service.queue.MaxAttempts = cfg.Scheduler.MaxAttempts

	return service, nil
}

// EnforceSend runs every policy check for one candidate message.
func (s *Service) EnforceSend(ctx context.Context, ownerID string, msg core.Message) error {
	if s == nil || s.engine == nil {
		return fmt.Errorf("sendgate: service is not configured")
	}
	return s.engine.Enforce(ctx, ownerID, msg)
}

// RecordSend appends the accounting row after the provider accepted a send.
func (s *Service) RecordSend(ctx context.Context, ownerID string, msg core.Message, status string) (core.SendLogEntry, error) {
	if s == nil || s.engine == nil {
		return core.SendLogEntry{}, fmt.Errorf("sendgate: service is not configured")
	}
	return s.engine.RecordSend(ctx, ownerID, msg, status)
}

func (s *Service) Upsert(ctx context.Context, sendPolicy core.SendPolicy) (core.SendPolicy, error) {
	if s == nil || s.deps.Stores == nil {
		return core.SendPolicy{}, fmt.Errorf("sendgate: service is not configured")
	}
	return s.deps.Stores.PolicyStore().Upsert(ctx, sendPolicy)
}

func (s *Service) Provision(ctx context.Context, ownerID string, subaccount string) (rotation.RotationResult, error) {
	if s == nil || s.manager == nil {
		return rotation.RotationResult{}, fmt.Errorf("sendgate: service is not configured")
	}
	return s.manager.Provision(ctx, ownerID, subaccount)
}

func (s *Service) Rotate(ctx context.Context, ownerID string, subaccount string) (rotation.RotationResult, error) {
	if s == nil || s.manager == nil {
		return rotation.RotationResult{}, fmt.Errorf("sendgate: service is not configured")
	}
	return s.manager.Rotate(ctx, ownerID, subaccount)
}

func (s *Service) SyncUsage(ctx context.Context, ownerID string, subaccount string) (core.UsageSnapshot, error) {
	if s == nil || s.manager == nil {
		return core.UsageSnapshot{}, fmt.Errorf("sendgate: service is not configured")
	}
	return s.manager.SyncUsage(ctx, ownerID, subaccount)
}

func (s *Service) StoreEvent(ctx context.Context, in webhooks.IngestInput) (webhooks.StoreResult, error) {
	if s == nil || s.ingestor == nil {
		return webhooks.StoreResult{}, fmt.Errorf("sendgate: service is not configured")
	}
	return s.ingestor.StoreEvent(ctx, in)
}

func (s *Service) MarkWebhookProcessed(ctx context.Context, eventID string) error {
	if s == nil || s.ingestor == nil {
		return fmt.Errorf("sendgate: service is not configured")
	}
	return s.ingestor.MarkProcessed(ctx, eventID)
}

func (s *Service) Enqueue(ctx context.Context, jobType core.JobType, payload map[string]any, runAt time.Time) (core.Job, error) {
	if s == nil || s.queue == nil {
		return core.Job{}, fmt.Errorf("sendgate: service is not configured")
	}
	return s.queue.Enqueue(ctx, jobType, payload, runAt)
}

func (s *Service) EnqueueRecurring(ctx context.Context, jobType core.JobType, payload map[string]any, runAt time.Time) (core.Job, bool, error) {
	if s == nil || s.queue == nil {
		return core.Job{}, false, fmt.Errorf("sendgate: service is not configured")
	}
	return s.queue.EnqueueRecurring(ctx, jobType, payload, runAt)
}

// Scheduler builds the background scheduler with every built-in job handler
// registered. Callers own the Run loop.
func (s *Service) Scheduler() (*jobs.Scheduler, error) {
	if s == nil || s.deps.Stores == nil {
		return nil, fmt.Errorf("sendgate: service is not configured")
	}

	registry, err := s.buildRegistry()
	if err != nil {
		return nil, err
	}

	scheduler := jobs.NewScheduler(s.deps.Stores.JobStore(), registry)
	scheduler.Logger = s.deps.Logger
	scheduler.Queue = s.queue
	scheduler.TickInterval = s.deps.Config.Scheduler.TickInterval()
	scheduler.ClaimBatchSize = s.deps.Config.Scheduler.ClaimBatchSize
	scheduler.RetryBackoff = s.deps.Config.Scheduler.RetryBackoff()
	interval := s.deps.Config.Scheduler.RecurringInterval()
	scheduler.Recurring = []jobs.RecurringJob{
		{Type: core.JobTypeUsageSync, Interval: interval},
		{Type: core.JobTypeWebhookVerify, Interval: interval},
		{Type: core.JobTypeKeySweep, Interval: interval},
	}
	return scheduler, nil
}

// QueueWorker builds a worker that consumes job deliveries from a go-job
// queue and dispatches them through the same handler registry the scheduler
// uses. Retry bounds come from the scheduler config.
func (s *Service) QueueWorker(dequeuer queue.Dequeuer) (*jobs.Worker, error) {
	if s == nil || s.deps.Stores == nil {
		return nil, fmt.Errorf("sendgate: service is not configured")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("sendgate: queue dequeuer is required")
	}

	registry, err := s.buildRegistry()
	if err != nil {
		return nil, err
	}

	retryPolicy := gojob.RetryPolicy{
		MaxAttempts:     s.deps.Config.Scheduler.MaxAttempts,
		MaxDelay:        s.deps.Config.Scheduler.RetryBackoff(),
		DeadLetterOnMax: true,
	}
	worker := jobs.NewWorker(gojob.NewDequeuerAdapter(dequeuer, retryPolicy), registry)
	worker.Logger = s.deps.Logger
	worker.RetryBackoff = s.deps.Config.Scheduler.RetryBackoff()
	return worker, nil
}

func (s *Service) buildRegistry() (*jobs.Registry, error) {
	return jobs.NewRegistry(
		&jobs.UsageSyncHandler{Syncer: s.manager, Logger: s.deps.Logger},
		&jobs.WebhookVerifyHandler{Verifier: s.deps.Provider},
		&jobs.KeySweepHandler{Sweeper: s.manager, Logger: s.deps.Logger},
	)
}

// MutatingService is everything the command layer needs from one service.
type MutatingService interface {
	sendgatecommand.PolicyMutatingService
	sendgatecommand.CredentialMutatingService
	sendgatecommand.WebhookMutatingService
	sendgatecommand.JobMutatingService
}

type Commands struct {
	UpsertSendPolicy    *sendgatecommand.UpsertSendPolicyCommand
	ProvisionSubaccount *sendgatecommand.ProvisionSubaccountCommand
	RotateCredential    *sendgatecommand.RotateCredentialCommand
	IngestWebhook       *sendgatecommand.IngestWebhookCommand
	EnqueueJob          *sendgatecommand.EnqueueJobCommand
}

type Facade struct {
	service  MutatingService
	commands Commands
}

func NewFacade(service MutatingService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("sendgate: mutating service is required")
	}
	facade := &Facade{service: service}
	facade.commands = Commands{
		UpsertSendPolicy:    sendgatecommand.NewUpsertSendPolicyCommand(service),
		ProvisionSubaccount: sendgatecommand.NewProvisionSubaccountCommand(service),
		RotateCredential:    sendgatecommand.NewRotateCredentialCommand(service),
		IngestWebhook:       sendgatecommand.NewIngestWebhookCommand(service),
		EnqueueJob:          sendgatecommand.NewEnqueueJobCommand(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Service() MutatingService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ MutatingService = (*Service)(nil)
