package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// PolicyStore persists one SendPolicy per owner with upsert semantics.
type PolicyStore interface {
	Get(ctx context.Context, ownerID string) (SendPolicy, error)
	Upsert(ctx context.Context, policy SendPolicy) (SendPolicy, error)
}

// SendLogStore appends accepted-send records and answers the daily-cap count.
type SendLogStore interface {
	Append(ctx context.Context, entry SendLogEntry) (SendLogEntry, error)
	CountSince(ctx context.Context, ownerID string, since time.Time) (int, error)
}

// RateCounterStore backs the fixed-window limiter. Increment must be atomic
// per (ownerID, windowKey): insert count=1 when absent, increment while the
// counter is below limit, and report false without incrementing at the limit.
type RateCounterStore interface {
	Increment(ctx context.Context, ownerID string, windowKey string, limit int) (bool, error)
}

// RotateCredentialInput carries the new key row written during rotation.
// The store demotes the current active row to retiring and inserts this one
// as active inside a single transaction.
type RotateCredentialInput struct {
	OwnerID       string
	Subaccount    string
	ProviderKeyID string
	Redacted      string
	Encrypted     []byte
}

type CredentialStore interface {
	ListBySubaccount(ctx context.Context, ownerID string, subaccount string) ([]Credential, error)
	Rotate(ctx context.Context, in RotateCredentialInput) (Credential, error)
	MarkRevoked(ctx context.Context, id string, reason string) error
	ListSubaccounts(ctx context.Context) ([]SubaccountRef, error)
}

// JobStore persists queue state. ClaimDue must claim via a conditional
// queued->running update so concurrent schedulers never run the same job.
type JobStore interface {
	Create(ctx context.Context, job Job) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	HasPending(ctx context.Context, jobType JobType, before time.Time) (bool, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
	MarkCompleted(ctx context.Context, id string, attempts int) error
	MarkRetry(ctx context.Context, id string, attempts int, runAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id string, attempts int, lastError string) error
}

// WebhookEventStore admits provider events exactly once. Insert reports
// duplicate=true when the dedupe key already exists; a unique-constraint
// race loser must resolve to the surviving row, never to an error.
type WebhookEventStore interface {
	Insert(ctx context.Context, event WebhookEvent) (WebhookEvent, bool, error)
	FindByDedupeKey(ctx context.Context, dedupeKey string) (WebhookEvent, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
}

type UsageStore interface {
	Put(ctx context.Context, snapshot UsageSnapshot) (UsageSnapshot, error)
	Get(ctx context.Context, ownerID string, subaccount string) (UsageSnapshot, error)
}

// MailProviderAPI is the upstream sending provider. Transport timeouts and
// retries belong to the injected HTTP client, not to this contract.
type MailProviderAPI interface {
	CreateSubaccount(ctx context.Context, ownerID string, handle string) error
	SuspendSubaccount(ctx context.Context, handle string) error
	ActivateSubaccount(ctx context.Context, handle string) error
	SetSendLimit(ctx context.Context, handle string, limit int) error
	DeleteSendLimit(ctx context.Context, handle string) error
	MintKey(ctx context.Context, handle string) (ProviderKey, error)
	DeleteKey(ctx context.Context, handle string, keyID string) error
	GetUsage(ctx context.Context, handle string) (ProviderUsage, error)
	Send(ctx context.Context, handle string, message Message) (string, error)
	ValidateWebhook(ctx context.Context, handle string) error
}

// Pod is an inbox-provider workspace grouping domains and inboxes.
type Pod struct {
	ID   string
	Name string
}

type InboxDomain struct {
	ID    string
	PodID string
	Name  string
}

type Inbox struct {
	ID       string
	DomainID string
	Address  string
}

type Thread struct {
	ID      string
	InboxID string
	Subject string
}

type InboxMessage struct {
	ID       string
	ThreadID string
	From     string
	Body     string
}

// InboxProviderAPI is the upstream inbox/pod provider.
type InboxProviderAPI interface {
	ListPods(ctx context.Context) ([]Pod, error)
	CreatePod(ctx context.Context, name string) (Pod, error)
	ListDomains(ctx context.Context, podID string) ([]InboxDomain, error)
	CreateDomain(ctx context.Context, podID string, name string) (InboxDomain, error)
	ListInboxes(ctx context.Context, domainID string) ([]Inbox, error)
	CreateInbox(ctx context.Context, domainID string, address string) (Inbox, error)
	ListThreads(ctx context.Context, inboxID string) ([]Thread, error)
	GetMessage(ctx context.Context, messageID string) (InboxMessage, error)
	Reply(ctx context.Context, messageID string, body string) (InboxMessage, error)
}

// SecretCipher is the at-rest encryption collaborator for persisted raw keys.
type SecretCipher interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// JobExecutionMessage is the wire form of one job execution handed to an
// external queue transport. IdempotencyKey lets brokers collapse duplicate
// submissions of the same persisted job.
type JobExecutionMessage struct {
	JobID          string
	JobType        string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// Locker serializes concurrent rotations on the same subaccount.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}
