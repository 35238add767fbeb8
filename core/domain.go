package core

import (
	"fmt"
	"strings"
	"time"
)

// Message is the outbound payload a caller wants to push through a
// provider subaccount. Header names are matched case-insensitively.
type Message struct {
	From    string
	To      []string
	Headers map[string]string
	Subject string
	Body    string
}

// SendPolicy holds the per-instance limits and recipient rules the policy
// engine enforces before a send reaches the upstream provider. Exactly one
// policy row exists per owner; writes go through upsert semantics.
type SendPolicy struct {
	OwnerID                 string
	MaxRecipientsPerMessage int
	PerMinuteLimit          int
	DailyCap                int
	RequiredHeaders         []string
	AllowList               []string
	DenyList                []string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (p SendPolicy) Validate() error {
	if strings.TrimSpace(p.OwnerID) == "" {
		return fmt.Errorf("core: policy owner id is required")
	}
	if p.MaxRecipientsPerMessage <= 0 {
		return fmt.Errorf("core: max recipients per message must be positive")
	}
	if p.PerMinuteLimit <= 0 {
		return fmt.Errorf("core: per-minute limit must be positive")
	}
	if p.DailyCap <= 0 {
		return fmt.Errorf("core: daily cap must be positive")
	}
	return nil
}

const (
	SendStatusQueued = "queued"
	SendStatusSent   = "sent"
	SendStatusFailed = "failed"
)

// SendLogEntry is the append-only accounting record for an accepted send.
// The daily-cap check counts these rows; nothing ever mutates or deletes them.
type SendLogEntry struct {
	ID         string
	OwnerID    string
	Recipients int
	Status     string
	SentAt     time.Time
}

type CredentialStatus string

const (
	CredentialStatusActive   CredentialStatus = "active"
	CredentialStatusRetiring CredentialStatus = "retiring"
	CredentialStatusRevoked  CredentialStatus = "revoked"
)

// Credential mirrors one provider API key for a subaccount. At most one
// active credential exists per (owner, subaccount); during rotation a single
// retiring credential may coexist with the new active one. Revoked is terminal.
type Credential struct {
	ID            string
	OwnerID       string
	Subaccount    string
	ProviderKeyID string
	Redacted      string
	Encrypted     []byte
	Status        CredentialStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SubaccountRef identifies one provisioned sending identity.
type SubaccountRef struct {
	OwnerID    string
	Subaccount string
}

type JobType string

const (
	JobTypeUsageSync     JobType = "sendgate.usage_sync"
	JobTypeWebhookVerify JobType = "sendgate.webhook_verify"
	JobTypeKeySweep      JobType = "sendgate.key_sweep"
)

// KnownJobTypes lists every job type the scheduler registry may dispatch.
func KnownJobTypes() []JobType {
	return []JobType{JobTypeUsageSync, JobTypeWebhookVerify, JobTypeKeySweep}
}

func (t JobType) Validate() error {
	switch t {
	case JobTypeUsageSync, JobTypeWebhookVerify, JobTypeKeySweep:
		return nil
	}
	return fmt.Errorf("core: unknown job type %q", string(t))
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

const DefaultJobMaxAttempts = 3

// Job is a persisted unit of background work. Legal transitions are
// queued->running->completed, running->queued (retry while attempts remain)
// and running->failed (attempts exhausted). Rows are kept after terminal
// states for audit.
type Job struct {
	ID          string
	Type        JobType
	Payload     map[string]any
	Status      JobStatus
	RunAt       time.Time
	Attempts    int
	MaxAttempts int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WebhookEvent is one admitted provider callback. DedupeKey is globally
// unique; insertion is the dedup decision point.
type WebhookEvent struct {
	ID              string
	Provider        string
	ProviderEventID string
	EventType       string
	DedupeKey       string
	OwnerID         string
	Payload         map[string]any
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
}

// UsageSnapshot holds the last provider-reported usage for a subaccount.
// The usage-sync job overwrites it wholesale, so repeating the sync is harmless.
type UsageSnapshot struct {
	ID         string
	OwnerID    string
	Subaccount string
	SentToday  int
	SentMonth  int
	CapturedAt time.Time
}

// ProviderKey is a freshly minted upstream API key. Value is only ever
// returned once, for one-time display or encrypted persistence.
type ProviderKey struct {
	ID    string
	Value string
}

// ProviderUsage is the usage report read back from the mail provider.
type ProviderUsage struct {
	SentToday int
	SentMonth int
}
