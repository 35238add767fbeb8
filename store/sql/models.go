package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type sendPolicyRecord struct {
	bun.BaseModel `bun:"table:send_policies,alias:sp"`

	ID                      string    `bun:"id,pk"`
	OwnerID                 string    `bun:"owner_id,notnull,unique"`
	MaxRecipientsPerMessage int       `bun:"max_recipients_per_message,notnull"`
	PerMinuteLimit          int       `bun:"per_minute_limit,notnull"`
	DailyCap                int       `bun:"daily_cap,notnull"`
	RequiredHeaders         []string  `bun:"required_headers,type:jsonb,notnull"`
	AllowList               []string  `bun:"allow_list,type:jsonb,notnull"`
	DenyList                []string  `bun:"deny_list,type:jsonb,notnull"`
	CreatedAt               time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt               time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type sendLogRecord struct {
	bun.BaseModel `bun:"table:send_log,alias:sl"`

	ID         string    `bun:"id,pk"`
	OwnerID    string    `bun:"owner_id,notnull"`
	Recipients int       `bun:"recipients,notnull"`
	Status     string    `bun:"status,notnull"`
	SentAt     time.Time `bun:"sent_at,nullzero,notnull"`
}

type rateCounterRecord struct {
	bun.BaseModel `bun:"table:rate_counters,alias:rc"`

	ID        string    `bun:"id,pk"`
	OwnerID   string    `bun:"owner_id,notnull"`
	WindowKey string    `bun:"window_key,notnull"`
	Count     int       `bun:"count,notnull"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type subaccountKeyRecord struct {
	bun.BaseModel `bun:"table:subaccount_keys,alias:sk"`

	ID               string    `bun:"id,pk"`
	OwnerID          string    `bun:"owner_id,notnull"`
	Subaccount       string    `bun:"subaccount,notnull"`
	ProviderKeyID    string    `bun:"provider_key_id,notnull"`
	Redacted         string    `bun:"redacted,notnull"`
	EncryptedPayload []byte    `bun:"encrypted_payload"`
	Status           string    `bun:"status,notnull"`
	RevocationReason string    `bun:"revocation_reason"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type jobRecord struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID          string         `bun:"id,pk"`
	Type        string         `bun:"type,notnull"`
	Payload     map[string]any `bun:"payload,type:jsonb,notnull"`
	Status      string         `bun:"status,notnull"`
	RunAt       time.Time      `bun:"run_at,nullzero,notnull"`
	Attempts    int            `bun:"attempts,notnull"`
	MaxAttempts int            `bun:"max_attempts,notnull"`
	LastError   string         `bun:"last_error"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookEventRecord struct {
	bun.BaseModel `bun:"table:webhook_events,alias:we"`

	ID              string         `bun:"id,pk"`
	Provider        string         `bun:"provider,notnull"`
	ProviderEventID string         `bun:"provider_event_id,notnull"`
	EventType       string         `bun:"event_type,notnull"`
	DedupeKey       string         `bun:"dedupe_key,notnull,unique"`
	OwnerID         string         `bun:"owner_id"`
	Payload         map[string]any `bun:"payload,type:jsonb,notnull"`
	ReceivedAt      time.Time      `bun:"received_at,nullzero,notnull"`
	ProcessedAt     *time.Time     `bun:"processed_at,nullzero"`
}

type usageSnapshotRecord struct {
	bun.BaseModel `bun:"table:usage_snapshots,alias:us"`

	ID         string    `bun:"id,pk"`
	OwnerID    string    `bun:"owner_id,notnull"`
	Subaccount string    `bun:"subaccount,notnull"`
	SentToday  int       `bun:"sent_today,notnull"`
	SentMonth  int       `bun:"sent_month,notnull"`
	CapturedAt time.Time `bun:"captured_at,nullzero,notnull"`
}
