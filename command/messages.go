package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-sendgate/core"
	"github.com/goliatone/go-sendgate/webhooks"
)

const (
	TypeUpsertSendPolicy    = "sendgate.command.policy.upsert"
	TypeProvisionSubaccount = "sendgate.command.subaccount.provision"
	TypeRotateCredential    = "sendgate.command.credential.rotate"
	TypeIngestWebhook       = "sendgate.command.webhook.ingest"
	TypeEnqueueJob          = "sendgate.command.job.enqueue"
)

type UpsertSendPolicyMessage struct {
	Policy core.SendPolicy
}

func (UpsertSendPolicyMessage) Type() string { return TypeUpsertSendPolicy }

func (m UpsertSendPolicyMessage) Validate() error {
	if err := m.Policy.Validate(); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}

type ProvisionSubaccountMessage struct {
	OwnerID    string
	Subaccount string
}

func (ProvisionSubaccountMessage) Type() string { return TypeProvisionSubaccount }

func (m ProvisionSubaccountMessage) Validate() error {
	if strings.TrimSpace(m.OwnerID) == "" {
		return fmt.Errorf("command: owner id is required")
	}
	if strings.TrimSpace(m.Subaccount) == "" {
		return fmt.Errorf("command: subaccount is required")
	}
	return nil
}

type RotateCredentialMessage struct {
	OwnerID    string
	Subaccount string
}

func (RotateCredentialMessage) Type() string { return TypeRotateCredential }

func (m RotateCredentialMessage) Validate() error {
	if strings.TrimSpace(m.OwnerID) == "" {
		return fmt.Errorf("command: owner id is required")
	}
	if strings.TrimSpace(m.Subaccount) == "" {
		return fmt.Errorf("command: subaccount is required")
	}
	return nil
}

type IngestWebhookMessage struct {
	Input webhooks.IngestInput
}

func (IngestWebhookMessage) Type() string { return TypeIngestWebhook }

func (m IngestWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Input.Provider) == "" {
		return fmt.Errorf("command: webhook provider is required")
	}
	if strings.TrimSpace(m.Input.ProviderEventID) == "" {
		return fmt.Errorf("command: webhook provider event id is required")
	}
	if strings.TrimSpace(m.Input.EventType) == "" {
		return fmt.Errorf("command: webhook event type is required")
	}
	return nil
}

type EnqueueJobMessage struct {
	JobType   core.JobType
	Payload   map[string]any
	RunAt     time.Time
	Recurring bool
}

func (EnqueueJobMessage) Type() string { return TypeEnqueueJob }

func (m EnqueueJobMessage) Validate() error {
	if err := m.JobType.Validate(); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}
