package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-sendgate/core"
	"github.com/goliatone/go-sendgate/rotation"
	"github.com/goliatone/go-sendgate/webhooks"
)

type PolicyMutatingService interface {
	Upsert(ctx context.Context, policy core.SendPolicy) (core.SendPolicy, error)
}

type CredentialMutatingService interface {
	Provision(ctx context.Context, ownerID string, subaccount string) (rotation.RotationResult, error)
	Rotate(ctx context.Context, ownerID string, subaccount string) (rotation.RotationResult, error)
}

type WebhookMutatingService interface {
	StoreEvent(ctx context.Context, in webhooks.IngestInput) (webhooks.StoreResult, error)
}

type JobMutatingService interface {
	Enqueue(ctx context.Context, jobType core.JobType, payload map[string]any, runAt time.Time) (core.Job, error)
	EnqueueRecurring(ctx context.Context, jobType core.JobType, payload map[string]any, runAt time.Time) (core.Job, bool, error)
}

// EnqueueJobResult reports the persisted job and whether this call created it.
// Created is false only for recurring enqueues that found a pending duplicate.
type EnqueueJobResult struct {
	Job     core.Job
	Created bool
}

type UpsertSendPolicyCommand struct {
	service PolicyMutatingService
}

func NewUpsertSendPolicyCommand(service PolicyMutatingService) *UpsertSendPolicyCommand {
	return &UpsertSendPolicyCommand{service: service}
}

func (c *UpsertSendPolicyCommand) Execute(ctx context.Context, msg UpsertSendPolicyMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: policy service is required")
	}
	out, err := c.service.Upsert(ctx, msg.Policy)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ProvisionSubaccountCommand struct {
	service CredentialMutatingService
}

func NewProvisionSubaccountCommand(service CredentialMutatingService) *ProvisionSubaccountCommand {
	return &ProvisionSubaccountCommand{service: service}
}

func (c *ProvisionSubaccountCommand) Execute(ctx context.Context, msg ProvisionSubaccountMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	out, err := c.service.Provision(ctx, msg.OwnerID, msg.Subaccount)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RotateCredentialCommand struct {
	service CredentialMutatingService
}

func NewRotateCredentialCommand(service CredentialMutatingService) *RotateCredentialCommand {
	return &RotateCredentialCommand{service: service}
}

func (c *RotateCredentialCommand) Execute(ctx context.Context, msg RotateCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	out, err := c.service.Rotate(ctx, msg.OwnerID, msg.Subaccount)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type IngestWebhookCommand struct {
	service WebhookMutatingService
}

func NewIngestWebhookCommand(service WebhookMutatingService) *IngestWebhookCommand {
	return &IngestWebhookCommand{service: service}
}

func (c *IngestWebhookCommand) Execute(ctx context.Context, msg IngestWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.StoreEvent(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type EnqueueJobCommand struct {
	service JobMutatingService
}

func NewEnqueueJobCommand(service JobMutatingService) *EnqueueJobCommand {
	return &EnqueueJobCommand{service: service}
}

func (c *EnqueueJobCommand) Execute(ctx context.Context, msg EnqueueJobMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: job service is required")
	}
	if msg.Recurring {
		job, created, err := c.service.EnqueueRecurring(ctx, msg.JobType, msg.Payload, msg.RunAt)
		if err != nil {
			return err
		}
		storeResult(ctx, EnqueueJobResult{Job: job, Created: created})
		return nil
	}
	job, err := c.service.Enqueue(ctx, msg.JobType, msg.Payload, msg.RunAt)
	if err != nil {
		return err
	}
	storeResult(ctx, EnqueueJobResult{Job: job, Created: true})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
