package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-sendgate/core"
)

// Handler executes one claimed job. Returning an error requests a retry; the
// scheduler owns the retry-or-fail bookkeeping.
type Handler interface {
	Type() core.JobType
	Execute(ctx context.Context, job core.Job) error
}

// Registry is the fixed dispatch table the scheduler consults. Jobs with a
// type no handler claims are failed immediately rather than retried.
type Registry struct {
	handlers map[core.JobType]Handler
}

func NewRegistry(handlers ...Handler) (*Registry, error) {
	registry := &Registry{handlers: map[core.JobType]Handler{}}
	for _, handler := range handlers {
		if handler == nil {
			return nil, fmt.Errorf("jobs: nil handler in registry")
		}
		jobType := handler.Type()
		if err := jobType.Validate(); err != nil {
			return nil, err
		}
		if _, exists := registry.handlers[jobType]; exists {
			return nil, fmt.Errorf("jobs: duplicate handler for type %q", string(jobType))
		}
		registry.handlers[jobType] = handler
	}
	return registry, nil
}

func (r *Registry) Lookup(jobType core.JobType) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	handler, ok := r.handlers[jobType]
	return handler, ok
}

// UsageSyncer is the slice of the rotation manager the usage-sync job needs.
type UsageSyncer interface {
	ListSubaccounts(ctx context.Context) ([]core.SubaccountRef, error)
	SyncUsage(ctx context.Context, ownerID string, subaccount string) (core.UsageSnapshot, error)
}

// UsageSyncHandler refreshes usage snapshots for every provisioned
// subaccount. One failing subaccount does not block the rest; the job only
// fails when no subaccount could be synced.
type UsageSyncHandler struct {
	Syncer UsageSyncer
	Logger core.Logger
}

func (h *UsageSyncHandler) Type() core.JobType { return core.JobTypeUsageSync }

func (h *UsageSyncHandler) Execute(ctx context.Context, _ core.Job) error {
	if h == nil || h.Syncer == nil {
		return fmt.Errorf("jobs: usage syncer is not configured")
	}

	refs, err := h.Syncer.ListSubaccounts(ctx)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}

	synced := 0
	var lastErr error
	for _, ref := range refs {
		if _, err := h.Syncer.SyncUsage(ctx, ref.OwnerID, ref.Subaccount); err != nil {
			lastErr = err
			h.logger().Warn("usage sync skipped subaccount",
				"owner_id", ref.OwnerID,
				"subaccount", ref.Subaccount,
				"error", err,
			)
			continue
		}
		synced++
	}
	if synced == 0 && lastErr != nil {
		return fmt.Errorf("jobs: usage sync failed for all %d subaccounts: %w", len(refs), lastErr)
	}
	return nil
}

func (h *UsageSyncHandler) logger() core.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return glog.Nop()
}

// WebhookVerifier is the slice of the mail provider the verify job needs.
type WebhookVerifier interface {
	ValidateWebhook(ctx context.Context, handle string) error
}

// WebhookVerifyHandler asks the provider to confirm its webhook endpoint for
// the subaccount named in the payload.
type WebhookVerifyHandler struct {
	Verifier WebhookVerifier
}

func (h *WebhookVerifyHandler) Type() core.JobType { return core.JobTypeWebhookVerify }

func (h *WebhookVerifyHandler) Execute(ctx context.Context, job core.Job) error {
	if h == nil || h.Verifier == nil {
		return fmt.Errorf("jobs: webhook verifier is not configured")
	}
	subaccount := payloadString(job.Payload, "subaccount")
	if subaccount == "" {
		return core.NewBadInput("webhook verify job requires a subaccount payload field")
	}
	return h.Verifier.ValidateWebhook(ctx, subaccount)
}

// KeySweeper is the slice of the rotation manager the key-sweep job needs.
type KeySweeper interface {
	SweepRetiring(ctx context.Context, olderThan time.Duration) (int, error)
}

const defaultSweepGrace = 24 * time.Hour

// KeySweepHandler revokes retiring keys past the grace window.
type KeySweepHandler struct {
	Sweeper KeySweeper
	Grace   time.Duration
	Logger  core.Logger
}

func (h *KeySweepHandler) Type() core.JobType { return core.JobTypeKeySweep }

func (h *KeySweepHandler) Execute(ctx context.Context, _ core.Job) error {
	if h == nil || h.Sweeper == nil {
		return fmt.Errorf("jobs: key sweeper is not configured")
	}
	grace := h.Grace
	if grace <= 0 {
		grace = defaultSweepGrace
	}
	swept, err := h.Sweeper.SweepRetiring(ctx, grace)
	if err != nil {
		return err
	}
	if swept > 0 {
		h.logger().Info("retiring keys swept", "count", swept)
	}
	return nil
}

func (h *KeySweepHandler) logger() core.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return glog.Nop()
}

func payloadString(payload map[string]any, key string) string {
	if len(payload) == 0 {
		return ""
	}
	value, ok := payload[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

var (
	_ Handler = (*UsageSyncHandler)(nil)
	_ Handler = (*WebhookVerifyHandler)(nil)
	_ Handler = (*KeySweepHandler)(nil)
)
