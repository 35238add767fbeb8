package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-sendgate/core"
)

// DedupeKey derives the globally unique identity of a provider event.
// Normalization keeps providers that vary header casing or pad identifiers
// from defeating dedup.
func DedupeKey(provider string, providerEventID string, eventType string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	providerEventID = strings.TrimSpace(providerEventID)
	eventType = strings.ToLower(strings.TrimSpace(eventType))
	sum := sha256.Sum256([]byte(provider + "|" + providerEventID + "|" + eventType))
	return hex.EncodeToString(sum[:])
}

// IngestInput is one inbound provider callback before admission.
type IngestInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	OwnerID         string
	Payload         map[string]any
}

// StoreResult reports the admission decision. Duplicate means the event was
// already admitted earlier; Event is always the surviving row.
type StoreResult struct {
	Event     core.WebhookEvent
	Duplicate bool
}

// Ingestor admits provider events exactly once. The store's unique
// constraint on the dedupe key is the decision point; there is no
// check-then-insert window.
type Ingestor struct {
	Store core.WebhookEventStore
	Now   func() time.Time
}

func NewIngestor(store core.WebhookEventStore) *Ingestor {
	return &Ingestor{
		Store: store,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// StoreEvent inserts the event, surfacing a duplicate as a successful result
// rather than an error so providers that retry deliveries always get an ack.
func (i *Ingestor) StoreEvent(ctx context.Context, in IngestInput) (StoreResult, error) {
	if i == nil || i.Store == nil {
		return StoreResult{}, fmt.Errorf("webhooks: ingestor store is not configured")
	}

	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	eventID := strings.TrimSpace(in.ProviderEventID)
	eventType := strings.ToLower(strings.TrimSpace(in.EventType))
	if provider == "" {
		return StoreResult{}, core.NewBadInput("webhook provider is required")
	}
	if eventID == "" {
		return StoreResult{}, core.NewBadInput("webhook provider event id is required")
	}
	if eventType == "" {
		return StoreResult{}, core.NewBadInput("webhook event type is required")
	}

	event := core.WebhookEvent{
		ID:              uuid.NewString(),
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       eventType,
		DedupeKey:       DedupeKey(provider, eventID, eventType),
		OwnerID:         strings.TrimSpace(in.OwnerID),
		Payload:         in.Payload,
		ReceivedAt:      i.now(),
	}

	stored, duplicate, err := i.Store.Insert(ctx, event)
	if err != nil {
		return StoreResult{}, err
	}
	return StoreResult{Event: stored, Duplicate: duplicate}, nil
}

// MarkProcessed stamps the event after downstream handling. The stamp is
// set-once; replays keep the original processing time.
func (i *Ingestor) MarkProcessed(ctx context.Context, eventID string) error {
	if i == nil || i.Store == nil {
		return fmt.Errorf("webhooks: ingestor store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return core.NewBadInput("webhook event id is required")
	}
	return i.Store.MarkProcessed(ctx, eventID, i.now())
}

func (i *Ingestor) now() time.Time {
	if i != nil && i.Now != nil {
		return i.Now().UTC()
	}
	return time.Now().UTC()
}
