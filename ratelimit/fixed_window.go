package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-sendgate/core"
)

// WindowKey names the one-minute fixed window containing at. Two sends in
// the same UTC minute share a key regardless of the caller's wall clock zone.
func WindowKey(at time.Time) string {
	return strconv.FormatInt(at.UTC().Unix()/60, 10)
}

type LimitExceededError struct {
	OwnerID   string
	WindowKey string
	Limit     int
}

func (e LimitExceededError) Error() string {
	return "Per-minute sending limit exceeded for this instance."
}

func (e LimitExceededError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ErrorRateLimited).
		WithMetadata(map[string]any{
			"owner_id":   strings.TrimSpace(e.OwnerID),
			"window_key": strings.TrimSpace(e.WindowKey),
			"limit":      e.Limit,
		})
}

// FixedWindowLimiter admits at most limit sends per owner per one-minute
// window. The counter resets implicitly at each minute boundary because a new
// window key starts a new row; up to 2x the limit can pass across a boundary
// and that burst is accepted behavior.
type FixedWindowLimiter struct {
	Store core.RateCounterStore
	Now   func() time.Time
}

func NewFixedWindowLimiter(store core.RateCounterStore) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		Store: store,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// Consume atomically takes one slot from the current window. A denied
// consume leaves the counter at the limit; nothing is ever rolled back.
func (l *FixedWindowLimiter) Consume(ctx context.Context, ownerID string, limit int) error {
	if l == nil || l.Store == nil {
		return fmt.Errorf("ratelimit: counter store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return fmt.Errorf("ratelimit: owner id is required")
	}
	if limit <= 0 {
		return fmt.Errorf("ratelimit: limit must be positive")
	}

	key := WindowKey(l.now())
	allowed, err := l.Store.Increment(ctx, ownerID, key, limit)
	if err != nil {
		return err
	}
	if !allowed {
		return LimitExceededError{OwnerID: ownerID, WindowKey: key, Limit: limit}.ToServiceError()
	}
	return nil
}

func (l *FixedWindowLimiter) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

type MemoryCounterStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counts: map[string]int{}}
}

func (s *MemoryCounterStore) Increment(_ context.Context, ownerID string, windowKey string, limit int) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("ratelimit: counter store is nil")
	}
	key := strings.TrimSpace(ownerID) + "|" + strings.TrimSpace(windowKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[key] >= limit {
		return false, nil
	}
	s.counts[key]++
	return true, nil
}

// Count reports the current counter for a window, for tests and diagnostics.
func (s *MemoryCounterStore) Count(ownerID string, windowKey string) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[strings.TrimSpace(ownerID)+"|"+strings.TrimSpace(windowKey)]
}

var _ core.RateCounterStore = (*MemoryCounterStore)(nil)
