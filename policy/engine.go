package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-sendgate/core"
	"github.com/goliatone/go-sendgate/ratelimit"
)

// Engine is the synchronous send gate. Enforce runs the full check sequence
// against the owner's policy; RecordSend writes the accounting entry after
// the upstream provider accepted the message.
type Engine struct {
	Policies core.PolicyStore
	SendLog  core.SendLogStore
	Limiter  *ratelimit.FixedWindowLimiter
	Now      func() time.Time
}

func NewEngine(policies core.PolicyStore, sendLog core.SendLogStore, limiter *ratelimit.FixedWindowLimiter) *Engine {
	return &Engine{
		Policies: policies,
		SendLog:  sendLog,
		Limiter:  limiter,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enforce validates message shape, recipient rules, then the two rate
// controls, in that fixed order. Static checks never touch a counter, so a
// message missing a header consumes no per-minute budget. A send that clears
// the limiter but trips the daily cap still leaves the limiter consumed.
func (e *Engine) Enforce(ctx context.Context, ownerID string, msg core.Message) error {
	if e == nil {
		return fmt.Errorf("policy: engine is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return core.NewBadInput("owner id is required")
	}

	pol, err := e.Policies.Get(ctx, ownerID)
	if err != nil {
		return err
	}

	if len(msg.To) == 0 {
		return core.NewPolicyViolation("no recipients")
	}
	if len(msg.To) > pol.MaxRecipientsPerMessage {
		return core.NewPolicyViolation("too many recipients")
	}
	for _, header := range pol.RequiredHeaders {
		if !headerPresent(msg.Headers, header) {
			return core.NewPolicyViolation(fmt.Sprintf("missing required header: %s", header))
		}
	}
	if len(pol.AllowList) > 0 {
		for _, recipient := range msg.To {
			domain := recipientDomain(recipient)
			if !matchesAny(domain, pol.AllowList) {
				return core.NewPolicyViolation("recipient domain is not in allow list policy")
			}
		}
	}
	for _, recipient := range msg.To {
		domain := recipientDomain(recipient)
		if matchesAny(domain, pol.DenyList) {
			return core.NewPolicyViolation(fmt.Sprintf("Recipient domain %s is blocked by deny list policy.", domain))
		}
	}

	if err := e.Limiter.Consume(ctx, ownerID, pol.PerMinuteLimit); err != nil {
		return err
	}

	now := e.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	sentToday, err := e.SendLog.CountSince(ctx, ownerID, midnight)
	if err != nil {
		return err
	}
	if sentToday >= pol.DailyCap {
		return core.NewRateLimited("Daily sending cap reached for this instance.")
	}

	return nil
}

// RecordSend appends the accounting entry an accepted send is counted by.
// Callers invoke it only after the provider call succeeded.
func (e *Engine) RecordSend(ctx context.Context, ownerID string, msg core.Message, status string) (core.SendLogEntry, error) {
	if e == nil {
		return core.SendLogEntry{}, fmt.Errorf("policy: engine is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return core.SendLogEntry{}, core.NewBadInput("owner id is required")
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = core.SendStatusQueued
	}
	entry := core.SendLogEntry{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Recipients: len(msg.To),
		Status:     status,
		SentAt:     e.now(),
	}
	return e.SendLog.Append(ctx, entry)
}

func (e *Engine) now() time.Time {
	if e != nil && e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func headerPresent(headers map[string]string, name string) bool {
	name = strings.TrimSpace(name)
	for key := range headers {
		if strings.EqualFold(strings.TrimSpace(key), name) {
			return true
		}
	}
	return false
}

// recipientDomain extracts the part after the last @, lowercased. Addresses
// without an @ resolve to an empty domain and never match a pattern.
func recipientDomain(address string) string {
	address = strings.TrimSpace(address)
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

// matchesAny applies the suffix rule: exact match, or subdomain match on a
// dot boundary so "blocked.example" matches "sub.blocked.example" but not
// "notblocked.example".
func matchesAny(domain string, patterns []string) bool {
	if domain == "" {
		return false
	}
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if domain == pattern || strings.HasSuffix(domain, "."+pattern) {
			return true
		}
	}
	return false
}
