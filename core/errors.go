package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorPolicyViolation = "SENDGATE_POLICY_VIOLATION"
	ErrorRateLimited     = "SENDGATE_RATE_LIMITED"
	ErrorNotFound        = "SENDGATE_NOT_FOUND"
	ErrorProviderFailed  = "SENDGATE_PROVIDER_FAILED"
	ErrorBadInput        = "SENDGATE_BAD_INPUT"
	ErrorRotationLocked  = "SENDGATE_ROTATION_LOCKED"
	ErrorInternal        = "SENDGATE_INTERNAL_ERROR"
)

const maxProviderBodyBytes = 512

// NewPolicyViolation is the bad-request class used for every static policy
// rejection. These are never retried.
func NewPolicyViolation(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorPolicyViolation)
}

// NewRateLimited is the too-many-requests class used for both the per-minute
// limiter and the daily cap. Counters are never rolled back on rejection.
func NewRateLimited(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(ErrorRateLimited)
}

func NewNotFound(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorNotFound)
}

func NewBadInput(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
}

// NewProviderError maps an upstream HTTP failure into the sendgate taxonomy,
// preserving the original status and a truncated response body for operator
// diagnostics without leaking full payloads.
func NewProviderError(provider string, status int, body []byte) *goerrors.Error {
	provider = strings.TrimSpace(provider)
	message := fmt.Sprintf("provider %s request failed with status %d", provider, status)
	err := goerrors.New(message, providerErrorCategory(status)).
		WithCode(providerErrorCode(status)).
		WithTextCode(ErrorProviderFailed).
		WithMetadata(map[string]any{
			"provider":        provider,
			"upstream_status": status,
			"upstream_body":   truncateBody(body),
		})
	return err
}

func providerErrorCategory(status int) goerrors.Category {
	switch status {
	case http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case http.StatusNotFound:
		return goerrors.CategoryNotFound
	case http.StatusConflict:
		return goerrors.CategoryConflict
	case http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	default:
		return goerrors.CategoryInternal
	}
}

func providerErrorCode(status int) int {
	switch status {
	case http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict, http.StatusTooManyRequests:
		return status
	default:
		return http.StatusInternalServerError
	}
}

func truncateBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > maxProviderBodyBytes {
		return trimmed[:maxProviderBodyBytes]
	}
	return trimmed
}

// MapError normalizes any error crossing the module boundary into a
// *goerrors.Error carrying a SENDGATE_* text code and an HTTP status.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound).WithTextCode(ErrorNotFound))
	case strings.Contains(msg, "lock already held"), strings.Contains(msg, "rotation lock"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryConflict).WithTextCode(ErrorRotationLocked))
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "limit exceeded"), strings.Contains(msg, "cap reached"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryRateLimit).WithTextCode(ErrorRateLimited))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorBadInput))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusFor(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ErrorBadInput
	case goerrors.CategoryValidation:
		return ErrorPolicyViolation
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryAuth, goerrors.CategoryAuthz, goerrors.CategoryConflict, goerrors.CategoryOperation:
		return ErrorProviderFailed
	default:
		return ErrorInternal
	}
}

func httpStatusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
