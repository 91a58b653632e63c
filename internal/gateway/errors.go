package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TransportError wraps a network-level failure (connect, timeout, broken
// stream). Retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a non-200 status received from a provider. 429 and 5xx are
// retryable; other statuses are not.
type HTTPError struct {
	Provider   string
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Status, e.Body)
}

// InvalidProviderResponse marks a well-formed transport exchange whose
// payload was structurally unusable (e.g. missing choices). Never retried.
type InvalidProviderResponse struct {
	Provider string
	Detail   string
}

func (e *InvalidProviderResponse) Error() string {
	return fmt.Sprintf("%s: invalid provider response: %s", e.Provider, e.Detail)
}

// retryable reports whether err is a transient failure worth another attempt.
// Structurally invalid responses and client errors other than 429 are final.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status == 429 || he.Status >= 500
	}
	return false
}

// Stable user-facing messages for well-known provider failure classes.
// Raw provider errors never reach the end user.
const (
	MsgCreditsDepleted = "⚠️ Credits depleted. Please contact the bot administrator."
	MsgInvalidAPIKey   = "🔑 Invalid API key. Please contact the bot administrator."
	MsgRateLimited     = "⏳ Rate limit exceeded. Please try again later."
	MsgNetworkError    = "🌐 Network error. Please try again later."
	MsgUnknownError    = "❌ An error occurred. Please try again later."
)

// UserMessage maps a gateway error to a short, stable user-facing string.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var te *TransportError
	if errors.As(err, &te) {
		return MsgNetworkError
	}

	text := strings.ToLower(err.Error())
	var he *HTTPError
	if errors.As(err, &he) {
		switch {
		case he.Status == 401 || he.Status == 403:
			return MsgInvalidAPIKey
		case he.Status == 402:
			return MsgCreditsDepleted
		case he.Status == 429:
			return MsgRateLimited
		}
		text = strings.ToLower(he.Body)
	}

	switch {
	case strings.Contains(text, "quota") || strings.Contains(text, "credit") || strings.Contains(text, "billing"):
		return MsgCreditsDepleted
	case strings.Contains(text, "api key") || strings.Contains(text, "unauthorized") || strings.Contains(text, "authentication"):
		return MsgInvalidAPIKey
	case strings.Contains(text, "rate limit") || strings.Contains(text, "too many requests"):
		return MsgRateLimited
	case strings.Contains(text, "timeout") || strings.Contains(text, "connection"):
		return MsgNetworkError
	}
	return MsgUnknownError
}
