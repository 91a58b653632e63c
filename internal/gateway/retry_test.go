package gateway

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", &TransportError{Op: "dial", Err: errors.New("refused")}, true},
		{"http 429", &HTTPError{Provider: "p", Status: 429}, true},
		{"http 500", &HTTPError{Provider: "p", Status: 500}, true},
		{"http 503", &HTTPError{Provider: "p", Status: 503}, true},
		{"http 400", &HTTPError{Provider: "p", Status: 400}, false},
		{"http 401", &HTTPError{Provider: "p", Status: 401}, false},
		{"invalid response", &InvalidProviderResponse{Provider: "p", Detail: "no choices"}, false},
		{"context canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryDoRecoversFromTransportErrors(t *testing.T) {
	calls := 0
	got, err := retryDo(context.Background(), fastRetry(3), func() (string, error) {
		calls++
		if calls < 3 {
			return "", &TransportError{Op: "dial", Err: errors.New("refused")}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("retryDo returned error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls, want ok after 3", got, calls)
	}
}

func TestRetryDoStopsOnInvalidResponse(t *testing.T) {
	calls := 0
	_, err := retryDo(context.Background(), fastRetry(3), func() (string, error) {
		calls++
		return "", &InvalidProviderResponse{Provider: "p", Detail: "malformed"}
	})
	var ipr *InvalidProviderResponse
	if !errors.As(err, &ipr) {
		t.Fatalf("want InvalidProviderResponse, got %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestRetryDoExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := retryDo(context.Background(), fastRetry(3), func() (int, error) {
		calls++
		return 0, &HTTPError{Provider: "p", Status: 500}
	})
	if err == nil {
		t.Fatal("want error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"2", 2 * time.Second},
		{"0", 0},
		{"", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
