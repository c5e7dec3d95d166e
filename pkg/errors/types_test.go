package errors

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestBriefingError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *BriefingError
		expected string
	}{
		{
			name:     "with operation",
			err:      NewValidation("SendMessage", "message is empty"),
			expected: "SendMessage validation: message is empty",
		},
		{
			name:     "without operation",
			err:      &BriefingError{Kind: KindNotFound, Message: "session not found"},
			expected: "not_found: session not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), KindInternal},
		{"unauthorized", NewUnauthorized("GetActive", "no identity"), KindUnauthorized},
		{"wrapped not found", errors.Wrap(NewNotFound("GetOrCreate", "gone"), "context"), KindNotFound},
		{"internal with cause", NewInternal("AppendTurn", "save failed", errors.New("disk")), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBriefingError_UnwrapPreservesCause(t *testing.T) {
	cause := NewStoreError("SaveSession", "write failed", errors.New("database is locked"))
	err := NewInternal("AppendTurn", "failed to persist turn", cause)

	if !IsStoreError(err) {
		t.Error("IsStoreError() = false, want true for wrapped store error")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() should find the store error in the chain")
	}
}

func TestAIError_Retryable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"rate limited", 429, true},
		{"server error", 503, true},
		{"bad request", 400, false},
		{"unauthorized", 401, false},
		{"provider overloaded", 529, true},
		{"not implemented", 501, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewAIErrorWithStatus("anthropic", "Chat", tt.status, "failed")
			if got := IsRetryable(err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAIErrorWithCause_InheritsRetryable(t *testing.T) {
	inner := NewAIErrorWithStatus("ollama", "Chat", 502, "bad gateway")
	outer := NewAIErrorWithCause("ollama", "Extract", "extraction failed", inner)

	if !outer.Retryable {
		t.Error("expected outer error to inherit retryable from cause")
	}
	if !IsAIError(outer) {
		t.Error("IsAIError() = false, want true")
	}
}

func TestTaskError_Error(t *testing.T) {
	err := NewTaskError("flag-stale-jobs", "query failed", errors.New("no such table"))
	want := "maintenance task flag-stale-jobs failed: query failed"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !IsTaskError(errors.Wrap(err, "outer")) {
		t.Error("IsTaskError() = false on wrapped error")
	}
}

func TestFormatUserError(t *testing.T) {
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}

	got := FormatUserError(NewValidation("RunTask", "unknown task \"nope\""))
	if got != "Invalid request: unknown task \"nope\"" {
		t.Errorf("unexpected validation format: %q", got)
	}

	got = FormatUserError(errors.Wrap(NewAIErrorWithStatus("anthropic", "Chat", 401, "bad key"), "extract"))
	if !strings.Contains(got, "Model provider anthropic failed during Chat: bad key") || !strings.Contains(got, "To fix this:") {
		t.Errorf("unexpected provider format: %q", got)
	}

	got = FormatUserError(NewConfigError("ai.temperature", "must be between 0 and 1"))
	if !strings.HasPrefix(got, `Configuration error in "ai.temperature"`) {
		t.Errorf("unexpected config format: %q", got)
	}

	got = FormatUserError(NewInternal("SendMessage", "save failed", New("disk full")))
	if got != "Internal error: save failed\n\nUnderlying error: disk full" {
		t.Errorf("unexpected internal format: %q", got)
	}
}

func TestRetryWithResult_RetriesRetryableErrors(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	got, err := RetryWithResult(context.Background(), cfg, func() (string, error) {
		calls++
		if calls < 3 {
			return "", NewAIErrorWithStatus("anthropic", "Chat", 503, "unavailable")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("RetryWithResult() error = %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls, want \"ok\" after 3", got, calls)
	}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return NewAIErrorWithStatus("anthropic", "Chat", 400, "bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCalculateBackoff_CappedAtMax(t *testing.T) {
	delay := CalculateBackoff(time.Second, 2*time.Second, 10, 0)
	if delay != 2*time.Second {
		t.Errorf("CalculateBackoff() = %v, want 2s", delay)
	}
}

func TestRetryWithResult_OnRetryAndExhaustion(t *testing.T) {
	var attempts []int
	cfg := RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   4 * time.Millisecond,
		OnRetry: func(attempt int, _ error, delay time.Duration) {
			attempts = append(attempts, attempt)
			if delay <= 0 || delay > 4*time.Millisecond {
				t.Errorf("delay %v outside (0, 4ms]", delay)
			}
		},
	}

	calls := 0
	_, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, NewAIErrorWithStatus("ollama", "Chat", 502, "bad gateway")
	})
	if err == nil {
		t.Fatal("expected error after retries are spent")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
	if !IsAIError(err) {
		t.Errorf("wrapped error should still be an AIError, got %T", err)
	}
}

func TestRetryWithResult_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, DefaultRetryConfig(), func() error {
		calls++
		return nil
	})
	if err == nil || calls != 0 {
		t.Errorf("err = %v, calls = %d; want an error before any call", err, calls)
	}
}

func TestCalculateBackoff_Doubles(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{40, time.Second},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(100*time.Millisecond, time.Second, tt.attempt, 0); got != tt.want {
			t.Errorf("CalculateBackoff(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
	if got := CalculateBackoff(0, time.Second, 2, 0.4); got != 0 {
		t.Errorf("zero base should give zero delay, got %v", got)
	}
}
