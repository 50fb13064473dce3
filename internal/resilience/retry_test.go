package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func testPolicy(attempts int) Policy {
	return Policy{
		Attempts:  attempts,
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		Op:        "test",
	}
}

func TestRetry_SuccessFirstAttempt(t *testing.T) {
	var calls int
	got, err := Retry(context.Background(), testPolicy(3), func(_ context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 || calls != 1 {
		t.Errorf("got %d after %d calls", got, calls)
	}
}

func TestRetry_SuccessAfterTransient(t *testing.T) {
	var calls int
	got, err := Retry(context.Background(), testPolicy(3), func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("throttled"), 429)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestRetry_NonTransientStopsImmediately(t *testing.T) {
	var calls int
	_, err := Retry(context.Background(), testPolicy(3), func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	var calls int
	_, err := Retry(context.Background(), testPolicy(3), func(_ context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("still down"), 503)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	_, err := Retry(ctx, testPolicy(5), func(_ context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(errors.New("transient"), 503)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_CustomShouldRetry(t *testing.T) {
	marker := errors.New("special")
	p := testPolicy(3)
	p.ShouldRetry = func(err error) bool { return errors.Is(err, marker) }

	var calls int
	_, err := Retry(context.Background(), p, func(_ context.Context) (int, error) {
		calls++
		return 0, marker
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil is not transient")
	}
	if !IsTransient(NewTransientError(errors.New("x"), 503)) {
		t.Error("TransientError should be transient")
	}
	if !IsTransient(fmt.Errorf("search: %w", context.DeadlineExceeded)) {
		t.Error("deadline exceeded should be transient")
	}
	if !IsTransient(&net.DNSError{Err: "server misbehaving", IsTemporary: true}) {
		t.Error("temporary DNS failure should be transient")
	}
	if IsTransient(&net.DNSError{Err: "no such host", IsNotFound: true}) {
		t.Error("unknown host is not transient")
	}
	if IsTransient(errors.New("invalid credentials")) {
		t.Error("auth failure is not transient")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("status %d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("status %d should not be transient", code)
		}
	}
}
