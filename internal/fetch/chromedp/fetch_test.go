package chromedp

import (
	"context"
	"testing"
	"time"
)

func TestExecRejectsEmptyURL(t *testing.T) {
	f := Fetch{Timeout: time.Second, MaxChars: 100}
	if _, err := f.Exec(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestExecKeepsCallerDeadline(t *testing.T) {
	// The caller's already-expired deadline must win over the engine's
	// own timeout: rendering fails immediately and is reported as an
	// unreachable page, not an error.
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	f := Fetch{Timeout: time.Minute, MaxChars: 100}
	start := time.Now()
	res, err := f.Exec(ctx, "https://example.com")
	if err != nil {
		t.Fatalf("render failures must resolve to a result: %v", err)
	}
	if res.Status != 599 {
		t.Fatalf("expected status 599, got %d", res.Status)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("engine timeout overrode the cancelled context")
	}
}
