// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/craftmind/craftmind/pkg/errors"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	cfg := DefaultRetryConfig().WithMaxAttempts(3).WithInitialDelay(time.Millisecond)

	err := cfg.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return stderrors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	cfg := DefaultRetryConfig().WithMaxAttempts(2).WithInitialDelay(time.Millisecond)

	wantErr := stderrors.New("always fails")
	err := cfg.Do(context.Background(), func() error {
		calls++
		return wantErr
	})
	if !stderrors.Is(err, wantErr) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryStopsOnUnrecoverable(t *testing.T) {
	calls := 0
	cfg := DefaultRetryConfig().WithMaxAttempts(5).WithInitialDelay(time.Millisecond)

	fatal := errors.New(errors.CodeInvalidPlan, "bad plan", nil).WithRecoverable(false)
	err := cfg.Do(context.Background(), func() error {
		calls++
		return fatal
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected single call for unrecoverable error, got %d", calls)
	}
}

func TestRetryRespectsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultRetryConfig().WithMaxAttempts(3).WithInitialDelay(50 * time.Millisecond)
	err := cfg.Do(ctx, func() error {
		return stderrors.New("transient")
	})

	ae := errors.AsAgentError(err)
	if ae == nil || ae.Code != errors.CodeTimeout {
		t.Fatalf("expected timeout code after cancel, got %v", err)
	}
}

func TestDoWithResult(t *testing.T) {
	cfg := DefaultRetryConfig().WithMaxAttempts(2).WithInitialDelay(time.Millisecond)
	calls := 0

	out, err := cfg.DoWithResult(context.Background(), func() (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, stderrors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" {
		t.Fatalf("expected ok, got %v", out)
	}
}
