// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"testing"

	"github.com/craftmind/craftmind/pkg/errors"
)

// flakyProvider fails with a recoverable error a fixed number of times.
type flakyProvider struct {
	failures int
	calls    int
}

func (f *flakyProvider) Chat(_ context.Context, _ ChatRequest) (*ChatResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New(errors.CodeLLMError, "backend unavailable", nil).WithRecoverable(true)
	}
	return &ChatResponse{Content: "ok"}, nil
}

func TestRetryingProviderRecovers(t *testing.T) {
	inner := &flakyProvider{failures: 2}
	p := NewRetrying(inner, 2)

	resp, err := p.Chat(context.Background(), ChatRequest{Model: "test"})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if resp.Content != "ok" || inner.calls != 3 {
		t.Fatalf("expected success on third call, got %q after %d calls", resp.Content, inner.calls)
	}
}

func TestRetryingProviderStopsOnUnrecoverable(t *testing.T) {
	inner := &failingProvider{}
	p := NewRetrying(inner, 3)

	_, err := p.Chat(context.Background(), ChatRequest{Model: "test"})
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Fatalf("unrecoverable error must not be retried, got %d calls", inner.calls)
	}
}

type failingProvider struct{ calls int }

func (f *failingProvider) Chat(_ context.Context, _ ChatRequest) (*ChatResponse, error) {
	f.calls++
	return nil, errors.New(errors.CodeLLMError, "bad request", nil).WithRecoverable(false)
}
