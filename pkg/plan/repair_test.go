// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"context"
	"strings"
	"testing"

	"github.com/craftmind/craftmind/pkg/llm"
)

func TestRepairSucceedsOnSecondAttempt(t *testing.T) {
	provider := llm.NewScriptedMockProvider(
		`{"say":"fixed","tool":"goToKnownLocation","args":{"x":1,"y":2,"z":3}}`,
	)
	r := &Repairer{Provider: provider, Model: "test", MaxRetries: 2}

	outcome, attempts := r.Run(context.Background(), "Alice", "go home",
		"this is not json at all", testIndex())

	if !outcome.OK {
		t.Fatalf("expected repaired outcome, got %+v", outcome)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts recorded, got %d", len(attempts))
	}
	if provider.CallCount != 1 {
		t.Fatalf("expected 1 repair call, got %d", provider.CallCount)
	}
}

func TestRepairExhaustsRetries(t *testing.T) {
	// A tool that always misses required field y across every attempt.
	bad := `{"tool":"goToKnownLocation","args":{"x":1,"z":3}}`
	provider := llm.NewScriptedMockProvider(bad, bad, bad)
	r := &Repairer{Provider: provider, Model: "test", MaxRetries: 2}

	outcome, attempts := r.Run(context.Background(), "Alice", "go home", bad, testIndex())

	if outcome.OK {
		t.Fatal("expected final failure")
	}
	if outcome.Reason != ReasonMissingRequired {
		t.Fatalf("expected missing_required, got %s", outcome.Reason)
	}
	// Attempt 0 plus exactly MaxRetries repairs.
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attempts))
	}
	if provider.CallCount != 2 {
		t.Fatalf("expected exactly 2 repair calls, got %d", provider.CallCount)
	}
}

func TestRepairPromptEmbedsFailureDetail(t *testing.T) {
	provider := llm.NewScriptedMockProvider(`{"say":"","tool":null,"args":{}}`)
	r := &Repairer{Provider: provider, Model: "test", MaxRetries: 1}

	bad := `{"tool":"goToKnownLocation","args":{"x":1}}`
	r.Run(context.Background(), "Alice", "go home", bad, testIndex())

	if len(provider.Requests) != 1 {
		t.Fatalf("expected one repair request, got %d", len(provider.Requests))
	}
	user := provider.Requests[0].Messages[1].Content
	if !strings.Contains(user, bad) {
		t.Fatalf("expected previous response embedded, got %q", user)
	}
	if !strings.Contains(user, string(ReasonMissingRequired)) {
		t.Fatalf("expected reason embedded, got %q", user)
	}
	if !strings.Contains(user, "y") || !strings.Contains(user, "z") {
		t.Fatalf("expected missing fields listed, got %q", user)
	}
}

func TestRepairStopsOnProviderError(t *testing.T) {
	provider := llm.NewScriptedMockProvider()
	provider.Err = context.DeadlineExceeded
	r := &Repairer{Provider: provider, Model: "test", MaxRetries: 3}

	outcome, attempts := r.Run(context.Background(), "Alice", "go home", "garbage", testIndex())
	if outcome.OK {
		t.Fatal("expected failure when backend is down")
	}
	if len(attempts) != 1 {
		t.Fatalf("expected only the initial attempt, got %d", len(attempts))
	}
}
