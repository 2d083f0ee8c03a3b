// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"testing"
)

// scriptInvoker replays canned outputs; the last one repeats forever.
type scriptInvoker struct {
	outputs []string
	err     error
	calls   int
	quiets  []bool
}

func (s *scriptInvoker) CallToolText(_ context.Context, _ string, _ map[string]any, quiet bool) (string, error) {
	i := s.calls
	if i >= len(s.outputs) {
		i = len(s.outputs) - 1
	}
	s.calls++
	s.quiets = append(s.quiets, quiet)
	if s.err != nil {
		return "", s.err
	}
	return s.outputs[i], nil
}

func TestRunnerSingleShotFinishesFirstAttempt(t *testing.T) {
	inv := &scriptInvoker{outputs: []string{"on my way"}}
	r := &Runner{Invoker: inv}

	res := r.Run(context.Background(), "goToSomeone", map[string]any{"userName": "Alice"})
	if !res.Verified.OK || !res.Verified.Done {
		t.Fatalf("expected terminal success, got %+v", res.Verified)
	}
	if res.Attempts != 1 || inv.calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d (%d calls)", res.Attempts, inv.calls)
	}
	if inv.quiets[0] {
		t.Fatal("first attempt must be journaled, not quiet")
	}
}

func TestRunnerGatherPollsUntilDone(t *testing.T) {
	inv := &scriptInvoker{outputs: []string{"mined 3 of 20", "mined 20 of 20"}}
	r := &Runner{Invoker: inv}

	res := r.Run(context.Background(), "mineResource", map[string]any{"name": "stone", "count": 20})
	if !res.Verified.OK || !res.Verified.Done {
		t.Fatalf("expected completion on second attempt, got %+v", res.Verified)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
	if !inv.quiets[1] {
		t.Fatal("repeat polls must be quiet")
	}
}

func TestRunnerStallsOnRepeatedProgress(t *testing.T) {
	inv := &scriptInvoker{outputs: []string{"mined 3 of 20"}}
	r := &Runner{Invoker: inv, StallMax: 4}

	res := r.Run(context.Background(), "mineResource", nil)
	if res.Verified.OK || !res.Verified.Done {
		t.Fatalf("expected synthesized terminal failure, got %+v", res.Verified)
	}
	if !res.Stalled {
		t.Fatal("expected stalled flag")
	}
	// Attempt 1 sets the baseline; four more identical keys trip the limit.
	if res.Attempts != 5 {
		t.Fatalf("expected 5 attempts before stall, got %d", res.Attempts)
	}
}

func TestRunnerStallsOnMissingProgress(t *testing.T) {
	inv := &scriptInvoker{outputs: []string{"mining..."}}
	r := &Runner{Invoker: inv, StallMax: 2}

	res := r.Run(context.Background(), "mineResource", nil)
	if !res.Stalled {
		t.Fatalf("expected stall on progress-less output, got %+v", res)
	}
	// "none" counts against the stall limit from the first attempt.
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
}

func TestRunnerProgressResetsStallCounter(t *testing.T) {
	inv := &scriptInvoker{outputs: []string{
		"mined 1 of 4", "mined 1 of 4", "mined 2 of 4", "mined 2 of 4", "mined 3 of 4", "mined 4 of 4",
	}}
	r := &Runner{Invoker: inv, StallMax: 3}

	res := r.Run(context.Background(), "mineResource", nil)
	if !res.Verified.Done || !res.Verified.OK {
		t.Fatalf("expected completion, fresh progress should reset stalls: %+v", res.Verified)
	}
	if res.Attempts != 6 {
		t.Fatalf("expected 6 attempts, got %d", res.Attempts)
	}
}

func TestRunnerExhaustsAttemptBudget(t *testing.T) {
	inv := &scriptInvoker{outputs: []string{"mined 1 of 99", "mined 2 of 99", "mined 3 of 99"}}
	r := &Runner{Invoker: inv, MaxAttemptsGather: 3, StallMax: 4}

	res := r.Run(context.Background(), "mineResource", nil)
	if res.Verified.OK || !res.Verified.Done {
		t.Fatalf("expected synthesized exhaustion failure, got %+v", res.Verified)
	}
	if res.Attempts != 3 || inv.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d (%d calls)", res.Attempts, inv.calls)
	}
	if res.Verified.Meta["reason"] != "exhausted" {
		t.Fatalf("expected exhausted reason, got %v", res.Verified.Meta)
	}
}

func TestRunnerInvocationErrorIsTerminal(t *testing.T) {
	inv := &scriptInvoker{outputs: []string{""}, err: context.DeadlineExceeded}
	r := &Runner{Invoker: inv}

	res := r.Run(context.Background(), "mineResource", nil)
	if res.Verified.OK || !res.Verified.Done {
		t.Fatalf("expected terminal failure, got %+v", res.Verified)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected single attempt, got %d", res.Attempts)
	}
}
