// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Invoker executes one named tool call and returns its flattened text
// output. quiet suppresses per-call journaling for repeated polls.
type Invoker interface {
	CallToolText(ctx context.Context, name string, args map[string]any, quiet bool) (string, error)
}

// Runner drives a tool to completion: it re-invokes multi-step tools,
// tracks progress between attempts and gives up when progress stalls or
// the attempt budget runs out. Every exit path yields a terminal Result.
type Runner struct {
	Invoker Invoker
	// PollInterval is the pause between attempts; <= 0 disables pausing.
	PollInterval time.Duration
	// MaxAttempts bounds single-shot and generic tools.
	MaxAttempts int
	// MaxAttemptsGather bounds gathering tools, which legitimately take
	// many polls to finish.
	MaxAttemptsGather int
	// StallMax is how many consecutive attempts without fresh progress
	// are tolerated before the task is declared stalled.
	StallMax int
	Logger   *slog.Logger
}

// TaskResult is the terminal outcome of one supervised task.
type TaskResult struct {
	Verified Result
	Attempts int
	LastText string
	Stalled  bool
}

const (
	defaultMaxAttempts       = 6
	defaultMaxAttemptsGather = 30
	defaultStallMax          = 4
)

// Run executes tool until a verified result reports done, the progress
// key repeats StallMax times, the attempt budget is exhausted, or ctx is
// canceled. The result is always terminal.
func (r *Runner) Run(ctx context.Context, tool string, args map[string]any) TaskResult {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	max := r.MaxAttempts
	if max <= 0 {
		max = defaultMaxAttempts
	}
	if IsGatherTool(tool) {
		max = r.MaxAttemptsGather
		if max <= 0 {
			max = defaultMaxAttemptsGather
		}
	}
	stallMax := r.StallMax
	if stallMax <= 0 {
		stallMax = defaultStallMax
	}

	var lastKey, lastText string
	haveKey := false
	stalls := 0

	for attempt := 1; attempt <= max; attempt++ {
		quiet := attempt > 1
		text, err := r.Invoker.CallToolText(ctx, tool, args, quiet)
		lastText = text
		res := Verify(tool, args, text, err)

		if res.Done {
			return TaskResult{Verified: res, Attempts: attempt, LastText: text}
		}

		key := progressKey(res.Progress)
		if key == "none" || (haveKey && key == lastKey) {
			stalls++
		} else {
			stalls = 0
		}
		lastKey, haveKey = key, true

		logger.DebugContext(ctx, "task attempt",
			"tool", tool, "attempt", attempt, "progress", key, "stalls", stalls)

		if stalls >= stallMax {
			return TaskResult{
				Verified: Result{
					OK:      false,
					Done:    true,
					Summary: fmt.Sprintf("%s: no progress after %d checks, giving up.", tool, stalls),
					Meta:    map[string]any{"tool": tool, "reason": "stalled", "progress": key},
				},
				Attempts: attempt,
				LastText: text,
				Stalled:  true,
			}
		}

		if attempt < max && r.PollInterval > 0 {
			timer := time.NewTimer(r.PollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return TaskResult{
					Verified: Result{
						OK:      false,
						Done:    true,
						Summary: fmt.Sprintf("%s: canceled.", tool),
						Meta:    map[string]any{"tool": tool, "reason": "canceled"},
					},
					Attempts: attempt,
					LastText: text,
				}
			case <-timer.C:
			}
		}
	}

	return TaskResult{
		Verified: Result{
			OK:      false,
			Done:    true,
			Summary: fmt.Sprintf("%s: not finished after %d attempts, giving up.", tool, max),
			Meta:    map[string]any{"tool": tool, "reason": "exhausted", "progress": lastKey},
		},
		Attempts: max,
		LastText: lastText,
	}
}

// progressKey collapses a progress report into a comparable token so
// consecutive attempts can be checked for movement.
func progressKey(p *Progress) string {
	if p == nil {
		return "none"
	}
	return fmt.Sprintf("%g/%g", p.Current, p.Total)
}
