// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/craftmind/craftmind/pkg/llm"
	"github.com/craftmind/craftmind/pkg/mcp"
)

// Repairer re-prompts the model on validation failure, feeding the failure
// reason back, for a bounded number of attempts. This is a linear re-prompt
// count, not backoff: each repair attempt happens exactly once.
type Repairer struct {
	Provider llm.Provider
	Model    string
	System   string
	// MaxRetries is the number of corrective attempts after the initial
	// response (attempt 0).
	MaxRetries int
	Logger     *slog.Logger
}

// Attempt records one validation attempt for observability.
type Attempt struct {
	Index   int
	Raw     string
	Outcome Outcome
}

// Run validates firstResponse and, while it fails, asks the model to
// correct itself up to MaxRetries times. The returned outcome is final and
// may still be failed.
func (r *Repairer) Run(ctx context.Context, actor, command, firstResponse string, idx *mcp.Index) (Outcome, []Attempt) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	raw := firstResponse
	outcome := Validate(raw, actor, idx)
	attempts := []Attempt{{Index: 0, Raw: raw, Outcome: outcome}}

	for attempt := 1; attempt <= r.MaxRetries && !outcome.OK; attempt++ {
		prompt := r.correctivePrompt(actor, command, raw, outcome)

		reply, err := llm.Complete(ctx, r.Provider, r.Model, r.System, prompt)
		if err != nil {
			logger.ErrorContext(ctx, "plan repair call failed",
				"attempt", attempt, "error", err)
			break
		}
		raw = reply

		outcome = Validate(raw, actor, idx)
		attempts = append(attempts, Attempt{Index: attempt, Raw: raw, Outcome: outcome})
		logger.InfoContext(ctx, "plan repair attempt",
			"attempt", attempt, "ok", outcome.OK, "reason", string(outcome.Reason))
	}

	return outcome, attempts
}

func (r *Repairer) correctivePrompt(actor, command, previous string, outcome Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Player: %s\nCommand: %s\n\n", actor, command)
	fmt.Fprintf(&b, "Your previous (invalid) plan:\n%s\n\n", previous)
	fmt.Fprintf(&b, "Error: %s\n", outcome.Reason)
	if len(outcome.Missing) > 0 {
		fmt.Fprintf(&b, "Missing required fields: %s\n", strings.Join(outcome.Missing, ", "))
	}
	b.WriteString("Fix it and return ONLY the JSON.")
	return b.String()
}
