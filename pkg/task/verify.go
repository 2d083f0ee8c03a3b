// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

// Package task supervises tool execution: it classifies raw tool output
// into verified results and polls multi-step tools until they finish,
// fail, or stall.
package task

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Progress is a tool's self-reported completion state.
type Progress struct {
	Current float64 `json:"current"`
	Total   float64 `json:"total"`
}

// Result is the normalized classification of one tool invocation.
// OK=false implies Done=true: a failed call is always terminal.
type Result struct {
	OK       bool           `json:"ok"`
	Done     bool           `json:"done"`
	Progress *Progress      `json:"progress,omitempty"`
	Summary  string         `json:"summary"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// gatherTools are inherently multi-step: their output carries progress and
// must not be finalized on a single call.
var gatherTools = map[string]bool{
	"mineResource": true,
}

// IsGatherTool reports whether tool is a resource-gathering tool.
func IsGatherTool(tool string) bool {
	return gatherTools[tool]
}

var (
	reMinedOf   = regexp.MustCompile(`(?i)\bmined\s+(\d+)\s+of\s+(\d+)\b`)
	reSlash     = regexp.MustCompile(`\b(\d+)\s*/\s*(\d+)\b`)
	rePlainOf   = regexp.MustCompile(`(?i)\b(\d+)\s+of\s+(\d+)\b`)
	reDoneWords = regexp.MustCompile(`(?i)\b(done|completed|complete|finished|success|ok|arrived|reached)\b`)
)

// Verify classifies one invocation. The raw output is resolved once into a
// structured (JSON object) or freeform (text) variant; downstream logic
// only ever sees the normalized Result.
func Verify(tool string, args map[string]any, resultText string, invokeErr error) Result {
	if invokeErr != nil {
		return Result{
			OK:      false,
			Done:    true,
			Summary: fmt.Sprintf("%s: invocation failed.", tool),
			Meta: map[string]any{
				"tool":  tool,
				"args":  args,
				"error": shorten(invokeErr.Error(), 260),
			},
		}
	}

	raw := strings.TrimSpace(resultText)

	// Structured variant: a tool that returns a JSON object opts into
	// self-reporting; its own ok/done fields are trusted.
	if obj, ok := parseJSONObject(raw); ok {
		res := Result{OK: true, Done: true, Meta: map[string]any{"tool": tool, "args": args, "json": obj}}
		if v, ok := obj["ok"].(bool); ok {
			res.OK = v
		}
		if v, ok := obj["done"].(bool); ok {
			res.Done = v
		}
		if p, ok := obj["progress"].(map[string]any); ok {
			cur, curOK := toFloat(p["current"])
			tot, totOK := toFloat(p["total"])
			if curOK && totOK {
				res.Progress = &Progress{Current: cur, Total: tot}
			}
		}
		if res.OK {
			res.Summary = fmt.Sprintf("%s: completed.", tool)
		} else {
			res.Summary = fmt.Sprintf("%s: failed.", tool)
		}
		return res
	}

	if IsGatherTool(tool) {
		return verifyGather(tool, args, raw)
	}

	// Single-shot tools: no invocation error and no structured failure
	// signal means one call did the job.
	return Result{
		OK:      true,
		Done:    true,
		Summary: fmt.Sprintf("%s: completed.", tool),
		Meta:    map[string]any{"tool": tool},
	}
}

func verifyGather(tool string, args map[string]any, raw string) Result {
	if cur, total, ok := parseGatherProgress(raw); ok && total > 0 {
		done := cur >= total
		summary := fmt.Sprintf("Gathering in progress (%d/%d).", cur, total)
		if done {
			summary = fmt.Sprintf("Gathering complete (%d/%d).", cur, total)
		}
		resource, _ := args["name"].(string)
		return Result{
			OK:       true,
			Done:     done,
			Progress: &Progress{Current: float64(cur), Total: float64(total)},
			Summary:  summary,
			Meta: map[string]any{
				"tool":     tool,
				"resource": resource,
				"count":    cur,
				"requested": func() any {
					if n, ok := toFloat(args["count"]); ok {
						return n
					}
					return total
				}(),
			},
		}
	}

	// No recognizable progress signal. Absence of a signal must not be
	// mistaken for completion; only an explicit completion keyword
	// finalizes the call.
	done := reDoneWords.MatchString(raw)
	summary := "Gathering in progress."
	if done {
		summary = "Gathering finished."
	}
	resource, _ := args["name"].(string)
	return Result{
		OK:      true,
		Done:    done,
		Summary: summary,
		Meta:    map[string]any{"tool": tool, "resource": resource},
	}
}

// parseGatherProgress extracts "current of total" counts from freeform
// text, trying the most specific pattern first.
func parseGatherProgress(text string) (cur, total int, ok bool) {
	for _, re := range []*regexp.Regexp{reMinedOf, reSlash, rePlainOf} {
		if m := re.FindStringSubmatch(text); m != nil {
			c, errC := atoiSafe(m[1])
			t, errT := atoiSafe(m[2])
			if errC == nil && errT == nil {
				return c, t, true
			}
		}
	}
	return 0, 0, false
}

func atoiSafe(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseJSONObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func shorten(s string, max int) string {
	t := strings.Join(strings.Fields(s), " ")
	if len(t) > max {
		return t[:max-1] + "…"
	}
	return t
}
