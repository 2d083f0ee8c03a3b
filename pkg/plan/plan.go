// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

// Package plan parses a model's free-text response into a structured plan
// and validates it against the allow-listed tool schemas.
package plan

import (
	"encoding/json"
	"strings"

	"github.com/craftmind/craftmind/pkg/mcp"
	"github.com/craftmind/craftmind/pkg/schema"
)

// FailReason classifies why a plan failed validation.
type FailReason string

const (
	ReasonNone            FailReason = ""
	ReasonNotObject       FailReason = "not_object"
	ReasonUnknownTool     FailReason = "unknown_tool"
	ReasonMissingRequired FailReason = "missing_required"
)

// Plan is the structured form of a model response: an optional chat
// utterance plus an optional tool selection. Tool == "" is a valid
// terminal state (conversation-only response).
type Plan struct {
	Say  string         `json:"say"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Outcome is the result of validating one model response.
// OK implies Tool is either empty or allow-listed with all required
// arguments present (types are best-effort, not guaranteed).
type Outcome struct {
	OK      bool
	Reason  FailReason
	Missing []string
	// Plan holds the parsed object even when validation failed, so a
	// fallback utterance can still be spoken.
	Plan *Plan
	Tool string
	Args map[string]any
	Say  string
}

// Validate parses raw model text into a Plan and checks it against the
// tool index. actor is the issuing player's identity, used to fill a
// required userName argument ("to me" self-reference).
func Validate(raw, actor string, idx *mcp.Index) Outcome {
	obj, ok := ExtractObject(raw)
	if !ok {
		return Outcome{Reason: ReasonNotObject, Args: map[string]any{}}
	}

	p := &Plan{Args: map[string]any{}}
	if s, ok := obj["say"].(string); ok {
		p.Say = s
	}
	if t, ok := obj["tool"].(string); ok {
		p.Tool = t
	}
	if a, ok := obj["args"].(map[string]any); ok {
		p.Args = a
	}

	if p.Tool == "" {
		return Outcome{OK: true, Plan: p, Args: map[string]any{}, Say: p.Say}
	}

	tool, ok := idx.Get(p.Tool)
	if !ok {
		return Outcome{Reason: ReasonUnknownTool, Plan: p, Args: map[string]any{}, Say: p.Say}
	}

	args := schema.Reconcile(p.Args, tool.InputSchema)

	// "bring it to me" style commands rarely name the speaker; a required
	// userName defaults to whoever issued the command.
	if requiresField(tool.InputSchema.Required, "userName") {
		if _, present := args["userName"]; !present {
			args["userName"] = actor
		}
	}

	var missing []string
	for _, req := range tool.InputSchema.Required {
		if _, present := args[req]; !present {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return Outcome{
			Reason:  ReasonMissingRequired,
			Missing: missing,
			Plan:    p,
			Args:    map[string]any{},
			Say:     p.Say,
		}
	}

	return Outcome{OK: true, Plan: p, Tool: p.Tool, Args: args, Say: p.Say}
}

func requiresField(required []string, name string) bool {
	for _, r := range required {
		if r == name {
			return true
		}
	}
	return false
}

// ExtractObject finds the first balanced {...} region of text that parses
// as a JSON object. The whole trimmed text is preferred when it is itself
// one object.
func ExtractObject(text string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}

	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		if obj, ok := parseObject(trimmed); ok {
			return obj, true
		}
	}

	for start := 0; start < len(trimmed); start++ {
		if trimmed[start] != '{' {
			continue
		}
		end, ok := balancedEnd(trimmed, start)
		if !ok {
			// No closing brace for this opener; later openers are nested
			// inside it and cannot be balanced either.
			break
		}
		if obj, ok := parseObject(trimmed[start : end+1]); ok {
			return obj, true
		}
	}
	return nil, false
}

// balancedEnd returns the index of the brace closing the object opened at
// start, skipping braces inside JSON string literals.
func balancedEnd(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func parseObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}
