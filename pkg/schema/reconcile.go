// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema reconciles loosely-structured model-produced arguments
// against a tool's declared input schema: near-miss key names are renamed
// by string similarity, undeclared keys are dropped, and values are coerced
// toward the declared primitive kinds.
package schema

import (
	"math"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// RenameThreshold is the minimum normalized similarity for an undeclared
// key to be renamed onto a declared property.
const RenameThreshold = 0.72

// FieldKind is the closed set of primitive kinds coercion dispatches on.
type FieldKind int

const (
	KindUnknown FieldKind = iota
	KindString
	KindInteger
	KindNumber
	KindBoolean
)

// KindOf maps a declared JSON Schema property to its FieldKind.
func KindOf(prop any) FieldKind {
	m, ok := prop.(map[string]any)
	if !ok {
		return KindUnknown
	}
	t, _ := m["type"].(string)
	switch t {
	case "integer":
		return KindInteger
	case "number":
		return KindNumber
	case "boolean":
		return KindBoolean
	case "string":
		return KindString
	default:
		return KindUnknown
	}
}

// Reconcile produces a corrected argument mapping for schema in three
// ordered passes: key reconciliation, filtering, type coercion. It is a
// pure function of its inputs and never fails; values it cannot improve
// pass through unchanged. A schema with no declared properties
// short-circuits to a shallow copy of args.
func Reconcile(args map[string]any, schema mcp.ToolInputSchema) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	if len(schema.Properties) == 0 {
		return out
	}

	out = renameKeys(out, schema.Properties)
	out = filterKeys(out, schema.Properties)
	return coerceValues(out, schema.Properties)
}

// renameKeys moves undeclared keys onto their best-matching declared
// property when the similarity clears RenameThreshold and the target is
// not already present. This tolerates model near-misses ("type" for
// "name") without per-tool alias tables.
func renameKeys(args map[string]any, props map[string]any) map[string]any {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}

	for _, k := range keys {
		if _, declared := props[k]; declared {
			continue
		}

		best := ""
		bestScore := 0.0
		for cand := range props {
			if s := Similarity(k, cand); s > bestScore {
				bestScore = s
				best = cand
			}
		}

		if best != "" && bestScore >= RenameThreshold {
			if _, taken := args[best]; !taken {
				args[best] = args[k]
				delete(args, k)
			}
		}
	}
	return args
}

func filterKeys(args map[string]any, props map[string]any) map[string]any {
	for k := range args {
		if _, declared := props[k]; !declared {
			delete(args, k)
		}
	}
	return args
}

func coerceValues(args map[string]any, props map[string]any) map[string]any {
	for k, v := range args {
		switch KindOf(props[k]) {
		case KindInteger:
			if n, ok := toNumber(v); ok {
				args[k] = int(math.Trunc(n))
			}
		case KindNumber:
			if n, ok := toNumber(v); ok {
				args[k] = n
			}
		case KindBoolean:
			if s, ok := v.(string); ok {
				switch strings.ToLower(strings.TrimSpace(s)) {
				case "true":
					args[k] = true
				case "false":
					args[k] = false
				}
			}
		}
	}
	return args
}

// toNumber parses numeric values and numeric strings. It fails open:
// ok=false leaves the original value untouched.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		t := strings.TrimSpace(n)
		if t == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Similarity returns a normalized, case-insensitive edit-distance score in
// [0,1]; 1 means equal.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

func levenshtein(a, b string) int {
	n, m := len(a), len(b)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}

	prev := make([]int, m+1)
	cur := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}

	for i := 1; i <= n; i++ {
		cur[0] = i
		for j := 1; j <= m; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[m]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
