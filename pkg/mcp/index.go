// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Index holds the tool definitions visible to the planner, keyed by name
// and restricted to an operator allow-list.
type Index struct {
	tools map[string]mcp.Tool
	names []string
}

// NewIndex builds an Index from discovered tools, keeping only allow-listed
// names. The name order is stable for prompt assembly.
func NewIndex(tools []mcp.Tool, allowed map[string]bool) *Index {
	idx := &Index{tools: make(map[string]mcp.Tool)}
	for _, t := range tools {
		if len(allowed) > 0 && !allowed[t.Name] {
			continue
		}
		if _, dup := idx.tools[t.Name]; dup {
			continue
		}
		idx.tools[t.Name] = t
		idx.names = append(idx.names, t.Name)
	}
	sort.Strings(idx.names)
	return idx
}

// Get returns the tool definition for name.
func (i *Index) Get(name string) (mcp.Tool, bool) {
	t, ok := i.tools[name]
	return t, ok
}

// Has reports whether name is an allow-listed tool.
func (i *Index) Has(name string) bool {
	_, ok := i.tools[name]
	return ok
}

// Names returns the allow-listed tool names in sorted order.
func (i *Index) Names() []string {
	return append([]string(nil), i.names...)
}

// Len returns the number of indexed tools.
func (i *Index) Len() int { return len(i.tools) }

// PromptBlock renders the tool schemas for the planner prompt, one line per
// tool with its required and optional fields.
func (i *Index) PromptBlock() string {
	var b strings.Builder
	for _, name := range i.names {
		t := i.tools[name]
		props := make([]string, 0, len(t.InputSchema.Properties))
		for k := range t.InputSchema.Properties {
			props = append(props, k)
		}
		sort.Strings(props)
		fmt.Fprintf(&b, "- %s: required=[%s], props=[%s]\n",
			name,
			strings.Join(t.InputSchema.Required, ", "),
			strings.Join(props, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// ExtractText flattens a tool result's content parts into a single string.
func ExtractText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, item := range result.Content {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}
