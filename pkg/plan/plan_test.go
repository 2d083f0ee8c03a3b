// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"testing"

	craftmcp "github.com/craftmind/craftmind/pkg/mcp"
	"github.com/mark3labs/mcp-go/mcp"
)

func testIndex() *craftmcp.Index {
	tools := []mcp.Tool{
		{
			Name: "goToKnownLocation",
			InputSchema: mcp.ToolInputSchema{
				Type:     "object",
				Required: []string{"x", "y", "z"},
				Properties: map[string]any{
					"name": map[string]any{"type": "string"},
					"x":    map[string]any{"type": "integer"},
					"y":    map[string]any{"type": "integer"},
					"z":    map[string]any{"type": "integer"},
				},
			},
		},
		{
			Name: "goToSomeone",
			InputSchema: mcp.ToolInputSchema{
				Type:     "object",
				Required: []string{"userName"},
				Properties: map[string]any{
					"userName": map[string]any{"type": "string"},
				},
			},
		},
	}
	return craftmcp.NewIndex(tools, nil)
}

func TestValidateConversationOnlyPlan(t *testing.T) {
	out := Validate(`{"say": "hello there", "tool": null, "args": {}}`, "Alice", testIndex())
	if !out.OK {
		t.Fatalf("expected ok for tool-less plan, got %+v", out)
	}
	if out.Tool != "" {
		t.Fatalf("expected no tool, got %q", out.Tool)
	}
	if out.Say != "hello there" {
		t.Fatalf("expected say preserved, got %q", out.Say)
	}
}

func TestValidateNotObject(t *testing.T) {
	for _, raw := range []string{"", "I will go now!", "{broken json", "[1,2,3]"} {
		out := Validate(raw, "Alice", testIndex())
		if out.OK || out.Reason != ReasonNotObject {
			t.Fatalf("raw %q: expected not_object, got %+v", raw, out)
		}
	}
}

func TestValidateUnknownTool(t *testing.T) {
	out := Validate(`{"say":"", "tool":"launchRocket", "args":{}}`, "Alice", testIndex())
	if out.OK || out.Reason != ReasonUnknownTool {
		t.Fatalf("expected unknown_tool, got %+v", out)
	}
	if out.Tool != "" {
		t.Fatalf("expected empty tool on failure, got %q", out.Tool)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	out := Validate(`{"tool":"goToKnownLocation","args":{"x":12,"z":-40}}`, "Alice", testIndex())
	if out.OK || out.Reason != ReasonMissingRequired {
		t.Fatalf("expected missing_required, got %+v", out)
	}
	if len(out.Missing) != 1 || out.Missing[0] != "y" {
		t.Fatalf("expected missing [y], got %v", out.Missing)
	}
}

func TestValidateSuccessWithCoercion(t *testing.T) {
	out := Validate(`{"say":"on my way","tool":"goToKnownLocation","args":{"x":"12","y":64,"z":"-40"}}`, "Alice", testIndex())
	if !out.OK {
		t.Fatalf("expected ok, got %+v", out)
	}
	if out.Args["x"] != 12 || out.Args["z"] != -40 {
		t.Fatalf("expected coerced coordinates, got %v", out.Args)
	}
}

func TestValidateFillsUserName(t *testing.T) {
	out := Validate(`{"tool":"goToSomeone","args":{}}`, "Alice", testIndex())
	if !out.OK {
		t.Fatalf("expected ok after contextual fill, got %+v", out)
	}
	if out.Args["userName"] != "Alice" {
		t.Fatalf("expected userName filled with actor, got %v", out.Args)
	}

	out = Validate(`{"tool":"goToSomeone","args":{"userName":"Bob"}}`, "Alice", testIndex())
	if out.Args["userName"] != "Bob" {
		t.Fatalf("expected explicit userName untouched, got %v", out.Args)
	}
}

func TestExtractObjectFromProse(t *testing.T) {
	raw := "Sure! Here is the plan:\n{\"say\":\"ok\",\"tool\":null,\"args\":{}}\nLet me know."
	obj, ok := ExtractObject(raw)
	if !ok {
		t.Fatal("expected object extracted from prose")
	}
	if obj["say"] != "ok" {
		t.Fatalf("unexpected object %v", obj)
	}
}

func TestExtractObjectHandlesBracesInStrings(t *testing.T) {
	raw := `noise {"say":"use {x} marker","tool":null,"args":{}} tail`
	obj, ok := ExtractObject(raw)
	if !ok {
		t.Fatal("expected extraction despite braces inside string")
	}
	if obj["say"] != "use {x} marker" {
		t.Fatalf("unexpected say: %v", obj["say"])
	}
}

func TestExtractObjectPrefersWholeText(t *testing.T) {
	raw := `{"say":"{\"nested\":1}","tool":null,"args":{}}`
	obj, ok := ExtractObject(raw)
	if !ok {
		t.Fatal("expected whole-text parse")
	}
	if obj["say"] != `{"nested":1}` {
		t.Fatalf("unexpected say: %v", obj["say"])
	}
}
