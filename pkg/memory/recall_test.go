// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"strings"
	"testing"
)

// wordEmbedder maps known words to fixed axes so related texts land close
// together without a real model.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 3)
	lower := strings.ToLower(text)
	if strings.Contains(lower, "base") {
		vec[0] = 1
	}
	if strings.Contains(lower, "iron") {
		vec[1] = 1
	}
	if strings.Contains(lower, "zombie") {
		vec[2] = 1
	}
	return vec, nil
}

func newTestRecaller(t *testing.T) *Recaller {
	t.Helper()
	r, err := NewRecaller(context.Background(), NewInMemoryStore(), wordEmbedder{}, "test", 3, 5, nil)
	if err != nil {
		t.Fatalf("NewRecaller: %v", err)
	}
	return r
}

func TestRecallReturnsRelatedTexts(t *testing.T) {
	ctx := context.Background()
	r := newTestRecaller(t)

	r.Index(ctx, "Went to the base (120, 64, -40).", nil)
	r.Index(ctx, "Mined 5 of 5 iron ore.", nil)
	r.Index(ctx, "Ran away from a zombie.", nil)

	got := r.Recall(ctx, "where is the base?")
	if len(got) == 0 {
		t.Fatal("expected at least one recalled memory")
	}
	if !strings.Contains(got[0], "base") {
		t.Fatalf("expected base memory first, got %q", got[0])
	}
	for _, text := range got {
		if strings.Contains(text, "zombie") {
			t.Fatalf("unrelated memory recalled: %q", text)
		}
	}
}

func TestRecallNilRecallerIsSafe(t *testing.T) {
	var r *Recaller
	r.Index(context.Background(), "anything", nil)
	if got := r.Recall(context.Background(), "anything"); got != nil {
		t.Fatalf("expected nil from nil recaller, got %v", got)
	}
}

func TestInMemoryStoreUpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	s.CreateCollection(ctx, "c", 2)

	s.Upsert(ctx, "c", []Point{{ID: "a", Vector: []float32{1, 0}, Payload: map[string]any{"text": "old"}}})
	s.Upsert(ctx, "c", []Point{{ID: "a", Vector: []float32{1, 0}, Payload: map[string]any{"text": "new"}}})

	results, err := s.Search(ctx, "c", []float32{1, 0}, 10, 0.1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 point after replace, got %d", len(results))
	}
	if results[0].Point.Payload["text"] != "new" {
		t.Fatalf("expected replaced payload, got %v", results[0].Point.Payload)
	}
}

func TestFormatForPrompt(t *testing.T) {
	out := FormatForPrompt([]string{"one", "two"})
	if out != "- one\n- two" {
		t.Fatalf("unexpected block %q", out)
	}
	if FormatForPrompt(nil) != "" {
		t.Fatal("expected empty block")
	}
}
