// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// recallThreshold filters out weakly related hits; below it a memory is
// more likely noise than context.
const recallThreshold = 0.5

// Recaller indexes journal texts and answers "what do I remember about X"
// queries. It is nil-safe: a nil recaller indexes nothing and recalls
// nothing, so semantic memory can stay optional.
type Recaller struct {
	store      VectorStore
	embedder   Embedder
	collection string
	topK       int
	logger     *slog.Logger
}

// NewRecaller ensures the collection exists and returns a recaller over it.
func NewRecaller(ctx context.Context, store VectorStore, embedder Embedder, collection string, vectorSize uint64, topK int, logger *slog.Logger) (*Recaller, error) {
	if store == nil || embedder == nil {
		return nil, fmt.Errorf("store and embedder are required")
	}
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := store.CreateCollection(ctx, collection, vectorSize); err != nil {
		return nil, fmt.Errorf("ensure collection %s: %w", collection, err)
	}
	return &Recaller{store: store, embedder: embedder, collection: collection, topK: topK, logger: logger}, nil
}

// Index embeds text and stores it with its payload. Indexing failures are
// logged, not fatal: the journal already holds the durable copy.
func (r *Recaller) Index(ctx context.Context, text string, payload map[string]any) {
	if r == nil || strings.TrimSpace(text) == "" {
		return
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		r.logger.WarnContext(ctx, "memory index embed failed", "error", err)
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["text"] = text

	err = r.store.Upsert(ctx, r.collection, []Point{{
		ID:      uuid.NewString(),
		Vector:  vec,
		Payload: payload,
	}})
	if err != nil {
		r.logger.WarnContext(ctx, "memory index upsert failed", "error", err)
	}
}

// Recall returns the texts most related to query, best first.
func (r *Recaller) Recall(ctx context.Context, query string) []string {
	if r == nil || strings.TrimSpace(query) == "" {
		return nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.WarnContext(ctx, "memory recall embed failed", "error", err)
		return nil
	}
	results, err := r.store.Search(ctx, r.collection, vec, r.topK, recallThreshold)
	if err != nil {
		r.logger.WarnContext(ctx, "memory recall search failed", "error", err)
		return nil
	}

	var out []string
	for _, res := range results {
		if text, ok := res.Point.Payload["text"].(string); ok && text != "" {
			out = append(out, text)
		}
	}
	return out
}

// FormatForPrompt renders recalled texts as a planner context block.
func FormatForPrompt(texts []string) string {
	if len(texts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range texts {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
