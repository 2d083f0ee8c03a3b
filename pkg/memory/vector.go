// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides semantic recall over diary entries: an embedding
// interface, vector store backends and the recaller that ties them to the
// journal.
package memory

import "context"

// VectorStore is a vector database backend.
type VectorStore interface {
	// Upsert adds or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns the nearest points to vector, best first.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
	// CreateCollection creates a collection; creating an existing one is
	// not an error.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
}

// Point is one stored vector with its payload.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// SearchResult is one search hit.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

// Embedder converts text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
