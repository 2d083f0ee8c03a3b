// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// InMemoryStore is a process-local VectorStore with brute-force cosine
// search. It is the default backend when no vector database is configured
// and the workhorse of tests.
type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Point
}

// NewInMemoryStore creates an empty in-memory vector store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{collections: make(map[string][]Point)}
}

// CreateCollection registers a collection name. Vector size is not
// enforced; mismatched vectors simply score zero.
func (s *InMemoryStore) CreateCollection(_ context.Context, name string, _ uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = nil
	}
	return nil
}

// Upsert adds or replaces points by ID.
func (s *InMemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.collections[collection]
	for _, p := range points {
		replaced := false
		for i := range existing {
			if existing[i].ID == p.ID {
				existing[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, p)
		}
	}
	s.collections[collection] = existing
	return nil
}

// Search scores every point in the collection by cosine similarity.
func (s *InMemoryStore) Search(_ context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	s.mu.RLock()
	points := s.collections[collection]
	s.mu.RUnlock()

	var results []SearchResult
	for _, p := range points {
		score := cosine(vector, p.Vector)
		if score < scoreThreshold {
			continue
		}
		results = append(results, SearchResult{ID: p.ID, Score: score, Point: p})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
