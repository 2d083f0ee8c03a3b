// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package agent

// seenSet remembers which chat lines were already handled. It is bounded:
// once the limit is reached the oldest key is evicted, so memory stays
// flat no matter how long the process runs.
type seenSet struct {
	limit int
	order []string
	keys  map[string]struct{}
}

func newSeenSet(limit int) *seenSet {
	if limit <= 0 {
		limit = 800
	}
	return &seenSet{limit: limit, keys: make(map[string]struct{}, limit)}
}

func (s *seenSet) has(key string) bool {
	_, ok := s.keys[key]
	return ok
}

// add marks key as seen, evicting the oldest entry when full. Adding a
// present key is a no-op and does not refresh its age.
func (s *seenSet) add(key string) {
	if s.has(key) {
		return
	}
	if len(s.order) >= s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.keys, oldest)
	}
	s.order = append(s.order, key)
	s.keys[key] = struct{}{}
}

func (s *seenSet) len() int { return len(s.order) }
