// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package diary

import (
	"context"
	"strings"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)}
}

func newTestGate(t *testing.T, clk *fakeClock) (*Gatekeeper, *Store) {
	t.Helper()
	s := newTestStore(t)
	g := NewGatekeeper(s, Options{Now: clk.now})
	return g, s
}

func boolPtr(b bool) *bool { return &b }

func TestGatekeeperWritesValuableCandidate(t *testing.T) {
	clk := newFakeClock()
	g, s := newTestGate(t, clk)

	written, reason, err := g.Offer(context.Background(), Candidate{
		Kind: KindToolFact,
		Tool: "goToKnownLocation",
		Text: "Went to the base (120, 64, -40).",
	})
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if !written || reason != ReasonWritten {
		t.Fatalf("expected write, got written=%v reason=%s", written, reason)
	}

	entries, _ := s.ReadTail(1)
	if len(entries) != 1 || entries[0].Kind != KindToolFact {
		t.Fatalf("expected one tool_fact entry, got %+v", entries)
	}
}

func TestGatekeeperSuppressesLowScore(t *testing.T) {
	clk := newFakeClock()
	g, s := newTestGate(t, clk)

	written, reason, _ := g.Offer(context.Background(), Candidate{Kind: KindChatIn, From: "Alice", Text: "hello"})
	if written || reason != ReasonLowScore {
		t.Fatalf("expected low_score suppression, got written=%v reason=%s", written, reason)
	}
	if entries, _ := s.ReadTail(10); len(entries) != 0 {
		t.Fatalf("expected empty journal, got %d entries", len(entries))
	}
}

func TestGatekeeperScoreRewardsDetail(t *testing.T) {
	clk := newFakeClock()
	g, _ := newTestGate(t, clk)

	// Same low-value kind, but coordinates plus a named place clear the bar.
	written, _, _ := g.Offer(context.Background(), Candidate{
		Kind: KindChatIn,
		From: "Alice",
		Text: "our base is at 120 64 -40",
	})
	if !written {
		t.Fatal("expected concrete detail to clear the score threshold")
	}
}

func TestGatekeeperSuppressesLoopNoise(t *testing.T) {
	clk := newFakeClock()
	g, _ := newTestGate(t, clk)

	written, reason, _ := g.Offer(context.Background(), Candidate{
		Kind: KindToolFact,
		Text: "heartbeat: still polling the chat window",
	})
	if written || reason != ReasonLowScore {
		t.Fatalf("expected noise buried, got written=%v reason=%s", written, reason)
	}
}

func TestGatekeeperDedupWindow(t *testing.T) {
	clk := newFakeClock()
	g, _ := newTestGate(t, clk)
	ctx := context.Background()
	c := Candidate{Kind: KindToolFact, Tool: "goToSomeone", Text: "Walked over to Alice near the base."}

	if written, _, _ := g.Offer(ctx, c); !written {
		t.Fatal("first offer should write")
	}
	clk.advance(5 * time.Second)
	if written, reason, _ := g.Offer(ctx, c); written || reason != ReasonDuplicate {
		t.Fatalf("expected duplicate within window, got written=%v reason=%s", written, reason)
	}
	clk.advance(21 * time.Second)
	if written, _, _ := g.Offer(ctx, c); !written {
		t.Fatal("expected write after dedup window expired")
	}
}

func TestGatekeeperDedupByPrefixOverlap(t *testing.T) {
	clk := newFakeClock()
	g, _ := newTestGate(t, clk)
	ctx := context.Background()
	prefix := strings.Repeat("a", 90)

	if written, _, _ := g.Offer(ctx, Candidate{Kind: KindMemory, Text: prefix + " one"}); !written {
		t.Fatal("first offer should write")
	}
	clk.advance(time.Second)
	written, reason, _ := g.Offer(ctx, Candidate{Kind: KindMemory, Text: prefix + " two"})
	if written || reason != ReasonDuplicate {
		t.Fatalf("expected prefix-overlap duplicate, got written=%v reason=%s", written, reason)
	}
}

func TestGatekeeperRateLimitExemptsErrors(t *testing.T) {
	clk := newFakeClock()
	g, s := newTestGate(t, clk)
	ctx := context.Background()

	// Fill the 10s window with distinct high-value entries.
	texts := []string{
		"remember the farm location",
		"remember the portal location",
		"remember the village location",
		"remember the chest location",
		"remember the spawn location",
		"remember the cave location",
	}
	for _, text := range texts {
		if written, reason, _ := g.Offer(ctx, Candidate{Kind: KindMemory, Text: text}); !written {
			t.Fatalf("expected write for %q, got %s", text, reason)
		}
		clk.advance(time.Second)
	}

	written, reason, _ := g.Offer(ctx, Candidate{Kind: KindMemory, Text: "remember the mine location"})
	if written || reason != ReasonRateLimit {
		t.Fatalf("expected rate limit, got written=%v reason=%s", written, reason)
	}

	// An error must never be throttled away.
	written, _, _ = g.Offer(ctx, Candidate{Kind: KindError, Text: "pathfinding crashed near lava"})
	if !written {
		t.Fatal("expected error candidate written despite rate limit")
	}

	entries, _ := s.ReadTail(20)
	if entries[len(entries)-1].Kind != KindError {
		t.Fatalf("expected error entry last, got %+v", entries[len(entries)-1])
	}
}

func TestGatekeeperForceBypassesGate(t *testing.T) {
	clk := newFakeClock()
	g, s := newTestGate(t, clk)
	ctx := context.Background()

	// Low score and duplicated, but forced.
	c := Candidate{Kind: KindStatus, Text: "joined the game", Force: true}
	for i := 0; i < 3; i++ {
		if written, _, _ := g.Offer(ctx, c); !written {
			t.Fatalf("forced offer %d should write", i)
		}
	}
	if entries, _ := s.ReadTail(10); len(entries) != 3 {
		t.Fatalf("expected 3 forced entries, got %d", len(entries))
	}
}

func TestGatekeeperRollsUpGatheringFacts(t *testing.T) {
	clk := newFakeClock()
	g, s := newTestGate(t, clk)
	ctx := context.Background()

	for i, count := range []int{5, 7} {
		written, reason, _ := g.Offer(ctx, Candidate{
			Kind: KindToolFact,
			Tool: "mineResource",
			From: "Alice",
			Text: "Mined iron_ore.",
			Meta: map[string]any{"resource": "iron_ore", "count": count},
			OK:   boolPtr(true),
		})
		if written || reason != ReasonRolledUp {
			t.Fatalf("offer %d: expected rollup absorption, got written=%v reason=%s", i, written, reason)
		}
		clk.advance(time.Second)
	}
	if entries, _ := s.ReadTail(10); len(entries) != 0 {
		t.Fatal("rollup must not write until flushed")
	}

	// Staleness flush happens on the next gate pass.
	clk.advance(31 * time.Second)
	g.Offer(ctx, Candidate{Kind: KindChatIn, Text: "hi"})

	entries, _ := s.ReadTail(10)
	if len(entries) != 1 || entries[0].Kind != KindRollup {
		t.Fatalf("expected one rollup entry, got %+v", entries)
	}
	if entries[0].Meta["total"] != float64(12) {
		t.Fatalf("expected summed total 12, got %v", entries[0].Meta["total"])
	}
	if entries[0].Text != "Gathered 12 iron_ore for Alice." {
		t.Fatalf("unexpected rollup text %q", entries[0].Text)
	}
}

func TestGatekeeperRollupBelowMinWritesNothing(t *testing.T) {
	clk := newFakeClock()
	g, s := newTestGate(t, clk)
	ctx := context.Background()

	written, reason, _ := g.Offer(ctx, Candidate{
		Kind: KindToolFact,
		Tool: "mineResource",
		From: "Alice",
		Text: "Mined stone.",
		Meta: map[string]any{"resource": "stone", "count": 1},
	})
	if written || reason != ReasonRolledUp {
		t.Fatalf("expected absorption, got written=%v reason=%s", written, reason)
	}
	if err := g.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if entries, _ := s.ReadTail(10); len(entries) != 0 {
		t.Fatalf("below-minimum aggregate must produce zero writes, got %+v", entries)
	}
}

func TestGatekeeperGatherFactWithoutCountGatedNormally(t *testing.T) {
	clk := newFakeClock()
	g, s := newTestGate(t, clk)

	// No resource/count metadata: nothing to fold, so the fact runs
	// through the ordinary gate instead of an aggregate.
	written, reason, _ := g.Offer(context.Background(), Candidate{
		Kind: KindToolFact,
		Tool: "mineResource",
		From: "Alice",
		Text: "Finished mining.",
		OK:   boolPtr(true),
	})
	if !written || reason != ReasonWritten {
		t.Fatalf("expected normal write, got written=%v reason=%s", written, reason)
	}
	if entries, _ := s.ReadTail(1); len(entries) != 1 || entries[0].Kind != KindToolFact {
		t.Fatalf("expected tool_fact entry, got %+v", entries)
	}
}

func TestGatekeeperFailedFactsStillThrottled(t *testing.T) {
	clk := newFakeClock()
	g, _ := newTestGate(t, clk)
	ctx := context.Background()

	for i, text := range []string{
		"remember the farm location",
		"remember the portal location",
		"remember the village location",
		"remember the chest location",
		"remember the spawn location",
		"remember the cave location",
	} {
		if written, reason, _ := g.Offer(ctx, Candidate{Kind: KindMemory, Text: text}); !written {
			t.Fatalf("write %d: got %s", i, reason)
		}
		clk.advance(time.Second)
	}

	// A failed tool fact is not an error-kind entry; it waits like the rest.
	written, reason, _ := g.Offer(ctx, Candidate{
		Kind: KindToolFact,
		Tool: "goToSomeone",
		Text: "Could not reach Alice.",
		OK:   boolPtr(false),
	})
	if written || reason != ReasonRateLimit {
		t.Fatalf("expected failed fact rate-limited, got written=%v reason=%s", written, reason)
	}
}

func TestGatekeeperFailedFactsStillDeduped(t *testing.T) {
	clk := newFakeClock()
	g, _ := newTestGate(t, clk)
	ctx := context.Background()
	c := Candidate{Kind: KindToolFact, Tool: "goToSomeone", Text: "Could not reach Alice.", OK: boolPtr(false)}

	if written, _, _ := g.Offer(ctx, c); !written {
		t.Fatal("first failure should write")
	}
	clk.advance(2 * time.Second)
	if written, reason, _ := g.Offer(ctx, c); written || reason != ReasonDuplicate {
		t.Fatalf("expected repeated failure deduped, got written=%v reason=%s", written, reason)
	}
}

func TestGatekeeperDedupIgnoresPunctuation(t *testing.T) {
	clk := newFakeClock()
	g, _ := newTestGate(t, clk)
	ctx := context.Background()

	if written, _, _ := g.Offer(ctx, Candidate{Kind: KindMemory, Text: "remember the secret tunnel"}); !written {
		t.Fatal("first offer should write")
	}
	clk.advance(time.Second)
	written, reason, _ := g.Offer(ctx, Candidate{Kind: KindMemory, Text: "Remember the secret tunnel!!"})
	if written || reason != ReasonDuplicate {
		t.Fatalf("expected punctuation-differing repeat deduped, got written=%v reason=%s", written, reason)
	}
}

func TestGatekeeperFailedGatherSkipsRollup(t *testing.T) {
	clk := newFakeClock()
	g, s := newTestGate(t, clk)

	written, _, _ := g.Offer(context.Background(), Candidate{
		Kind: KindToolFact,
		Tool: "mineResource",
		Text: "Stopped mining iron_ore at 3 of 20.",
		OK:   boolPtr(false),
	})
	if !written {
		t.Fatal("failed gathering fact must be written immediately, not rolled up")
	}
	if entries, _ := s.ReadTail(1); len(entries) != 1 || entries[0].Kind != KindToolFact {
		t.Fatalf("expected immediate tool_fact, got %+v", entries)
	}
}
