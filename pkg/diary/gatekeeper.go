// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package diary

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/craftmind/craftmind/pkg/telemetry"
)

// Candidate is an event offered to the gatekeeper. Most candidates are
// suppressed; only events worth recalling later reach the journal.
type Candidate struct {
	Kind Kind
	From string
	Tool string
	OK   *bool
	Text string
	Meta map[string]any
	// Force bypasses scoring, rate limiting and dedup: explicit "remember
	// this" requests and boot status lines are always written.
	Force bool
}

// Suppression reasons reported by Offer.
const (
	ReasonWritten   = "written"
	ReasonRolledUp  = "rolled_up"
	ReasonRateLimit = "rate_limited"
	ReasonDuplicate = "duplicate"
	ReasonLowScore  = "low_score"
)

// Options tunes the gatekeeper. Zero values fall back to the defaults the
// agent ships with.
type Options struct {
	MinScore     int
	MaxPerMinute int
	MaxPer10s    int
	DedupWindow  time.Duration
	// RollupFlush is how long a gathering rollup may sit open without new
	// events before it is flushed.
	RollupFlush time.Duration
	// RollupMin is the minimum aggregated total for a rollup entry; an
	// aggregate below it is discarded without a write.
	RollupMin int

	Logger  *slog.Logger
	Metrics *telemetry.LoopMetrics
	// Observer is called after each durable write, outside the lock. Used
	// to feed semantic memory indexing.
	Observer func(Entry)
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Gatekeeper decides which candidate events become diary entries. All
// suppression state (rate window, dedup cache, open rollups) lives on the
// value; two gatekeepers never share state.
type Gatekeeper struct {
	store *Store
	opts  Options

	mu        sync.Mutex
	writes    []time.Time
	lastByKey map[string]time.Time
	prefixes  []prefixSeen
	rollups   map[string]*rollup
}

type prefixSeen struct {
	ts     time.Time
	prefix string
}

type rollup struct {
	first    time.Time
	last     time.Time
	actor    string
	resource string
	total    int
}

const dedupPrefixLen = 80

var (
	reCoords    = regexp.MustCompile(`-?\d+\s*[,;]?\s+-?\d+\s*[,;]?\s+-?\d+`)
	rePlaces    = regexp.MustCompile(`(?i)\b(base|home|house|chest|farm|portal|village|spawn|mine|cave)\b`)
	reNoise     = regexp.MustCompile(`(?i)\b(heartbeat|poll|polling)\b`)
	reNormStrip = regexp.MustCompile(`[^\p{L}\p{N}\s:.,-]`)
)

// NewGatekeeper wraps store with suppression state.
func NewGatekeeper(store *Store, opts Options) *Gatekeeper {
	if opts.MinScore <= 0 {
		opts.MinScore = 3
	}
	if opts.MaxPerMinute <= 0 {
		opts.MaxPerMinute = 18
	}
	if opts.MaxPer10s <= 0 {
		opts.MaxPer10s = 6
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 20 * time.Second
	}
	if opts.RollupFlush <= 0 {
		opts.RollupFlush = 30 * time.Second
	}
	if opts.RollupMin <= 0 {
		opts.RollupMin = 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gatekeeper{
		store:     store,
		opts:      opts,
		lastByKey: make(map[string]time.Time),
		rollups:   make(map[string]*rollup),
	}
}

// Offer runs one candidate through the gate. It returns whether the event
// was durably written and the decision reason.
func (g *Gatekeeper) Offer(ctx context.Context, c Candidate) (bool, string, error) {
	now := g.opts.Now()

	g.mu.Lock()
	flushed := g.collectStaleLocked(now)

	if c.Force {
		entry := g.entryFrom(c, now)
		g.recordWriteLocked(entry, now)
		g.mu.Unlock()
		if err := g.writeAll(ctx, append(flushed, entry)); err != nil {
			return false, ReasonWritten, err
		}
		return true, ReasonWritten, nil
	}

	// Repetitive gathering facts are aggregated per actor and resource
	// instead of flooding the journal one block at a time. Facts without a
	// recognizable resource and positive count run through the normal gate.
	if c.Kind == KindToolFact && c.Tool == "mineResource" && !isFailure(c) {
		if resource, count, ok := gatherMeta(c); ok {
			g.absorbRollupLocked(resource, count, c.From, now)
			g.mu.Unlock()
			g.suppressed(ctx, ReasonRolledUp)
			return false, ReasonRolledUp, g.writeAll(ctx, flushed)
		}
	}

	// Only errors are exempt from throttling and dedup: losing an error
	// record costs more than a noisy minute.
	if c.Kind != KindError {
		if reason, limited := g.rateLimitedLocked(now); limited {
			g.mu.Unlock()
			g.suppressed(ctx, reason)
			return false, reason, g.writeAll(ctx, flushed)
		}
		if g.duplicateLocked(c, now) {
			g.mu.Unlock()
			g.suppressed(ctx, ReasonDuplicate)
			return false, ReasonDuplicate, g.writeAll(ctx, flushed)
		}
	}

	if s := score(c); s < g.opts.MinScore {
		g.mu.Unlock()
		g.suppressed(ctx, ReasonLowScore)
		return false, ReasonLowScore, g.writeAll(ctx, flushed)
	}

	entry := g.entryFrom(c, now)
	g.recordWriteLocked(entry, now)
	g.mu.Unlock()

	if err := g.writeAll(ctx, append(flushed, entry)); err != nil {
		return false, ReasonWritten, err
	}
	return true, ReasonWritten, nil
}

// Flush writes every open rollup that meets the aggregation minimum and
// discards the rest.
func (g *Gatekeeper) Flush(ctx context.Context) error {
	g.mu.Lock()
	var out []Entry
	for key, r := range g.rollups {
		if e, ok := g.rollupEntryLocked(r); ok {
			out = append(out, e)
		}
		delete(g.rollups, key)
	}
	g.mu.Unlock()
	return g.writeAll(ctx, out)
}

// Run periodically flushes stale rollups until ctx is canceled, then
// flushes whatever remains.
func (g *Gatekeeper) Run(ctx context.Context) {
	interval := g.opts.RollupFlush / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := g.Flush(context.Background()); err != nil {
				g.opts.Logger.Error("final rollup flush failed", "error", err)
			}
			return
		case <-ticker.C:
			g.mu.Lock()
			flushed := g.collectStaleLocked(g.opts.Now())
			g.mu.Unlock()
			if err := g.writeAll(ctx, flushed); err != nil {
				g.opts.Logger.ErrorContext(ctx, "rollup flush failed", "error", err)
			}
		}
	}
}

func (g *Gatekeeper) entryFrom(c Candidate, now time.Time) Entry {
	return Entry{TS: now, Kind: c.Kind, From: c.From, Tool: c.Tool, OK: c.OK, Text: c.Text, Meta: c.Meta}
}

func (g *Gatekeeper) recordWriteLocked(e Entry, now time.Time) {
	g.writes = append(g.writes, now)
	cutoff := now.Add(-time.Minute)
	for len(g.writes) > 0 && g.writes[0].Before(cutoff) {
		g.writes = g.writes[1:]
	}

	norm := normalizeText(e.Text)
	g.lastByKey[dedupKey(e.Kind, e.Tool, norm)] = now
	g.prefixes = append(g.prefixes, prefixSeen{ts: now, prefix: textPrefix(norm)})
	dedupCutoff := now.Add(-g.opts.DedupWindow)
	for len(g.prefixes) > 0 && g.prefixes[0].ts.Before(dedupCutoff) {
		g.prefixes = g.prefixes[1:]
	}
}

func (g *Gatekeeper) rateLimitedLocked(now time.Time) (string, bool) {
	within := func(d time.Duration) int {
		cutoff := now.Add(-d)
		n := 0
		for _, ts := range g.writes {
			if !ts.Before(cutoff) {
				n++
			}
		}
		return n
	}
	if within(time.Minute) >= g.opts.MaxPerMinute {
		return ReasonRateLimit, true
	}
	if within(10*time.Second) >= g.opts.MaxPer10s {
		return ReasonRateLimit, true
	}
	return "", false
}

func (g *Gatekeeper) duplicateLocked(c Candidate, now time.Time) bool {
	norm := normalizeText(c.Text)
	cutoff := now.Add(-g.opts.DedupWindow)

	if last, ok := g.lastByKey[dedupKey(c.Kind, c.Tool, norm)]; ok && !last.Before(cutoff) {
		return true
	}
	prefix := textPrefix(norm)
	if prefix == "" {
		return false
	}
	for _, seen := range g.prefixes {
		if !seen.ts.Before(cutoff) && seen.prefix == prefix {
			return true
		}
	}
	return false
}

// gatherMeta extracts the resource name and gathered count from a
// gathering fact's metadata.
func gatherMeta(c Candidate) (string, int, bool) {
	resource, _ := c.Meta["resource"].(string)
	if resource == "" {
		resource, _ = c.Meta["name"].(string)
	}
	count, ok := metaInt(c.Meta["count"])
	if !ok {
		count, ok = metaInt(c.Meta["total"])
	}
	if resource == "" || !ok || count <= 0 {
		return "", 0, false
	}
	return resource, count, true
}

func metaInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func (g *Gatekeeper) absorbRollupLocked(resource string, count int, actor string, now time.Time) {
	key := actor + "|" + resource
	r, ok := g.rollups[key]
	if !ok {
		r = &rollup{first: now, actor: actor, resource: resource}
		g.rollups[key] = r
	}
	r.last = now
	r.total += count
}

func (g *Gatekeeper) collectStaleLocked(now time.Time) []Entry {
	var out []Entry
	for key, r := range g.rollups {
		if now.Sub(r.last) < g.opts.RollupFlush {
			continue
		}
		if e, ok := g.rollupEntryLocked(r); ok {
			out = append(out, e)
		}
		delete(g.rollups, key)
	}
	return out
}

// rollupEntryLocked converts an open rollup into its journal form. A total
// below the aggregation minimum yields no entry at all.
func (g *Gatekeeper) rollupEntryLocked(r *rollup) (Entry, bool) {
	if r.total < g.opts.RollupMin {
		return Entry{}, false
	}
	now := g.opts.Now()
	ok := true
	text := fmt.Sprintf("Gathered %d %s for %s.", r.total, r.resource, r.actor)
	if r.actor == "" {
		text = fmt.Sprintf("Gathered %d %s.", r.total, r.resource)
	}
	e := Entry{
		TS:   now,
		Kind: KindRollup,
		From: r.actor,
		Tool: "mineResource",
		OK:   &ok,
		Text: text,
		Meta: map[string]any{"resource": r.resource, "total": r.total},
	}
	g.recordWriteLocked(e, now)
	return e, true
}

func (g *Gatekeeper) writeAll(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := g.store.Append(e); err != nil {
			g.opts.Logger.ErrorContext(ctx, "diary append failed", "kind", string(e.Kind), "error", err)
			return err
		}
		g.opts.Metrics.DiaryWrite(ctx, string(e.Kind))
		if g.opts.Observer != nil {
			g.opts.Observer(e)
		}
	}
	return nil
}

func (g *Gatekeeper) suppressed(ctx context.Context, reason string) {
	g.opts.Metrics.DiarySuppressed(ctx, reason)
	g.opts.Logger.DebugContext(ctx, "diary candidate suppressed", "reason", reason)
}

func isFailure(c Candidate) bool {
	return c.Kind == KindError || (c.OK != nil && !*c.OK)
}

// score estimates recall value. Kinds carry a base weight; concrete detail
// (coordinates, named places, danger) raises it, loop chatter buries it.
func score(c Candidate) int {
	var s int
	switch c.Kind {
	case KindError:
		s = 10
	case KindMemory:
		s = 8
	case KindToolFact, KindRollup:
		s = 5
	case KindStatus:
		s = 2
	case KindCmdInvalid:
		s = 1
	default:
		s = 2
	}
	if c.OK != nil && !*c.OK {
		s += 4
	}
	if reCoords.MatchString(c.Text) {
		s += 3
	}
	if rePlaces.MatchString(c.Text) {
		s += 2
	}
	if c.Tool == "runAway" || c.Tool == "attackSomeone" {
		s += 2
	}
	if reNoise.MatchString(c.Text) {
		s -= 100
	}
	return s
}

// normalizeText case-folds, strips punctuation (keeping :.,- which carry
// meaning in coordinates and counts) and collapses whitespace.
func normalizeText(s string) string {
	s = reNormStrip.ReplaceAllString(strings.ToLower(s), "")
	return strings.Join(strings.Fields(s), " ")
}

func textPrefix(norm string) string {
	r := []rune(norm)
	if len(r) > dedupPrefixLen {
		r = r[:dedupPrefixLen]
	}
	return string(r)
}

func dedupKey(kind Kind, tool, norm string) string {
	sum := sha1.Sum([]byte(norm))
	return string(kind) + "|" + tool + "|" + hex.EncodeToString(sum[:])
}
