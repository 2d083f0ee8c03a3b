// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent contains the main loop: it polls game chat, routes player
// messages to the chat or planning flow, supervises tool execution and
// feeds the outcome back into chat and the journal.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/craftmind/craftmind/pkg/diary"
	"github.com/craftmind/craftmind/pkg/llm"
	"github.com/craftmind/craftmind/pkg/mcp"
	"github.com/craftmind/craftmind/pkg/memory"
	"github.com/craftmind/craftmind/pkg/places"
	"github.com/craftmind/craftmind/pkg/plan"
	"github.com/craftmind/craftmind/pkg/task"
	"github.com/craftmind/craftmind/pkg/telemetry"
)

// phase tracks where the loop currently is. One loop goroutine owns it;
// it exists for heartbeat visibility, not for synchronization.
type phase int

const (
	phaseIdle phase = iota
	phaseAwaitingInput
	phaseDispatching
	phaseAwaitingTool
)

func (p phase) String() string {
	switch p {
	case phaseAwaitingInput:
		return "awaiting_input"
	case phaseDispatching:
		return "dispatching"
	case phaseAwaitingTool:
		return "awaiting_tool"
	default:
		return "idle"
	}
}

const defaultReplyLimit = 240

// ToolCaller executes one named tool call against the game server.
type ToolCaller interface {
	CallToolText(ctx context.Context, name string, args map[string]any, quiet bool) (string, error)
}

// Deps carries everything the loop composes. Tools, Index, Provider and
// Runner are required; the rest degrade gracefully when absent.
type Deps struct {
	Username   string
	ChatPrefix string
	CmdPrefix  string

	PollInterval  time.Duration
	ReadTimeLimit time.Duration
	Heartbeat     time.Duration
	MaxHistory    int
	SeenLimit     int
	PlanRetries   int

	Tools    ToolCaller
	Index    *mcp.Index
	Provider llm.Provider
	Model    string
	Runner   *task.Runner

	Gate    *diary.Gatekeeper
	Diary   *diary.Store
	Places  *places.Store
	Recall  *memory.Recaller
	Metrics *telemetry.LoopMetrics
	Logger  *slog.Logger
}

// Loop is the single-flight agent loop. Run owns all mutable state; no
// other goroutine touches it.
type Loop struct {
	d        Deps
	repairer *plan.Repairer
	seen     *seenSet
	phase    phase

	chatHistory []string
	cmdHistory  []string
}

// message is one parsed player chat line.
type message struct {
	from string
	text string
}

var reChatLine = regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\]\s*<([^>]+)>:?\s*(.+)$`)

// New validates deps and builds a loop.
func New(d Deps) (*Loop, error) {
	if d.Tools == nil || d.Index == nil || d.Provider == nil || d.Runner == nil {
		return nil, fmt.Errorf("tools, index, provider and runner are required")
	}
	if d.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if d.ChatPrefix == "" || d.CmdPrefix == "" {
		return nil, fmt.Errorf("chat and command prefixes are required")
	}
	if d.PollInterval <= 0 {
		d.PollInterval = 800 * time.Millisecond
	}
	if d.MaxHistory <= 0 {
		d.MaxHistory = 20
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	return &Loop{
		d: d,
		repairer: &plan.Repairer{
			Provider:   d.Provider,
			Model:      d.Model,
			System:     plannerSystemPrompt(d.Index.PromptBlock()),
			MaxRetries: d.PlanRetries,
			Logger:     d.Logger,
		},
		seen: newSeenSet(d.SeenLimit),
	}, nil
}

// Run polls chat until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	l.d.Logger.InfoContext(ctx, "agent loop started",
		"username", l.d.Username,
		"tools", l.d.Index.Names(),
		"poll_interval", l.d.PollInterval)

	poll := time.NewTicker(l.d.PollInterval)
	defer poll.Stop()

	var heartbeat <-chan time.Time
	if l.d.Heartbeat > 0 {
		hb := time.NewTicker(l.d.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	for {
		select {
		case <-ctx.Done():
			l.d.Logger.Info("agent loop stopped")
			return ctx.Err()
		case <-heartbeat:
			l.d.Logger.InfoContext(ctx, "heartbeat",
				"phase", l.phase.String(),
				"seen", l.seen.len())
		case <-poll.C:
			l.tick(ctx)
		}
	}
}

// tick reads new chat lines and handles them. Of several new lines only
// the latest chat and the latest command are acted on; earlier ones stay
// marked seen but are dropped, since a newer line supersedes an unstarted
// older one. Backlog discarding is deliberate, not lossy bookkeeping.
func (l *Loop) tick(ctx context.Context) {
	l.phase = phaseAwaitingInput
	defer func() { l.phase = phaseIdle }()

	chat, cmd := l.collect(ctx)
	if chat != nil {
		l.handleChat(ctx, *chat)
	}
	if cmd != nil {
		l.handleCommand(ctx, *cmd)
	}
}

func (l *Loop) collect(ctx context.Context) (*message, *message) {
	args := map[string]any{"count": 100, "filterType": "chat"}
	if l.d.ReadTimeLimit > 0 {
		args["timeLimit"] = int(l.d.ReadTimeLimit.Seconds())
	}
	text, err := l.d.Tools.CallToolText(ctx, "readChat", args, true)
	if err != nil {
		l.d.Logger.WarnContext(ctx, "chat read failed", "error", err)
		return nil, nil
	}

	var chat, cmd *message
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || l.seen.has(line) {
			continue
		}
		l.seen.add(line)

		m := reChatLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		from, body := m[1], strings.TrimSpace(m[2])
		if from == l.d.Username {
			continue
		}

		switch {
		case strings.HasPrefix(body, l.d.CmdPrefix):
			next := message{from: from, text: strings.TrimSpace(strings.TrimPrefix(body, l.d.CmdPrefix))}
			if cmd != nil {
				l.d.Logger.InfoContext(ctx, "command superseded",
					"from", cmd.from, "command", cmd.text)
			}
			cmd = &next
		case strings.HasPrefix(body, l.d.ChatPrefix):
			next := message{from: from, text: strings.TrimSpace(strings.TrimPrefix(body, l.d.ChatPrefix))}
			if chat != nil {
				l.d.Logger.InfoContext(ctx, "chat superseded",
					"from", chat.from)
			}
			chat = &next
		}
	}
	return chat, cmd
}

func (l *Loop) handleChat(ctx context.Context, m message) {
	l.phase = phaseDispatching
	l.d.Metrics.ChatIn(ctx)
	l.gateOffer(ctx, diary.Candidate{Kind: diary.KindChatIn, From: m.from, Text: m.from + ": " + m.text})

	if l.d.Places != nil {
		if intent, name := places.DetectIntent(m.text); intent != places.IntentNone && name != "" {
			l.handlePlaceIntent(ctx, m, intent, name)
			return
		}
	}

	memories := memory.FormatForPrompt(l.d.Recall.Recall(ctx, m.text))
	prompt := buildChatPrompt(m.from, m.text, memories, l.diaryBlock(), strings.Join(l.chatHistory, "\n"))

	reply, err := llm.Complete(ctx, l.d.Provider, l.d.Model, chatSystemPrompt(l.d.Username), prompt)
	if err != nil {
		l.d.Metrics.LLMError(ctx)
		l.d.Logger.ErrorContext(ctx, "chat completion failed", "from", m.from, "error", err)
		l.say(ctx, "Sorry, I cannot think straight right now.")
		return
	}
	reply = sanitizeReply(reply, defaultReplyLimit)
	if reply == "" {
		return
	}

	l.say(ctx, reply)
	l.pushChatHistory(m.from+": "+m.text, l.d.Username+": "+reply)
	l.gateOffer(ctx, diary.Candidate{Kind: diary.KindChatOut, From: l.d.Username, Text: reply})
}

func (l *Loop) handlePlaceIntent(ctx context.Context, m message, intent places.Intent, name string) {
	switch intent {
	case places.IntentRemember:
		x, y, z, ok := places.ExtractCoords(m.text)
		if !ok {
			l.say(ctx, fmt.Sprintf("Tell me the coordinates too, like: remember this place as %s 120 64 -40", name))
			return
		}
		if err := l.d.Places.Upsert(ctx, places.Place{Name: name, X: x, Y: y, Z: z, SavedBy: m.from}); err != nil {
			l.d.Logger.ErrorContext(ctx, "place save failed", "name", name, "error", err)
			l.say(ctx, "I could not save that place.")
			return
		}
		l.say(ctx, fmt.Sprintf("Saved %s at %d, %d, %d.", name, x, y, z))
		l.gateOffer(ctx, diary.Candidate{
			Kind:  diary.KindMemory,
			From:  m.from,
			Text:  fmt.Sprintf("%s asked me to remember %s at %d, %d, %d.", m.from, name, x, y, z),
			Force: true,
		})

	case places.IntentWhere:
		p, err := l.d.Places.Get(ctx, name)
		if err != nil {
			l.d.Logger.ErrorContext(ctx, "place lookup failed", "name", name, "error", err)
			return
		}
		if p == nil {
			l.say(ctx, fmt.Sprintf("I don't know where %s is.", name))
			return
		}
		l.say(ctx, fmt.Sprintf("%s is at %d, %d, %d.", p.Name, p.X, p.Y, p.Z))

	case places.IntentForget:
		if err := l.d.Places.Delete(ctx, name); err != nil {
			l.d.Logger.ErrorContext(ctx, "place delete failed", "name", name, "error", err)
			return
		}
		l.say(ctx, fmt.Sprintf("Forgot %s.", name))
		l.gateOffer(ctx, diary.Candidate{
			Kind:  diary.KindMemory,
			From:  m.from,
			Text:  fmt.Sprintf("%s asked me to forget the place %s.", m.from, name),
			Force: true,
		})
	}
}

func (l *Loop) handleCommand(ctx context.Context, m message) {
	l.phase = phaseDispatching
	l.d.Metrics.CmdIn(ctx)
	l.gateOffer(ctx, diary.Candidate{Kind: diary.KindCmd, From: m.from, Text: m.from + " commanded: " + m.text})

	prompt := buildPlanPrompt(m.from, m.text, l.placesBlock(ctx), l.diaryBlock(), strings.Join(l.cmdHistory, "\n"))
	first, err := llm.Complete(ctx, l.d.Provider, l.d.Model, l.repairer.System, prompt)
	if err != nil {
		l.d.Metrics.LLMError(ctx)
		l.d.Logger.ErrorContext(ctx, "plan completion failed", "from", m.from, "error", err)
		l.say(ctx, "Sorry, I cannot think straight right now.")
		return
	}

	outcome, attempts := l.repairer.Run(ctx, m.from, m.text, first, l.d.Index)
	if !outcome.OK {
		l.d.Metrics.CmdInvalid(ctx)
		say := sanitizeReply(outcome.Say, defaultReplyLimit)
		if say == "" {
			say = "Sorry, I could not turn that into a valid action."
		}
		l.say(ctx, say)
		l.gateOffer(ctx, diary.Candidate{
			Kind: diary.KindCmdInvalid,
			From: m.from,
			Text: fmt.Sprintf("Could not plan %q after %d attempts (%s).", m.text, len(attempts), outcome.Reason),
		})
		l.pushCmdHistory(fmt.Sprintf("%s: %s -> invalid (%s)", m.from, m.text, outcome.Reason))
		return
	}

	l.d.Metrics.CmdValid(ctx)
	if say := sanitizeReply(outcome.Say, defaultReplyLimit); say != "" {
		l.say(ctx, say)
	}

	if outcome.Tool == "" {
		l.gateOffer(ctx, diary.Candidate{
			Kind: diary.KindCmdNoTool,
			From: m.from,
			Text: fmt.Sprintf("Answered %q without taking an action.", m.text),
		})
		l.pushCmdHistory(fmt.Sprintf("%s: %s -> (no action)", m.from, m.text))
		return
	}

	l.phase = phaseAwaitingTool
	l.d.Metrics.ToolCall(ctx, outcome.Tool)
	res := l.d.Runner.Run(ctx, outcome.Tool, outcome.Args)
	if !res.Verified.OK {
		l.d.Metrics.ToolError(ctx, outcome.Tool)
	}

	summary := diary.SummarizeTool(outcome.Tool, outcome.Args, res.Verified)
	l.say(ctx, sanitizeReply(summary, defaultReplyLimit))

	ok := res.Verified.OK
	l.gateOffer(ctx, diary.Candidate{
		Kind: diary.KindToolFact,
		From: m.from,
		Tool: outcome.Tool,
		OK:   &ok,
		Text: summary,
		Meta: res.Verified.Meta,
	})
	l.pushCmdHistory(fmt.Sprintf("%s: %s -> %s", m.from, m.text, summary))
}

// say sends one chat message. Send failures are logged and swallowed: a
// lost reply must not take the loop down.
func (l *Loop) say(ctx context.Context, text string) {
	if text == "" {
		return
	}
	if _, err := l.d.Tools.CallToolText(ctx, "sendChat", map[string]any{"message": text}, true); err != nil {
		l.d.Logger.WarnContext(ctx, "chat send failed", "error", err)
		return
	}
	l.d.Metrics.ChatOut(ctx)
}

func (l *Loop) gateOffer(ctx context.Context, c diary.Candidate) {
	if l.d.Gate == nil {
		return
	}
	if _, _, err := l.d.Gate.Offer(ctx, c); err != nil {
		l.d.Logger.ErrorContext(ctx, "diary offer failed", "kind", string(c.Kind), "error", err)
	}
}

func (l *Loop) diaryBlock() string {
	if l.d.Diary == nil {
		return ""
	}
	entries, err := l.d.Diary.ReadTail(10)
	if err != nil {
		l.d.Logger.Warn("diary tail read failed", "error", err)
		return ""
	}
	return diary.FormatForPrompt(entries, 10, 1200)
}

func (l *Loop) placesBlock(ctx context.Context) string {
	if l.d.Places == nil {
		return ""
	}
	list, err := l.d.Places.List(ctx)
	if err != nil {
		l.d.Logger.WarnContext(ctx, "places list failed", "error", err)
		return ""
	}
	return places.FormatForPrompt(list)
}

func (l *Loop) pushChatHistory(lines ...string) {
	l.chatHistory = append(l.chatHistory, lines...)
	if over := len(l.chatHistory) - l.d.MaxHistory; over > 0 {
		l.chatHistory = l.chatHistory[over:]
	}
}

func (l *Loop) pushCmdHistory(line string) {
	l.cmdHistory = append(l.cmdHistory, line)
	if over := len(l.cmdHistory) - l.d.MaxHistory; over > 0 {
		l.cmdHistory = l.cmdHistory[over:]
	}
}

// sanitizeReply collapses a model reply to a single chat-safe line.
func sanitizeReply(s string, limit int) string {
	out := strings.Join(strings.Fields(s), " ")
	r := []rune(out)
	if limit > 0 && len(r) > limit {
		out = string(r[:limit-1]) + "…"
	}
	return out
}
