// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

// Package diary is the agent's episodic memory: an append-only journal of
// gated events plus the gatekeeper that decides which candidate events are
// worth remembering at all.
package diary

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Kind classifies a diary entry.
type Kind string

const (
	KindStatus     Kind = "status"
	KindChatIn     Kind = "chat_in"
	KindChatOut    Kind = "chat_out"
	KindCmd        Kind = "cmd"
	KindCmdInvalid Kind = "cmd_invalid"
	KindCmdNoTool  Kind = "cmd_no_tool"
	KindToolFact   Kind = "tool_fact"
	KindError      Kind = "error"
	KindMemory     Kind = "memory"
	KindRollup     Kind = "tool_rollup"
	KindFact       Kind = "fact"
)

// maxTextLen caps stored entry text; longer texts are truncated, never
// rejected.
const maxTextLen = 280

// Entry is one remembered event.
type Entry struct {
	TS   time.Time      `json:"ts"`
	Kind Kind           `json:"kind"`
	From string         `json:"from,omitempty"`
	Tool string         `json:"tool,omitempty"`
	OK   *bool          `json:"ok,omitempty"`
	Text string         `json:"text"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Store is an append-only newline-delimited JSON journal. Appends are
// serialized; a torn final line from a crash is skipped on read.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore opens (creating if needed) the journal at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create diary dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open diary %s: %w", path, err)
	}
	f.Close()
	return &Store{path: path}, nil
}

// Append writes one entry as a single JSON line. Text is truncated to the
// storage cap before writing.
func (s *Store) Append(e Entry) error {
	if e.TS.IsZero() {
		e.TS = time.Now()
	}
	e.Text = truncate(e.Text, maxTextLen)

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal diary entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open diary %s: %w", s.path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append diary entry: %w", err)
	}
	return nil
}

// ReadTail returns up to n most recent entries in chronological order.
// Unparseable lines are skipped.
func (s *Store) ReadTail(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open diary %s: %w", s.path, err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
		if len(entries) > n {
			entries = entries[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan diary %s: %w", s.path, err)
	}
	return entries, nil
}

// FormatForPrompt renders entries as a compact context block for the
// planner, newest last, bounded by both line and character budgets.
func FormatForPrompt(entries []Entry, maxLines, maxChars int) string {
	if maxLines <= 0 || maxChars <= 0 || len(entries) == 0 {
		return ""
	}
	if len(entries) > maxLines {
		entries = entries[len(entries)-maxLines:]
	}

	var b strings.Builder
	for _, e := range entries {
		line := fmt.Sprintf("[%s] %s", e.TS.Format("15:04"), e.Text)
		if b.Len()+len(line)+1 > maxChars {
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
