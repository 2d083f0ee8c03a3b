// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LoopMetrics tracks agent loop activity: messages, plans, tool calls and
// diary decisions. All counters are safe for use from the single loop
// goroutine and the background rollup flusher.
type LoopMetrics struct {
	chatIn     metric.Int64Counter
	chatOut    metric.Int64Counter
	cmdIn      metric.Int64Counter
	cmdValid   metric.Int64Counter
	cmdInvalid metric.Int64Counter

	toolCalls  metric.Int64Counter
	toolErrors metric.Int64Counter
	llmErrors  metric.Int64Counter

	diaryWrites     metric.Int64Counter
	diarySuppressed metric.Int64Counter
}

// NewLoopMetrics creates loop activity counters on the global meter.
func NewLoopMetrics() (*LoopMetrics, error) {
	meter := otel.Meter("craftmind/loop")

	m := &LoopMetrics{}
	var err error

	if m.chatIn, err = meter.Int64Counter("craftmind.chat.in",
		metric.WithDescription("Chat lines accepted for a reply")); err != nil {
		return nil, err
	}
	if m.chatOut, err = meter.Int64Counter("craftmind.chat.out",
		metric.WithDescription("Chat replies sent")); err != nil {
		return nil, err
	}
	if m.cmdIn, err = meter.Int64Counter("craftmind.cmd.in",
		metric.WithDescription("Directive lines accepted for planning")); err != nil {
		return nil, err
	}
	if m.cmdValid, err = meter.Int64Counter("craftmind.cmd.valid",
		metric.WithDescription("Plans that passed validation")); err != nil {
		return nil, err
	}
	if m.cmdInvalid, err = meter.Int64Counter("craftmind.cmd.invalid",
		metric.WithDescription("Plans still invalid after repair")); err != nil {
		return nil, err
	}
	if m.toolCalls, err = meter.Int64Counter("craftmind.tool.calls",
		metric.WithDescription("Tool invocations by name")); err != nil {
		return nil, err
	}
	if m.toolErrors, err = meter.Int64Counter("craftmind.tool.errors",
		metric.WithDescription("Tool invocation errors by name")); err != nil {
		return nil, err
	}
	if m.llmErrors, err = meter.Int64Counter("craftmind.llm.errors",
		metric.WithDescription("Inference backend errors")); err != nil {
		return nil, err
	}
	if m.diaryWrites, err = meter.Int64Counter("craftmind.diary.writes",
		metric.WithDescription("Diary entries durably written")); err != nil {
		return nil, err
	}
	if m.diarySuppressed, err = meter.Int64Counter("craftmind.diary.suppressed",
		metric.WithDescription("Diary candidates suppressed by the gatekeeper")); err != nil {
		return nil, err
	}

	return m, nil
}

// ChatIn records an accepted chat line.
func (m *LoopMetrics) ChatIn(ctx context.Context) {
	if m == nil {
		return
	}
	m.add(ctx, m.chatIn)
}

// ChatOut records a sent reply.
func (m *LoopMetrics) ChatOut(ctx context.Context) {
	if m == nil {
		return
	}
	m.add(ctx, m.chatOut)
}

// CmdIn records an accepted directive.
func (m *LoopMetrics) CmdIn(ctx context.Context) {
	if m == nil {
		return
	}
	m.add(ctx, m.cmdIn)
}

// CmdValid records a plan that validated.
func (m *LoopMetrics) CmdValid(ctx context.Context) {
	if m == nil {
		return
	}
	m.add(ctx, m.cmdValid)
}

// CmdInvalid records a plan that exhausted repair.
func (m *LoopMetrics) CmdInvalid(ctx context.Context) {
	if m == nil {
		return
	}
	m.add(ctx, m.cmdInvalid)
}

// LLMError records an inference backend failure.
func (m *LoopMetrics) LLMError(ctx context.Context) {
	if m == nil {
		return
	}
	m.add(ctx, m.llmErrors)
}

// ToolCall records a tool invocation.
func (m *LoopMetrics) ToolCall(ctx context.Context, tool string) {
	if m == nil {
		return
	}
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

// ToolError records a failed tool invocation.
func (m *LoopMetrics) ToolError(ctx context.Context, tool string) {
	if m == nil {
		return
	}
	m.toolErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

// DiaryWrite records a durable diary write.
func (m *LoopMetrics) DiaryWrite(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.diaryWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// DiarySuppressed records a gatekeeper suppression with its reason.
func (m *LoopMetrics) DiarySuppressed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.diarySuppressed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *LoopMetrics) add(ctx context.Context, c metric.Int64Counter) {
	if m == nil {
		return
	}
	c.Add(ctx, 1)
}
