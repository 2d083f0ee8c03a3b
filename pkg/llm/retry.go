// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"

	"github.com/craftmind/craftmind/pkg/resilience"
)

// RetryingProvider decorates a Provider with transport-level retries.
// Only errors the backend marks recoverable (connection failures, 5xx)
// are retried; a malformed request fails immediately.
type RetryingProvider struct {
	next Provider
	cfg  resilience.RetryConfig
}

// NewRetrying wraps next with retries attempts after the initial call.
func NewRetrying(next Provider, retries int) *RetryingProvider {
	cfg := resilience.DefaultRetryConfig()
	if retries >= 0 {
		cfg = cfg.WithMaxAttempts(retries + 1)
	}
	return &RetryingProvider{next: next, cfg: cfg}
}

// Chat forwards to the wrapped provider with retry on recoverable errors.
func (p *RetryingProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp *ChatResponse
	err := p.cfg.Do(ctx, func() error {
		var chatErr error
		resp, chatErr = p.next.Chat(ctx, req)
		return chatErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

var _ Provider = (*RetryingProvider)(nil)
