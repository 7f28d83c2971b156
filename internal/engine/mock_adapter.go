// ============================================================================
// ruvltra-core Inference Engine - Mock Backend
// ============================================================================
//
// Package: internal/engine
// File: mock_adapter.go
// Function: The total backend (spec §4.2.5 "Mock backend") — always ready,
// succeeds unless its context is cancelled, used as the last link of the
// fallback chain and in tests.
//
// ============================================================================

package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/ChuLiYu/ruvltra-core/pkg/types"
)

// MockAdapter synthesizes a deterministic-shaped response with a jittered
// latency. It never reports unready and fails only when its context is
// done before the latency elapses.
type MockAdapter struct {
	latencyMs int
	jitterMs  int
}

// NewMockAdapter builds a mock backend with the given mean latency and
// +/- jitter, both in milliseconds.
func NewMockAdapter(latencyMs, jitterMs int) *MockAdapter {
	if latencyMs < 0 {
		latencyMs = 0
	}
	if jitterMs < 0 {
		jitterMs = 0
	}
	return &MockAdapter{latencyMs: latencyMs, jitterMs: jitterMs}
}

func (a *MockAdapter) Name() types.Backend { return types.BackendMock }

func (a *MockAdapter) Ready() bool { return true }

func (a *MockAdapter) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (Output, error) {
	wait := time.Duration(a.latencyMs) * time.Millisecond
	if a.jitterMs > 0 {
		delta := rand.Intn(2*a.jitterMs+1) - a.jitterMs
		wait += time.Duration(delta) * time.Millisecond
		if wait < 0 {
			wait = 0
		}
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	case <-t.C:
	}

	return Output{
		Text:             "// mock generation for: " + truncate(prompt, 80),
		Model:            "mock-v1",
		PromptTokens:     len(prompt) / 4,
		CompletionTokens: maxTokens,
		TokensKnown:      true,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
