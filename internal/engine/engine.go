// ============================================================================
// ruvltra-core Inference Engine - Ranked Fallback
// ============================================================================
//
// Package: internal/engine
// File: engine.go
// Function: Owns the ordered chain of backend adapters and implements the
// per-call fallback algorithm (spec §4.2): try each ready backend in rank
// order, first success wins; the mock backend is always last and always
// ready, so a call only ever fails on context cancellation/timeout.
//
// ============================================================================

package engine

import (
	"context"
	"time"

	"github.com/ChuLiYu/ruvltra-core/pkg/types"
)

// MetricsRecorder receives one event per backend attempt. Optional; an
// engine with none set runs with no observability overhead.
type MetricsRecorder interface {
	RecordBackendCall(backend, outcome string)
}

// Engine runs a GenerateRequest's prompt through the ranked backend chain.
type Engine struct {
	adapters []Adapter
	metrics  MetricsRecorder
}

// New builds an engine with adapters tried in the given order. Passing nil
// entries is invalid; callers assemble the full chain (http, native-local,
// embedded-learning, mock) at construction time.
func New(adapters ...Adapter) *Engine {
	return &Engine{adapters: adapters}
}

// SetMetrics attaches a recorder for per-attempt backend call outcomes.
func (e *Engine) SetMetrics(m MetricsRecorder) {
	e.metrics = m
}

// BackendStatus reports one adapter's reported readiness, for Status/
// SonaStats.
type BackendStatus struct {
	Backend types.Backend `json:"backend"`
	Ready   bool          `json:"ready"`
	Note    string        `json:"note,omitempty"`
}

// Status returns the current readiness of every configured backend. An
// adapter that implements DegradedReporter has its note attached whenever
// it is not ready.
func (e *Engine) Status() []BackendStatus {
	out := make([]BackendStatus, 0, len(e.adapters))
	for _, a := range e.adapters {
		status := BackendStatus{Backend: a.Name(), Ready: a.Ready()}
		if !status.Ready {
			if reporter, ok := a.(DegradedReporter); ok {
				status.Note = reporter.DegradedNote()
			}
		}
		out = append(out, status)
	}
	return out
}

// SelectedBackend returns the backend that would handle the next call: the
// first ready adapter in rank order, matching the chain Generate walks.
// Returns "" if no adapter is currently ready.
func (e *Engine) SelectedBackend() types.Backend {
	for _, a := range e.adapters {
		if a.Ready() {
			return a.Name()
		}
	}
	return ""
}

// Generate tries each ready adapter in rank order, returning the first
// success. ctx cancellation/deadline propagates to whichever adapter is
// currently running and aborts the chain rather than advancing to the next
// backend.
func (e *Engine) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (types.GenerateResult, error) {
	var lastErr error

	for _, a := range e.adapters {
		if ctx.Err() != nil {
			return types.GenerateResult{}, ctx.Err()
		}
		if !a.Ready() {
			continue
		}

		start := time.Now()
		out, err := a.Generate(ctx, prompt, maxTokens, temperature)
		latency := time.Since(start).Milliseconds()

		if err == nil {
			if e.metrics != nil {
				e.metrics.RecordBackendCall(string(a.Name()), "success")
			}
			return types.GenerateResult{
				Output:           out.Text,
				Backend:          a.Name(),
				Model:            out.Model,
				LatencyMs:        latency,
				PromptTokens:     out.PromptTokens,
				CompletionTokens: out.CompletionTokens,
				TokensKnown:      out.TokensKnown,
			}, nil
		}

		if e.metrics != nil {
			e.metrics.RecordBackendCall(string(a.Name()), "failure")
		}

		if ctx.Err() != nil {
			return types.GenerateResult{}, err
		}
		lastErr = err
	}

	return types.GenerateResult{}, types.ErrBackendError{Cause: lastErr}
}
