// ============================================================================
// ruvltra-core Inference Engine - Native Local Backend
// ============================================================================
//
// Package: internal/engine
// File: native_adapter.go
// Function: Generates using an in-process local model runner, per spec
// §4.2.2 "Local-native backend". No pack analogue exists for an embedded
// model runtime (no ggml/gguf/onnx dependency anywhere in the corpus), so
// this adapter's body is a plain struct implementing the Adapter interface
// in the teacher's style, backed by a pluggable runner function so it is
// testable without a real model.
//
// ============================================================================

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ChuLiYu/ruvltra-core/pkg/types"
)

// NativeRunner performs the actual local-model call. Production wiring
// supplies an implementation that shells out to or links a local runtime;
// tests supply a fake.
type NativeRunner func(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)

// NativeAdapterConfig configures the local-native backend. IsNativeLoaded,
// if set, is consulted on every readiness check and is the adapter's
// `isNativeLoaded()=false` evidence source for spec §4.2.4.
type NativeAdapterConfig struct {
	Model          string
	RequestTimeout time.Duration
	IsNativeLoaded func() bool
}

// NativeAdapter runs generation locally, isolating each call under its own
// derived context so a stuck call can be abandoned without blocking the
// next one (best-effort cancellation, per spec §4.2.2).
type NativeAdapter struct {
	cfg   NativeAdapterConfig
	run   NativeRunner
	ready bool

	degradedNote string
}

// NewNativeAdapter builds a native adapter around run. ready reports
// whether the underlying runtime was successfully initialized.
func NewNativeAdapter(cfg NativeAdapterConfig, run NativeRunner, ready bool) *NativeAdapter {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &NativeAdapter{cfg: cfg, run: run, ready: ready}
}

func (a *NativeAdapter) Name() types.Backend { return types.BackendNativeLocal }

// Ready is false if construction never reported a loaded runtime, no
// runner is wired, a prior call already detected degraded-mode evidence,
// or IsNativeLoaded now reports false (spec §4.2.4).
func (a *NativeAdapter) Ready() bool {
	if !a.ready || a.run == nil {
		return false
	}
	if a.cfg.IsNativeLoaded != nil && !a.cfg.IsNativeLoaded() {
		return false
	}
	return true
}

// DegradedNote explains a not-ready report for Status/SonaStats.
func (a *NativeAdapter) DegradedNote() string {
	if a.degradedNote != "" {
		return a.degradedNote
	}
	if a.cfg.IsNativeLoaded != nil && !a.cfg.IsNativeLoaded() {
		return fmt.Sprintf("isNativeLoaded() reports false; expected a native model build for %q", a.cfg.Model)
	}
	return "local runtime not initialized"
}

func (a *NativeAdapter) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (Output, error) {
	if !a.Ready() {
		return Output{}, types.ErrBackendUnavailable{Backend: types.BackendNativeLocal, Note: a.DegradedNote()}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()

	text, err := a.run(callCtx, prompt, maxTokens, temperature)
	if err != nil {
		if callCtx.Err() != nil {
			return Output{}, fmt.Errorf("native adapter: %w", callCtx.Err())
		}
		return Output{}, types.ErrBackendError{Cause: err}
	}

	if note, degraded := detectDegradedOutput(text, fmt.Sprintf("a native model build for %q", a.cfg.Model)); degraded {
		a.ready = false
		a.degradedNote = note
		return Output{}, types.ErrBackendError{Cause: errors.New("native adapter: " + note)}
	}

	return Output{
		Text:        text,
		Model:       a.cfg.Model,
		TokensKnown: false,
	}, nil
}
