// ============================================================================
// ruvltra-core Inference Engine - Backend Contract
// ============================================================================
//
// Package: internal/engine
// File: types.go
// Function: The single interface every generation backend implements, plus
// the ranked-fallback Engine that owns and calls them.
//
// Design origin:
//   Backend shape (one generate call, tagged with its own name) is grounded
//   on bhangun-gollek's internal/llm.Pool-over-Engine and
//   suryanshp1-QuantumFlow's inference.Pool-over-Client adapters: both wrap
//   a single "generate" call behind a pool/engine boundary rather than
//   exposing transport details upward.
//
// ============================================================================

package engine

import (
	"context"

	"github.com/ChuLiYu/ruvltra-core/pkg/types"
)

// Adapter is one generation backend: it turns a canonical prompt into text.
// Implementations must respect ctx cancellation and must never panic on a
// malformed or empty prompt.
type Adapter interface {
	Name() types.Backend
	Ready() bool
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (Output, error)
}

// Output is one backend's raw generation result, before it is wrapped into
// types.GenerateResult by the engine.
type Output struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TokensKnown      bool
}

// DegradedReporter is implemented by adapters that can explain why they are
// currently not ready, e.g. the embedded-learning backend once it has run
// for a while without any recorded trajectory (spec §4.2.4 "Degraded
// mode"). Status surfaces this note alongside the plain ready/not-ready bit.
type DegradedReporter interface {
	DegradedNote() string
}
