// ============================================================================
// ruvltra-core Inference Engine - Embedded Learning Backend
// ============================================================================
//
// Package: internal/engine
// File: embedded_adapter.go
// Function: A lightweight, always-in-process fallback that composes its
// answer from recorded trajectories rather than a model call, per spec
// §4.2.3 "Embedded-learning backend". No pack analogue exists for this kind
// of self-contained heuristic responder; implemented directly from spec in
// the same plain-struct-plus-interface shape as the other adapters.
//
// ============================================================================

package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/ChuLiYu/ruvltra-core/pkg/types"
)

// Trajectory is one recorded (prompt, response) pair the embedded backend
// can draw on when composing an answer.
type Trajectory struct {
	Prompt   string
	Response string
}

// EmbeddedAdapter answers using recorded trajectories and a small set of
// templated completions. Ready() degrades on two independent signals: a
// long run of calls with no trajectories to draw on (thin knowledge), or
// concrete §4.2.4 evidence surfacing in a composed answer - a trajectory
// recorded from some other degraded backend propagating its own
// fallback-mode marker or "-js" version tag into this adapter's output.
type EmbeddedAdapter struct {
	trajectories  []Trajectory
	calls         int
	degradedAfter int

	ready        bool
	degradedNote string
}

// NewEmbeddedAdapter builds an embedded-learning backend seeded with any
// previously recorded trajectories.
func NewEmbeddedAdapter(seed []Trajectory) *EmbeddedAdapter {
	return &EmbeddedAdapter{trajectories: seed, degradedAfter: 50, ready: true}
}

func (a *EmbeddedAdapter) Name() types.Backend { return types.BackendEmbeddedLearning }

// Ready reports false once either degraded signal has fired: thin
// knowledge (no trajectories after many calls), or §4.2.4 evidence
// detected in a prior call's composed output.
func (a *EmbeddedAdapter) Ready() bool {
	if !a.ready {
		return false
	}
	return !(len(a.trajectories) == 0 && a.calls > a.degradedAfter)
}

// DegradedNote explains a not-ready report for Status/SonaStats.
func (a *EmbeddedAdapter) DegradedNote() string {
	if a.degradedNote != "" {
		return a.degradedNote
	}
	return "no recorded trajectories after many calls; responses are template fallbacks only"
}

// Record stores a completed (prompt, response) pair for future reuse.
func (a *EmbeddedAdapter) Record(t Trajectory) {
	a.trajectories = append(a.trajectories, t)
	if len(a.trajectories) > 200 {
		a.trajectories = a.trajectories[len(a.trajectories)-200:]
	}
}

func (a *EmbeddedAdapter) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (Output, error) {
	a.calls++

	text := "No close prior example found; proceeding with a best-effort response based on the instruction alone:\n\n" + fallbackSkeleton(prompt)
	if best, ok := a.bestMatch(prompt); ok {
		text = best
	}

	if note, degraded := detectDegradedOutput(text, "a populated trajectory store"); degraded {
		a.ready = false
		a.degradedNote = note
		return Output{}, types.ErrBackendError{Cause: errors.New("embedded adapter: " + note)}
	}

	return Output{Text: text, Model: "embedded-learning-v1"}, nil
}

// bestMatch returns the trajectory response whose prompt shares the most
// word overlap with prompt, if any trajectory shares at least one word.
func (a *EmbeddedAdapter) bestMatch(prompt string) (string, bool) {
	promptWords := wordSet(prompt)
	if len(promptWords) == 0 || len(a.trajectories) == 0 {
		return "", false
	}

	bestScore := 0
	bestIdx := -1
	for i, t := range a.trajectories {
		score := overlap(promptWords, wordSet(t.Prompt))
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return "", false
	}
	return a.trajectories[bestIdx].Response, true
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if len(w) >= 4 {
			out[w] = struct{}{}
		}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

func fallbackSkeleton(prompt string) string {
	return "// TODO: implement based on:\n// " + strings.ReplaceAll(prompt, "\n", "\n// ")
}
