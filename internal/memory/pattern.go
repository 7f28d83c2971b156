// ============================================================================
// ruvltra-core Pattern Memory - Pattern Extraction and Scoring
// ============================================================================
//
// Package: internal/memory
// File: pattern.go
// Function: Key extraction from an interaction, and the quality score that
// drives online pattern updates.
//
// Design origin:
//   Grounded on the teacher's read-model-over-a-map idiom
//   (internal/jobmanager.Stats/Snapshot in ChuLiYu/raft-recovery), adapted
//   here from job bookkeeping to a per-worker scored preference store. The
//   update law itself (EWC-like plasticity) has no pack analogue and is
//   implemented directly from spec.
//
// ============================================================================

package memory

import (
	"strings"
	"time"
)

// Pattern is one scored, importance-weighted preference record.
type Pattern struct {
	Key         string    `json:"key"`
	Score       float64   `json:"score"`
	Importance  float64   `json:"importance"`
	Hits        int       `json:"hits"`
	Successes   int       `json:"successes"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

const (
	minScore      = 0.01
	maxScore      = 1.0
	minImportance = 0.05
	maxImportance = 0.99
	maxPatterns   = 600
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Interaction captures the observable facts about one completed generation,
// the unit pattern memory learns from.
type Interaction struct {
	TaskType         string
	Language         string
	FilePath         string
	Instruction      string
	Response         string
	Success          bool
	LatencyMs        int64
	PromptTokens     int
	CompletionTokens int
	TokensKnown      bool
}

// ExtractKeys derives the deduplicated set of pattern keys touched by one
// interaction (spec §4.3 "Key extraction").
func ExtractKeys(in Interaction) []string {
	seen := make(map[string]struct{})
	var keys []string
	add := func(k string) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	if in.TaskType != "" {
		add("task:" + in.TaskType)
	}
	add("task:general")

	if in.Language != "" {
		add("lang:" + strings.ToLower(in.Language))
	}

	if in.FilePath != "" {
		ext := fileExt(in.FilePath)
		if ext != "" {
			add("fileext:" + strings.ToLower(ext))
		}
	}

	for _, kw := range extractKeywords(in.Instruction, 6) {
		add("kw:" + kw)
	}

	lowerResp := strings.ToLower(in.Response)
	if strings.Contains(lowerResp, "try") && strings.Contains(lowerResp, "catch") {
		add("pattern:error-handling")
	}
	if strings.Contains(lowerResp, "interface ") || strings.Contains(lowerResp, "type ") {
		add("pattern:typed-api")
	}

	return keys
}

// fileExt returns the last dot-segment of a path's final component, without
// the leading dot, e.g. "src/foo.test.go" -> "go".
func fileExt(path string) string {
	slash := strings.LastIndexAny(path, "/\\")
	base := path
	if slash >= 0 {
		base = path[slash+1:]
	}
	dot := strings.LastIndex(base, ".")
	if dot < 0 || dot == len(base)-1 {
		return ""
	}
	return base[dot+1:]
}

// extractKeywords lowercases and splits the instruction on runs of
// non-alphanumeric-underscore characters, keeping words of length >= 4 in
// first-seen order, up to max.
func extractKeywords(instruction string, max int) []string {
	lower := strings.ToLower(instruction)
	seen := make(map[string]struct{})
	var out []string

	isWordChar := func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
	}

	var cur strings.Builder
	flush := func() {
		w := cur.String()
		cur.Reset()
		if len(w) < 4 {
			return
		}
		if _, ok := seen[w]; ok {
			return
		}
		if len(out) >= max {
			return
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}

	for _, r := range lower {
		if isWordChar(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return out
}

// QualityScore computes q = clamp(base + tokenBonus - latencyPenalty -
// promptPenalty, 0.05, 1.0) per spec §4.3.
func QualityScore(in Interaction) float64 {
	base := 0.2
	if in.Success {
		base = 0.8
	}

	latencyPenalty := float64(in.LatencyMs) / 12000.0
	if latencyPenalty > 0.4 {
		latencyPenalty = 0.4
	}

	var tokenBonus, promptPenalty float64
	if in.TokensKnown {
		tokenBonus = float64(in.CompletionTokens) / 1600.0
		if tokenBonus > 0.15 {
			tokenBonus = 0.15
		}
		promptPenalty = float64(in.PromptTokens) / 8000.0
		if promptPenalty > 0.08 {
			promptPenalty = 0.08
		}
	}

	q := base + tokenBonus - latencyPenalty - promptPenalty
	return clamp(q, 0.05, 1.0)
}
