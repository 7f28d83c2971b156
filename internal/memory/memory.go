// ============================================================================
// ruvltra-core Pattern Memory - Online Learning Store
// ============================================================================
//
// Package: internal/memory
// File: memory.go
// Function: Per-worker bag of scored patterns; records interactions,
// consolidates (decays/evicts) the pattern map, and rewrites instructions
// with learned hints.
//
// Concurrency:
//   Per spec §5, Memory is only ever touched from its owning worker's single
//   control-thread callbacks (instruction rewrite on pickup, outcome record
//   on settlement). It carries no internal lock, same as the teacher's
//   per-worker-owned resources (engine, memory) in
//   ChuLiYu/raft-recovery/internal/worker.
//
// ============================================================================

package memory

import (
	"sort"
	"strconv"
	"time"
)

const consolidateEvery = 20

// Memory is one worker's pattern store.
type Memory struct {
	patterns map[string]*Pattern

	interactions       int
	successes          int
	consolidations     int
	lastConsolidatedAt time.Time

	sinceConsolidate int

	persist *Persister // nil when persistence is disabled
}

// NewMemory creates an empty pattern memory, optionally backed by a
// Persister for crash-safe snapshotting.
func NewMemory(persist *Persister) *Memory {
	return &Memory{
		patterns: make(map[string]*Pattern),
		persist:  persist,
	}
}

// Stats is the read-only snapshot returned by SonaStats.
type Stats struct {
	WorkerID           string    `json:"workerId"`
	Interactions       int       `json:"interactions"`
	Successes          int       `json:"successes"`
	PatternCount       int       `json:"patternCount"`
	Consolidations     int       `json:"consolidations"`
	LastConsolidatedAt time.Time `json:"lastConsolidatedAt"`
	TopPatterns        []Pattern `json:"topPatterns"`
}

// Stats returns a point-in-time read model, including the top-ranked
// patterns by the same 0.7*score+0.3*importance ordering used for hints.
func (m *Memory) Stats(workerID string, topN int) Stats {
	ranked := m.ranked()
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	out := make([]Pattern, len(ranked))
	for i, p := range ranked {
		out[i] = *p
	}
	return Stats{
		WorkerID:           workerID,
		Interactions:       m.interactions,
		Successes:          m.successes,
		PatternCount:       len(m.patterns),
		Consolidations:     m.consolidations,
		LastConsolidatedAt: m.lastConsolidatedAt,
		TopPatterns:        out,
	}
}

// Record updates every pattern key extracted from the interaction, applying
// the EWC-like plasticity update law (spec §4.3), then consolidates every
// consolidateEvery interactions and persists if configured.
func (m *Memory) Record(in Interaction) {
	now := time.Now()
	q := QualityScore(in)
	keys := ExtractKeys(in)

	for _, key := range keys {
		p, ok := m.patterns[key]
		if !ok {
			p = &Pattern{Key: key, Score: 0.5, Importance: minImportance}
			m.patterns[key] = p
		}

		p.Hits++
		if in.Success {
			p.Successes++
		}
		p.LastSeenAt = now

		plasticity := 1 - p.Importance
		if plasticity < 0.05 {
			plasticity = 0.05
		}
		alpha := 0.28 * plasticity
		p.Score = clamp(p.Score*(1-alpha)+q*alpha, minScore, maxScore)

		g := 0.01
		if in.Success {
			g = 0.06
		}
		p.Importance = clamp(p.Importance*0.97+g, minImportance, maxImportance)
	}

	m.interactions++
	if in.Success {
		m.successes++
	}
	m.sinceConsolidate++

	if m.sinceConsolidate >= consolidateEvery {
		m.Consolidate()
	}

	if m.persist != nil && m.interactions%m.persist.interval() == 0 {
		m.persist.Save(m)
	}
}

// Consolidate sweeps the pattern map, deleting low-value entries and
// evicting the worst down to maxPatterns if the ceiling is exceeded
// (spec §4.3 "Consolidation").
func (m *Memory) Consolidate() {
	now := time.Now()

	for key, p := range m.patterns {
		age := now.Sub(p.LastSeenAt).Minutes()
		value := 0.65*p.Score + 0.35*p.Importance
		if (p.Hits <= 1 && age > 30) || (value < 0.22 && age > 10) {
			delete(m.patterns, key)
		}
	}

	if len(m.patterns) > maxPatterns {
		type scored struct {
			key   string
			value float64
		}
		all := make([]scored, 0, len(m.patterns))
		for key, p := range m.patterns {
			all = append(all, scored{key, 0.7*p.Score + 0.3*p.Importance})
		}
		sort.Slice(all, func(i, j int) bool { return all[i].value < all[j].value })

		excess := len(m.patterns) - maxPatterns
		for i := 0; i < excess; i++ {
			delete(m.patterns, all[i].key)
		}
	}

	m.consolidations++
	m.lastConsolidatedAt = now
	m.sinceConsolidate = 0

	if m.persist != nil {
		m.persist.Save(m)
	}
}

// ranked returns patterns sorted descending by 0.7*score + 0.3*importance.
func (m *Memory) ranked() []*Pattern {
	out := make([]*Pattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		vi := 0.7*out[i].Score + 0.3*out[i].Importance
		vj := 0.7*out[j].Score + 0.3*out[j].Importance
		return vi > vj
	})
	return out
}

// hintPhrase maps a pattern key (or key family) to a short directive.
func hintPhrase(key string, taskType string) string {
	switch {
	case key == "task:"+taskType:
		return "optimize specifically for the " + taskType + " task"
	case key == "task:general":
		return "favor general code quality"
	case len(key) > 5 && key[:5] == "lang:":
		return "use idiomatic style for " + key[5:]
	case key == "pattern:error-handling":
		return "include defensive error handling"
	case key == "pattern:typed-api":
		return "keep contracts explicit and strongly typed"
	case len(key) > 8 && key[:8] == "fileext:":
		return "match formatting conventions for ." + key[8:] + " files"
	case len(key) > 3 && key[:3] == "kw:":
		return "respect prior preference around \"" + key[3:] + "\""
	default:
		return "apply this learned preference"
	}
}

// Rewrite prepends up to three learned hints to instruction, per spec §4.3
// "Hint selection and rewriting". Returns instruction unchanged if there are
// no applicable hints.
func (m *Memory) Rewrite(instruction, taskType, language string) string {
	candidates := m.candidateHints(taskType, language)
	if len(candidates) == 0 {
		return instruction
	}

	sort.Slice(candidates, func(i, j int) bool {
		vi := 0.7*candidates[i].Score + 0.3*candidates[i].Importance
		vj := 0.7*candidates[j].Score + 0.3*candidates[j].Importance
		return vi > vj
	})
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	var b []byte
	b = append(b, "Apply these learned project preferences before answering:\n"...)
	for i, p := range candidates {
		b = append(b, strconv.Itoa(i+1)...)
		b = append(b, '.', ' ')
		b = append(b, hintPhrase(p.Key, taskType)...)
		b = append(b, '\n')
	}
	b = append(b, '\n')
	b = append(b, instruction...)
	return string(b)
}

func (m *Memory) candidateHints(taskType, language string) []*Pattern {
	var out []*Pattern
	taskKey := "task:" + taskType
	langKey := "lang:" + language
	for key, p := range m.patterns {
		switch {
		case key == taskKey, key == "task:general":
			out = append(out, p)
		case language != "" && key == langKey:
			out = append(out, p)
		case len(key) >= 3 && key[:3] == "kw:":
			out = append(out, p)
		case len(key) >= 8 && key[:8] == "pattern:":
			out = append(out, p)
		}
	}
	return out
}

// PatternCount reports the current number of tracked patterns, used by
// tests asserting the consolidation ceiling (spec §8 invariant 8).
func (m *Memory) PatternCount() int { return len(m.patterns) }

// Interactions reports the lifetime interaction counter.
func (m *Memory) Interactions() int { return m.interactions }

// Importance returns the current importance of key, or 0 if untracked; used
// by tests asserting monotone importance growth (spec §8 invariant 9).
func (m *Memory) Importance(key string) (float64, bool) {
	p, ok := m.patterns[key]
	if !ok {
		return 0, false
	}
	return p.Importance, true
}
