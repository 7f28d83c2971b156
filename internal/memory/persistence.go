// ============================================================================
// ruvltra-core Pattern Memory - Crash-Safe Persistence
// ============================================================================
//
// Package: internal/memory
// File: persistence.go
// Function: Versioned JSON snapshot of one worker's pattern memory, written
// atomically and validated on load.
//
// Design origin:
//   Direct transform of ChuLiYu/raft-recovery/internal/snapshot.Manager:
//   same write recipe (marshal -> write .tmp -> os.Rename), same
//   version-tag-mismatch-means-ignore load policy. The teacher keeps one
//   snapshot file for the whole system; here each worker owns its own file
//   at <dir>/<workerId>.json, per spec §4.3 "Persistence".
//
// ============================================================================

package memory

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const schemaVersion = 1

// persistedPattern mirrors Pattern with explicit JSON tags stable across
// versions.
type persistedPattern struct {
	Key        string    `json:"key"`
	Score      float64   `json:"score"`
	Importance float64   `json:"importance"`
	Hits       int       `json:"hits"`
	Successes  int       `json:"successes"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// persistedMemory is the on-disk schema (spec §3 "PersistedMemory").
type persistedMemory struct {
	SchemaVersion      int                `json:"schemaVersion"`
	Interactions       int                `json:"interactions"`
	Successes          int                `json:"successes"`
	Consolidations     int                `json:"consolidations"`
	LastConsolidatedAt time.Time          `json:"lastConsolidatedAt"`
	Patterns           []persistedPattern `json:"patterns"`
}

// Persister writes and loads one worker's pattern memory snapshot.
type Persister struct {
	dir             string
	workerID        string
	persistInterval int
}

// NewPersister returns nil if dir is empty, matching spec §4.3 "A worker
// with a configured state directory writes..." — persistence is opt-in.
func NewPersister(dir, workerID string, persistInterval int) *Persister {
	if dir == "" {
		return nil
	}
	if persistInterval <= 0 {
		persistInterval = 10
	}
	return &Persister{dir: dir, workerID: workerID, persistInterval: persistInterval}
}

func (p *Persister) interval() int { return p.persistInterval }

func (p *Persister) path() string {
	return filepath.Join(p.dir, p.workerID+".json")
}

// Save atomically writes m's state. Disk errors are logged and swallowed —
// per spec §7, a memory flush must never take down a worker.
func (p *Persister) Save(m *Memory) {
	if p == nil {
		return
	}

	data := persistedMemory{
		SchemaVersion:      schemaVersion,
		Interactions:       m.interactions,
		Successes:          m.successes,
		Consolidations:     m.consolidations,
		LastConsolidatedAt: m.lastConsolidatedAt,
		Patterns:           make([]persistedPattern, 0, len(m.patterns)),
	}
	for _, pat := range m.patterns {
		data.Patterns = append(data.Patterns, persistedPattern{
			Key:        pat.Key,
			Score:      pat.Score,
			Importance: pat.Importance,
			Hits:       pat.Hits,
			Successes:  pat.Successes,
			LastSeenAt: pat.LastSeenAt,
		})
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		slog.Error("pattern memory: failed to create state dir", "dir", p.dir, "error", err)
		return
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("pattern memory: failed to marshal snapshot", "worker", p.workerID, "error", err)
		return
	}

	tmp := p.path() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		slog.Error("pattern memory: failed to write snapshot", "worker", p.workerID, "error", err)
		return
	}
	if err := os.Rename(tmp, p.path()); err != nil {
		os.Remove(tmp)
		slog.Error("pattern memory: failed to rename snapshot", "worker", p.workerID, "error", err)
	}
}

// Load restores a Memory from disk. Any error - missing file, malformed
// JSON, version mismatch - yields an empty memory, never a fatal error, per
// spec §3 "only a well-formed, matching-version file is loaded".
func (p *Persister) Load() *Memory {
	m := NewMemory(p)
	if p == nil {
		return m
	}

	raw, err := os.ReadFile(p.path())
	if err != nil {
		return m
	}

	var data persistedMemory
	if err := json.Unmarshal(raw, &data); err != nil {
		slog.Warn("pattern memory: ignoring corrupted snapshot", "worker", p.workerID, "error", err)
		return m
	}
	if data.SchemaVersion != schemaVersion {
		slog.Warn("pattern memory: ignoring snapshot with mismatched schema version",
			"worker", p.workerID, "got", data.SchemaVersion, "want", schemaVersion)
		return m
	}

	m.interactions = data.Interactions
	m.successes = data.Successes
	m.consolidations = data.Consolidations
	m.lastConsolidatedAt = data.LastConsolidatedAt

	for _, pp := range data.Patterns {
		if pp.Key == "" {
			continue
		}
		m.patterns[pp.Key] = &Pattern{
			Key:        pp.Key,
			Score:      clamp(pp.Score, minScore, maxScore),
			Importance: clamp(pp.Importance, minImportance, maxImportance),
			Hits:       pp.Hits,
			Successes:  pp.Successes,
			LastSeenAt: pp.LastSeenAt,
		}
	}

	return m
}
