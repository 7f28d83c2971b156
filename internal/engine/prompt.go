// ============================================================================
// ruvltra-core Inference Engine - Prompt Construction
// ============================================================================
//
// Package: internal/engine
// File: prompt.go
// Function: Builds the single canonical prompt string passed to every
// backend, per spec §4.2 "Prompt construction".
//
// ============================================================================

package engine

import (
	"strings"

	"github.com/ChuLiYu/ruvltra-core/pkg/types"
)

// BuildPrompt assembles the canonical prompt from a (possibly
// memory-rewritten) instruction plus the request's task metadata. Order is
// fixed: task type, language/file hints, context block, then instruction.
func BuildPrompt(req types.GenerateRequest, instruction string) string {
	var b strings.Builder

	b.WriteString("Task: ")
	b.WriteString(string(req.TaskType))
	b.WriteByte('\n')

	if req.Language != "" {
		b.WriteString("Language: ")
		b.WriteString(req.Language)
		b.WriteByte('\n')
	}
	if req.FilePath != "" {
		b.WriteString("File: ")
		b.WriteString(req.FilePath)
		b.WriteByte('\n')
	}
	if req.Context != "" {
		b.WriteString("Context:\n")
		b.WriteString(req.Context)
		b.WriteString("\n\n")
	}

	b.WriteString("Instruction:\n")
	b.WriteString(instruction)

	return b.String()
}
