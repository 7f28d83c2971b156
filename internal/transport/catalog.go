// ============================================================================
// ruvltra-core Transport - Static Tool Catalog
// ============================================================================
//
// Package: internal/transport
// File: catalog.go
// Function: The static tool catalog tools/list returns, per spec §6 "Tool
// catalog" (names, required arguments, and a minimal JSON Schema each).
//
// ============================================================================

package transport

import "encoding/json"

func schema(required []string, props map[string]string) json.RawMessage {
	properties := make(map[string]interface{}, len(props))
	for name, typ := range props {
		properties[name] = map[string]string{"type": typ}
	}
	raw, _ := json.Marshal(map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
	return raw
}

var catalog = []ToolDescriptor{
	{
		Name:        "ruvltra_code_generate",
		Description: "Generate code from a natural-language instruction.",
		InputSchema: schema([]string{"instruction"}, map[string]string{
			"instruction": "string", "context": "string", "language": "string", "filePath": "string",
		}),
	},
	{
		Name:        "ruvltra_code_review",
		Description: "Review code for defects, risks, and improvements.",
		InputSchema: schema([]string{"code"}, map[string]string{"code": "string", "language": "string"}),
	},
	{
		Name:        "ruvltra_code_refactor",
		Description: "Refactor code for clarity and maintainability.",
		InputSchema: schema([]string{"code"}, map[string]string{
			"code": "string", "instruction": "string", "language": "string",
		}),
	},
	{
		Name:        "ruvltra_code_explain",
		Description: "Explain what a piece of code does.",
		InputSchema: schema([]string{"code"}, map[string]string{"code": "string", "language": "string"}),
	},
	{
		Name:        "ruvltra_code_test",
		Description: "Write tests for a piece of code.",
		InputSchema: schema([]string{"code"}, map[string]string{"code": "string", "language": "string"}),
	},
	{
		Name:        "ruvltra_code_fix",
		Description: "Fix code given the error it produces.",
		InputSchema: schema([]string{"code", "error"}, map[string]string{
			"code": "string", "error": "string", "language": "string",
		}),
	},
	{
		Name:        "ruvltra_code_complete",
		Description: "Complete a code prefix.",
		InputSchema: schema([]string{"prefix"}, map[string]string{"prefix": "string", "language": "string"}),
	},
	{
		Name:        "ruvltra_code_translate",
		Description: "Translate code into another language.",
		InputSchema: schema([]string{"code", "targetLanguage"}, map[string]string{
			"code": "string", "targetLanguage": "string",
		}),
	},
	{
		Name:        "ruvltra_parallel_generate",
		Description: "Submit several independent generation tasks concurrently.",
		InputSchema: schema([]string{"items"}, map[string]string{"items": "array"}),
	},
	{
		Name:        "ruvltra_swarm_review",
		Description: "Review one piece of code from several independent perspectives concurrently.",
		InputSchema: schema([]string{"code"}, map[string]string{
			"code": "string", "perspectives": "array",
		}),
	},
	{
		Name:        "ruvltra_status",
		Description: "Report the worker pool's current load and backend readiness.",
		InputSchema: schema(nil, nil),
	},
	{
		Name:        "ruvltra_sona_stats",
		Description: "Report pattern-memory statistics for one or every worker.",
		InputSchema: schema(nil, map[string]string{"workerId": "string", "topN": "integer"}),
	},
	{
		Name:        "ruvltra_scale_workers",
		Description: "Resize the worker pool, clamped to [minWorkers, maxWorkers].",
		InputSchema: schema([]string{"target"}, map[string]string{"target": "integer"}),
	},
	{
		Name:        "ruvltra_cancel_task",
		Description: "Cancel one in-flight task by id.",
		InputSchema: schema([]string{"taskId"}, map[string]string{"taskId": "integer"}),
	},
}

// Catalog returns the static tool catalog for tools/list.
func Catalog() []ToolDescriptor {
	return catalog
}
