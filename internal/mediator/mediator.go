// ============================================================================
// ruvltra-core Tool Mediator - Tool Call Translation
// ============================================================================
//
// Package: internal/mediator
// File: mediator.go
// Function: Translates each JSON-RPC tool call into a normalized
// GenerateRequest (or a pool/status query), submits it to the worker pool,
// and shapes the result back into the tool's declared output, per spec
// §4.4 "Tool Mediator".
//
// Design origin:
//   One struct wrapping the coordinator with one method per operation,
//   grounded on the teacher's internal/server.Server (RequestVote/
//   AppendEntries/SubmitJob/... as one method each over *controller.
//   Controller). The teacher dispatches gRPC methods directly; here
//   internal/transport's JSON-RPC layer switches on the tool name, calling
//   the matching Mediator method and handing every other name to Generate,
//   which looks it up in toolCatalog below.
//
// ============================================================================

package mediator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ChuLiYu/ruvltra-core/internal/memory"
	"github.com/ChuLiYu/ruvltra-core/internal/worker"
	"github.com/ChuLiYu/ruvltra-core/pkg/types"
)

// Mediator is the tool-call entry point used by the transport layer.
type Mediator struct {
	pool pool
}

// pool narrows *worker.Pool to exactly what Mediator calls, so tests can
// supply a fake without implementing the whole worker.Pool surface.
type pool interface {
	Submit(ctx context.Context, req types.GenerateRequest) (*worker.Task, error)
	Status() worker.Status
	SetWorkerCount(n int) (int, error)
	WorkerIDs() []string
	MemoryStats(workerID string, topN int) (memory.Stats, bool)
	CancelTask(id types.TaskID) bool
}

// New builds a Mediator over p.
func New(p pool) *Mediator {
	return &Mediator{pool: p}
}

// ToolError is returned for malformed tool arguments, before any task is
// ever admitted to the pool.
type ToolError struct {
	Tool   string
	Reason string
}

func (e ToolError) Error() string {
	return fmt.Sprintf("tool %q: %s", e.Tool, e.Reason)
}

// generateArgs is the union of every field any fixed generation tool
// accepts. Each tool's toolSpec declares which of these are required and
// how they compose into the submitted instruction.
type generateArgs struct {
	Instruction    string  `json:"instruction,omitempty"`
	Code           string  `json:"code,omitempty"`
	Prefix         string  `json:"prefix,omitempty"`
	TargetLanguage string  `json:"targetLanguage,omitempty"`
	Error          string  `json:"error,omitempty"`
	Context        string  `json:"context,omitempty"`
	Language       string  `json:"language,omitempty"`
	FilePath       string  `json:"filePath,omitempty"`
	MaxTokens      int     `json:"maxTokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	TimeoutMs      int     `json:"timeoutMs,omitempty"`
}

// generateResponse pairs a generation's output with its provenance
// envelope. Generate reports the output to the caller under the tool's own
// resultField rather than under "output".
type generateResponse struct {
	Output     string           `json:"output"`
	Provenance types.Provenance `json:"provenance"`
}

// toolSpec describes one fixed generation tool: its task type, the
// arguments it requires, its instruction template, and the JSON field name
// its result is reported under, per spec §6 "Tool catalog".
type toolSpec struct {
	taskType    types.TaskType
	required    []string
	resultField string
	compose     func(a generateArgs) string
}

func required(a generateArgs, field string) (string, bool) {
	switch field {
	case "instruction":
		return a.Instruction, a.Instruction != ""
	case "code":
		return a.Code, a.Code != ""
	case "prefix":
		return a.Prefix, a.Prefix != ""
	case "targetLanguage":
		return a.TargetLanguage, a.TargetLanguage != ""
	case "error":
		return a.Error, a.Error != ""
	default:
		return "", false
	}
}

// toolCatalog maps each fixed generation tool name to its spec, per
// spec §6 "Tool catalog" and §4.4's "fixed template plus the user-supplied
// code/instruction/audience/framework/etc." composition rule.
var toolCatalog = map[string]toolSpec{
	"ruvltra_code_generate": {
		taskType: types.TaskGenerate, required: []string{"instruction"}, resultField: "output",
		compose: func(a generateArgs) string { return a.Instruction },
	},
	"ruvltra_code_review": {
		taskType: types.TaskReview, required: []string{"code"}, resultField: "review",
		compose: func(a generateArgs) string {
			return "Review the following code and point out defects, risks, and improvements:\n\n" + a.Code
		},
	},
	"ruvltra_code_refactor": {
		taskType: types.TaskRefactor, required: []string{"code"}, resultField: "refactored",
		compose: func(a generateArgs) string {
			instr := "Refactor the following code for clarity and maintainability, preserving behavior"
			if a.Instruction != "" {
				instr += " (" + a.Instruction + ")"
			}
			return instr + ":\n\n" + a.Code
		},
	},
	"ruvltra_code_explain": {
		taskType: types.TaskExplain, required: []string{"code"}, resultField: "explanation",
		compose: func(a generateArgs) string {
			return "Explain what the following code does:\n\n" + a.Code
		},
	},
	"ruvltra_code_test": {
		taskType: types.TaskTest, required: []string{"code"}, resultField: "tests",
		compose: func(a generateArgs) string {
			return "Write tests for the following code:\n\n" + a.Code
		},
	},
	"ruvltra_code_fix": {
		taskType: types.TaskFix, required: []string{"code", "error"}, resultField: "fix",
		compose: func(a generateArgs) string {
			return "The following code fails with this error:\n\n" + a.Error + "\n\nFix the code:\n\n" + a.Code
		},
	},
	"ruvltra_code_complete": {
		taskType: types.TaskComplete, required: []string{"prefix"}, resultField: "completion",
		compose: func(a generateArgs) string {
			return "Complete the following code:\n\n" + a.Prefix
		},
	},
	"ruvltra_code_translate": {
		taskType: types.TaskTranslate, required: []string{"code", "targetLanguage"}, resultField: "translated",
		compose: func(a generateArgs) string {
			return "Translate the following code to " + a.TargetLanguage + ":\n\n" + a.Code
		},
	},
}

// Generate handles any of the eight fixed generation tools, identified by
// name, parsing its JSON arguments, validating its required fields, and
// awaiting the pool's result.
func (m *Mediator) Generate(ctx context.Context, toolName string, rawArgs json.RawMessage) (json.RawMessage, error) {
	spec, ok := toolCatalog[toolName]
	if !ok {
		return nil, ToolError{Tool: toolName, Reason: "unknown tool"}
	}

	var args generateArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, ToolError{Tool: toolName, Reason: "malformed arguments: " + err.Error()}
	}
	for _, field := range spec.required {
		if _, ok := required(args, field); !ok {
			return nil, ToolError{Tool: toolName, Reason: field + " must not be empty"}
		}
	}

	req := types.GenerateRequest{
		TaskType:    spec.taskType,
		Instruction: spec.compose(args),
		Context:     args.Context,
		Language:    args.Language,
		FilePath:    args.FilePath,
		MaxTokens:   args.MaxTokens,
		Temperature: args.Temperature,
		TimeoutMs:   args.TimeoutMs,
	}

	result, err := m.generateOne(ctx, req)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		spec.resultField: result.Output,
		"workerId":       result.Provenance.WorkerID,
		"backend":        result.Provenance.Backend,
		"model":          result.Provenance.Model,
		"latencyMs":      result.Provenance.LatencyMs,
		"taskId":         result.Provenance.TaskID,
	}
	return json.Marshal(payload)
}

// generateOne submits req and awaits its settlement, translating pool/task
// errors into tool-facing errors.
func (m *Mediator) generateOne(ctx context.Context, req types.GenerateRequest) (generateResponse, error) {
	task, err := m.pool.Submit(ctx, req)
	if err != nil {
		return generateResponse{}, err
	}

	res, err := task.Await(ctx)
	if err != nil {
		return generateResponse{}, err
	}
	if res.Err != nil {
		return generateResponse{}, res.Err
	}

	return generateResponse{Output: res.Result.Output, Provenance: res.Provenance}, nil
}

// Status handles ruvltra_status, returning {status: PoolStatus} per spec
// §6's tool catalog.
func (m *Mediator) Status(ctx context.Context) (json.RawMessage, error) {
	return json.Marshal(map[string]interface{}{"status": m.pool.Status()})
}

type scaleArgs struct {
	Target int `json:"target"`
}

// ScaleWorkers handles ruvltra_scale_workers, returning {status: PoolStatus}
// per spec §6's tool catalog.
func (m *Mediator) ScaleWorkers(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args scaleArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, ToolError{Tool: "ruvltra_scale_workers", Reason: "malformed arguments: " + err.Error()}
	}
	if _, err := m.pool.SetWorkerCount(args.Target); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{"status": m.pool.Status()})
}

type sonaStatsArgs struct {
	WorkerID string `json:"workerId,omitempty"`
	TopN     int    `json:"topN,omitempty"`
}

// SonaStats handles ruvltra_sona_stats. With WorkerID set, it returns one
// worker's pattern-memory snapshot; left empty, it returns every live
// worker's snapshot.
func (m *Mediator) SonaStats(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args sonaStatsArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, ToolError{Tool: "ruvltra_sona_stats", Reason: "malformed arguments: " + err.Error()}
		}
	}
	topN := args.TopN
	if topN <= 0 {
		topN = 5
	}

	if args.WorkerID != "" {
		stats, ok := m.pool.MemoryStats(args.WorkerID, topN)
		if !ok {
			return nil, ToolError{Tool: "ruvltra_sona_stats", Reason: "unknown worker id"}
		}
		return json.Marshal(map[string]interface{}{"sona": []memory.Stats{stats}})
	}

	all := make([]memory.Stats, 0, len(m.pool.WorkerIDs()))
	for _, id := range m.pool.WorkerIDs() {
		if stats, ok := m.pool.MemoryStats(id, topN); ok {
			all = append(all, stats)
		}
	}
	return json.Marshal(map[string]interface{}{"sona": all})
}

type cancelArgs struct {
	TaskID uint64 `json:"taskId"`
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// CancelTask handles ruvltra_cancel_task, the supplemented tool that lets a
// caller abort one in-flight task by id.
func (m *Mediator) CancelTask(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args cancelArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, ToolError{Tool: "ruvltra_cancel_task", Reason: "malformed arguments: " + err.Error()}
	}
	cancelled := m.pool.CancelTask(types.TaskID(args.TaskID))
	return json.Marshal(cancelResponse{Cancelled: cancelled})
}
