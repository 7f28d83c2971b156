// ============================================================================
// ruvltra-core Tool Mediator - Fan-Out Tools
// ============================================================================
//
// Package: internal/mediator
// File: parallel.go
// Function: ParallelGenerate and SwarmReview, the two fan-out tools that
// submit several independent GenerateRequests concurrently and collect
// their provenance-tagged results, per spec §4.4 "Fan-out tools".
//
// Each item is fully independent: one item's failure, timeout, or
// cancellation never affects another's.
//
// ============================================================================

package mediator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ChuLiYu/ruvltra-core/pkg/types"
)

// parallelItem is one unit of work in a fan-out request.
type parallelItem struct {
	Instruction string  `json:"instruction"`
	Context     string  `json:"context,omitempty"`
	Language    string  `json:"language,omitempty"`
	FilePath    string  `json:"filePath,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TimeoutMs   int     `json:"timeoutMs,omitempty"`
}

// itemResult is one fan-out item's independent outcome.
type itemResult struct {
	Index      int               `json:"index"`
	Output     string            `json:"output,omitempty"`
	Provenance *types.Provenance `json:"provenance,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func (m *Mediator) runFanOut(ctx context.Context, taskType types.TaskType, items []parallelItem) []itemResult {
	results := make([]itemResult, len(items))
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(i int, item parallelItem) {
			defer wg.Done()

			req := types.GenerateRequest{
				TaskType:    taskType,
				Instruction: item.Instruction,
				Context:     item.Context,
				Language:    item.Language,
				FilePath:    item.FilePath,
				MaxTokens:   item.MaxTokens,
				Temperature: item.Temperature,
				TimeoutMs:   item.TimeoutMs,
			}

			res, err := m.generateOne(ctx, req)
			if err != nil {
				results[i] = itemResult{Index: i, Error: err.Error()}
				return
			}
			results[i] = itemResult{Index: i, Output: res.Output, Provenance: &res.Provenance}
		}(i, item)
	}

	wg.Wait()
	return results
}

// totalLatency sums every settled item's provenance latency, the pool's
// aggregate latency per spec §4.4 "ParallelGenerate".
func totalLatency(results []itemResult) int64 {
	var total int64
	for _, r := range results {
		if r.Provenance != nil {
			total += r.Provenance.LatencyMs
		}
	}
	return total
}

type parallelGenerateArgs struct {
	Items []parallelItem `json:"items"`
}

// parallelGenerateResponse is ruvltra_parallel_generate's return shape, per
// spec §6 "{totalTasks, totalLatencyMs, results[]}".
type parallelGenerateResponse struct {
	TotalTasks     int          `json:"totalTasks"`
	TotalLatencyMs int64        `json:"totalLatencyMs"`
	Results        []itemResult `json:"results"`
}

// ParallelGenerate handles ruvltra_parallel_generate: N independent
// generation calls run concurrently against the pool and return together.
func (m *Mediator) ParallelGenerate(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args parallelGenerateArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, ToolError{Tool: "ruvltra_parallel_generate", Reason: "malformed arguments: " + err.Error()}
	}
	if len(args.Items) == 0 {
		return nil, ToolError{Tool: "ruvltra_parallel_generate", Reason: "items must not be empty"}
	}

	results := m.runFanOut(ctx, types.TaskGenerate, args.Items)
	return json.Marshal(parallelGenerateResponse{
		TotalTasks:     len(results),
		TotalLatencyMs: totalLatency(results),
		Results:        results,
	})
}

// defaultReviewPerspectives is used when a caller omits perspectives
// entirely, per spec §4.4 "SwarmReview".
var defaultReviewPerspectives = []string{"security", "performance", "quality", "maintainability"}

type swarmReviewArgs struct {
	// Code is reviewed by Perspectives independent review passes, each
	// phrased as its own instruction, e.g. "security", "performance",
	// "readability".
	Code         string   `json:"code"`
	Language     string   `json:"language,omitempty"`
	FilePath     string   `json:"filePath,omitempty"`
	Perspectives []string `json:"perspectives"`
	TimeoutMs    int      `json:"timeoutMs,omitempty"`
}

// SwarmReview handles ruvltra_swarm_review: the same code is reviewed from
// several independent perspectives concurrently, each becoming its own
// review task.
func (m *Mediator) SwarmReview(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args swarmReviewArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, ToolError{Tool: "ruvltra_swarm_review", Reason: "malformed arguments: " + err.Error()}
	}
	if args.Code == "" {
		return nil, ToolError{Tool: "ruvltra_swarm_review", Reason: "code must not be empty"}
	}

	perspectives := args.Perspectives
	if len(perspectives) == 0 {
		perspectives = defaultReviewPerspectives
	}
	if len(perspectives) > 8 {
		perspectives = perspectives[:8]
	}

	items := make([]parallelItem, len(perspectives))
	for i, perspective := range perspectives {
		items[i] = parallelItem{
			Instruction: "Review the following code from a " + perspective + " perspective:\n\n" + args.Code,
			Language:    args.Language,
			FilePath:    args.FilePath,
			TimeoutMs:   args.TimeoutMs,
		}
	}

	results := m.runFanOut(ctx, types.TaskReview, items)
	return json.Marshal(swarmReviewResponse{
		Perspectives:   perspectives,
		TotalLatencyMs: totalLatency(results),
		Reviews:        results,
	})
}

// swarmReviewResponse is ruvltra_swarm_review's return shape, per spec §6
// "{perspectives, totalLatencyMs, reviews[]}".
type swarmReviewResponse struct {
	Perspectives   []string     `json:"perspectives"`
	TotalLatencyMs int64        `json:"totalLatencyMs"`
	Reviews        []itemResult `json:"reviews"`
}
