// ============================================================================
// ruvltra-core Worker - Task Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: One goroutine owning one inference engine and one pattern
// memory; pulls tasks from its inbox, rewrites their instruction with
// learned hints, generates, records the outcome, and reports back to the
// pool so it can be redispatched or retired.
//
// Design origin:
//   Loop shape (range over an inbox channel, timeout via context, report to
//   a shared completion channel) is the teacher's worker.go Run/execute
//   pattern, generalized from a single simulated task body to the real
//   rewrite -> generate -> record pipeline (spec §4.1, §4.2, §4.3).
//
// ============================================================================

package worker

import (
	"sync/atomic"
	"time"

	"github.com/ChuLiYu/ruvltra-core/internal/engine"
	"github.com/ChuLiYu/ruvltra-core/internal/memory"
	"github.com/ChuLiYu/ruvltra-core/pkg/types"
)

// Worker is one task-execution unit: a single goroutine, one engine, one
// pattern memory, dispatched to directly rather than through a shared
// broadcast channel (spec §4.1 "idle-worker selection").
type Worker struct {
	ID string

	engine *engine.Engine
	memory *memory.Memory

	inbox chan *Task
	done  chan *Worker // reported to after each task settles

	lastUsedAt   time.Time
	tasksHandled int64
}

func newWorker(id string, eng *engine.Engine, mem *memory.Memory, done chan *Worker) *Worker {
	return &Worker{
		ID:         id,
		engine:     eng,
		memory:     mem,
		inbox:      make(chan *Task, 1),
		done:       done,
		lastUsedAt: time.Now(),
	}
}

// run is the worker's main loop; it exits when inbox is closed.
func (w *Worker) run() {
	for task := range w.inbox {
		w.handle(task)
		w.lastUsedAt = time.Now()
		atomic.AddInt64(&w.tasksHandled, 1)
		w.done <- w
	}
}

// TasksHandled reports the number of tasks this worker has completed,
// settled either way, since it was spawned.
func (w *Worker) TasksHandled() int64 {
	return atomic.LoadInt64(&w.tasksHandled)
}

func (w *Worker) handle(task *Task) {
	// Release the task's deadline timer as soon as this worker is done with
	// it, whichever way it settles; watchTimeout is woken by this and exits.
	defer task.cancel()

	req := task.Request

	instruction := w.memory.Rewrite(req.Instruction, string(req.TaskType), req.Language)
	prompt := engine.BuildPrompt(req, instruction)

	start := time.Now()
	result, err := w.engine.Generate(task.ctx, prompt, req.MaxTokens, req.Temperature)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		outcome := classifyErr(task, err)
		w.memory.Record(memory.Interaction{
			TaskType:    string(req.TaskType),
			Language:    req.Language,
			FilePath:    req.FilePath,
			Instruction: req.Instruction,
			Success:     false,
			LatencyMs:   latency,
		})
		task.settle(TaskResult{Err: outcome})
		return
	}

	w.memory.Record(memory.Interaction{
		TaskType:         string(req.TaskType),
		Language:         req.Language,
		FilePath:         req.FilePath,
		Instruction:      req.Instruction,
		Response:         result.Output,
		Success:          true,
		LatencyMs:        result.LatencyMs,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		TokensKnown:      result.TokensKnown,
	})

	task.settle(TaskResult{
		Result: result,
		Provenance: types.Provenance{
			WorkerID:  w.ID,
			Backend:   result.Backend,
			Model:     result.Model,
			LatencyMs: result.LatencyMs,
			TaskID:    task.ID,
		},
	})
}

// classifyErr maps an engine-level error to the outcome the caller sees,
// distinguishing a deadline that has already passed from a genuine backend
// failure (spec §4.1 "Timeout").
func classifyErr(task *Task, err error) error {
	if task.ctx.Err() != nil && time.Now().After(task.Deadline) {
		return types.ErrTimeout{TimeoutMs: int(task.Deadline.Sub(task.Submitted).Milliseconds())}
	}
	return types.ErrBackendError{Cause: err}
}
