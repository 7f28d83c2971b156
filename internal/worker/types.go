// ============================================================================
// ruvltra-core Worker Pool - Task Model
// ============================================================================
//
// Package: internal/worker
// File: types.go
// Function: Task and TaskResult, the units the pool queues, dispatches, and
// settles, per spec §3 "Task" and §4.1.
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ChuLiYu/ruvltra-core/pkg/types"
)

var errResultChannelClosed = errors.New("worker: task result already consumed")

// Task wraps one admitted GenerateRequest with its cancellation token,
// deadline, and settlement state.
type Task struct {
	ID        types.TaskID
	Request   types.GenerateRequest
	Submitted time.Time
	Deadline  time.Time

	ctx    context.Context
	cancel context.CancelFunc

	resultCh chan TaskResult
	settled  atomic.Bool

	// onSettle, if set, is invoked exactly once with the final result the
	// first time this task settles - the pool's hook for lifetime counters.
	onSettle func(TaskResult)
}

// TaskResult is delivered exactly once per Task, to resultCh.
type TaskResult struct {
	TaskID     types.TaskID
	Result     types.GenerateResult
	Provenance types.Provenance
	Err        error
}

// settle delivers result if this task has not already been settled by a
// prior timeout, cancellation, or completion. Returns false if it was
// already settled, matching spec §4.1's "idempotent settlement" invariant.
func (t *Task) settle(result TaskResult) bool {
	if !t.settled.CompareAndSwap(false, true) {
		return false
	}
	result.TaskID = t.ID
	if t.onSettle != nil {
		t.onSettle(result)
	}
	t.resultCh <- result
	close(t.resultCh)
	return true
}

// Cancel trips the task's cancellation token and settles it as cancelled,
// if it has not already settled.
func (t *Task) Cancel(reason string) bool {
	t.cancel()
	return t.settle(TaskResult{Err: types.ErrCancelled{Reason: reason}})
}

// Await blocks until the task settles or ctx is done, whichever comes
// first. A ctx cancellation here does not cancel the task itself -
// callers that want that must also call Cancel.
func (t *Task) Await(ctx context.Context) (TaskResult, error) {
	select {
	case res, ok := <-t.resultCh:
		if !ok {
			return TaskResult{}, errResultChannelClosed
		}
		return res, nil
	case <-ctx.Done():
		return TaskResult{}, ctx.Err()
	}
}
