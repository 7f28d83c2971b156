package worker

import (
	"context"
	"testing"
	"time"

	"github.com/ChuLiYu/ruvltra-core/internal/engine"
	"github.com/ChuLiYu/ruvltra-core/internal/memory"
	"github.com/ChuLiYu/ruvltra-core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockFactory(workerID string) (*engine.Engine, *memory.Memory) {
	return engine.New(engine.NewMockAdapter(1, 0)), memory.NewMemory(nil)
}

func testPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p := NewPool(cfg, mockFactory)
	require.NoError(t, p.Start())
	t.Cleanup(p.Shutdown)
	return p
}

func TestPool_SubmitBeforeStartFails(t *testing.T) {
	p := NewPool(Config{}, mockFactory)
	_, err := p.Submit(context.Background(), types.GenerateRequest{TaskType: types.TaskGenerate, Instruction: "x"})
	assert.ErrorIs(t, err, ErrPoolNotStarted)
}

func TestPool_SubmitRejectsInvalidRequest(t *testing.T) {
	p := testPool(t, Config{MinWorkers: 1, MaxWorkers: 1})
	_, err := p.Submit(context.Background(), types.GenerateRequest{})
	require.Error(t, err)
	var invalid types.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalid)
}

func TestPool_SubmitAndAwaitResult(t *testing.T) {
	p := testPool(t, Config{MinWorkers: 1, MaxWorkers: 2, QueueMaxLength: 10})
	task, err := p.Submit(context.Background(), types.GenerateRequest{TaskType: types.TaskGenerate, Instruction: "implement it"})
	require.NoError(t, err)

	select {
	case res := <-task.resultCh:
		require.NoError(t, res.Err)
		assert.Equal(t, types.BackendMock, res.Result.Backend)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not settle in time")
	}
}

func TestPool_BackpressureRejectsOverflow(t *testing.T) {
	slowFactory := func(workerID string) (*engine.Engine, *memory.Memory) {
		return engine.New(engine.NewMockAdapter(500, 0)), memory.NewMemory(nil)
	}
	p := NewPool(Config{MinWorkers: 1, MaxWorkers: 1, QueueMaxLength: 1}, slowFactory)
	require.NoError(t, p.Start())
	t.Cleanup(p.Shutdown)

	// Occupy the one worker with a slow task, then fill the one queue slot.
	_, err := p.Submit(context.Background(), types.GenerateRequest{TaskType: types.TaskGenerate, Instruction: "slow", TimeoutMs: 5000})
	require.NoError(t, err)
	_, err = p.Submit(context.Background(), types.GenerateRequest{TaskType: types.TaskGenerate, Instruction: "queued", TimeoutMs: 5000})
	require.NoError(t, err)

	_, err = p.Submit(context.Background(), types.GenerateRequest{TaskType: types.TaskGenerate, Instruction: "overflow"})
	require.Error(t, err)
	var overflow types.ErrQueueOverflow
	assert.ErrorAs(t, err, &overflow)
}

func TestPool_TaskTimesOut(t *testing.T) {
	slowFactory := func(workerID string) (*engine.Engine, *memory.Memory) {
		return engine.New(engine.NewMockAdapter(200, 0)), memory.NewMemory(nil)
	}
	p := NewPool(Config{MinWorkers: 1, MaxWorkers: 1, QueueMaxLength: 5}, slowFactory)
	require.NoError(t, p.Start())
	defer p.Shutdown()

	task, err := p.Submit(context.Background(), types.GenerateRequest{
		TaskType: types.TaskGenerate, Instruction: "slow", TimeoutMs: 10,
	})
	require.NoError(t, err)

	select {
	case res := <-task.resultCh:
		require.Error(t, res.Err)
		var timeout types.ErrTimeout
		assert.ErrorAs(t, res.Err, &timeout)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not settle in time")
	}
}

func TestPool_CancelTaskSettlesAsCancelled(t *testing.T) {
	slowFactory := func(workerID string) (*engine.Engine, *memory.Memory) {
		return engine.New(engine.NewMockAdapter(500, 0)), memory.NewMemory(nil)
	}
	p := NewPool(Config{MinWorkers: 1, MaxWorkers: 1, QueueMaxLength: 5}, slowFactory)
	require.NoError(t, p.Start())
	defer p.Shutdown()

	task, err := p.Submit(context.Background(), types.GenerateRequest{
		TaskType: types.TaskGenerate, Instruction: "slow", TimeoutMs: 5000,
	})
	require.NoError(t, err)

	ok := p.CancelTask(task.ID)
	assert.True(t, ok)

	select {
	case res := <-task.resultCh:
		require.Error(t, res.Err)
		var cancelled types.ErrCancelled
		assert.ErrorAs(t, res.Err, &cancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not settle in time")
	}
}

func TestPool_SetWorkerCountClampsToBounds(t *testing.T) {
	p := testPool(t, Config{MinWorkers: 1, MaxWorkers: 3})

	n, err := p.SetWorkerCount(10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = p.SetWorkerCount(0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPool_StatusReportsLoad(t *testing.T) {
	p := testPool(t, Config{MinWorkers: 2, MaxWorkers: 2})
	status := p.Status()
	assert.Equal(t, 2, status.WorkerCount)
	assert.Equal(t, 2, status.MinWorkers)
	assert.Equal(t, 2, status.MaxWorkers)
	assert.GreaterOrEqual(t, status.IdleCount, 0)
	assert.Len(t, status.Workers, 2)
	assert.Equal(t, 2, status.Backends[types.BackendMock])
}

func TestPool_StartSpawnsInitialWorkers(t *testing.T) {
	p := testPool(t, Config{MinWorkers: 1, MaxWorkers: 5, InitialWorkers: 3})
	assert.Equal(t, 3, p.Status().WorkerCount)
}

func TestPool_LifetimeCountersSumToAdmittedTasks(t *testing.T) {
	p := testPool(t, Config{MinWorkers: 2, MaxWorkers: 2, QueueMaxLength: 10})

	const n = 6
	tasks := make([]*Task, 0, n)
	for i := 0; i < n; i++ {
		task, err := p.Submit(context.Background(), types.GenerateRequest{TaskType: types.TaskGenerate, Instruction: "work"})
		require.NoError(t, err)
		tasks = append(tasks, task)
	}
	for _, task := range tasks {
		select {
		case <-task.resultCh:
		case <-time.After(2 * time.Second):
			t.Fatal("task did not settle in time")
		}
	}

	status := p.Status()
	assert.Equal(t, int64(n), status.Submitted)
	assert.Equal(t, status.Submitted, status.Completed+status.Failed+status.Cancelled)
}

type fakeMetrics struct {
	submitted int
	rejected  int
	settled   []string
}

func (f *fakeMetrics) RecordSubmitted() { f.submitted++ }
func (f *fakeMetrics) RecordRejected()  { f.rejected++ }
func (f *fakeMetrics) RecordSettled(backend string, latencySeconds float64, outcome string) {
	f.settled = append(f.settled, outcome)
}

func TestPool_MetricsRecorderObservesAdmissionAndSettlement(t *testing.T) {
	p := testPool(t, Config{MinWorkers: 1, MaxWorkers: 1, QueueMaxLength: 1})
	fm := &fakeMetrics{}
	p.SetMetrics(fm)

	task, err := p.Submit(context.Background(), types.GenerateRequest{TaskType: types.TaskGenerate, Instruction: "work"})
	require.NoError(t, err)
	select {
	case <-task.resultCh:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not settle in time")
	}

	_, err = p.Submit(context.Background(), types.GenerateRequest{})
	require.Error(t, err)

	assert.Equal(t, 1, fm.submitted)
	assert.Equal(t, 1, fm.rejected)
	assert.Equal(t, []string{"completed"}, fm.settled)
}

func TestPool_BackendReadinessReportsMockReady(t *testing.T) {
	p := testPool(t, Config{MinWorkers: 2, MaxWorkers: 2})
	readiness := p.BackendReadiness()
	require.NotEmpty(t, readiness)
	for _, b := range readiness {
		if b.Backend == types.BackendMock {
			assert.True(t, b.Ready)
		}
	}
}

func TestPool_ConcurrentSubmissionsAllSettle(t *testing.T) {
	p := testPool(t, Config{MinWorkers: 4, MaxWorkers: 4, QueueMaxLength: 50})

	const n = 20
	tasks := make([]*Task, 0, n)
	for i := 0; i < n; i++ {
		task, err := p.Submit(context.Background(), types.GenerateRequest{TaskType: types.TaskGenerate, Instruction: "work"})
		require.NoError(t, err)
		tasks = append(tasks, task)
	}

	for _, task := range tasks {
		select {
		case res := <-task.resultCh:
			assert.NoError(t, res.Err)
		case <-time.After(3 * time.Second):
			t.Fatal("task did not settle in time")
		}
	}
}
