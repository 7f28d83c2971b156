// ============================================================================
// ruvltra-core Worker Pool - Task Admission and Dispatch
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Function: Owns every Worker goroutine, admits GenerateRequests as Tasks,
// dispatches them to the least-recently-used idle worker, autoscales
// workers up on admission and down on an idle heartbeat, and enforces
// backpressure and per-task timeouts (spec §4.1).
//
// Design origin:
//   Lifecycle (NewPool/Start/Submit/Stop under one mutex, WaitGroup-tracked
//   worker goroutines, closed-channel shutdown) is the teacher's
//   worker_pool.go Pool. The four independent responsibilities the teacher
//   split across Pool (dispatch) and Controller (poll/ack/retry loops) are
//   folded into this single Pool here, since this domain has no external
//   job source to poll: admission (Submit), redispatch-on-completion
//   (collectLoop), timeout enforcement (per-task watchTimeout), and
//   autoscale-down (scaleDownLoop) play the analogous roles to the
//   teacher's dispatchLoop/resultLoop/retryLoop/reportLoop.
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChuLiYu/ruvltra-core/internal/engine"
	"github.com/ChuLiYu/ruvltra-core/internal/memory"
	"github.com/ChuLiYu/ruvltra-core/pkg/types"
)

var (
	// ErrPoolClosed indicates the pool is shutting down or shut down.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted indicates the pool has not been started yet.
	ErrPoolNotStarted = errors.New("worker pool not started")
)

// Factory builds the per-worker engine and pattern memory for workerID.
// Pool calls it once per spawned worker, never concurrently with itself.
type Factory func(workerID string) (*engine.Engine, *memory.Memory)

// Config sizes and bounds the pool, mirroring spec §4.1's configuration
// surface.
type Config struct {
	MinWorkers         int
	MaxWorkers         int
	InitialWorkers     int
	QueueMaxLength     int
	DefaultTimeoutMs   int
	IdleScaleDownAfter time.Duration
}

// MetricsRecorder receives pool admission and settlement events. Optional;
// a pool with none set runs with no observability overhead.
type MetricsRecorder interface {
	RecordSubmitted()
	RecordRejected()
	RecordSettled(backend string, latencySeconds float64, outcome string)
}

func (c Config) withDefaults() Config {
	if c.MinWorkers < 1 {
		c.MinWorkers = 1
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.QueueMaxLength < 1 {
		c.QueueMaxLength = 100
	}
	if c.DefaultTimeoutMs <= 0 {
		c.DefaultTimeoutMs = 30_000
	}
	if c.IdleScaleDownAfter <= 0 {
		c.IdleScaleDownAfter = 5 * time.Second
	}
	return c
}

// Pool admits, queues, and dispatches generation tasks across a bounded,
// autoscaling set of Workers.
type Pool struct {
	cfg     Config
	factory Factory

	mu      sync.Mutex
	workers map[string]*Worker
	idle    []*Worker
	queue   []*Task

	unfinished int
	nextID     uint64
	nextWorker int
	busyTask   map[string]*Task // workerID -> task currently being handled

	// Lifetime counters, per spec §4.1 "Status() -> PoolStatus ... lifetime
	// counters (submitted/failed/cancelled/timed-out/rejected)". Mutated via
	// atomic ops since settlement (Task.onSettle) runs off the pool's own
	// goroutines without mu held.
	submitted int64
	rejected  int64
	completed int64
	failed    int64
	cancelled int64
	timedOut  int64

	started bool
	stopped bool

	metrics MetricsRecorder

	doneCh chan *Worker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// SetMetrics attaches a recorder for admission and settlement events. Must
// be called before Start to observe every event; safe to call at any time
// otherwise, since it only affects events recorded afterward.
func (p *Pool) SetMetrics(m MetricsRecorder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = m
}

// NewPool builds a pool. factory is called to construct each worker's
// private engine and pattern memory.
func NewPool(cfg Config, factory Factory) *Pool {
	return &Pool{
		cfg:     cfg.withDefaults(),
		factory:  factory,
		workers:  make(map[string]*Worker),
		busyTask: make(map[string]*Task),
		doneCh:   make(chan *Worker, 64),
		stopCh:   make(chan struct{}),
	}
}

// Start spins up InitialWorkers workers (clamped to [MinWorkers,
// MaxWorkers]) and begins the redispatch and
// autoscale-down background loops.
func (p *Pool) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("pool already started")
	}
	// InitialWorkers of 0 clamps up to MinWorkers, the prior fixed behavior.
	initial := types.ClampInt(p.cfg.InitialWorkers, p.cfg.MinWorkers, p.cfg.MaxWorkers)
	for i := 0; i < initial; i++ {
		w := p.spawnLocked()
		p.idle = append(p.idle, w)
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(2)
	go p.collectLoop()
	go p.scaleDownLoop()
	return nil
}

func (p *Pool) spawnLocked() *Worker {
	p.nextWorker++
	id := workerID(p.nextWorker)
	eng, mem := p.factory(id)
	w := newWorker(id, eng, mem, p.doneCh)
	p.workers[id] = w

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		w.run()
	}()
	return w
}

func workerID(n int) string {
	return "worker-" + strconv.Itoa(n)
}

// Submit validates and admits req as a new Task. parent governs the
// caller's own cancellation; the task's own deadline is derived from
// req.TimeoutMs (or the pool default) independently of parent.
func (p *Pool) Submit(parent context.Context, req types.GenerateRequest) (*Task, error) {
	if err := req.Validate(); err != nil {
		p.recordRejected()
		return nil, err
	}

	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		p.recordRejected()
		return nil, ErrPoolNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		p.recordRejected()
		return nil, ErrPoolClosed
	}

	// QueueMaxLength bounds the waiting line, not in-flight capacity: a
	// request that can be handed straight to an idle or freshly spawned
	// worker is always admitted; only one that would have to wait is
	// subject to backpressure.
	hasImmediateCapacity := len(p.idle) > 0 || len(p.workers) < p.cfg.MaxWorkers
	if !hasImmediateCapacity && len(p.queue) >= p.cfg.QueueMaxLength {
		p.mu.Unlock()
		p.recordRejected()
		return nil, types.ErrQueueOverflow{QueueMaxLength: p.cfg.QueueMaxLength, RetryAfterMs: 250}
	}

	timeoutMs := req.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = p.cfg.DefaultTimeoutMs
	}
	now := time.Now()
	ctx, cancel := context.WithTimeout(parent, time.Duration(timeoutMs)*time.Millisecond)

	p.nextID++
	task := &Task{
		ID:        types.TaskID(p.nextID),
		Request:   req,
		Submitted: now,
		Deadline:  now.Add(time.Duration(timeoutMs) * time.Millisecond),
		ctx:       ctx,
		cancel:    cancel,
		resultCh:  make(chan TaskResult, 1),
		onSettle:  p.recordSettlement,
	}

	atomic.AddInt64(&p.submitted, 1)
	if p.metrics != nil {
		p.metrics.RecordSubmitted()
	}
	p.unfinished++
	if !p.dispatchLocked(task) {
		p.queue = append(p.queue, task)
	}
	// Registered before unlocking so a concurrent Shutdown can never observe
	// stopped==false, proceed past its own lock, and call wg.Wait() racing
	// this goroutine's wg.Add.
	p.wg.Add(1)
	p.mu.Unlock()

	go p.watchTimeout(task)

	return task, nil
}

// recordRejected bumps the rejected counter and, if set, notifies the
// metrics recorder. Called both before and after the pool lock is held, so
// it takes its own brief lock to read p.metrics safely.
func (p *Pool) recordRejected() {
	atomic.AddInt64(&p.rejected, 1)
	p.mu.Lock()
	m := p.metrics
	p.mu.Unlock()
	if m != nil {
		m.RecordRejected()
	}
}

// dispatchLocked hands task to an idle worker (least-recently-used first)
// or, if none is idle and the pool has headroom, spawns one. Must be
// called with mu held.
func (p *Pool) dispatchLocked(task *Task) bool {
	if len(p.idle) > 0 {
		w := p.popLRULocked()
		p.busyTask[w.ID] = task
		w.inbox <- task
		return true
	}
	if len(p.workers) < p.cfg.MaxWorkers {
		w := p.spawnLocked()
		p.busyTask[w.ID] = task
		w.inbox <- task
		return true
	}
	return false
}

// popLRULocked removes and returns the idle worker least recently used.
func (p *Pool) popLRULocked() *Worker {
	best := 0
	for i, w := range p.idle {
		if w.lastUsedAt.Before(p.idle[best].lastUsedAt) {
			best = i
		}
	}
	w := p.idle[best]
	p.idle = append(p.idle[:best], p.idle[best+1:]...)
	return w
}

// collectLoop redispatches a worker that just finished a task to the next
// queued task, or returns it to the idle set.
func (p *Pool) collectLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case w, ok := <-p.doneCh:
			if !ok {
				return
			}
			p.mu.Lock()
			delete(p.busyTask, w.ID)
			if p.stopped {
				p.mu.Unlock()
				continue
			}
			if len(p.queue) > 0 {
				next := p.queue[0]
				p.queue = p.queue[1:]
				p.busyTask[w.ID] = next
				w.inbox <- next
			} else {
				w.lastUsedAt = time.Now()
				p.idle = append(p.idle, w)
			}
			p.mu.Unlock()
		}
	}
}

// recordSettlement classifies a task's final result into the pool's
// lifetime counters, per spec §4.1: a timeout increments both timedOut and
// cancelled, since it is also a form of cancellation.
func (p *Pool) recordSettlement(res TaskResult) {
	outcome := "failed"
	switch {
	case res.Err == nil:
		atomic.AddInt64(&p.completed, 1)
		outcome = "completed"
	default:
		var timeoutErr types.ErrTimeout
		var cancelErr types.ErrCancelled
		switch {
		case errors.As(res.Err, &timeoutErr):
			atomic.AddInt64(&p.timedOut, 1)
			atomic.AddInt64(&p.cancelled, 1)
			outcome = "timeout"
		case errors.As(res.Err, &cancelErr):
			atomic.AddInt64(&p.cancelled, 1)
			outcome = "cancelled"
		default:
			atomic.AddInt64(&p.failed, 1)
		}
	}

	p.mu.Lock()
	m := p.metrics
	p.mu.Unlock()
	if m == nil {
		return
	}
	m.RecordSettled(string(res.Provenance.Backend), float64(res.Result.LatencyMs)/1000, outcome)
}

// watchTimeout settles task as timed out or cancelled once its context is
// done, then clears pool bookkeeping. It is a no-op settlement if the
// worker already settled the task normally.
func (p *Pool) watchTimeout(task *Task) {
	defer p.wg.Done()
	<-task.ctx.Done()

	if errors.Is(task.ctx.Err(), context.DeadlineExceeded) {
		task.settle(TaskResult{Err: types.ErrTimeout{TimeoutMs: int(task.Deadline.Sub(task.Submitted).Milliseconds())}})
	} else {
		task.settle(TaskResult{Err: types.ErrCancelled{Reason: "context cancelled"}})
	}

	p.mu.Lock()
	p.unfinished--
	for i, t := range p.queue {
		if t == task {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
}

// scaleDownLoop periodically retires idle workers above MinWorkers that
// have been idle for at least IdleScaleDownAfter (spec §4.1 "autoscale
// down").
func (p *Pool) scaleDownLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.IdleScaleDownAfter)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.mu.Lock()
			cutoff := time.Now().Add(-p.cfg.IdleScaleDownAfter)
			for len(p.workers) > p.cfg.MinWorkers && len(p.idle) > 0 {
				if p.idle[0].lastUsedAt.After(cutoff) {
					break
				}
				w := p.idle[0]
				p.idle = p.idle[1:]
				p.retireLocked(w)
			}
			p.mu.Unlock()
		}
	}
}

func (p *Pool) retireLocked(w *Worker) {
	delete(p.workers, w.ID)
	close(w.inbox)
}

// SetWorkerCount adjusts the worker count towards n, clamped to
// [MinWorkers, MaxWorkers]. It only ever retires currently idle workers;
// busy workers are left running, so the count can stay above n. The
// scale-down sweep later retires only workers idle for IdleScaleDownAfter,
// down to MinWorkers; it does not track n. Returns the resulting worker
// count.
func (p *Pool) SetWorkerCount(n int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0, ErrPoolNotStarted
	}
	if p.stopped {
		return 0, ErrPoolClosed
	}

	n = types.ClampInt(n, p.cfg.MinWorkers, p.cfg.MaxWorkers)

	for len(p.workers) < n {
		w := p.spawnLocked()
		p.idle = append(p.idle, w)
	}
	for len(p.workers) > n && len(p.idle) > 0 {
		w := p.idle[0]
		p.idle = p.idle[1:]
		p.retireLocked(w)
	}

	return len(p.workers), nil
}

// WorkerRuntimeStats is one worker's point-in-time runtime snapshot, per
// spec §4.1 "Status() -> PoolStatus ... per-worker runtime stats".
type WorkerRuntimeStats struct {
	ID           string        `json:"id"`
	Idle         bool          `json:"idle"`
	TasksHandled int64         `json:"tasksHandled"`
	Backend      types.Backend `json:"backend"`
}

// Status is a point-in-time view of the pool's load, per spec §6
// "ruvltra_status" and spec §4.1's PoolStatus definition: current/min/max
// workers, queue length, in-flight count, lifetime counters, per-worker
// runtime stats, and a breakdown of workers by currently-selected backend.
type Status struct {
	WorkerCount int `json:"workerCount"`
	MinWorkers  int `json:"minWorkers"`
	MaxWorkers  int `json:"maxWorkers"`
	IdleCount   int `json:"idleCount"`
	QueueLength int `json:"queueLength"`
	Unfinished  int `json:"unfinished"`

	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	TimedOut  int64 `json:"timedOut"`
	Rejected  int64 `json:"rejected"`

	Workers  []WorkerRuntimeStats  `json:"workers,omitempty"`
	Backends map[types.Backend]int `json:"backends,omitempty"`
}

// Status reports current pool load, lifetime counters, and a breakdown of
// workers by the backend each would currently use.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	idle := make(map[string]bool, len(p.idle))
	for _, w := range p.idle {
		idle[w.ID] = true
	}

	st := Status{
		WorkerCount: len(p.workers),
		MinWorkers:  p.cfg.MinWorkers,
		MaxWorkers:  p.cfg.MaxWorkers,
		IdleCount:   len(p.idle),
		QueueLength: len(p.queue),
		Unfinished:  p.unfinished,

		Submitted: atomic.LoadInt64(&p.submitted),
		Completed: atomic.LoadInt64(&p.completed),
		Failed:    atomic.LoadInt64(&p.failed),
		Cancelled: atomic.LoadInt64(&p.cancelled),
		TimedOut:  atomic.LoadInt64(&p.timedOut),
		Rejected:  atomic.LoadInt64(&p.rejected),

		Workers:  make([]WorkerRuntimeStats, 0, len(p.workers)),
		Backends: make(map[types.Backend]int, len(p.workers)),
	}

	for _, w := range p.workers {
		selected := w.engine.SelectedBackend()
		st.Workers = append(st.Workers, WorkerRuntimeStats{
			ID:           w.ID,
			Idle:         idle[w.ID],
			TasksHandled: w.TasksHandled(),
			Backend:      selected,
		})
		st.Backends[selected]++
	}
	return st
}

// BackendReadiness aggregates every worker's adapter readiness into one
// list per backend, reporting a backend ready if any worker currently has
// it ready. Used for the metrics readiness gauge, which is diagnostic
// rather than part of PoolStatus's per-worker breakdown.
func (p *Pool) BackendReadiness() []engine.BackendStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	order := make([]types.Backend, 0)
	merged := make(map[types.Backend]engine.BackendStatus)
	for _, w := range p.workers {
		for _, bs := range w.engine.Status() {
			cur, ok := merged[bs.Backend]
			if !ok {
				order = append(order, bs.Backend)
				merged[bs.Backend] = bs
				continue
			}
			if bs.Ready && !cur.Ready {
				merged[bs.Backend] = bs
			}
		}
	}

	out := make([]engine.BackendStatus, 0, len(order))
	for _, b := range order {
		out = append(out, merged[b])
	}
	return out
}

// WorkerIDs returns the IDs of every currently live worker, for
// ruvltra_sona_stats fan-out.
func (p *Pool) WorkerIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.workers))
	for id := range p.workers {
		ids = append(ids, id)
	}
	return ids
}

// MemoryStats returns the pattern-memory stats for one worker, or false if
// it does not exist (including if it has since been retired).
func (p *Pool) MemoryStats(workerID string, topN int) (memory.Stats, bool) {
	p.mu.Lock()
	w, ok := p.workers[workerID]
	p.mu.Unlock()
	if !ok {
		return memory.Stats{}, false
	}
	return w.memory.Stats(workerID, topN), true
}

// CancelTask trips the cancellation token of an in-flight or queued task,
// identified by ID, if it has not already settled. Returns false if the
// task is unknown to the pool (already settled and forgotten, or never
// existed) or has already settled.
func (p *Pool) CancelTask(id types.TaskID) bool {
	p.mu.Lock()
	var target *Task
	for _, t := range p.queue {
		if t.ID == id {
			target = t
			break
		}
	}
	if target == nil {
		for _, t := range p.busyTask {
			if t.ID == id {
				target = t
				break
			}
		}
	}
	p.mu.Unlock()

	if target != nil {
		return target.Cancel("cancelled by request")
	}
	return false
}

// Shutdown stops accepting new tasks, cancels every queued and in-flight
// task, and waits for every goroutine to exit.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true

	queued := append([]*Task(nil), p.queue...)
	p.queue = nil

	inFlight := make([]*Task, 0, len(p.busyTask))
	for _, t := range p.busyTask {
		inFlight = append(inFlight, t)
	}

	// Closing every worker's inbox now is safe: idle workers are blocked
	// waiting to receive and exit immediately; busy workers only observe
	// the close after draining the one task already in flight.
	for _, w := range p.workers {
		close(w.inbox)
	}
	p.idle = nil
	p.mu.Unlock()

	for _, t := range queued {
		t.Cancel("pool shutting down")
	}
	for _, t := range inFlight {
		t.Cancel("pool shutting down")
	}

	close(p.stopCh)
	p.wg.Wait()
}

// IsStarted reports whether Start has been called.
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}
