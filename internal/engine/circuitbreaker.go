// ============================================================================
// ruvltra-core Inference Engine - Circuit Breaker
// ============================================================================
//
// Package: internal/engine
// File: circuitbreaker.go
// Function: Three-state (closed/open/half-open) failure breaker guarding the
// remote-HTTP backend, per spec §4.2.1 "Circuit breaker".
//
// Design origin:
//   Atomic-field state machine grounded on
//   abiolaogu-MinIO/replication_engine_v2.go's CircuitBreaker (state/failures
//   as atomic.Int32/atomic.Int64, AllowRequest/RecordSuccess/RecordFailure
//   trio). Three-state vocabulary (closed/open/half_open) and single-probe
//   semantics on half-open follow jonwraymond-toolops/resilience-doc.go.
//
// ============================================================================

package engine

import (
	"sync/atomic"
	"time"
)

// CircuitState names one of the three breaker states.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker trips open after a run of consecutive failures, then
// allows a single half-open probe after a cooldown.
type CircuitBreaker struct {
	state atomic.Int32 // 0=closed, 1=open, 2=half-open

	consecutiveFailures atomic.Int64
	threshold           int64
	cooldown            time.Duration

	nextAttemptAt atomic.Int64 // unix nanos
	probeInFlight atomic.Bool
}

// NewCircuitBreaker builds a breaker that opens after threshold consecutive
// failures and allows a probe after cooldown has elapsed.
func NewCircuitBreaker(threshold int64, cooldown time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	if cooldown <= 0 {
		cooldown = time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown}
}

func (cb *CircuitBreaker) stateValue() CircuitState {
	switch cb.state.Load() {
	case 1:
		return CircuitOpen
	case 2:
		return CircuitHalfOpen
	default:
		return CircuitClosed
	}
}

// State reports the breaker's current state for Status/SonaStats reporting.
func (cb *CircuitBreaker) State() CircuitState {
	if cb.state.Load() == 1 && time.Now().UnixNano() >= cb.nextAttemptAt.Load() {
		return CircuitHalfOpen
	}
	return cb.stateValue()
}

// Allow reports whether a call may proceed right now. In the open state
// past cooldown, exactly one caller is admitted as the half-open probe;
// concurrent callers are rejected until that probe settles.
func (cb *CircuitBreaker) Allow() bool {
	switch cb.state.Load() {
	case 0: // closed
		return true
	case 2: // half-open
		return cb.probeInFlight.CompareAndSwap(false, true)
	default: // open
		if time.Now().UnixNano() < cb.nextAttemptAt.Load() {
			return false
		}
		if cb.state.CompareAndSwap(1, 2) {
			return cb.probeInFlight.CompareAndSwap(false, true)
		}
		return cb.probeInFlight.CompareAndSwap(false, true)
	}
}

// RecordSuccess closes the breaker and clears its failure streak.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.consecutiveFailures.Store(0)
	cb.probeInFlight.Store(false)
	cb.state.Store(0)
}

// RecordFailure extends the failure streak and opens the breaker once the
// streak reaches threshold, or immediately re-opens a failed half-open
// probe.
func (cb *CircuitBreaker) RecordFailure() {
	cb.probeInFlight.Store(false)

	if cb.state.Load() == 2 {
		cb.trip()
		return
	}

	failures := cb.consecutiveFailures.Add(1)
	if failures >= cb.threshold {
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state.Store(1)
	cb.nextAttemptAt.Store(time.Now().Add(cb.cooldown).UnixNano())
}
