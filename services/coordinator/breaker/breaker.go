// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package breaker provides circuit breaking for calls to unreliable
// dependencies: the vector store, the embedding provider, the expansion
// model. Each named dependency gets its own breaker so one failing
// collection cannot poison the rest of the pipeline.
//
// State machine:
//
//	CLOSED ──(threshold consecutive failures)──► OPEN
//	OPEN ──(recovery timeout elapsed, next call)──► HALF_OPEN
//	HALF_OPEN ──(probe succeeds)──► CLOSED
//	HALF_OPEN ──(probe fails)──► OPEN (timer restarts)
//
// In HALF_OPEN exactly one probe call is allowed through; concurrent calls
// fail fast until the probe's outcome is known.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a call is rejected without invoking the
// dependency.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current circuit breaker state.
type State int

const (
	// StateClosed allows calls through; consecutive failures are counted.
	StateClosed State = iota

	// StateOpen fails calls fast; the dependency is never invoked.
	StateOpen

	// StateHalfOpen admits a single probe call after the recovery timeout.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trip
	// the breaker from CLOSED to OPEN.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays OPEN before the next
	// call is admitted as a probe.
	RecoveryTimeout time.Duration

	// CallTimeout bounds a guarded call made through ExecuteContext.
	// Exceeding it is a failure like any other. Zero disables the bound.
	CallTimeout time.Duration

	// OnStateChange is called on every transition. Invoked on a separate
	// goroutine so a slow hook cannot block the caller.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the standard breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		CallTimeout:      10 * time.Second,
	}
}

// Counts is an observability snapshot of one breaker.
type Counts struct {
	State            string    `json:"state"`
	Failures         int       `json:"failures"`
	OpenTransitions  uint64    `json:"open_transitions"`
	CloseTransitions uint64    `json:"close_transitions"`
	LastFailure      time.Time `json:"last_failure,omitzero"`
}

// CircuitBreaker guards calls to one named dependency.
//
// Thread Safety: safe for concurrent use. All state reads and transitions
// happen under a single mutex, so concurrent callers can never observe a
// double-open or double-close transition.
type CircuitBreaker struct {
	name   string
	config Config

	mu               sync.Mutex
	state            State
	failures         int
	lastFailure      time.Time
	probing          bool
	openTransitions  uint64
	closeTransitions uint64
}

// New creates a circuit breaker for the named dependency. Zero-valued
// config fields fall back to DefaultConfig.
func New(name string, config Config) *CircuitBreaker {
	def := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = def.RecoveryTimeout
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  StateClosed,
	}
}

// Name returns the dependency name this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn if the breaker admits the call and records the outcome.
// Returns ErrCircuitOpen without invoking fn when the call is rejected.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn()
	cb.afterCall(err)
	return err
}

// ExecuteContext runs fn under the configured call timeout. A deadline hit
// surfaces as context.DeadlineExceeded and counts as a failure; cancellation
// by the caller does not, since it says nothing about dependency health.
func (cb *CircuitBreaker) ExecuteContext(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	callCtx := ctx
	if cb.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cb.config.CallTimeout)
		defer cancel()
	}
	err := fn(callCtx)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		cb.abandonCall()
		return err
	}
	cb.afterCall(err)
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns an observability snapshot.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Counts{
		State:            cb.state.String(),
		Failures:         cb.failures,
		OpenTransitions:  cb.openTransitions,
		CloseTransitions: cb.closeTransitions,
		LastFailure:      cb.lastFailure,
	}
}

// Reset forces the breaker back to CLOSED with a clean failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probing = false
	cb.transitionTo(StateClosed)
}

// beforeCall decides whether the call may proceed, performing the
// OPEN → HALF_OPEN transition when the recovery timeout has elapsed.
func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.config.RecoveryTimeout {
			cb.transitionTo(StateHalfOpen)
			cb.probing = true
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

// afterCall records the call outcome and transitions accordingly.
func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.probing = false
		cb.failures = 0
		if cb.state != StateClosed {
			cb.transitionTo(StateClosed)
		}
		return
	}

	cb.lastFailure = time.Now()
	switch cb.state {
	case StateHalfOpen:
		cb.probing = false
		cb.transitionTo(StateOpen)
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(StateOpen)
		}
	}
}

// abandonCall releases the probe slot without judging dependency health.
// Used when the caller cancelled mid-flight.
func (cb *CircuitBreaker) abandonCall() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
}

// transitionTo moves to a new state. Caller must hold cb.mu.
func (cb *CircuitBreaker) transitionTo(newState State) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState

	switch newState {
	case StateOpen:
		cb.openTransitions++
	case StateClosed:
		cb.closeTransitions++
	}

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(oldState, newState)
	}
}

// =============================================================================
// Registry
// =============================================================================

// Registry manages circuit breakers for multiple named dependencies,
// creating them on first use with a shared default configuration.
//
// Thread Safety: safe for concurrent use.
type Registry struct {
	defaultConfig Config
	mu            sync.RWMutex
	breakers      map[string]*CircuitBreaker

	// onStateChange, when set, is installed on every created breaker with
	// the dependency name bound. Drives metrics and logs.
	onStateChange func(name string, from, to State)
}

// NewRegistry creates a registry whose breakers default to config.
func NewRegistry(config Config) *Registry {
	return &Registry{
		defaultConfig: config,
		breakers:      make(map[string]*CircuitBreaker),
	}
}

// SetStateChangeHook installs a hook applied to breakers created after the
// call. Existing breakers keep their hooks.
func (r *Registry) SetStateChangeHook(hook func(name string, from, to State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStateChange = hook
}

// Get returns the breaker for name, creating it with the default
// configuration if needed.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check again under the write lock.
	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cfg := r.defaultConfig
	if r.onStateChange != nil {
		hook := r.onStateChange
		n := name
		cfg.OnStateChange = func(from, to State) { hook(n, from, to) }
	}
	cb = New(name, cfg)
	r.breakers[name] = cb
	return cb
}

// States returns an observability snapshot of every breaker.
func (r *Registry) States() map[string]Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]Counts, len(r.breakers))
	for name, cb := range r.breakers {
		snapshot[name] = cb.Counts()
	}
	return snapshot
}

// Reset forces the named breaker back to CLOSED. No-op if it was never
// created.
func (r *Registry) Reset(name string) {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		cb.Reset()
	}
}

// ResetAll forces every breaker back to CLOSED.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cb := range r.breakers {
		cb.Reset()
	}
}
