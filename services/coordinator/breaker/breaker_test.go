// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errDependency = errors.New("dependency unavailable")

func failingCall() error { return errDependency }
func succeedingCall() error { return nil }

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := New("test", DefaultConfig())

	if cb.State() != StateClosed {
		t.Errorf("new breaker state = %v, want CLOSED", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 3, RecoveryTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		if err := cb.Execute(failingCall); !errors.Is(err, errDependency) {
			t.Fatalf("call %d: got %v, want dependency error", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("state after threshold failures = %v, want OPEN", cb.State())
	}

	// The fourth call must fail fast without touching the dependency.
	var touched atomic.Bool
	err := cb.Execute(func() error {
		touched.Store(true)
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("call while open: got %v, want ErrCircuitOpen", err)
	}
	if touched.Load() {
		t.Error("dependency was invoked while breaker was open")
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 3, RecoveryTimeout: time.Minute})

	_ = cb.Execute(failingCall)
	_ = cb.Execute(failingCall)
	_ = cb.Execute(succeedingCall)
	_ = cb.Execute(failingCall)
	_ = cb.Execute(failingCall)

	// Failures were never three in a row.
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want CLOSED (failures not consecutive)", cb.State())
	}
}

func TestCircuitBreaker_ProbeAfterRecoveryTimeout(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond})

	_ = cb.Execute(failingCall)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want OPEN", cb.State())
	}

	time.Sleep(30 * time.Millisecond)

	// Next call is the probe; its success closes the circuit.
	if err := cb.Execute(succeedingCall); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state after successful probe = %v, want CLOSED", cb.State())
	}

	counts := cb.Counts()
	if counts.Failures != 0 {
		t.Errorf("failures after recovery = %d, want 0", counts.Failures)
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond})

	_ = cb.Execute(failingCall)
	time.Sleep(30 * time.Millisecond)

	if err := cb.Execute(failingCall); !errors.Is(err, errDependency) {
		t.Fatalf("probe: got %v, want dependency error", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("state after failed probe = %v, want OPEN", cb.State())
	}

	// Timer restarted: an immediate call fails fast again.
	if err := cb.Execute(succeedingCall); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("call right after failed probe: got %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SingleProbeAdmitted(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	_ = cb.Execute(failingCall)
	time.Sleep(20 * time.Millisecond)

	var admitted atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	// First caller occupies the probe slot and blocks.
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute(func() error {
			admitted.Add(1)
			<-release
			return nil
		})
	}()

	// Give the probe time to start, then race more callers against it.
	time.Sleep(10 * time.Millisecond)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(func() error {
				admitted.Add(1)
				return nil
			})
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	if admitted.Load() != 1 {
		t.Errorf("admitted %d calls during probe window, want exactly 1", admitted.Load())
	}
}

func TestCircuitBreaker_TransitionCounters(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	_ = cb.Execute(failingCall) // -> OPEN
	time.Sleep(20 * time.Millisecond)
	_ = cb.Execute(succeedingCall) // probe -> CLOSED
	_ = cb.Execute(failingCall)    // -> OPEN again

	counts := cb.Counts()
	if counts.OpenTransitions != 2 {
		t.Errorf("open transitions = %d, want 2", counts.OpenTransitions)
	}
	if counts.CloseTransitions != 1 {
		t.Errorf("close transitions = %d, want 1", counts.CloseTransitions)
	}
}

func TestCircuitBreaker_OnStateChangeHook(t *testing.T) {
	transitions := make(chan [2]State, 4)
	cb := New("test", Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		OnStateChange: func(from, to State) {
			transitions <- [2]State{from, to}
		},
	})

	_ = cb.Execute(failingCall)

	select {
	case tr := <-transitions:
		if tr[0] != StateClosed || tr[1] != StateOpen {
			t.Errorf("transition = %v -> %v, want CLOSED -> OPEN", tr[0], tr[1])
		}
	case <-time.After(time.Second):
		t.Fatal("OnStateChange hook never fired")
	}
}

func TestCircuitBreaker_ExecuteContext_Timeout(t *testing.T) {
	cb := New("test", Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		CallTimeout:      10 * time.Millisecond,
	})

	err := cb.ExecuteContext(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}

	// A timeout is a failure; threshold 1 means the breaker is now open.
	if cb.State() != StateOpen {
		t.Errorf("state after timeout = %v, want OPEN", cb.State())
	}
}

func TestCircuitBreaker_ExecuteContext_CallerCancelNotCounted(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.ExecuteContext(ctx, func(ctx context.Context) error {
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want Canceled", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state after caller cancel = %v, want CLOSED", cb.State())
	}
}

func TestRegistry_GetCreatesOnce(t *testing.T) {
	r := NewRegistry(DefaultConfig())

	a := r.Get("weaviate:Document")
	b := r.Get("weaviate:Document")
	if a != b {
		t.Error("Get returned different breakers for the same name")
	}

	c := r.Get("embedding")
	if a == c {
		t.Error("Get returned the same breaker for different names")
	}
}

func TestRegistry_States(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	_ = r.Get("embedding").Execute(failingCall)
	_ = r.Get("weaviate:Document").Execute(succeedingCall)

	states := r.States()
	if len(states) != 2 {
		t.Fatalf("States() returned %d entries, want 2", len(states))
	}
	if states["embedding"].State != "OPEN" {
		t.Errorf("embedding state = %s, want OPEN", states["embedding"].State)
	}
	if states["weaviate:Document"].State != "CLOSED" {
		t.Errorf("weaviate:Document state = %s, want CLOSED", states["weaviate:Document"].State)
	}
}

func TestRegistry_StateChangeHookBindsName(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	names := make(chan string, 1)
	r.SetStateChangeHook(func(name string, from, to State) {
		names <- name
	})

	_ = r.Get("expansion").Execute(failingCall)

	select {
	case name := <-names:
		if name != "expansion" {
			t.Errorf("hook name = %q, want expansion", name)
		}
	case <-time.After(time.Second):
		t.Fatal("registry hook never fired")
	}
}

func TestRegistry_ResetAll(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	_ = r.Get("a").Execute(failingCall)
	_ = r.Get("b").Execute(failingCall)

	r.ResetAll()

	for name, counts := range r.States() {
		if counts.State != "CLOSED" {
			t.Errorf("%s state after ResetAll = %s, want CLOSED", name, counts.State)
		}
	}
}

func TestCircuitBreaker_ConcurrentExecute(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 50, RecoveryTimeout: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = cb.Execute(succeedingCall)
			} else {
				_ = cb.Execute(failingCall)
			}
		}(i)
	}
	wg.Wait()

	// No panic, and the state is one of the valid states.
	s := cb.State()
	if s != StateClosed && s != StateOpen && s != StateHalfOpen {
		t.Errorf("invalid state %v after concurrent use", s)
	}
}
