// Package libroutine provides circuit-breaker guarded execution and
// supervised background loops. The chat connection supervisor uses it to
// reconnect and resubscribe with backoff after transport drops.
package libroutine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Routine is a circuit breaker around a recurring operation. After
// `threshold` consecutive failures the circuit opens; after `resetTimeout`
// it lets one probe call through (half-open) and closes again on success.
type Routine struct {
	mu           sync.Mutex
	state        State
	failures     int
	threshold    int
	resetTimeout time.Duration
	openedAt     time.Time
	probing      bool
}

// NewRoutine creates a circuit breaker with the given failure threshold and
// reset timeout.
func NewRoutine(threshold int, resetTimeout time.Duration) *Routine {
	if threshold < 1 {
		threshold = 1
	}
	return &Routine{threshold: threshold, resetTimeout: resetTimeout}
}

// refreshLocked moves Open to HalfOpen once the reset timeout elapsed.
// Callers must hold r.mu.
func (r *Routine) refreshLocked() {
	if r.state == Open && time.Since(r.openedAt) >= r.resetTimeout {
		r.state = HalfOpen
		r.probing = false
	}
}

// Allow reports whether a call may proceed. In the half-open state only one
// probe call is admitted at a time.
func (r *Routine) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshLocked()

	switch r.state {
	case Closed:
		return true
	case HalfOpen:
		if r.probing {
			return false
		}
		r.probing = true
		return true
	default:
		return false
	}
}

// MarkSuccess records a successful call and closes the circuit.
func (r *Routine) MarkSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = 0
	r.state = Closed
	r.probing = false
}

// MarkFailure records a failed call, opening the circuit when the threshold
// is reached or a half-open probe fails.
func (r *Routine) MarkFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
	if r.state == HalfOpen || r.failures >= r.threshold {
		r.state = Open
		r.openedAt = time.Now()
		r.probing = false
		r.failures = 0
	}
}

// Execute runs fn under the circuit breaker.
func (r *Routine) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !r.Allow() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	if err != nil {
		r.MarkFailure()
		return err
	}
	r.MarkSuccess()
	return nil
}

// ExecuteWithRetry runs fn up to `attempts` times, sleeping `interval`
// between tries. An open circuit or a canceled context stops retrying.
func (r *Routine) ExecuteWithRetry(ctx context.Context, interval time.Duration, attempts int, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := r.Execute(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			return err
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return lastErr
}

// Loop runs fn on the given interval until ctx is done. A send on
// triggerChan forces an immediate run. Every error, including ErrCircuitOpen,
// is handed to errCb.
func (r *Routine) Loop(ctx context.Context, interval time.Duration, triggerChan chan struct{}, fn func(ctx context.Context) error, errCb func(error)) {
	run := func() {
		if err := r.Execute(ctx, fn); err != nil {
			log.Printf("libroutine: loop execution failed: %v", err)
			if errCb != nil {
				errCb(err)
			}
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		case <-triggerChan:
			run()
		}
	}
}

// GetState returns the current state, accounting for an elapsed reset
// timeout.
func (r *Routine) GetState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshLocked()
	return r.state
}

// ForceOpen opens the circuit regardless of the failure count.
func (r *Routine) ForceOpen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Open
	r.openedAt = time.Now()
	r.probing = false
}

// ForceClose closes the circuit and clears the failure count.
func (r *Routine) ForceClose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Closed
	r.failures = 0
	r.probing = false
}

// GetThreshold returns the configured failure threshold.
func (r *Routine) GetThreshold() int {
	return r.threshold
}

// GetResetTimeout returns the configured reset timeout.
func (r *Routine) GetResetTimeout() time.Duration {
	return r.resetTimeout
}
