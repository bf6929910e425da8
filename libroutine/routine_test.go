package libroutine_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tourdesk/tourdesk/libroutine"
)

func TestUnit_ClosedCircuitExecutes(t *testing.T) {
	rm := libroutine.NewRoutine(3, time.Second)

	if !rm.Allow() {
		t.Error("expected Allow to return true in closed state")
	}
	if err := rm.Execute(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("expected Execute to succeed, got %v", err)
	}
	if rm.GetState() != libroutine.Closed {
		t.Errorf("expected Closed, got %v", rm.GetState())
	}
}

func TestUnit_CircuitOpensAfterThresholdFailures(t *testing.T) {
	rm := libroutine.NewRoutine(2, time.Second)

	for range 2 {
		_ = rm.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("boom")
		})
	}
	if rm.GetState() != libroutine.Open {
		t.Errorf("expected Open after threshold failures, got %v", rm.GetState())
	}
	err := rm.Execute(context.Background(), func(ctx context.Context) error {
		t.Error("function must not run while the circuit is open")
		return nil
	})
	if !errors.Is(err, libroutine.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestUnit_HalfOpenAdmitsSingleProbe(t *testing.T) {
	rm := libroutine.NewRoutine(1, 50*time.Millisecond)

	_ = rm.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})
	time.Sleep(60 * time.Millisecond)

	if rm.GetState() != libroutine.HalfOpen {
		t.Fatalf("expected HalfOpen after reset timeout, got %v", rm.GetState())
	}
	if !rm.Allow() {
		t.Error("expected the first half-open call to be admitted")
	}
	if rm.Allow() {
		t.Error("expected the second half-open call to be blocked while the probe is in flight")
	}
}

func TestUnit_HalfOpenProbeOutcome(t *testing.T) {
	t.Run("success closes the circuit", func(t *testing.T) {
		rm := libroutine.NewRoutine(1, 20*time.Millisecond)
		_ = rm.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("boom")
		})
		time.Sleep(30 * time.Millisecond)

		if err := rm.Execute(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("probe should have run, got %v", err)
		}
		if rm.GetState() != libroutine.Closed {
			t.Errorf("expected Closed after successful probe, got %v", rm.GetState())
		}
	})

	t.Run("failure reopens the circuit", func(t *testing.T) {
		rm := libroutine.NewRoutine(1, 20*time.Millisecond)
		_ = rm.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("boom")
		})
		time.Sleep(30 * time.Millisecond)

		_ = rm.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("still down")
		})
		if rm.GetState() != libroutine.Open {
			t.Errorf("expected Open after failed probe, got %v", rm.GetState())
		}
	})
}

func TestUnit_ForceOpenAndForceClose(t *testing.T) {
	rm := libroutine.NewRoutine(2, time.Minute)

	rm.ForceOpen()
	if rm.GetState() != libroutine.Open || rm.Allow() {
		t.Error("expected forced-open circuit to block calls")
	}
	rm.ForceClose()
	if rm.GetState() != libroutine.Closed || !rm.Allow() {
		t.Error("expected forced-closed circuit to admit calls")
	}
}

func TestUnit_ExecuteWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		rm := libroutine.NewRoutine(10, time.Minute)
		var calls int32
		err := rm.ExecuteWithRetry(context.Background(), time.Millisecond, 5, func(ctx context.Context) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("transient")
			}
			return nil
		})
		if err != nil {
			t.Errorf("expected success, got %v", err)
		}
		if got := atomic.LoadInt32(&calls); got != 3 {
			t.Errorf("expected 3 calls, got %d", got)
		}
	})

	t.Run("returns the last error when attempts run out", func(t *testing.T) {
		rm := libroutine.NewRoutine(10, time.Minute)
		persistent := errors.New("persistent")
		err := rm.ExecuteWithRetry(context.Background(), time.Millisecond, 3, func(ctx context.Context) error {
			return persistent
		})
		if !errors.Is(err, persistent) {
			t.Errorf("expected persistent error, got %v", err)
		}
	})

	t.Run("stops immediately on an open circuit", func(t *testing.T) {
		rm := libroutine.NewRoutine(1, time.Minute)
		rm.ForceOpen()
		var calls int32
		err := rm.ExecuteWithRetry(context.Background(), time.Millisecond, 3, func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
		if !errors.Is(err, libroutine.ErrCircuitOpen) {
			t.Errorf("expected ErrCircuitOpen, got %v", err)
		}
		if atomic.LoadInt32(&calls) != 0 {
			t.Errorf("expected no calls, got %d", atomic.LoadInt32(&calls))
		}
	})

	t.Run("honors context cancellation between attempts", func(t *testing.T) {
		rm := libroutine.NewRoutine(10, time.Minute)
		ctx, cancel := context.WithCancel(context.Background())
		err := rm.ExecuteWithRetry(ctx, 100*time.Millisecond, 3, func(ctx context.Context) error {
			cancel()
			return errors.New("fail then cancel")
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestUnit_LoopRunsAndHonorsTrigger(t *testing.T) {
	rm := libroutine.NewRoutine(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger := make(chan struct{}, 1)
	executed := make(chan struct{}, 2)
	go rm.Loop(ctx, time.Minute, trigger, func(ctx context.Context) error {
		select {
		case executed <- struct{}{}:
		default:
		}
		return nil
	}, nil)

	select {
	case <-executed:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("initial loop run did not happen")
	}

	trigger <- struct{}{}
	select {
	case <-executed:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("trigger did not force a run")
	}
}

func TestUnit_LoopReportsErrors(t *testing.T) {
	rm := libroutine.NewRoutine(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 2)
	trigger := make(chan struct{}, 1)
	go rm.Loop(ctx, 10*time.Millisecond, trigger, func(ctx context.Context) error {
		return errors.New("loop failure")
	}, func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	select {
	case <-errCh:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("did not observe the initial failure")
	}

	// The circuit opened on the first failure; a trigger now reports
	// ErrCircuitOpen through the same callback.
	trigger <- struct{}{}
	select {
	case err := <-errCh:
		if !errors.Is(err, libroutine.ErrCircuitOpen) {
			t.Errorf("expected ErrCircuitOpen, got %v", err)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("did not observe the open-circuit error")
	}
}
