package libroutine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tourdesk/tourdesk/libroutine"
)

func TestUnit_GroupSingleton(t *testing.T) {
	if libroutine.GetGroup() != libroutine.GetGroup() {
		t.Error("expected GetGroup to return the same instance")
	}
}

func TestUnit_GroupStartLoop(t *testing.T) {
	group := libroutine.GetGroup()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var calls int
	group.StartLoop(ctx, &libroutine.LoopConfig{
		Key:          "pool-start",
		Threshold:    2,
		ResetTimeout: 100 * time.Millisecond,
		Interval:     10 * time.Millisecond,
		Operation: func(ctx context.Context) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return nil
		},
	})

	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	if calls < 1 {
		t.Errorf("expected at least one run, got %d", calls)
	}
	mu.Unlock()

	if !group.IsLoopActive("pool-start") {
		t.Error("loop should be tracked as active")
	}
}

func TestUnit_GroupRefusesDuplicateLoops(t *testing.T) {
	group := libroutine.GetGroup()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var calls int
	cfg := &libroutine.LoopConfig{
		Key:          "pool-duplicate",
		Threshold:    1,
		ResetTimeout: time.Second,
		Interval:     10 * time.Millisecond,
		Operation: func(ctx context.Context) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return nil
		},
	}
	group.StartLoop(ctx, cfg)
	group.StartLoop(ctx, cfg)

	time.Sleep(25 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls < 1 {
		t.Errorf("expected at least one run, got %d", calls)
	}
	if calls > 4 {
		t.Errorf("call count %d suggests a duplicate loop is running", calls)
	}
}

func TestUnit_GroupCleansUpOnCancel(t *testing.T) {
	group := libroutine.GetGroup()
	ctx, cancel := context.WithCancel(context.Background())

	group.StartLoop(ctx, &libroutine.LoopConfig{
		Key:          "pool-cleanup",
		Threshold:    1,
		ResetTimeout: time.Second,
		Interval:     10 * time.Millisecond,
		Operation:    func(ctx context.Context) error { return nil },
	})

	time.Sleep(10 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	if group.IsLoopActive("pool-cleanup") {
		t.Error("loop should be removed from active tracking after cancellation")
	}
}

func TestUnit_GroupKeepsInitialParameters(t *testing.T) {
	group := libroutine.GetGroup()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group.StartLoop(ctx, &libroutine.LoopConfig{
		Key:          "pool-params",
		Threshold:    2,
		ResetTimeout: 100 * time.Millisecond,
		Interval:     10 * time.Millisecond,
		Operation:    func(ctx context.Context) error { return nil },
	})
	group.StartLoop(ctx, &libroutine.LoopConfig{
		Key:          "pool-params",
		Threshold:    5,
		ResetTimeout: 200 * time.Millisecond,
		Interval:     20 * time.Millisecond,
		Operation:    func(ctx context.Context) error { return nil },
	})

	manager := group.GetManager("pool-params")
	if manager == nil {
		t.Fatal("manager not created")
	}
	if manager.GetThreshold() != 2 {
		t.Errorf("expected threshold 2, got %d", manager.GetThreshold())
	}
	if manager.GetResetTimeout() != 100*time.Millisecond {
		t.Errorf("expected reset timeout 100ms, got %v", manager.GetResetTimeout())
	}
}

func TestUnit_GroupForceUpdateTriggersRun(t *testing.T) {
	group := libroutine.GetGroup()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	executed := make(chan struct{}, 2)
	group.StartLoop(ctx, &libroutine.LoopConfig{
		Key:          "pool-force",
		Threshold:    1,
		ResetTimeout: time.Second,
		Interval:     time.Minute,
		Operation: func(ctx context.Context) error {
			select {
			case executed <- struct{}{}:
			default:
			}
			return nil
		},
	})

	select {
	case <-executed:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("initial run did not happen")
	}

	group.ForceUpdate("pool-force")
	select {
	case <-executed:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("ForceUpdate did not trigger a run")
	}
}
