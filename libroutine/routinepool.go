package libroutine

import (
	"context"
	"sync"
	"time"
)

// LoopConfig describes one managed loop.
type LoopConfig struct {
	Key          string
	Threshold    int
	ResetTimeout time.Duration
	Interval     time.Duration
	Operation    func(ctx context.Context) error
	ErrHandler   func(error)
}

// Group manages named supervised loops, one per key. Starting a loop under a
// key that already has one running is a no-op, so call sites can declare
// their loops idempotently.
type Group struct {
	mu       sync.Mutex
	managers map[string]*Routine
	active   map[string]bool
	triggers map[string]chan struct{}
}

var (
	groupInstance *Group
	groupOnce     sync.Once
)

// GetGroup returns the process-wide loop group.
func GetGroup() *Group {
	groupOnce.Do(func() {
		groupInstance = &Group{
			managers: make(map[string]*Routine),
			active:   make(map[string]bool),
			triggers: make(map[string]chan struct{}),
		}
	})
	return groupInstance
}

// StartLoop starts a supervised loop for cfg.Key unless one is already
// running. Circuit breaker parameters are fixed by the first call for a key.
func (g *Group) StartLoop(ctx context.Context, cfg *LoopConfig) {
	g.mu.Lock()
	manager, ok := g.managers[cfg.Key]
	if !ok {
		manager = NewRoutine(cfg.Threshold, cfg.ResetTimeout)
		g.managers[cfg.Key] = manager
		g.triggers[cfg.Key] = make(chan struct{}, 1)
	}
	if g.active[cfg.Key] {
		g.mu.Unlock()
		return
	}
	g.active[cfg.Key] = true
	trigger := g.triggers[cfg.Key]
	g.mu.Unlock()

	go func() {
		defer func() {
			g.mu.Lock()
			delete(g.active, cfg.Key)
			g.mu.Unlock()
		}()
		manager.Loop(ctx, cfg.Interval, trigger, cfg.Operation, cfg.ErrHandler)
	}()
}

// IsLoopActive reports whether a loop is running for the key.
func (g *Group) IsLoopActive(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[key]
}

// GetManager returns the circuit breaker for the key, or nil.
func (g *Group) GetManager(key string) *Routine {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.managers[key]
}

// ForceUpdate triggers an immediate run of the key's loop.
func (g *Group) ForceUpdate(key string) {
	g.mu.Lock()
	trigger := g.triggers[key]
	g.mu.Unlock()
	if trigger == nil {
		return
	}
	select {
	case trigger <- struct{}{}:
	default:
	}
}
