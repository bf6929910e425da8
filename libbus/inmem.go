package libbus

import (
	"context"
	"sync"
)

// InMem is a single-process Messenger. The chat engine's unit tests use it in
// place of NATS: Publish fans out to Stream subscribers synchronously and
// Request/Serve short-circuit to an in-process handler call.
type InMem struct {
	mu       sync.RWMutex
	closed   bool
	streams  map[string][]chan<- []byte
	handlers map[string]Handler
}

// NewInMem returns an empty in-memory Messenger.
func NewInMem() *InMem {
	return &InMem{
		streams:  make(map[string][]chan<- []byte),
		handlers: make(map[string]Handler),
	}
}

func (b *InMem) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrConnectionClosed
	}
	// Snapshot so the lock is not held while delivering.
	subs := make([]chan<- []byte, len(b.streams[subject]))
	copy(subs, b.streams[subject])
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *InMem) Stream(ctx context.Context, subject string, ch chan<- []byte) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	b.streams[subject] = append(b.streams[subject], ch)
	sub := &inmemStreamSub{subject: subject, ch: ch, bus: b}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return sub, nil
}

func (b *InMem) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrConnectionClosed
	}
	handler := b.handlers[subject]
	b.mu.RUnlock()

	if handler == nil {
		return nil, ErrRequestTimeout
	}
	return handler(ctx, data)
}

func (b *InMem) Serve(ctx context.Context, subject string, handler Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	b.handlers[subject] = handler
	b.mu.Unlock()

	sub := &inmemServeSub{subject: subject, bus: b}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return sub, nil
}

func (b *InMem) Close() error {
	b.mu.Lock()
	b.closed = true
	b.streams = make(map[string][]chan<- []byte)
	b.handlers = make(map[string]Handler)
	b.mu.Unlock()
	return nil
}

type inmemStreamSub struct {
	subject string
	ch      chan<- []byte
	bus     *InMem
}

func (s *inmemStreamSub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	subs := s.bus.streams[s.subject]
	for i, c := range subs {
		if c == s.ch {
			s.bus.streams[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

type inmemServeSub struct {
	subject string
	bus     *InMem
}

func (s *inmemServeSub) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.handlers, s.subject)
	s.bus.mu.Unlock()
	return nil
}

var _ Messenger = (*InMem)(nil)
