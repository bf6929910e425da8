// Package libbus wraps the message bus that carries chat traffic between
// clients and the relay. One Messenger exists per process; conversation
// topics, send destinations, and request-reply endpoints all go through it.
package libbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrRequestTimeout   = errors.New("request timed out")
)

// Handler processes a request payload and returns the reply payload.
type Handler func(ctx context.Context, data []byte) ([]byte, error)

// Subscription is a handle on an active stream or serve binding.
type Subscription interface {
	Unsubscribe() error
}

// Messenger is the bus contract the rest of the system depends on.
// Publish is fire-and-forget fan-out, Stream is a channel-backed
// subscription, Request/Serve form the request-reply side.
type Messenger interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Stream(ctx context.Context, subject string, ch chan<- []byte) (Subscription, error)
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	Serve(ctx context.Context, subject string, handler Handler) (Subscription, error)
	Close() error
}

// Config holds the NATS connection settings.
type Config struct {
	NATSURL      string
	NATSUser     string
	NATSPassword string
}

type pubsub struct {
	nc *nats.Conn

	mu     sync.RWMutex
	closed bool
}

// NewPubSub connects to NATS and returns a Messenger bound to that
// connection. The connection is verified before returning.
func NewPubSub(ctx context.Context, cfg *Config) (Messenger, error) {
	if cfg == nil || cfg.NATSURL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	if cfg.NATSUser != "" {
		opts = append(opts, nats.UserInfo(cfg.NATSUser, cfg.NATSPassword))
	}
	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	if err := nc.FlushWithContext(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats handshake failed: %w", err)
	}
	return &pubsub{nc: nc}, nil
}

func (p *pubsub) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *pubsub) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.isClosed() {
		return ErrConnectionClosed
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return translateNATSError(err)
	}
	return nil
}

func (p *pubsub) Stream(ctx context.Context, subject string, ch chan<- []byte) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.isClosed() {
		return nil, ErrConnectionClosed
	}
	sub, err := p.nc.Subscribe(subject, func(msg *nats.Msg) {
		select {
		case ch <- msg.Data:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, translateNATSError(err)
	}
	wrapped := &natsSubscription{sub: sub}
	go func() {
		<-ctx.Done()
		_ = wrapped.Unsubscribe()
	}()
	return wrapped, nil
}

func (p *pubsub) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.isClosed() {
		return nil, ErrConnectionClosed
	}
	msg, err := p.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrRequestTimeout
		}
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, translateNATSError(err)
	}
	return msg.Data, nil
}

func (p *pubsub) Serve(ctx context.Context, subject string, handler Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.isClosed() {
		return nil, ErrConnectionClosed
	}
	sub, err := p.nc.Subscribe(subject, func(msg *nats.Msg) {
		reply := invokeHandler(ctx, handler, msg.Data)
		_ = msg.Respond(reply)
	})
	if err != nil {
		return nil, translateNATSError(err)
	}
	wrapped := &natsSubscription{sub: sub}
	go func() {
		<-ctx.Done()
		_ = wrapped.Unsubscribe()
	}()
	return wrapped, nil
}

// invokeHandler shields the subscription callback from handler panics so a
// single bad request cannot take the dispatcher down.
func invokeHandler(ctx context.Context, handler Handler, data []byte) (reply []byte) {
	defer func() {
		if r := recover(); r != nil {
			reply = fmt.Appendf(nil, "error: handler panic: %v", r)
		}
	}()
	out, err := handler(ctx, data)
	if err != nil {
		return fmt.Appendf(nil, "error: %s", err)
	}
	return out
}

func (p *pubsub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.nc.Close()
	return nil
}

func translateNATSError(err error) error {
	if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrConnectionDraining) {
		return ErrConnectionClosed
	}
	return err
}

type natsSubscription struct {
	sub  *nats.Subscription
	once sync.Once
	err  error
}

func (s *natsSubscription) Unsubscribe() error {
	s.once.Do(func() {
		if s.sub.IsValid() {
			s.err = s.sub.Unsubscribe()
		}
	})
	return s.err
}

var _ Messenger = (*pubsub)(nil)
