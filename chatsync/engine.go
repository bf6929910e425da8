// Package chatsync is the client-side synchronization engine for live
// chat. It keeps a per-conversation timeline of confirmed messages merged
// with optimistic pending sends, reconciles server echoes against them,
// and supervises the bus connection so sessions survive reconnects.
package chatsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tourdesk/tourdesk/chatstore"
	"github.com/tourdesk/tourdesk/libbus"
	"github.com/tourdesk/tourdesk/libroutine"
	"github.com/tourdesk/tourdesk/libtracker"
)

// DefaultPendingTimeout is how long a send may stay unconfirmed before it
// is marked failed.
const DefaultPendingTimeout = 10 * time.Second

// HistoryFunc loads the confirmed history of a conversation, oldest first.
type HistoryFunc func(ctx context.Context, conversationID string) ([]*chatstore.Message, error)

// UploadFunc stores an attachment and returns its file ID.
type UploadFunc func(ctx context.Context, name, contentType string, data []byte) (string, error)

// Connector dials the message bus.
type Connector func(ctx context.Context) (libbus.Messenger, error)

// Handlers receive engine notifications. Both callbacks are invoked outside
// of internal locks and may call back into the engine.
type Handlers struct {
	// OnTimelineChanged fires whenever a conversation's merged timeline
	// changed and should be re-rendered.
	OnTimelineChanged func(conversationID string)
	// OnConversationDeleted fires when a conversation was removed remotely.
	// The session is already closed when it runs.
	OnConversationDeleted func(conversationID string)
	// OnLastMessageUpdate fires after a confirmed message landed in the
	// timeline, carrying the newest message's preview text (or attachment
	// name) and server timestamp. Conversation list panes hang off this.
	OnLastMessageUpdate func(conversationID, preview string, at time.Time)
}

// Config configures an Engine.
type Config struct {
	// UserID is the identity all sends are attributed to.
	UserID string
	// Connect dials the bus. It is retried under circuit-breaker
	// supervision by Run.
	Connect Connector
	// History loads confirmed messages when a session opens or
	// resubscribes.
	History HistoryFunc
	// Upload stores attachments before they are referenced by a send.
	// Optional; attachment sends fail without it.
	Upload UploadFunc
	// Handlers receive change notifications. Optional.
	Handlers Handlers
	// PendingTimeout overrides DefaultPendingTimeout when positive.
	PendingTimeout time.Duration
	// Tracker observes engine operations. Defaults to a no-op.
	Tracker libtracker.ActivityTracker
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Engine owns the bus connection and the open sessions.
type Engine struct {
	cfg     Config
	tracker libtracker.ActivityTracker
	now     func() time.Time
	timeout time.Duration

	tempSeq atomic.Uint64

	mu          sync.Mutex
	bus         libbus.Messenger
	connectedCh chan struct{}
	sessions    map[string]*Session

	reconnect chan struct{}
}

// New validates cfg and creates an engine. The engine is disconnected
// until Run establishes the bus connection.
func New(cfg Config) (*Engine, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidTarget)
	}
	if cfg.Connect == nil {
		return nil, errors.New("chatsync: connector is required")
	}
	if cfg.History == nil {
		return nil, errors.New("chatsync: history loader is required")
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = libtracker.NoopTracker{}
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	timeout := cfg.PendingTimeout
	if timeout <= 0 {
		timeout = DefaultPendingTimeout
	}
	return &Engine{
		cfg:         cfg,
		tracker:     tracker,
		now:         now,
		timeout:     timeout,
		connectedCh: make(chan struct{}),
		sessions:    make(map[string]*Session),
		reconnect:   make(chan struct{}, 1),
	}, nil
}

// Run supervises the bus connection until ctx is done. Connection attempts
// run under a circuit breaker; a lost connection triggers an immediate
// retry through the reconnect signal instead of waiting a full interval.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	routine := libroutine.NewRoutine(3, interval*4)
	routine.Loop(ctx, interval, e.reconnect, e.ensureConnected, func(err error) {
		if err != nil && !errors.Is(err, libroutine.ErrCircuitOpen) {
			slog.ErrorContext(ctx, "chat bus connection attempt failed", "error", err)
		}
	})
}

// ensureConnected dials the bus if needed and resubscribes every open
// session.
func (e *Engine) ensureConnected(ctx context.Context) error {
	e.mu.Lock()
	if e.bus != nil {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	reportErr, _, end := e.tracker.Start(ctx, "connect", "chat-bus")
	defer end()

	bus, err := e.cfg.Connect(ctx)
	if err != nil {
		reportErr(err)
		return fmt.Errorf("dialing chat bus: %w", err)
	}

	e.mu.Lock()
	e.bus = bus
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	close(e.connectedCh)
	e.mu.Unlock()

	for _, s := range sessions {
		if err := s.resubscribe(ctx, bus); err != nil {
			reportErr(err)
			slog.ErrorContext(ctx, "resubscribe failed", "conversation", s.conversationID, "error", err)
		}
	}
	return nil
}

// markDisconnected drops the bus handle and schedules a reconnect. Safe to
// call repeatedly.
func (e *Engine) markDisconnected() {
	e.mu.Lock()
	if e.bus != nil {
		e.bus = nil
		e.connectedCh = make(chan struct{})
	}
	e.mu.Unlock()
	select {
	case e.reconnect <- struct{}{}:
	default:
	}
}

// Connected reports whether the engine currently holds a bus connection.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bus != nil
}

// WaitConnected blocks until the engine is connected or ctx is done.
func (e *Engine) WaitConnected(ctx context.Context) error {
	e.mu.Lock()
	ch := e.connectedCh
	connected := e.bus != nil
	e.mu.Unlock()
	if connected {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNotConnected, ctx.Err())
	}
}

func (e *Engine) currentBus() libbus.Messenger {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bus
}

// publish sends a frame on the given subject. A closed connection flips
// the engine into reconnecting state.
func (e *Engine) publish(ctx context.Context, subject string, frame *Frame) error {
	bus := e.currentBus()
	if bus == nil {
		return ErrNotConnected
	}
	data, err := marshalFrame(frame)
	if err != nil {
		return err
	}
	if err := bus.Publish(ctx, subject, data); err != nil {
		if errors.Is(err, libbus.ErrConnectionClosed) {
			e.markDisconnected()
			return fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
		return fmt.Errorf("publishing %s: %w", subject, err)
	}
	return nil
}

// Open loads the conversation history and starts a live session for it.
// Opening a conversation that already has a session closes the old one
// first, discarding its pending sends.
func (e *Engine) Open(ctx context.Context, conversationID string) (*Session, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrInvalidTarget)
	}

	reportErr, _, end := e.tracker.Start(ctx, "open", "conversation", "conversationID", conversationID)
	defer end()

	history, err := e.cfg.History(ctx, conversationID)
	if err != nil {
		reportErr(err)
		return nil, fmt.Errorf("loading history: %w", err)
	}

	e.mu.Lock()
	if old := e.sessions[conversationID]; old != nil {
		e.mu.Unlock()
		old.Close()
		e.mu.Lock()
	}
	s := &Session{
		engine:         e,
		conversationID: conversationID,
		tl:             newTimeline(),
	}
	s.tl.setHistory(history)
	e.sessions[conversationID] = s
	bus := e.bus
	e.mu.Unlock()

	if bus != nil {
		if err := s.resubscribe(ctx, bus); err != nil {
			reportErr(err)
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (e *Engine) removeSession(s *Session) {
	e.mu.Lock()
	if e.sessions[s.conversationID] == s {
		delete(e.sessions, s.conversationID)
	}
	e.mu.Unlock()
}

// Close shuts down all sessions and the bus connection.
func (e *Engine) Close() error {
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	bus := e.bus
	e.bus = nil
	e.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if bus != nil {
		return bus.Close()
	}
	return nil
}

func (e *Engine) notifyTimeline(conversationID string) {
	if e.cfg.Handlers.OnTimelineChanged != nil {
		e.cfg.Handlers.OnTimelineChanged(conversationID)
	}
}

func (e *Engine) notifyLastMessage(conversationID, preview string, at time.Time) {
	if e.cfg.Handlers.OnLastMessageUpdate != nil {
		e.cfg.Handlers.OnLastMessageUpdate(conversationID, preview, at)
	}
}

func (e *Engine) notifyConversationDeleted(conversationID string) {
	if e.cfg.Handlers.OnConversationDeleted != nil {
		e.cfg.Handlers.OnConversationDeleted(conversationID)
	}
}
