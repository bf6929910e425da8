package chatsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tourdesk/tourdesk/chatstore"
	"github.com/tourdesk/tourdesk/libbus"
)

// Session is the live view onto one conversation: its merged timeline and
// the operations that mutate it. Sessions are created through Engine.Open
// and are safe for concurrent use.
type Session struct {
	engine         *Engine
	conversationID string

	mu     sync.Mutex
	tl     *timeline
	sub    libbus.Subscription
	done   chan struct{}
	closed bool
}

// ConversationID returns the conversation this session is bound to.
func (s *Session) ConversationID() string {
	return s.conversationID
}

// Timeline returns the merged view of confirmed and pending messages in
// chronological order.
func (s *Session) Timeline() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl.snapshot()
}

// resubscribe binds the session to a (new) bus connection and reloads the
// history so messages missed during a gap are recovered. Pending sends
// survive the reload.
func (s *Session) resubscribe(ctx context.Context, bus libbus.Messenger) error {
	ch := make(chan []byte, 64)
	sub, err := bus.Stream(ctx, RoomSubject(s.conversationID), ch)
	if err != nil {
		return fmt.Errorf("subscribing to conversation %s: %w", s.conversationID, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = sub.Unsubscribe()
		return ErrSessionClosed
	}
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.done != nil {
		close(s.done)
	}
	s.sub = sub
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.dispatch(ch, done)

	history, err := s.engine.cfg.History(ctx, s.conversationID)
	if err != nil {
		slog.ErrorContext(ctx, "history reload failed", "conversation", s.conversationID, "error", err)
		return nil
	}
	s.mu.Lock()
	s.tl.setHistory(history)
	s.mu.Unlock()
	s.engine.notifyTimeline(s.conversationID)
	return nil
}

func (s *Session) dispatch(ch <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case data, ok := <-ch:
			if !ok {
				return
			}
			s.handleFrame(data)
		case <-done:
			return
		}
	}
}

func (s *Session) handleFrame(data []byte) {
	frame, err := parseFrame(data)
	if err != nil {
		slog.Warn("dropping malformed frame", "conversation", s.conversationID, "error", err)
		return
	}
	if frame.ConversationID != s.conversationID {
		return
	}

	if frame.Kind == KindConversationDeleted {
		s.Close()
		s.engine.notifyConversationDeleted(s.conversationID)
		return
	}

	s.mu.Lock()
	var changed bool
	var newest *chatstore.Message
	switch frame.Kind {
	case KindMessage:
		changed = s.tl.reconcileMessage(frame)
		if changed {
			newest = s.tl.newestConfirmed()
		}
	case KindEdit:
		changed = s.tl.reconcileEdit(frame)
	case KindDelete:
		changed = s.tl.reconcileDelete(frame)
	default:
		slog.Warn("dropping frame of unknown kind", "kind", frame.Kind)
	}
	s.mu.Unlock()

	if changed {
		s.engine.notifyTimeline(s.conversationID)
	}
	if newest != nil {
		s.engine.notifyLastMessage(s.conversationID, previewOf(newest), newest.CreatedAt)
	}
}

// previewOf is the one-line rendering of a message for conversation lists:
// the text, or the attachment name for file-only messages.
func previewOf(msg *chatstore.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.FileName
}

// Send publishes a text message. It returns the temp ID of the optimistic
// pending entry. When the engine is disconnected the entry is parked as
// failed and ErrNotConnected is returned alongside the temp ID, so the
// caller can offer a retry.
func (s *Session) Send(ctx context.Context, text string) (uint64, error) {
	return s.send(ctx, text, "", "")
}

// SendAttachment uploads data and publishes a message referencing it.
// caption may be empty.
func (s *Session) SendAttachment(ctx context.Context, name, contentType string, data []byte, caption string) (uint64, error) {
	if s.engine.cfg.Upload == nil {
		return 0, fmt.Errorf("%w: no uploader configured", ErrUploadFailed)
	}
	if len(data) == 0 {
		return 0, ErrEmptyContent
	}
	fileID, err := s.engine.cfg.Upload(ctx, name, contentType, data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	return s.send(ctx, caption, fileID, name)
}

func (s *Session) send(ctx context.Context, text, fileID, fileName string) (uint64, error) {
	if strings.TrimSpace(text) == "" && fileID == "" {
		return 0, ErrEmptyContent
	}

	reportErr, _, end := s.engine.tracker.Start(ctx, "send", "message", "conversationID", s.conversationID)
	defer end()

	now := s.engine.now().UTC()
	p := &PendingMessage{
		TempID:         s.engine.tempSeq.Add(1),
		CorrelationID:  uuid.New().String(),
		ConversationID: s.conversationID,
		SenderID:       s.engine.cfg.UserID,
		Text:           text,
		FileID:         fileID,
		FileName:       fileName,
		State:          StatePending,
		CreatedAt:      now,
		LastTriedAt:    now,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSessionClosed
	}
	s.tl.addPending(p)
	s.mu.Unlock()
	s.engine.notifyTimeline(s.conversationID)

	if err := s.publishPending(ctx, p, now); err != nil {
		reportErr(err)
		return p.TempID, err
	}
	return p.TempID, nil
}

// Retry republishes a failed send under its original correlation ID. If the
// server did receive the first attempt, the echo still reconciles exactly
// one pending entry.
func (s *Session) Retry(ctx context.Context, tempID uint64) error {
	reportErr, _, end := s.engine.tracker.Start(ctx, "retry", "message", "conversationID", s.conversationID)
	defer end()

	now := s.engine.now().UTC()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	p := s.tl.pendingByTempID(tempID)
	if p == nil {
		s.mu.Unlock()
		return ErrUnknownPending
	}
	if p.State != StateFailed {
		s.mu.Unlock()
		return nil
	}
	p.State = StatePending
	p.LastTriedAt = now
	s.mu.Unlock()
	s.engine.notifyTimeline(s.conversationID)

	if err := s.publishPending(ctx, p, now); err != nil {
		reportErr(err)
		return err
	}
	return nil
}

// publishPending sends the frame for p and arms the confirmation timeout.
// On failure p is marked failed immediately.
func (s *Session) publishPending(ctx context.Context, p *PendingMessage, attempt time.Time) error {
	frame := &Frame{
		Kind:           KindMessage,
		CorrelationID:  p.CorrelationID,
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		Text:           p.Text,
		FileID:         p.FileID,
		FileName:       p.FileName,
		CreatedAt:      p.CreatedAt,
	}
	if err := s.engine.publish(ctx, SendSubject, frame); err != nil {
		s.failPending(p.TempID, attempt)
		return err
	}

	tempID := p.TempID
	time.AfterFunc(s.engine.timeout, func() {
		s.failPending(tempID, attempt)
	})
	return nil
}

// failPending marks the pending entry failed if it is still waiting on the
// attempt started at the given time. Later retries arm their own timeout.
func (s *Session) failPending(tempID uint64, attempt time.Time) {
	s.mu.Lock()
	p := s.tl.pendingByTempID(tempID)
	changed := p != nil && p.State == StatePending && p.LastTriedAt.Equal(attempt)
	if changed {
		p.State = StateFailed
	}
	s.mu.Unlock()
	if changed {
		s.engine.notifyTimeline(s.conversationID)
	}
}

// Discard drops a failed pending message without sending it.
func (s *Session) Discard(tempID uint64) error {
	s.mu.Lock()
	removed := s.tl.removePending(tempID)
	s.mu.Unlock()
	if !removed {
		return ErrUnknownPending
	}
	s.engine.notifyTimeline(s.conversationID)
	return nil
}

// Edit publishes a text rewrite for a confirmed message and applies it
// locally once the publish succeeded. The broadcast echo is idempotent.
func (s *Session) Edit(ctx context.Context, messageID, text string) error {
	if messageID == "" {
		return fmt.Errorf("%w: message id is required", ErrInvalidTarget)
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyContent
	}

	s.mu.Lock()
	known := s.tl.hasConfirmed(messageID)
	s.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: no confirmed message %q", ErrInvalidTarget, messageID)
	}

	reportErr, _, end := s.engine.tracker.Start(ctx, "edit", "message", "conversationID", s.conversationID, "messageID", messageID)
	defer end()

	frame := &Frame{
		Kind:           KindEdit,
		ID:             messageID,
		ConversationID: s.conversationID,
		SenderID:       s.engine.cfg.UserID,
		Text:           text,
	}
	if err := s.engine.publish(ctx, EditSubject, frame); err != nil {
		reportErr(err)
		return err
	}

	s.mu.Lock()
	changed := s.tl.applyEdit(messageID, text)
	s.mu.Unlock()
	if changed {
		s.engine.notifyTimeline(s.conversationID)
	}
	return nil
}

// Delete publishes a removal for a confirmed message and removes it locally
// once the publish succeeded.
func (s *Session) Delete(ctx context.Context, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("%w: message id is required", ErrInvalidTarget)
	}

	s.mu.Lock()
	known := s.tl.hasConfirmed(messageID)
	s.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: no confirmed message %q", ErrInvalidTarget, messageID)
	}

	reportErr, _, end := s.engine.tracker.Start(ctx, "delete", "message", "conversationID", s.conversationID, "messageID", messageID)
	defer end()

	frame := &Frame{
		Kind:           KindDelete,
		ID:             messageID,
		ConversationID: s.conversationID,
		SenderID:       s.engine.cfg.UserID,
	}
	if err := s.engine.publish(ctx, DeleteSubject, frame); err != nil {
		reportErr(err)
		return err
	}

	s.mu.Lock()
	changed := s.tl.remove(messageID)
	s.mu.Unlock()
	if changed {
		s.engine.notifyTimeline(s.conversationID)
	}
	return nil
}

// Close stops the subscription and discards pending sends. Closing twice is
// a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.tl.clearPending()
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, libbus.ErrConnectionClosed) {
			slog.Warn("unsubscribe failed", "conversation", s.conversationID, "error", err)
		}
	}
	s.engine.removeSession(s)
}
