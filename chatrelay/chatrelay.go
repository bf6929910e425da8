// Package chatrelay is the server-side bus worker. It consumes the
// outbound chat subjects, persists through the chat service, and broadcasts
// confirmed frames on the per-conversation room subjects, echoing the
// client's correlation ID so optimistic sends reconcile exactly once.
package chatrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tourdesk/tourdesk/chatservice"
	"github.com/tourdesk/tourdesk/chatstore"
	"github.com/tourdesk/tourdesk/chatsync"
	"github.com/tourdesk/tourdesk/libbus"
	"github.com/tourdesk/tourdesk/libtracker"
)

// Broadcaster publishes confirmed mutations to conversation subscribers.
// The REST handlers use it so edits and deletes made over HTTP reach live
// sessions too.
type Broadcaster interface {
	BroadcastMessage(ctx context.Context, msg *chatstore.Message, correlationID string) error
	BroadcastEdit(ctx context.Context, msg *chatstore.Message) error
	BroadcastDelete(ctx context.Context, conversationID, messageID string) error
	BroadcastConversationDeleted(ctx context.Context, conversationID string) error
}

type Relay struct {
	service chatservice.Service
	bus     libbus.Messenger
	tracker libtracker.ActivityTracker
}

func New(service chatservice.Service, bus libbus.Messenger, tracker libtracker.ActivityTracker) *Relay {
	if tracker == nil {
		tracker = libtracker.NoopTracker{}
	}
	return &Relay{service: service, bus: bus, tracker: tracker}
}

// Serve consumes the chat subjects until ctx is done. Malformed or
// unprocessable frames are logged and dropped; the loop itself only stops
// with the context.
func (r *Relay) Serve(ctx context.Context) error {
	sendCh := make(chan []byte, 256)
	editCh := make(chan []byte, 256)
	deleteCh := make(chan []byte, 256)

	subs := make([]libbus.Subscription, 0, 3)
	for _, binding := range []struct {
		subject string
		ch      chan []byte
	}{
		{chatsync.SendSubject, sendCh},
		{chatsync.EditSubject, editCh},
		{chatsync.DeleteSubject, deleteCh},
	} {
		sub, err := r.bus.Stream(ctx, binding.subject, binding.ch)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return fmt.Errorf("subscribing to %s: %w", binding.subject, err)
		}
		subs = append(subs, sub)
	}
	defer func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()

	for {
		select {
		case data := <-sendCh:
			r.handleSend(ctx, data)
		case data := <-editCh:
			r.handleEdit(ctx, data)
		case data := <-deleteCh:
			r.handleDelete(ctx, data)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Relay) parse(ctx context.Context, data []byte) *chatsync.Frame {
	var frame chatsync.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		slog.WarnContext(ctx, "relay dropping malformed frame", "error", err)
		return nil
	}
	if frame.ConversationID == "" {
		slog.WarnContext(ctx, "relay dropping frame without conversation")
		return nil
	}
	return &frame
}

// handleSend persists a client send under a fresh server ID and an
// authoritative timestamp, then broadcasts the confirmation.
func (r *Relay) handleSend(ctx context.Context, data []byte) {
	frame := r.parse(ctx, data)
	if frame == nil {
		return
	}

	reportErr, _, end := r.tracker.Start(ctx, "relay-send", "message", "conversationID", frame.ConversationID)
	defer end()

	msg := &chatstore.Message{
		ID:             uuid.New().String(),
		ConversationID: frame.ConversationID,
		SenderID:       frame.SenderID,
		Text:           frame.Text,
		FileID:         frame.FileID,
		FileName:       frame.FileName,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.service.AppendMessage(ctx, msg); err != nil {
		reportErr(err)
		return
	}
	if err := r.BroadcastMessage(ctx, msg, frame.CorrelationID); err != nil {
		reportErr(err)
	}
}

func (r *Relay) handleEdit(ctx context.Context, data []byte) {
	frame := r.parse(ctx, data)
	if frame == nil || frame.ID == "" {
		return
	}

	reportErr, _, end := r.tracker.Start(ctx, "relay-edit", "message", "conversationID", frame.ConversationID, "messageID", frame.ID)
	defer end()

	updated, err := r.service.EditMessage(ctx, frame.ConversationID, frame.ID, frame.Text)
	if err != nil {
		reportErr(err)
		return
	}
	if err := r.BroadcastEdit(ctx, updated); err != nil {
		reportErr(err)
	}
}

func (r *Relay) handleDelete(ctx context.Context, data []byte) {
	frame := r.parse(ctx, data)
	if frame == nil || frame.ID == "" {
		return
	}

	reportErr, _, end := r.tracker.Start(ctx, "relay-delete", "message", "conversationID", frame.ConversationID, "messageID", frame.ID)
	defer end()

	if err := r.service.DeleteMessage(ctx, frame.ConversationID, frame.ID); err != nil {
		reportErr(err)
		return
	}
	if err := r.BroadcastDelete(ctx, frame.ConversationID, frame.ID); err != nil {
		reportErr(err)
	}
}

func (r *Relay) broadcast(ctx context.Context, frame *chatsync.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}
	if err := r.bus.Publish(ctx, chatsync.RoomSubject(frame.ConversationID), data); err != nil {
		return fmt.Errorf("broadcasting to %s: %w", frame.ConversationID, err)
	}
	return nil
}

func (r *Relay) BroadcastMessage(ctx context.Context, msg *chatstore.Message, correlationID string) error {
	return r.broadcast(ctx, &chatsync.Frame{
		Kind:           chatsync.KindMessage,
		ID:             msg.ID,
		CorrelationID:  correlationID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Text:           msg.Text,
		FileID:         msg.FileID,
		FileName:       msg.FileName,
		Edited:         msg.Edited,
		CreatedAt:      msg.CreatedAt,
	})
}

func (r *Relay) BroadcastEdit(ctx context.Context, msg *chatstore.Message) error {
	return r.broadcast(ctx, &chatsync.Frame{
		Kind:           chatsync.KindEdit,
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Text:           msg.Text,
		Edited:         true,
		CreatedAt:      msg.CreatedAt,
	})
}

func (r *Relay) BroadcastDelete(ctx context.Context, conversationID, messageID string) error {
	return r.broadcast(ctx, &chatsync.Frame{
		Kind:           chatsync.KindDelete,
		ID:             messageID,
		ConversationID: conversationID,
	})
}

func (r *Relay) BroadcastConversationDeleted(ctx context.Context, conversationID string) error {
	return r.broadcast(ctx, &chatsync.Frame{
		Kind:           chatsync.KindConversationDeleted,
		ConversationID: conversationID,
	})
}

var _ Broadcaster = (*Relay)(nil)
