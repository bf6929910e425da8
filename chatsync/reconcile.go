package chatsync

import (
	"encoding/json"
	"fmt"

	"github.com/tourdesk/tourdesk/chatstore"
)

func marshalFrame(frame *Frame) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return data, nil
}

func parseFrame(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if frame.Kind == "" || frame.ConversationID == "" {
		return nil, fmt.Errorf("%w: missing kind or conversation", ErrMalformedPayload)
	}
	return &frame, nil
}

func frameToMessage(frame *Frame) *chatstore.Message {
	return &chatstore.Message{
		ID:             frame.ID,
		ConversationID: frame.ConversationID,
		SenderID:       frame.SenderID,
		Text:           frame.Text,
		FileID:         frame.FileID,
		FileName:       frame.FileName,
		Edited:         frame.Edited,
		CreatedAt:      frame.CreatedAt,
	}
}

// reconcileMessage lands a confirmed message frame in the timeline and
// retires the pending send it confirms, if any. The correlation ID is
// authoritative; the sender/content heuristic only catches frames from
// servers that did not echo one. Returns true when the timeline changed.
func (t *timeline) reconcileMessage(frame *Frame) bool {
	if p := t.pendingByCorrelation(frame.CorrelationID); p != nil {
		t.removePending(p.TempID)
	} else if p := t.oldestPendingMatch(frame.SenderID, frame.FileID, frame.Text); p != nil {
		t.removePending(p.TempID)
	}
	t.upsert(frameToMessage(frame))
	return true
}

// reconcileDelete removes the message a delete frame names. A correlated
// pending send is dropped too, covering deletes that raced the echo.
func (t *timeline) reconcileDelete(frame *Frame) bool {
	changed := t.remove(frame.ID)
	if p := t.pendingByCorrelation(frame.CorrelationID); p != nil {
		changed = t.removePending(p.TempID) || changed
	}
	return changed
}

func (t *timeline) reconcileEdit(frame *Frame) bool {
	if t.applyEdit(frame.ID, frame.Text) {
		return true
	}
	// Edit for a message we never saw: treat it as a late arrival.
	if frame.ID != "" {
		t.upsert(frameToMessage(frame))
		return true
	}
	return false
}
