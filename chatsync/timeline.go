package chatsync

import (
	"sort"

	"github.com/tourdesk/tourdesk/chatstore"
)

// timeline holds the confirmed history of one conversation plus the locally
// pending sends. It is not safe for concurrent use; the owning session
// serializes access.
type timeline struct {
	confirmed []*chatstore.Message
	pending   []*PendingMessage
}

func newTimeline() *timeline {
	return &timeline{}
}

// setHistory replaces the confirmed messages, e.g. after (re)loading the
// conversation.
func (t *timeline) setHistory(msgs []*chatstore.Message) {
	t.confirmed = make([]*chatstore.Message, len(msgs))
	copy(t.confirmed, msgs)
	sort.SliceStable(t.confirmed, func(i, j int) bool {
		if !t.confirmed[i].CreatedAt.Equal(t.confirmed[j].CreatedAt) {
			return t.confirmed[i].CreatedAt.Before(t.confirmed[j].CreatedAt)
		}
		return t.confirmed[i].ID < t.confirmed[j].ID
	})
}

// upsert inserts a confirmed message in chronological position. A message
// with a known ID replaces the stored one in place, so replays and
// duplicate broadcasts stay idempotent.
func (t *timeline) upsert(msg *chatstore.Message) {
	for i, existing := range t.confirmed {
		if existing.ID == msg.ID {
			t.confirmed[i] = msg
			return
		}
	}
	idx := sort.Search(len(t.confirmed), func(i int) bool {
		if !t.confirmed[i].CreatedAt.Equal(msg.CreatedAt) {
			return t.confirmed[i].CreatedAt.After(msg.CreatedAt)
		}
		return t.confirmed[i].ID > msg.ID
	})
	t.confirmed = append(t.confirmed, nil)
	copy(t.confirmed[idx+1:], t.confirmed[idx:])
	t.confirmed[idx] = msg
}

func (t *timeline) hasConfirmed(id string) bool {
	for _, existing := range t.confirmed {
		if existing.ID == id {
			return true
		}
	}
	return false
}

// newestConfirmed returns the chronologically last confirmed message, or nil
// when none exist. The confirmed slice is kept sorted.
func (t *timeline) newestConfirmed() *chatstore.Message {
	if len(t.confirmed) == 0 {
		return nil
	}
	return t.confirmed[len(t.confirmed)-1]
}

func (t *timeline) remove(id string) bool {
	for i, existing := range t.confirmed {
		if existing.ID == id {
			t.confirmed = append(t.confirmed[:i], t.confirmed[i+1:]...)
			return true
		}
	}
	return false
}

func (t *timeline) applyEdit(id, text string) bool {
	for i, existing := range t.confirmed {
		if existing.ID == id {
			updated := *existing
			updated.Text = text
			updated.Edited = true
			t.confirmed[i] = &updated
			return true
		}
	}
	return false
}

func (t *timeline) addPending(p *PendingMessage) {
	t.pending = append(t.pending, p)
}

func (t *timeline) pendingByCorrelation(correlationID string) *PendingMessage {
	if correlationID == "" {
		return nil
	}
	for _, p := range t.pending {
		if p.CorrelationID == correlationID {
			return p
		}
	}
	return nil
}

func (t *timeline) pendingByTempID(tempID uint64) *PendingMessage {
	for _, p := range t.pending {
		if p.TempID == tempID {
			return p
		}
	}
	return nil
}

// oldestPendingMatch finds the first-in pending message from the same
// sender carrying the same attachment or the same text. Pending sends are
// kept in insertion order, so the scan is FIFO.
func (t *timeline) oldestPendingMatch(senderID, fileID, text string) *PendingMessage {
	for _, p := range t.pending {
		if p.SenderID != senderID {
			continue
		}
		if fileID != "" && p.FileID == fileID {
			return p
		}
		if fileID == "" && p.FileID == "" && p.Text == text {
			return p
		}
	}
	return nil
}

func (t *timeline) removePending(tempID uint64) bool {
	for i, p := range t.pending {
		if p.TempID == tempID {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (t *timeline) clearPending() {
	t.pending = nil
}

// snapshot merges confirmed and pending into one chronological view.
// Pending entries sort after confirmed ones with the same timestamp.
func (t *timeline) snapshot() []Entry {
	entries := make([]Entry, 0, len(t.confirmed)+len(t.pending))
	for _, msg := range t.confirmed {
		entries = append(entries, Entry{
			ID:        msg.ID,
			SenderID:  msg.SenderID,
			Text:      msg.Text,
			FileID:    msg.FileID,
			FileName:  msg.FileName,
			Edited:    msg.Edited,
			CreatedAt: msg.CreatedAt,
		})
	}
	for _, p := range t.pending {
		entries = append(entries, Entry{
			TempID:    p.TempID,
			Pending:   true,
			Failed:    p.State == StateFailed,
			SenderID:  p.SenderID,
			Text:      p.Text,
			FileID:    p.FileID,
			FileName:  p.FileName,
			CreatedAt: p.CreatedAt,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return !entries[i].Pending && entries[j].Pending
	})
	return entries
}
