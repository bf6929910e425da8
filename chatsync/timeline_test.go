package chatsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tourdesk/tourdesk/chatstore"
)

func TestUnit_TimelineUpsertKeepsChronologicalOrder(t *testing.T) {
	tl := newTimeline()
	base := time.Now().UTC()

	tl.upsert(&chatstore.Message{ID: "b", CreatedAt: base.Add(2 * time.Second)})
	tl.upsert(&chatstore.Message{ID: "a", CreatedAt: base})
	tl.upsert(&chatstore.Message{ID: "c", CreatedAt: base.Add(time.Second)})

	entries := tl.snapshot()
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "c", entries[1].ID)
	assert.Equal(t, "b", entries[2].ID)
}

func TestUnit_TimelineHeuristicIsFIFO(t *testing.T) {
	tl := newTimeline()
	base := time.Now().UTC()

	tl.addPending(&PendingMessage{TempID: 1, SenderID: "alice", Text: "hi", CreatedAt: base})
	tl.addPending(&PendingMessage{TempID: 2, SenderID: "alice", Text: "hi", CreatedAt: base.Add(time.Second)})

	p := tl.oldestPendingMatch("alice", "", "hi")
	assert.Equal(t, uint64(1), p.TempID)

	tl.removePending(1)
	p = tl.oldestPendingMatch("alice", "", "hi")
	assert.Equal(t, uint64(2), p.TempID)
}

func TestUnit_TimelineFileMatchBeatsTextMismatch(t *testing.T) {
	tl := newTimeline()

	tl.addPending(&PendingMessage{TempID: 1, SenderID: "alice", Text: "caption", FileID: "f1"})

	// Server may rewrite the caption; the file ID still identifies the send.
	p := tl.oldestPendingMatch("alice", "f1", "different caption")
	assert.NotNil(t, p)
	assert.Equal(t, uint64(1), p.TempID)

	// A text-only frame never matches a pending attachment.
	p = tl.oldestPendingMatch("alice", "", "caption")
	assert.Nil(t, p)
}

func TestUnit_TimelineEditOnUnknownMessageInsertsIt(t *testing.T) {
	tl := newTimeline()

	changed := tl.reconcileEdit(&Frame{Kind: KindEdit, ID: "m1", ConversationID: "c", Text: "late", Edited: true, CreatedAt: time.Now().UTC()})
	assert.True(t, changed)

	entries := tl.snapshot()
	assert.Len(t, entries, 1)
	assert.Equal(t, "late", entries[0].Text)
}

func TestUnit_TimelineDeleteUnknownIsNoop(t *testing.T) {
	tl := newTimeline()
	changed := tl.reconcileDelete(&Frame{Kind: KindDelete, ID: "ghost", ConversationID: "c"})
	assert.False(t, changed)
}
