package chatsync

import (
	"time"
)

// Kind discriminates the frame types exchanged over the bus.
type Kind string

const (
	// KindMessage carries a new chat message.
	KindMessage Kind = "message"
	// KindEdit carries a text rewrite of an existing message.
	KindEdit Kind = "edit"
	// KindDelete announces that a message was removed.
	KindDelete Kind = "delete"
	// KindConversationDeleted announces that the whole conversation is gone.
	KindConversationDeleted Kind = "conversation_deleted"
)

// Bus subjects. Clients publish outbound frames on the chat.* subjects; the
// relay broadcasts confirmed frames on the per-conversation room subject.
const (
	SendSubject   = "chat.send"
	EditSubject   = "chat.edit"
	DeleteSubject = "chat.delete"
)

// RoomSubject is the broadcast subject for one conversation.
func RoomSubject(conversationID string) string {
	return "chat.room." + conversationID
}

// Frame is the wire format shared by clients and the relay. Confirmed
// frames echo the CorrelationID of the client send they resulted from.
type Frame struct {
	Kind           Kind      `json:"kind"`
	ID             string    `json:"id,omitempty"`
	CorrelationID  string    `json:"correlationId,omitempty"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId,omitempty"`
	Text           string    `json:"text,omitempty"`
	FileID         string    `json:"fileId,omitempty"`
	FileName       string    `json:"fileName,omitempty"`
	Edited         bool      `json:"edited,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}

// PendingState tracks an optimistic message that has not been confirmed.
type PendingState string

const (
	// StatePending means the send is in flight.
	StatePending PendingState = "pending"
	// StateFailed means the send errored or timed out and can be retried.
	StateFailed PendingState = "failed"
)

// PendingMessage is a locally rendered message awaiting its server echo.
type PendingMessage struct {
	TempID         uint64
	CorrelationID  string
	ConversationID string
	SenderID       string
	Text           string
	FileID         string
	FileName       string
	State          PendingState
	CreatedAt      time.Time
	LastTriedAt    time.Time
}

// Entry is one row of the merged timeline: either a confirmed message or a
// pending one.
type Entry struct {
	// ID is the server message ID; empty for pending entries.
	ID string
	// TempID identifies pending entries; zero for confirmed ones.
	TempID    uint64
	Pending   bool
	Failed    bool
	SenderID  string
	Text      string
	FileID    string
	FileName  string
	Edited    bool
	CreatedAt time.Time
}
