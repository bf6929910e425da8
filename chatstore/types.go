package chatstore

import (
	"context"
	"time"
)

// Conversation is a chat room between staff members, usually scoped to one
// booking or operational topic. Participants are unique identities; their
// order carries no meaning.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedBy    string    `json:"createdBy"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Message is one confirmed chat message. FileID and FileName are set when
// the message carries an attachment.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Text           string    `json:"text"`
	FileID         string    `json:"fileId,omitempty"`
	FileName       string    `json:"fileName,omitempty"`
	Edited         bool      `json:"edited"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// File is an uploaded attachment. Data is stored inline; attachments on this
// scale are screenshots and booking documents, not media libraries.
type File struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Data        []byte    `json:"-"`
	UploadedBy  string    `json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store defines the data access interface for conversations, messages, and
// attachments.
type Store interface {
	// Conversation operations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, cursor *time.Time, limit int) ([]*Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	// Message operations
	AppendMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
	UpdateMessageText(ctx context.Context, id string, text string) error
	DeleteMessage(ctx context.Context, id string) error
	LastMessage(ctx context.Context, conversationID string) (*Message, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)

	// File operations
	CreateFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, id string) (*File, error)
	DeleteFile(ctx context.Context, id string) error
}
