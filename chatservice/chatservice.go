// Package chatservice is the persistence-facing service for conversations,
// messages, and attachments. It also maintains the conversation preview
// cache that the conversation list is rendered from.
package chatservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/tourdesk/tourdesk/chatstore"
	libdb "github.com/tourdesk/tourdesk/libdbexec"
	libkv "github.com/tourdesk/tourdesk/libkvstore"
)

var (
	ErrInvalidConversation = errors.New("invalid conversation data")
	ErrInvalidMessage      = errors.New("invalid message data")
	ErrInvalidFile         = errors.New("invalid file data")
)

// PreviewTTL bounds how long a conversation preview survives in the cache
// without being refreshed.
const PreviewTTL = 7 * 24 * time.Hour

// Preview is the cached last-message summary shown in conversation lists.
type Preview struct {
	MessageID string    `json:"messageId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	FileName  string    `json:"fileName,omitempty"`
	Edited    bool      `json:"edited"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConversationSummary is a conversation plus its preview, as served to
// listings.
type ConversationSummary struct {
	Conversation *chatstore.Conversation `json:"conversation"`
	LastMessage  *Preview                `json:"lastMessage,omitempty"`
}

type Service interface {
	CreateConversation(ctx context.Context, conv *chatstore.Conversation) error
	GetConversation(ctx context.Context, id string) (*chatstore.Conversation, error)
	ListConversations(ctx context.Context, updatedAtCursor *time.Time, limit int) ([]ConversationSummary, error)
	DeleteConversation(ctx context.Context, id string) error

	ListMessages(ctx context.Context, conversationID string) ([]*chatstore.Message, error)
	AppendMessage(ctx context.Context, msg *chatstore.Message) error
	EditMessage(ctx context.Context, conversationID, messageID, text string) (*chatstore.Message, error)
	DeleteMessage(ctx context.Context, conversationID, messageID string) error

	UploadFile(ctx context.Context, file *chatstore.File) error
	GetFile(ctx context.Context, id string) (*chatstore.File, error)
}

type service struct {
	dbInstance libdb.DBManager
	kvManager  libkv.KVManager
}

// New creates the chat service. kvManager may be nil, in which case preview
// caching is disabled and listings fall back to the database.
func New(db libdb.DBManager, kvManager libkv.KVManager) Service {
	return &service{dbInstance: db, kvManager: kvManager}
}

func previewKey(conversationID string) string {
	return "chat.preview." + conversationID
}

func (s *service) CreateConversation(ctx context.Context, conv *chatstore.Conversation) error {
	if conv.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidConversation)
	}
	if conv.CreatedBy == "" {
		return fmt.Errorf("%w: createdBy is required", ErrInvalidConversation)
	}
	if !slices.Contains(conv.Participants, conv.CreatedBy) {
		conv.Participants = append([]string{conv.CreatedBy}, conv.Participants...)
	}
	tx := s.dbInstance.WithoutTransaction()
	return chatstore.New(tx).CreateConversation(ctx, conv)
}

func (s *service) GetConversation(ctx context.Context, id string) (*chatstore.Conversation, error) {
	tx := s.dbInstance.WithoutTransaction()
	return chatstore.New(tx).GetConversation(ctx, id)
}

func (s *service) ListConversations(ctx context.Context, updatedAtCursor *time.Time, limit int) ([]ConversationSummary, error) {
	tx := s.dbInstance.WithoutTransaction()
	storeInstance := chatstore.New(tx)
	convs, err := storeInstance.ListConversations(ctx, updatedAtCursor, limit)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		preview, err := s.loadPreview(ctx, storeInstance, conv.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, ConversationSummary{Conversation: conv, LastMessage: preview})
	}
	return summaries, nil
}

func (s *service) DeleteConversation(ctx context.Context, id string) error {
	tx := s.dbInstance.WithoutTransaction()
	if err := chatstore.New(tx).DeleteConversation(ctx, id); err != nil {
		return err
	}
	s.dropPreview(ctx, id)
	return nil
}

func (s *service) ListMessages(ctx context.Context, conversationID string) ([]*chatstore.Message, error) {
	tx := s.dbInstance.WithoutTransaction()
	storeInstance := chatstore.New(tx)
	if _, err := storeInstance.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return storeInstance.ListMessages(ctx, conversationID)
}

func (s *service) AppendMessage(ctx context.Context, msg *chatstore.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	tx := s.dbInstance.WithoutTransaction()
	if err := chatstore.New(tx).AppendMessage(ctx, msg); err != nil {
		return err
	}
	s.storePreview(ctx, msg)
	return nil
}

// EditMessage rewrites a message's text. The message must belong to the
// given conversation.
func (s *service) EditMessage(ctx context.Context, conversationID, messageID, text string) (*chatstore.Message, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidMessage)
	}
	tx, commit, release, err := s.dbInstance.WithTransaction(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(); err != nil {
			slog.ErrorContext(ctx, "releasing edit transaction failed", "error", err)
		}
	}()

	storeInstance := chatstore.New(tx)
	msg, err := storeInstance.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ConversationID != conversationID {
		return nil, fmt.Errorf("message %s not in conversation %s: %w", messageID, conversationID, libdb.ErrNotFound)
	}
	if err := storeInstance.UpdateMessageText(ctx, messageID, text); err != nil {
		return nil, err
	}
	updated, err := storeInstance.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := commit(ctx); err != nil {
		return nil, err
	}
	s.refreshPreview(ctx, conversationID)
	return updated, nil
}

func (s *service) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	tx, commit, release, err := s.dbInstance.WithTransaction(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			slog.ErrorContext(ctx, "releasing delete transaction failed", "error", err)
		}
	}()

	storeInstance := chatstore.New(tx)
	msg, err := storeInstance.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ConversationID != conversationID {
		return fmt.Errorf("message %s not in conversation %s: %w", messageID, conversationID, libdb.ErrNotFound)
	}
	if err := storeInstance.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	if err := commit(ctx); err != nil {
		return err
	}
	s.refreshPreview(ctx, conversationID)
	return nil
}

func (s *service) UploadFile(ctx context.Context, file *chatstore.File) error {
	if file.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidFile)
	}
	if len(file.Data) == 0 {
		return fmt.Errorf("%w: data is required", ErrInvalidFile)
	}
	file.Size = int64(len(file.Data))
	tx := s.dbInstance.WithoutTransaction()
	return chatstore.New(tx).CreateFile(ctx, file)
}

func (s *service) GetFile(ctx context.Context, id string) (*chatstore.File, error) {
	tx := s.dbInstance.WithoutTransaction()
	return chatstore.New(tx).GetFile(ctx, id)
}

func validateMessage(msg *chatstore.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidMessage)
	}
	if msg.ConversationID == "" {
		return fmt.Errorf("%w: conversationId is required", ErrInvalidMessage)
	}
	if msg.SenderID == "" {
		return fmt.Errorf("%w: senderId is required", ErrInvalidMessage)
	}
	if msg.Text == "" && msg.FileID == "" {
		return fmt.Errorf("%w: text or file is required", ErrInvalidMessage)
	}
	return nil
}

// loadPreview serves the cached preview, falling back to the store and
// repopulating the cache on a miss.
func (s *service) loadPreview(ctx context.Context, storeInstance chatstore.Store, conversationID string) (*Preview, error) {
	if s.kvManager != nil {
		kv, err := s.kvManager.Executor(ctx)
		if err == nil {
			raw, err := kv.Get(ctx, previewKey(conversationID))
			if err == nil {
				var preview Preview
				if err := json.Unmarshal(raw, &preview); err == nil {
					return &preview, nil
				}
			}
		}
	}

	last, err := storeInstance.LastMessage(ctx, conversationID)
	if err != nil {
		if errors.Is(err, libdb.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	s.storePreview(ctx, last)
	return messagePreview(last), nil
}

// storePreview caches the preview for a message. Cache failures are logged,
// never surfaced: the store remains authoritative.
func (s *service) storePreview(ctx context.Context, msg *chatstore.Message) {
	if s.kvManager == nil {
		return
	}
	kv, err := s.kvManager.Executor(ctx)
	if err != nil {
		slog.WarnContext(ctx, "preview cache unavailable", "error", err)
		return
	}
	raw, err := json.Marshal(messagePreview(msg))
	if err != nil {
		slog.WarnContext(ctx, "preview marshal failed", "error", err)
		return
	}
	if err := kv.SetWithTTL(ctx, previewKey(msg.ConversationID), raw, PreviewTTL); err != nil {
		slog.WarnContext(ctx, "preview cache write failed", "error", err)
	}
}

// refreshPreview recomputes the preview after an edit or delete changed the
// newest message.
func (s *service) refreshPreview(ctx context.Context, conversationID string) {
	if s.kvManager == nil {
		return
	}
	tx := s.dbInstance.WithoutTransaction()
	last, err := chatstore.New(tx).LastMessage(ctx, conversationID)
	if err != nil {
		if errors.Is(err, libdb.ErrNotFound) {
			s.dropPreview(ctx, conversationID)
			return
		}
		slog.WarnContext(ctx, "preview refresh failed", "error", err)
		return
	}
	s.storePreview(ctx, last)
}

func (s *service) dropPreview(ctx context.Context, conversationID string) {
	if s.kvManager == nil {
		return
	}
	kv, err := s.kvManager.Executor(ctx)
	if err != nil {
		return
	}
	if err := kv.Delete(ctx, previewKey(conversationID)); err != nil {
		slog.WarnContext(ctx, "preview cache delete failed", "error", err)
	}
}

func messagePreview(msg *chatstore.Message) *Preview {
	return &Preview{
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Text:      msg.Text,
		FileName:  msg.FileName,
		Edited:    msg.Edited,
		CreatedAt: msg.CreatedAt,
	}
}
