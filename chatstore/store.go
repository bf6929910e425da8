// Package chatstore persists conversations, confirmed messages, and file
// attachments. It is the system of record the sync engine reconciles
// against.
package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tourdesk/tourdesk/libdbexec"
)

type store struct {
	Exec libdbexec.Exec
}

// New creates a new chat store instance.
func New(exec libdbexec.Exec) Store {
	return &store{Exec: exec}
}

// CreateConversation inserts a conversation. CreatedAt and UpdatedAt are
// filled in when zero.
func (s *store) CreateConversation(ctx context.Context, conv *Conversation) error {
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}
	conv.Participants = dedupeParticipants(conv.Participants)
	participants, err := json.Marshal(conv.Participants)
	if err != nil {
		return fmt.Errorf("failed to marshal participants: %w", err)
	}
	_, err = s.Exec.ExecContext(ctx, `
		INSERT INTO conversations (id, title, created_by, participants, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID,
		conv.Title,
		conv.CreatedBy,
		string(participants),
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// dedupeParticipants drops duplicate identities, keeping first appearance
// order.
func dedupeParticipants(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func (s *store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	conv, err := s.scanConversation(s.Exec.QueryRowContext(ctx, `
		SELECT id, title, created_by, participants, created_at, updated_at
		FROM conversations
		WHERE id = ?`,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, libdbexec.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns conversations ordered most recently updated
// first. The cursor is the updated_at of the last seen row.
func (s *store) ListConversations(ctx context.Context, cursor *time.Time, limit int) ([]*Conversation, error) {
	after := time.Now().UTC().Add(time.Hour)
	if cursor != nil {
		after = *cursor
	}
	rows, err := s.Exec.QueryContext(ctx, `
		SELECT id, title, created_by, participants, created_at, updated_at
		FROM conversations
		WHERE updated_at < ?
		ORDER BY updated_at DESC
		LIMIT ?`,
		after,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := s.scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return convs, nil
}

// DeleteConversation removes the conversation and, through the cascade, its
// messages.
func (s *store) DeleteConversation(ctx context.Context, id string) error {
	result, err := s.Exec.ExecContext(ctx, `
		DELETE FROM conversations
		WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return checkRowsAffected(result)
}

// AppendMessage inserts a confirmed message and bumps the conversation's
// updated_at so listings sort by recency.
func (s *store) AppendMessage(ctx context.Context, msg *Message) error {
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}
	_, err := s.Exec.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, text, file_id, file_name, edited, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Text,
		nullable(msg.FileID),
		nullable(msg.FileName),
		msg.Edited,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	_, err = s.Exec.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?`,
		msg.CreatedAt,
		msg.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

func (s *store) GetMessage(ctx context.Context, id string) (*Message, error) {
	msg, err := s.scanMessage(s.Exec.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, text, file_id, file_name, edited, created_at, updated_at
		FROM messages
		WHERE id = ?`,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, libdbexec.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ListMessages returns all messages of a conversation in chronological
// order.
func (s *store) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.Exec.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, text, file_id, file_name, edited, created_at, updated_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := s.scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return msgs, nil
}

// UpdateMessageText rewrites the message text and marks it edited.
func (s *store) UpdateMessageText(ctx context.Context, id string, text string) error {
	result, err := s.Exec.ExecContext(ctx, `
		UPDATE messages
		SET text = ?, edited = 1, updated_at = ?
		WHERE id = ?`,
		text,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return checkRowsAffected(result)
}

func (s *store) DeleteMessage(ctx context.Context, id string) error {
	result, err := s.Exec.ExecContext(ctx, `
		DELETE FROM messages
		WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return checkRowsAffected(result)
}

// LastMessage returns the newest message of a conversation, used for
// conversation previews.
func (s *store) LastMessage(ctx context.Context, conversationID string) (*Message, error) {
	msg, err := s.scanMessage(s.Exec.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, text, file_id, file_name, edited, created_at, updated_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		conversationID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, libdbexec.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get last message: %w", err)
	}
	return msg, nil
}

func (s *store) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.Exec.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = ?`,
		conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (s *store) CreateFile(ctx context.Context, file *File) error {
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	_, err := s.Exec.ExecContext(ctx, `
		INSERT INTO files (id, name, content_type, size, data, uploaded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		file.ID,
		file.Name,
		file.ContentType,
		file.Size,
		file.Data,
		file.UploadedBy,
		file.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

func (s *store) GetFile(ctx context.Context, id string) (*File, error) {
	var file File
	err := s.Exec.QueryRowContext(ctx, `
		SELECT id, name, content_type, size, data, uploaded_by, created_at
		FROM files
		WHERE id = ?`,
		id,
	).Scan(&file.ID, &file.Name, &file.ContentType, &file.Size, &file.Data, &file.UploadedBy, &file.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, libdbexec.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &file, nil
}

func (s *store) DeleteFile(ctx context.Context, id string) error {
	result, err := s.Exec.ExecContext(ctx, `
		DELETE FROM files
		WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return checkRowsAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *store) scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var participants string
	err := row.Scan(
		&conv.ID,
		&conv.Title,
		&conv.CreatedBy,
		&participants,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(participants), &conv.Participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	return &conv, nil
}

func (s *store) scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var fileID, fileName sql.NullString
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Text,
		&fileID,
		&fileName,
		&msg.Edited,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.FileID = fileID.String
	msg.FileName = fileName.String
	return &msg, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func checkRowsAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return libdbexec.ErrNotFound
	}
	return nil
}
