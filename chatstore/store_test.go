package chatstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tourdesk/tourdesk/chatstore"
	libdb "github.com/tourdesk/tourdesk/libdbexec"
)

func setupDB(t *testing.T) (context.Context, libdb.DBManager) {
	t.Helper()
	ctx := context.TODO()
	db, err := libdb.NewSQLiteDBManager(ctx, ":memory:", chatstore.Schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return ctx, db
}

func TestChatStore_ConversationCRUD(t *testing.T) {
	ctx, db := setupDB(t)
	store := chatstore.New(db.WithoutTransaction())

	conv := &chatstore.Conversation{
		ID:           "conv-1",
		Title:        "Room 204 complaint",
		CreatedBy:    "alice",
		Participants: []string{"alice", "bob", "alice", ""},
	}
	require.NoError(t, store.CreateConversation(ctx, conv))
	require.False(t, conv.CreatedAt.IsZero())

	got, err := store.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Equal(t, "Room 204 complaint", got.Title)
	require.Equal(t, "alice", got.CreatedBy)
	require.Equal(t, []string{"alice", "bob"}, got.Participants)

	require.NoError(t, store.DeleteConversation(ctx, "conv-1"))

	_, err = store.GetConversation(ctx, "conv-1")
	require.ErrorIs(t, err, libdb.ErrNotFound)

	err = store.DeleteConversation(ctx, "conv-1")
	require.ErrorIs(t, err, libdb.ErrNotFound)
}

func TestChatStore_ListConversationsByRecency(t *testing.T) {
	ctx, db := setupDB(t)
	store := chatstore.New(db.WithoutTransaction())

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"conv-a", "conv-b", "conv-c"} {
		conv := &chatstore.Conversation{
			ID:        id,
			Title:     id,
			CreatedBy: "alice",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.CreateConversation(ctx, conv))
	}

	convs, err := store.ListConversations(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	require.Equal(t, "conv-c", convs[0].ID)
	require.Equal(t, "conv-a", convs[2].ID)

	// Cursor pagination: everything strictly older than the second page head.
	cursor := convs[0].UpdatedAt
	convs, err = store.ListConversations(ctx, &cursor, 10)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	require.Equal(t, "conv-b", convs[0].ID)

	convs, err = store.ListConversations(ctx, nil, 1)
	require.NoError(t, err)
	require.Len(t, convs, 1)
}

func TestChatStore_AppendAndListMessages(t *testing.T) {
	ctx, db := setupDB(t)
	store := chatstore.New(db.WithoutTransaction())

	conv := &chatstore.Conversation{ID: "conv-1", Title: "Shuttle delay", CreatedBy: "alice"}
	require.NoError(t, store.CreateConversation(ctx, conv))

	now := time.Now().UTC()
	msgs := []*chatstore.Message{
		{ID: "m1", ConversationID: "conv-1", SenderID: "alice", Text: "guest waiting at terminal 2", CreatedAt: now},
		{ID: "m2", ConversationID: "conv-1", SenderID: "bob", Text: "driver is 5 min out", CreatedAt: now.Add(time.Second)},
	}
	for _, msg := range msgs {
		require.NoError(t, store.AppendMessage(ctx, msg))
	}

	listed, err := store.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "m1", listed[0].ID)
	require.Equal(t, "m2", listed[1].ID)
	require.False(t, listed[0].Edited)

	count, err := store.CountMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	last, err := store.LastMessage(ctx, "conv-1")
	require.NoError(t, err)
	require.Equal(t, "m2", last.ID)

	// Appending bumps the conversation's updated_at.
	got, err := store.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.False(t, got.UpdatedAt.Before(now.Truncate(time.Second)))
}

func TestChatStore_MessageRequiresConversation(t *testing.T) {
	ctx, db := setupDB(t)
	store := chatstore.New(db.WithoutTransaction())

	err := store.AppendMessage(ctx, &chatstore.Message{
		ID:             "m1",
		ConversationID: "no-such-conversation",
		SenderID:       "alice",
		Text:           "orphan",
	})
	require.ErrorIs(t, err, libdb.ErrForeignKeyViolation)
}

func TestChatStore_EditMessage(t *testing.T) {
	ctx, db := setupDB(t)
	store := chatstore.New(db.WithoutTransaction())

	require.NoError(t, store.CreateConversation(ctx, &chatstore.Conversation{ID: "conv-1", Title: "t", CreatedBy: "alice"}))
	require.NoError(t, store.AppendMessage(ctx, &chatstore.Message{ID: "m1", ConversationID: "conv-1", SenderID: "alice", Text: "typo"}))

	require.NoError(t, store.UpdateMessageText(ctx, "m1", "fixed"))

	got, err := store.GetMessage(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, "fixed", got.Text)
	require.True(t, got.Edited)

	err = store.UpdateMessageText(ctx, "missing", "x")
	require.ErrorIs(t, err, libdb.ErrNotFound)
}

func TestChatStore_DeleteMessage(t *testing.T) {
	ctx, db := setupDB(t)
	store := chatstore.New(db.WithoutTransaction())

	require.NoError(t, store.CreateConversation(ctx, &chatstore.Conversation{ID: "conv-1", Title: "t", CreatedBy: "alice"}))
	require.NoError(t, store.AppendMessage(ctx, &chatstore.Message{ID: "m1", ConversationID: "conv-1", SenderID: "alice", Text: "hello"}))

	require.NoError(t, store.DeleteMessage(ctx, "m1"))

	_, err := store.GetMessage(ctx, "m1")
	require.ErrorIs(t, err, libdb.ErrNotFound)
}

func TestChatStore_DeleteConversationCascades(t *testing.T) {
	ctx, db := setupDB(t)
	store := chatstore.New(db.WithoutTransaction())

	require.NoError(t, store.CreateConversation(ctx, &chatstore.Conversation{ID: "conv-1", Title: "t", CreatedBy: "alice"}))
	require.NoError(t, store.AppendMessage(ctx, &chatstore.Message{ID: "m1", ConversationID: "conv-1", SenderID: "alice", Text: "hello"}))

	require.NoError(t, store.DeleteConversation(ctx, "conv-1"))

	_, err := store.GetMessage(ctx, "m1")
	require.ErrorIs(t, err, libdb.ErrNotFound)
}

func TestChatStore_Files(t *testing.T) {
	ctx, db := setupDB(t)
	store := chatstore.New(db.WithoutTransaction())

	file := &chatstore.File{
		ID:          "f1",
		Name:        "invoice.pdf",
		ContentType: "application/pdf",
		Size:        3,
		Data:        []byte{0x25, 0x50, 0x44},
		UploadedBy:  "alice",
	}
	require.NoError(t, store.CreateFile(ctx, file))

	got, err := store.GetFile(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, "invoice.pdf", got.Name)
	require.Equal(t, file.Data, got.Data)

	require.NoError(t, store.DeleteFile(ctx, "f1"))
	_, err = store.GetFile(ctx, "f1")
	require.ErrorIs(t, err, libdb.ErrNotFound)
}

func TestChatStore_MessageWithAttachment(t *testing.T) {
	ctx, db := setupDB(t)
	store := chatstore.New(db.WithoutTransaction())

	require.NoError(t, store.CreateConversation(ctx, &chatstore.Conversation{ID: "conv-1", Title: "t", CreatedBy: "alice"}))
	require.NoError(t, store.CreateFile(ctx, &chatstore.File{ID: "f1", Name: "photo.jpg", ContentType: "image/jpeg", Size: 1, Data: []byte{0xff}, UploadedBy: "alice"}))

	msg := &chatstore.Message{
		ID:             "m1",
		ConversationID: "conv-1",
		SenderID:       "alice",
		Text:           "",
		FileID:         "f1",
		FileName:       "photo.jpg",
	}
	require.NoError(t, store.AppendMessage(ctx, msg))

	got, err := store.GetMessage(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, "f1", got.FileID)
	require.Equal(t, "photo.jpg", got.FileName)
}
