package chatapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourdesk/tourdesk/chatrelay"
	"github.com/tourdesk/tourdesk/chatservice"
	"github.com/tourdesk/tourdesk/chatstore"
	"github.com/tourdesk/tourdesk/chatsync"
	"github.com/tourdesk/tourdesk/internal/chatapi"
	"github.com/tourdesk/tourdesk/libauth"
	"github.com/tourdesk/tourdesk/libbus"
	libdb "github.com/tourdesk/tourdesk/libdbexec"
)

type apiFixture struct {
	t       *testing.T
	ctx     context.Context
	server  *httptest.Server
	service chatservice.Service
	bus     *libbus.InMem
}

// fakeAuth stamps a fixed identity, standing in for the JWT middleware.
func fakeAuth(identity string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if identity != "" {
			ctx = libauth.WithIdentity(ctx, identity)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func setupAPI(t *testing.T, identity string) *apiFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := libdb.NewSQLiteDBManager(ctx, ":memory:", chatstore.Schema)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	service := chatservice.New(db, nil)
	bus := libbus.NewInMem()
	t.Cleanup(func() { _ = bus.Close() })
	relay := chatrelay.New(service, bus, nil)

	mux := http.NewServeMux()
	chatapi.AddChatRoutes(mux, service, relay)
	chatapi.AddFileRoutes(mux, service)

	server := httptest.NewServer(fakeAuth(identity, mux))
	t.Cleanup(server.Close)

	return &apiFixture{t: t, ctx: ctx, server: server, service: service, bus: bus}
}

func (f *apiFixture) do(method, path string, body io.Reader) *http.Response {
	req, err := http.NewRequest(method, f.server.URL+path, body)
	require.NoError(f.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestUnit_API_CreateConversation(t *testing.T) {
	f := setupAPI(t, "alice")

	resp := f.do(http.MethodPost, "/api/conversations", strings.NewReader(`{"title":"Lost luggage BA117","participants":["bob"]}`))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	conv := decodeBody[chatstore.Conversation](t, resp)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "Lost luggage BA117", conv.Title)
	assert.Equal(t, "alice", conv.CreatedBy)
	assert.Equal(t, []string{"alice", "bob"}, conv.Participants)
}

func TestUnit_API_CreateConversationRequiresAuth(t *testing.T) {
	f := setupAPI(t, "")

	resp := f.do(http.MethodPost, "/api/conversations", strings.NewReader(`{"title":"nope"}`))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnit_API_CreateConversationRejectsEmptyTitle(t *testing.T) {
	f := setupAPI(t, "alice")

	resp := f.do(http.MethodPost, "/api/conversations", strings.NewReader(`{"title":""}`))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUnit_API_ListConversations(t *testing.T) {
	f := setupAPI(t, "alice")

	for _, title := range []string{"one", "two"} {
		resp := f.do(http.MethodPost, "/api/conversations", strings.NewReader(fmt.Sprintf(`{"title":%q}`, title)))
		resp.Body.Close()
	}

	resp := f.do(http.MethodGet, "/api/conversations?limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summaries := decodeBody[[]chatservice.ConversationSummary](t, resp)
	assert.Len(t, summaries, 2)

	resp = f.do(http.MethodGet, "/api/conversations?limit=bogus", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUnit_API_GetConversationNotFound(t *testing.T) {
	f := setupAPI(t, "alice")

	resp := f.do(http.MethodGet, "/api/conversations/missing", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnit_API_DeleteConversationBroadcastsTombstone(t *testing.T) {
	f := setupAPI(t, "alice")

	resp := f.do(http.MethodPost, "/api/conversations", strings.NewReader(`{"title":"temp"}`))
	conv := decodeBody[chatstore.Conversation](t, resp)

	room := make(chan []byte, 10)
	_, err := f.bus.Stream(f.ctx, chatsync.RoomSubject(conv.ID), room)
	require.NoError(t, err)

	resp = f.do(http.MethodDelete, "/api/conversations/"+conv.ID, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case data := <-room:
		var frame chatsync.Frame
		require.NoError(t, json.Unmarshal(data, &frame))
		assert.Equal(t, chatsync.KindConversationDeleted, frame.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no tombstone broadcast")
	}

	_, err = f.service.GetConversation(f.ctx, conv.ID)
	assert.ErrorIs(t, err, libdb.ErrNotFound)
}

func TestUnit_API_EditMessageBroadcasts(t *testing.T) {
	f := setupAPI(t, "alice")

	resp := f.do(http.MethodPost, "/api/conversations", strings.NewReader(`{"title":"ops"}`))
	conv := decodeBody[chatstore.Conversation](t, resp)
	require.NoError(t, f.service.AppendMessage(f.ctx, &chatstore.Message{
		ID: "m1", ConversationID: conv.ID, SenderID: "alice", Text: "typo",
	}))

	room := make(chan []byte, 10)
	_, err := f.bus.Stream(f.ctx, chatsync.RoomSubject(conv.ID), room)
	require.NoError(t, err)

	resp = f.do(http.MethodPut, "/api/conversations/"+conv.ID+"/messages/m1", strings.NewReader(`{"text":"fixed"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[chatstore.Message](t, resp)
	assert.Equal(t, "fixed", updated.Text)
	assert.True(t, updated.Edited)

	select {
	case data := <-room:
		var frame chatsync.Frame
		require.NoError(t, json.Unmarshal(data, &frame))
		assert.Equal(t, chatsync.KindEdit, frame.Kind)
		assert.Equal(t, "fixed", frame.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("no edit broadcast")
	}
}

func TestUnit_API_DeleteMessageBroadcasts(t *testing.T) {
	f := setupAPI(t, "alice")

	resp := f.do(http.MethodPost, "/api/conversations", strings.NewReader(`{"title":"ops"}`))
	conv := decodeBody[chatstore.Conversation](t, resp)
	require.NoError(t, f.service.AppendMessage(f.ctx, &chatstore.Message{
		ID: "m1", ConversationID: conv.ID, SenderID: "alice", Text: "remove",
	}))

	room := make(chan []byte, 10)
	_, err := f.bus.Stream(f.ctx, chatsync.RoomSubject(conv.ID), room)
	require.NoError(t, err)

	resp = f.do(http.MethodDelete, "/api/conversations/"+conv.ID+"/messages/m1", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case data := <-room:
		var frame chatsync.Frame
		require.NoError(t, json.Unmarshal(data, &frame))
		assert.Equal(t, chatsync.KindDelete, frame.Kind)
		assert.Equal(t, "m1", frame.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no delete broadcast")
	}
}

func TestUnit_API_ListMessages(t *testing.T) {
	f := setupAPI(t, "alice")

	resp := f.do(http.MethodPost, "/api/conversations", strings.NewReader(`{"title":"ops"}`))
	conv := decodeBody[chatstore.Conversation](t, resp)
	require.NoError(t, f.service.AppendMessage(f.ctx, &chatstore.Message{
		ID: "m1", ConversationID: conv.ID, SenderID: "alice", Text: "hello",
	}))

	resp = f.do(http.MethodGet, "/api/conversations/"+conv.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := decodeBody[[]chatstore.Message](t, resp)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)

	resp = f.do(http.MethodGet, "/api/conversations/missing/messages", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnit_API_FileUploadDownload(t *testing.T) {
	f := setupAPI(t, "alice")

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "booking.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/files", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	file := decodeBody[chatstore.File](t, resp)
	assert.Equal(t, "booking.pdf", file.Name)
	assert.Equal(t, "alice", file.UploadedBy)

	resp = f.do(http.MethodGet, "/api/files/"+file.ID, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(data))
}
