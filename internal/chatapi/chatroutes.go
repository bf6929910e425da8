package chatapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	serverops "github.com/tourdesk/tourdesk/apiframework"
	"github.com/tourdesk/tourdesk/chatrelay"
	"github.com/tourdesk/tourdesk/chatservice"
	"github.com/tourdesk/tourdesk/chatstore"
	"github.com/tourdesk/tourdesk/libauth"
)

func AddChatRoutes(mux *http.ServeMux, chatService chatservice.Service, broadcaster chatrelay.Broadcaster) {
	c := &chatManager{service: chatService, broadcaster: broadcaster}

	mux.HandleFunc("POST /api/conversations", c.createConversation)
	mux.HandleFunc("GET /api/conversations", c.listConversations)
	mux.HandleFunc("GET /api/conversations/{id}", c.getConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", c.deleteConversation)
	mux.HandleFunc("GET /api/conversations/{id}/messages", c.listMessages)
	mux.HandleFunc("PUT /api/conversations/{id}/messages/{messageID}", c.editMessage)
	mux.HandleFunc("DELETE /api/conversations/{id}/messages/{messageID}", c.deleteMessage)
}

type chatManager struct {
	service     chatservice.Service
	broadcaster chatrelay.Broadcaster
}

type createConversationRequest struct {
	Title        string   `json:"title" example:"Room 204 complaint"`
	Participants []string `json:"participants,omitempty" example:"alice,bob"`
}

// Creates a new conversation owned by the authenticated user.
func (c *chatManager) createConversation(w http.ResponseWriter, r *http.Request) {
	identity, err := libauth.IdentityFrom(r.Context())
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.CreateOperation)
		return
	}
	req, err := serverops.Decode[createConversationRequest](r) // @request chatapi.createConversationRequest
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.CreateOperation)
		return
	}

	conv := &chatstore.Conversation{
		ID:           uuid.New().String(),
		Title:        req.Title,
		CreatedBy:    identity,
		Participants: req.Participants,
	}
	if err := c.service.CreateConversation(r.Context(), conv); err != nil {
		_ = serverops.Error(w, r, err, serverops.CreateOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusCreated, conv) // @response chatstore.Conversation
}

// Lists conversations newest-activity first, with cursor pagination.
func (c *chatManager) listConversations(w http.ResponseWriter, r *http.Request) {
	limitStr := serverops.GetQueryParam(r, "limit", "100", "The maximum number of items to return per page.")
	cursorStr := serverops.GetQueryParam(r, "cursor", "", "An optional RFC3339Nano timestamp to fetch the next page of results.")

	var cursor *time.Time
	if cursorStr != "" {
		parsed, err := time.Parse(time.RFC3339Nano, cursorStr)
		if err != nil {
			err = fmt.Errorf("%w: invalid cursor format, expected RFC3339Nano", serverops.ErrUnprocessableEntity)
			_ = serverops.Error(w, r, err, serverops.ListOperation)
			return
		}
		cursor = &parsed
	}

	var limit int
	if _, err := fmt.Sscanf(limitStr, "%d", &limit); err != nil || limit <= 0 {
		err = fmt.Errorf("%w: invalid limit format, expected positive integer", serverops.ErrUnprocessableEntity)
		_ = serverops.Error(w, r, err, serverops.ListOperation)
		return
	}

	summaries, err := c.service.ListConversations(r.Context(), cursor, limit)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.ListOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, summaries) // @response []chatservice.ConversationSummary
}

// Returns one conversation by ID.
func (c *chatManager) getConversation(w http.ResponseWriter, r *http.Request) {
	id := serverops.GetPathParam(r, "id", "The unique identifier for the conversation.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.GetOperation)
		return
	}

	conv, err := c.service.GetConversation(r.Context(), id)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.GetOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, conv) // @response chatstore.Conversation
}

// Deletes a conversation with all its messages and notifies live
// subscribers.
func (c *chatManager) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := serverops.GetPathParam(r, "id", "The unique identifier for the conversation.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.DeleteOperation)
		return
	}

	if err := c.service.DeleteConversation(r.Context(), id); err != nil {
		_ = serverops.Error(w, r, err, serverops.DeleteOperation)
		return
	}
	if err := c.broadcaster.BroadcastConversationDeleted(r.Context(), id); err != nil {
		_ = serverops.Error(w, r, err, serverops.DeleteOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, "conversation removed") // @response string
}

// Lists the messages of a conversation in chronological order.
func (c *chatManager) listMessages(w http.ResponseWriter, r *http.Request) {
	id := serverops.GetPathParam(r, "id", "The unique identifier for the conversation.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.ListOperation)
		return
	}

	msgs, err := c.service.ListMessages(r.Context(), id)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.ListOperation)
		return
	}
	if msgs == nil {
		msgs = []*chatstore.Message{}
	}

	_ = serverops.Encode(w, r, http.StatusOK, msgs) // @response []chatstore.Message
}

type editMessageRequest struct {
	Text string `json:"text" example:"corrected text"`
}

// Rewrites a message's text and broadcasts the edit to live subscribers.
func (c *chatManager) editMessage(w http.ResponseWriter, r *http.Request) {
	id := serverops.GetPathParam(r, "id", "The unique identifier for the conversation.")
	messageID := serverops.GetPathParam(r, "messageID", "The unique identifier for the message.")
	if id == "" || messageID == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.UpdateOperation)
		return
	}
	req, err := serverops.Decode[editMessageRequest](r) // @request chatapi.editMessageRequest
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.UpdateOperation)
		return
	}

	updated, err := c.service.EditMessage(r.Context(), id, messageID, req.Text)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.UpdateOperation)
		return
	}
	if err := c.broadcaster.BroadcastEdit(r.Context(), updated); err != nil {
		_ = serverops.Error(w, r, err, serverops.UpdateOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, updated) // @response chatstore.Message
}

// Deletes a message and broadcasts the removal to live subscribers.
func (c *chatManager) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id := serverops.GetPathParam(r, "id", "The unique identifier for the conversation.")
	messageID := serverops.GetPathParam(r, "messageID", "The unique identifier for the message.")
	if id == "" || messageID == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.DeleteOperation)
		return
	}

	if err := c.service.DeleteMessage(r.Context(), id, messageID); err != nil {
		_ = serverops.Error(w, r, err, serverops.DeleteOperation)
		return
	}
	if err := c.broadcaster.BroadcastDelete(r.Context(), id, messageID); err != nil {
		_ = serverops.Error(w, r, err, serverops.DeleteOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, "message removed") // @response string
}
