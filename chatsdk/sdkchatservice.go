package chatsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tourdesk/tourdesk/apiframework"
	"github.com/tourdesk/tourdesk/chatservice"
	"github.com/tourdesk/tourdesk/chatstore"
	"github.com/tourdesk/tourdesk/chatsync"
)

// ErrSendOverBus is returned by AppendMessage: new messages travel over the
// message bus, not the REST API.
var ErrSendOverBus = errors.New("chatsdk: messages are sent over the bus, not the REST API")

// HTTPChatService implements the chatservice.Service interface using HTTP
// calls to the API.
type HTTPChatService struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewHTTPChatService creates a new HTTP client that implements
// chatservice.Service.
func NewHTTPChatService(baseURL, token string, client *http.Client) *HTTPChatService {
	if client == nil {
		client = http.DefaultClient
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &HTTPChatService{
		client:  client,
		baseURL: baseURL,
		token:   token,
	}
}

func (s *HTTPChatService) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return req, nil
}

// doJSON runs the request and decodes a JSON response into out (which may
// be nil for discarded bodies).
func (s *HTTPChatService) doJSON(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiframework.HandleAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (s *HTTPChatService) CreateConversation(ctx context.Context, conv *chatstore.Conversation) error {
	req, err := s.newRequest(ctx, http.MethodPost, "/api/conversations", struct {
		Title        string   `json:"title"`
		Participants []string `json:"participants,omitempty"`
	}{Title: conv.Title, Participants: conv.Participants})
	if err != nil {
		return err
	}
	var created chatstore.Conversation
	if err := s.doJSON(req, &created); err != nil {
		return err
	}
	*conv = created
	return nil
}

func (s *HTTPChatService) GetConversation(ctx context.Context, id string) (*chatstore.Conversation, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var conv chatstore.Conversation
	if err := s.doJSON(req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *HTTPChatService) ListConversations(ctx context.Context, updatedAtCursor *time.Time, limit int) ([]chatservice.ConversationSummary, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", limit))
	if updatedAtCursor != nil {
		query.Set("cursor", updatedAtCursor.Format(time.RFC3339Nano))
	}
	req, err := s.newRequest(ctx, http.MethodGet, "/api/conversations?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var summaries []chatservice.ConversationSummary
	if err := s.doJSON(req, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *HTTPChatService) DeleteConversation(ctx context.Context, id string) error {
	req, err := s.newRequest(ctx, http.MethodDelete, "/api/conversations/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return s.doJSON(req, nil)
}

func (s *HTTPChatService) ListMessages(ctx context.Context, conversationID string) ([]*chatstore.Message, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(conversationID)+"/messages", nil)
	if err != nil {
		return nil, err
	}
	var msgs []*chatstore.Message
	if err := s.doJSON(req, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// AppendMessage always fails; the send path is the bus.
func (s *HTTPChatService) AppendMessage(ctx context.Context, msg *chatstore.Message) error {
	return ErrSendOverBus
}

func (s *HTTPChatService) EditMessage(ctx context.Context, conversationID, messageID, text string) (*chatstore.Message, error) {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages/" + url.PathEscape(messageID)
	req, err := s.newRequest(ctx, http.MethodPut, path, struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return nil, err
	}
	var updated chatstore.Message
	if err := s.doJSON(req, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *HTTPChatService) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages/" + url.PathEscape(messageID)
	req, err := s.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	return s.doJSON(req, nil)
}

// UploadFile posts the file as multipart form data and copies the
// server-assigned metadata back into file.
func (s *HTTPChatService) UploadFile(ctx context.Context, file *chatstore.File) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", file.Name)
	if err != nil {
		return fmt.Errorf("building upload form: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return fmt.Errorf("building upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("building upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/files", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	data := file.Data
	var created chatstore.File
	if err := s.doJSON(req, &created); err != nil {
		return err
	}
	*file = created
	file.Data = data
	return nil
}

func (s *HTTPChatService) GetFile(ctx context.Context, id string) (*chatstore.File, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "/api/files/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiframework.HandleAPIError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading file body: %w", err)
	}
	return &chatstore.File{
		ID:          id,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

// HistoryFunc adapts the client for chatsync session history loading.
func (s *HTTPChatService) HistoryFunc() chatsync.HistoryFunc {
	return func(ctx context.Context, conversationID string) ([]*chatstore.Message, error) {
		return s.ListMessages(ctx, conversationID)
	}
}

// UploadFunc adapts the client for chatsync attachment uploads.
func (s *HTTPChatService) UploadFunc() chatsync.UploadFunc {
	return func(ctx context.Context, name, contentType string, data []byte) (string, error) {
		file := &chatstore.File{Name: name, ContentType: contentType, Data: data}
		if err := s.UploadFile(ctx, file); err != nil {
			return "", err
		}
		return file.ID, nil
	}
}

var _ chatservice.Service = (*HTTPChatService)(nil)
