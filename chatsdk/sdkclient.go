// Package chatsdk is the HTTP client for the chat API. It implements
// chatservice.Service against a remote server and provides the adapters the
// sync engine needs for history loading and attachment uploads.
package chatsdk

import (
	"net/http"

	"github.com/tourdesk/tourdesk/chatservice"
)

// Config holds configuration for the SDK client.
type Config struct {
	BaseURL string
	Token   string
}

// Client bundles the remote services exposed by a chat server.
type Client struct {
	ChatService chatservice.Service
}

// NewClient creates a new SDK client. httpClient may be nil.
func NewClient(config Config, httpClient *http.Client) *Client {
	return &Client{
		ChatService: NewHTTPChatService(config.BaseURL, config.Token, httpClient),
	}
}
