package chatsync

import "errors"

var (
	// ErrNotConnected means the engine has no live bus connection. Sends
	// issued in this state are parked as failed so the caller can retry.
	ErrNotConnected = errors.New("chatsync: not connected")
	// ErrEmptyContent means a send carried neither text nor an attachment.
	ErrEmptyContent = errors.New("chatsync: empty content")
	// ErrInvalidTarget means a conversation or message ID was missing.
	ErrInvalidTarget = errors.New("chatsync: invalid target")
	// ErrMalformedPayload means an inbound frame could not be decoded.
	ErrMalformedPayload = errors.New("chatsync: malformed payload")
	// ErrUploadFailed wraps attachment upload errors.
	ErrUploadFailed = errors.New("chatsync: upload failed")
	// ErrSessionClosed means the session was closed and can no longer be
	// used.
	ErrSessionClosed = errors.New("chatsync: session closed")
	// ErrUnknownPending means no pending message exists for the given temp
	// ID.
	ErrUnknownPending = errors.New("chatsync: unknown pending message")
)
