package dto

import (
	"io"
	"net/http"
	"strings"
)

// ChatStreamRequest is the body of POST /api/chat/stream and /api/chat.
type ChatStreamRequest struct {
	Question  string `json:"question" validate:"required,min=1,max=2000"`
	SessionID string `json:"session_id,omitempty"`
}

// FeedbackRequest is the body of POST /api/feedback.
type FeedbackRequest struct {
	SessionID string  `json:"session_id" validate:"required"`
	MessageID string  `json:"message_id" validate:"required"`
	ThumbsUp  *bool   `json:"thumbs_up" validate:"required"`
	Comment   *string `json:"comment" validate:"omitempty,max=500"`
}

// ProxyRequest is an inbound /api/* call, path relative to the upstream root.
type ProxyRequest struct {
	Method      string
	Path        string
	RawQuery    string
	Body        []byte
	ContentType string
	Accept      string
	Origin      string
	Headers     http.Header
}

// ProxyResponse is the upstream reply. Body must be closed by the caller.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

func (r *ProxyResponse) IsEventStream() bool {
	return IsEventStream(r.Header.Get("Content-Type"))
}

func IsEventStream(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/event-stream")
}
