package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

type Kind string

const (
	KindNetwork        Kind = "network"
	KindTimeout        Kind = "timeout"
	KindRateLimited    Kind = "rate_limited"
	KindServer         Kind = "server"
	KindSessionExpired Kind = "session_expired"
	KindProtocol       Kind = "protocol"
	KindValidation     Kind = "validation"
	KindAborted        Kind = "aborted"
)

var (
	ErrSendInFlight   = errors.New("chat: a message is already being sent")
	ErrNothingToRetry = errors.New("chat: no failed message to retry")
	ErrUnknownMessage = errors.New("chat: unknown message")

	errRequestTimeout = errors.New("chat: request deadline exceeded")
)

const incompleteResponse = "incomplete response"

// Error is the single error type the chat client surfaces.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("chat %s error: status=%d message=%s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("chat %s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus lets the retry wrapper see the status code.
func (e *Error) HTTPStatus() int {
	return e.StatusCode
}

// UserMessage is the text shown in the UI. Aborts have none.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindNetwork:
		return "Unable to reach the server. Please check your connection and try again."
	case KindTimeout:
		return "The request timed out. Please try again."
	case KindRateLimited:
		return "Too many requests. Please wait a moment before trying again."
	case KindServer:
		return "The service is temporarily unavailable. Please try again later."
	case KindSessionExpired:
		return "Your session has expired. Please start a new conversation."
	case KindAborted:
		return ""
	default:
		if e.Message != "" {
			return e.Message
		}
		return "Something went wrong. Please try again."
	}
}

// KindOf returns the kind of a chat error, or "" for foreign errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

func IsAborted(err error) bool {
	return KindOf(err) == KindAborted
}

// UserMessage returns the user-facing text for any error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.UserMessage()
	}
	return err.Error()
}

func protocolError(msg string) *Error {
	return &Error{Kind: KindProtocol, Message: msg}
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, StatusCode: http.StatusBadRequest, Message: msg}
}

// parseHTTPError classifies a non-2xx response. The server message comes
// from a {"detail": ...} or {"message": ...} body, falling back to the raw
// text and then the status text.
func parseHTTPError(status int, raw []byte) *Error {
	msg := serverMessage(raw)
	if msg == "" {
		msg = http.StatusText(status)
	}

	kind := KindValidation
	switch {
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusNotFound:
		kind = KindSessionExpired
	case status >= 500 && status < 600:
		kind = KindServer
	}
	return &Error{Kind: kind, StatusCode: status, Message: msg}
}

func serverMessage(raw []byte) string {
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return ""
	}

	var env struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return body
	}
	if len(env.Detail) > 0 {
		var s string
		if err := json.Unmarshal(env.Detail, &s); err == nil {
			return strings.TrimSpace(s)
		}
		// FastAPI validation errors carry a list; keep it readable.
		return strings.TrimSpace(string(env.Detail))
	}
	if env.Message != "" {
		return strings.TrimSpace(env.Message)
	}
	return body
}

// classifyTransport maps an error from the HTTP round trip or body read.
// ctx is the per-request context carrying the deadline cause.
func classifyTransport(ctx context.Context, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(context.Cause(ctx), errRequestTimeout) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return &Error{Kind: KindAborted, Message: "request aborted", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
}
