package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"portfolio-chat/pkg/events"
	"portfolio-chat/pkg/feedback"
	"portfolio-chat/pkg/retry"

	"github.com/stretchr/testify/require"
)

// fakeBackend is an httptest RAG backend. chat is called with the zero-based
// index of the chat request.
type fakeBackend struct {
	t *testing.T

	mu              sync.Mutex
	chatRequests    []ChatRequest
	idempotencyKeys []string
	feedback        []feedback.Request

	chat           func(w http.ResponseWriter, r *http.Request, call int, req ChatRequest)
	feedbackStatus int
	llmStatus      string
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	b := &fakeBackend{t: t, feedbackStatus: http.StatusOK, llmStatus: `{"status":"available","is_hot":true,"fallback_available":false}`}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"detail":"bad json"}`, http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		call := len(b.chatRequests)
		b.chatRequests = append(b.chatRequests, req)
		b.idempotencyKeys = append(b.idempotencyKeys, r.Header.Get("Idempotency-Key"))
		handler := b.chat
		b.mu.Unlock()

		handler(w, r, call, req)
	})
	mux.HandleFunc("/feedback", func(w http.ResponseWriter, r *http.Request) {
		var req feedback.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.feedback = append(b.feedback, req)
		status := b.feedbackStatus
		b.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc("/health/llm", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		body := b.llmStatus
		b.mu.Unlock()
		_, _ = w.Write([]byte(body))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *fakeBackend) requests() []ChatRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ChatRequest(nil), b.chatRequests...)
}

func (b *fakeBackend) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.idempotencyKeys...)
}

func (b *fakeBackend) feedbackRequests() []feedback.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]feedback.Request(nil), b.feedback...)
}

func (b *fakeBackend) setChat(fn func(w http.ResponseWriter, r *http.Request, call int, req ChatRequest)) {
	b.mu.Lock()
	b.chat = fn
	b.mu.Unlock()
}

// writeSSE writes event/data pairs and flushes after each one.
func writeSSE(w http.ResponseWriter, pairs ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", pairs[i], pairs[i+1])
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func certificationsStream(sessionID string) []string {
	return []string{
		EventMetadata, fmt.Sprintf(`{"sources":[{"id":"doc-1","source":"certifications.md","text":"Certified Kubernetes Administrator (CKA)","distance":0.35}],"grounded":true,"session_id":%q}`, sessionID),
		EventToken, `"Certified "`,
		EventToken, `"Kubernetes Administrator"`,
		EventDone, `{}`,
	}
}

func answerCertifications(w http.ResponseWriter, r *http.Request, call int, req ChatRequest) {
	writeSSE(w, certificationsStream(req.SessionID)...)
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(t *testing.T, baseURL string, opts ...retry.Option) *Client {
	t.Helper()
	return NewClient(ClientOptions{
		BaseURL: baseURL,
		Retry:   append([]retry.Option{retry.WithSleep(noSleep)}, opts...),
	})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

func requireEventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 2*time.Millisecond, msg)
}
