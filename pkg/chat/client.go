package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"portfolio-chat/internal/pkg/logger"
	"portfolio-chat/pkg/feedback"
	"portfolio-chat/pkg/health"
	"portfolio-chat/pkg/retry"
	"portfolio-chat/pkg/sse"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultStreamTimeout  = 60 * time.Second

	maxErrorBody = 1 << 20
)

type ClientOptions struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	StreamTimeout  time.Duration
	// Retry tunes the 5xx retry around stream initiation.
	Retry  []retry.Option
	Logger logger.ILogger
}

// Client talks to the RAG backend's public chat API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	streamTimeout  time.Duration
	retryOpts      []retry.Option
	logger         logger.ILogger
	validate       *validator.Validate
}

func NewClient(opts ClientOptions) *Client {
	if opts.HTTPClient == nil {
		// No client-level timeout: streams are bounded by their context.
		opts.HTTPClient = &http.Client{}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = DefaultStreamTimeout
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		httpClient:     opts.HTTPClient,
		requestTimeout: opts.RequestTimeout,
		streamTimeout:  opts.StreamTimeout,
		retryOpts:      opts.Retry,
		logger:         logger.OrNop(opts.Logger),
		validate:       validator.New(),
	}
}

// ValidateRequest trims the question and checks its length.
func (c *Client) ValidateRequest(req *ChatRequest) error {
	req.Question = strings.TrimSpace(req.Question)
	if err := c.validate.Struct(req); err != nil {
		return validationError(fmt.Sprintf("question must be between 1 and %d characters", MaxQuestionLength))
	}
	return nil
}

// StreamChat posts the question and decodes the event stream, calling
// onUpdate for every state change in arrival order. A 5xx before the first
// body byte is retried with the same Idempotency-Key; failures after the
// stream started are not.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest, messageID string, onUpdate func(StreamUpdate)) (*ChatResponse, error) {
	if err := c.ValidateRequest(&req); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	ctx, cancel := context.WithTimeoutCause(ctx, c.streamTimeout, errRequestTimeout)
	defer cancel()

	var resp *http.Response
	opts := append([]retry.Option{
		retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
			c.logger.Warn("STREAM", "Retrying chat stream", map[string]interface{}{
				"message_id": messageID,
				"attempt":    attempt + 1,
				"delay_ms":   delay.Milliseconds(),
				"error":      err.Error(),
			})
		}),
	}, c.retryOpts...)

	err = retry.Do(ctx, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/stream", bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		if messageID != "" {
			httpReq.Header.Set("Idempotency-Key", messageID)
		}

		r, err := c.httpClient.Do(httpReq)
		if err != nil {
			return classifyTransport(ctx, err)
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(r.Body, maxErrorBody))
			_ = r.Body.Close()
			return parseHTTPError(r.StatusCode, raw)
		}
		resp = r
		return nil
	}, opts...)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	acc := NewAccumulator()
	err = sse.Decode(ctx, resp.Body, func(f sse.Frame) error {
		update, err := acc.Apply(f)
		if err != nil {
			return err
		}
		if update != nil && onUpdate != nil {
			onUpdate(*update)
		}
		if acc.Done() {
			return sse.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}

	return acc.Result()
}

// PostFeedback delivers a feedback request once, without retry.
func (c *Client) PostFeedback(ctx context.Context, req feedback.Request) error {
	return c.doJSON(ctx, http.MethodPost, "/feedback", req, nil)
}

// Ping checks GET /health.
func (c *Client) Ping(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}

// LLMHealth fetches GET /health/llm.
func (c *Client) LLMHealth(ctx context.Context) (*health.Status, error) {
	var status health.Status
	if err := c.doJSON(ctx, http.MethodGet, "/health/llm", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeoutCause(ctx, c.requestTimeout, errRequestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return classifyTransport(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseHTTPError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return protocolError(fmt.Sprintf("malformed %s response: %v", path, err))
	}
	return nil
}
