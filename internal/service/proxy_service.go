package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"portfolio-chat/internal/config"
	"portfolio-chat/internal/dto"
	"portfolio-chat/internal/pkg/logger"
	"portfolio-chat/pkg/events"
)

var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Headers copied from the browser request onto the upstream request.
var forwardedHeaders = []string{"Authorization", "Idempotency-Key", "Last-Event-ID"}

type IProxyService interface {
	Forward(ctx context.Context, req *dto.ProxyRequest) (*dto.ProxyResponse, error)
}

type proxyService struct {
	baseURL   string
	apiKey    string
	timeout   time.Duration
	client    *http.Client
	publisher events.Publisher
	logger    logger.ILogger
}

// NewProxyService forwards /api/* calls to the RAG backend. A nil publisher
// disables audit events.
func NewProxyService(cfg config.UpstreamConfig, client *http.Client, publisher events.Publisher, log logger.ILogger) IProxyService {
	if client == nil {
		client = &http.Client{}
	}
	if publisher == nil {
		publisher = events.NopBus{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &proxyService{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		timeout:   timeout,
		client:    client,
		publisher: publisher,
		logger:    logger.OrNop(log),
	}
}

func (s *proxyService) Forward(ctx context.Context, req *dto.ProxyRequest) (*dto.ProxyResponse, error) {
	start := time.Now()

	// The deadline outlives this call: streamed bodies are read after Forward
	// returns, so cancel runs when the body is closed.
	ctx, cancel := context.WithTimeout(ctx, s.timeout)

	target := s.baseURL + req.Path
	if req.RawQuery != "" {
		target += "?" + req.RawQuery
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	upstreamReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	if s.apiKey != "" {
		upstreamReq.Header.Set("X-API-Key", s.apiKey)
	}
	if req.Origin != "" {
		upstreamReq.Header.Set("Origin", req.Origin)
	}
	if req.ContentType != "" {
		upstreamReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.Accept != "" {
		upstreamReq.Header.Set("Accept", req.Accept)
	}
	for _, name := range forwardedHeaders {
		if v := req.Headers.Get(name); v != "" {
			upstreamReq.Header.Set(name, v)
		}
	}

	resp, err := s.client.Do(upstreamReq)
	if err != nil {
		cancel()
		s.logger.Error("PROXY", "Upstream request failed", map[string]interface{}{
			"method": req.Method,
			"path":   req.Path,
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	s.logger.Info("PROXY", "Forwarded request", map[string]interface{}{
		"method":     req.Method,
		"path":       req.Path,
		"status":     resp.StatusCode,
		"latency_ms": time.Since(start).Milliseconds(),
	})

	if audited(req.Path) {
		s.audit(req, resp.StatusCode, time.Since(start))
	}

	return &dto.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

func audited(path string) bool {
	return strings.HasPrefix(path, "/chat") || strings.HasPrefix(path, "/feedback")
}

// audit is best effort; a missing NATS server must never fail a chat call.
func (s *proxyService) audit(req *dto.ProxyRequest, status int, latency time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	event := events.New(events.TypeProxyForwarded, map[string]interface{}{
		"method":     req.Method,
		"path":       req.Path,
		"status":     status,
		"origin":     req.Origin,
		"latency_ms": latency.Milliseconds(),
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("PROXY", "Failed to publish audit event", map[string]interface{}{
			"path":  req.Path,
			"error": err.Error(),
		})
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.once.Do(c.cancel)
	return err
}
