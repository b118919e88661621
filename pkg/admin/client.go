// Package admin is a bearer-token client for the RAG backend's admin
// surface: documents, the vector index and the response cache.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"portfolio-chat/internal/pkg/logger"
	"portfolio-chat/pkg/retry"
	"portfolio-chat/pkg/store"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

const DefaultTimeout = 30 * time.Second

var (
	ErrUnauthorized = errors.New("admin: not authenticated")
	ErrInvalidInput = errors.New("admin: invalid input")
)

// APIError is a non-2xx admin response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin api error: status=%d message=%s", e.StatusCode, e.Message)
}

func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      store.Store
	Logger     logger.ILogger
	Timeout    time.Duration
	Retry      []retry.Option
	Now        func() time.Time
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	store      store.Store
	logger     logger.ILogger
	timeout    time.Duration
	retryOpts  []retry.Option
	now        func() time.Time
	validate   *validator.Validate
}

func NewClient(opts ClientOptions) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		store:      opts.Store,
		logger:     logger.OrNop(opts.Logger),
		timeout:    opts.Timeout,
		retryOpts:  opts.Retry,
		now:        opts.Now,
		validate:   validator.New(),
	}
}

// SetToken persists the bearer token.
func (c *Client) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidInput)
	}
	return c.store.Set(ctx, store.KeyAdminToken, token)
}

// Logout forgets the stored token.
func (c *Client) Logout(ctx context.Context) error {
	return c.store.Delete(ctx, store.KeyAdminToken)
}

// token loads the stored token and rejects it locally when it is a JWT past
// its exp claim. Opaque tokens are left to the server.
func (c *Client) token(ctx context.Context) (string, error) {
	token, found, err := c.store.Get(ctx, store.KeyAdminToken)
	if err != nil {
		return "", fmt.Errorf("load admin token: %w", err)
	}
	if !found || token == "" {
		return "", ErrUnauthorized
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return token, nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return token, nil
	}
	if !c.now().Before(exp.Time) {
		c.logger.Info("ADMIN", "Stored admin token expired", map[string]interface{}{"expired_at": exp.Time})
		_ = c.store.Delete(ctx, store.KeyAdminToken)
		return "", ErrUnauthorized
	}
	return token, nil
}

// Authenticated reports whether a usable token is stored.
func (c *Client) Authenticated(ctx context.Context) bool {
	_, err := c.token(ctx)
	return err == nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var raw []byte
	if body != nil {
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
	}

	call := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var reader io.Reader
		if raw != nil {
			reader = bytes.NewReader(raw)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if raw != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			_ = c.store.Delete(ctx, store.KeyAdminToken)
			return ErrUnauthorized
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: apiMessage(resp.StatusCode, payload)}
		}
		if out == nil || len(bytes.TrimSpace(payload)) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil
	}

	// Only reads are safe to repeat.
	if method != http.MethodGet {
		err = call(ctx)
	} else {
		err = retry.Do(ctx, call, c.retryOpts...)
	}
	if err != nil {
		c.logger.Warn("ADMIN", "Admin request failed", map[string]interface{}{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		})
	}
	return err
}

func apiMessage(status int, raw []byte) string {
	var env struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.Detail != "" {
			return env.Detail
		}
		if env.Message != "" {
			return env.Message
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return http.StatusText(status)
}

func (c *Client) validateInput(v any) error {
	if err := c.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func escape(id string) string {
	return url.PathEscape(id)
}
