package admin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type Document struct {
	ID         string                 `json:"id"`
	Source     string                 `json:"source"`
	Title      string                 `json:"title,omitempty"`
	Content    string                 `json:"content,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	ChunkCount int                    `json:"chunk_count,omitempty"`
	CreatedAt  *time.Time             `json:"created_at,omitempty"`
	UpdatedAt  *time.Time             `json:"updated_at,omitempty"`
}

type DocumentInput struct {
	Source   string                 `json:"source" validate:"required"`
	Title    string                 `json:"title,omitempty"`
	Content  string                 `json:"content" validate:"required"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type DocumentPage struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
}

type ListDocumentsParams struct {
	Page     int
	PageSize int
	Search   string
}

func (p ListDocumentsParams) query() string {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(p.PageSize))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *Client) ListDocuments(ctx context.Context, params ListDocumentsParams) (*DocumentPage, error) {
	var page DocumentPage
	if err := c.do(ctx, http.MethodGet, "/admin/documents"+params.query(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty document id", ErrInvalidInput)
	}
	var doc Document
	if err := c.do(ctx, http.MethodGet, "/admin/documents/"+escape(id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) CreateDocument(ctx context.Context, in DocumentInput) (*Document, error) {
	if err := c.validateInput(in); err != nil {
		return nil, err
	}
	var doc Document
	if err := c.do(ctx, http.MethodPost, "/admin/documents", in, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) UpdateDocument(ctx context.Context, id string, in DocumentInput) (*Document, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty document id", ErrInvalidInput)
	}
	if err := c.validateInput(in); err != nil {
		return nil, err
	}
	var doc Document
	if err := c.do(ctx, http.MethodPut, "/admin/documents/"+escape(id), in, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty document id", ErrInvalidInput)
	}
	return c.do(ctx, http.MethodDelete, "/admin/documents/"+escape(id), nil, nil)
}
