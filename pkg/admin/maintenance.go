package admin

import (
	"context"
	"net/http"
	"time"
)

type VectorStoreStatus struct {
	Status         string     `json:"status"`
	Collection     string     `json:"collection"`
	DocumentCount  int        `json:"document_count"`
	ChunkCount     int        `json:"chunk_count"`
	LastIngestedAt *time.Time `json:"last_ingested_at,omitempty"`
}

type IngestResult struct {
	Ingested int      `json:"ingested"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

type CacheStats struct {
	Entries   int     `json:"entries"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	SizeBytes int64   `json:"size_bytes"`
}

type CacheResult struct {
	Removed int `json:"removed"`
}

func (c *Client) VectorStoreStatus(ctx context.Context) (*VectorStoreStatus, error) {
	var out VectorStoreStatus
	if err := c.do(ctx, http.MethodGet, "/admin/vectorstore/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ingest adds documents not yet in the index.
func (c *Client) Ingest(ctx context.Context) (*IngestResult, error) {
	return c.ingest(ctx, "/admin/vectorstore/ingest")
}

// Reingest rebuilds the index from every document.
func (c *Client) Reingest(ctx context.Context) (*IngestResult, error) {
	return c.ingest(ctx, "/admin/vectorstore/reingest")
}

func (c *Client) ingest(ctx context.Context, path string) (*IngestResult, error) {
	var out IngestResult
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ClearVectorStore(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/admin/vectorstore/clear", nil, nil)
}

func (c *Client) CacheStats(ctx context.Context) (*CacheStats, error) {
	var out CacheStats
	if err := c.do(ctx, http.MethodGet, "/admin/cache/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ClearCache(ctx context.Context) (*CacheResult, error) {
	var out CacheResult
	if err := c.do(ctx, http.MethodPost, "/admin/cache/clear", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CleanupCache evicts expired entries only.
func (c *Client) CleanupCache(ctx context.Context) (*CacheResult, error) {
	var out CacheResult
	if err := c.do(ctx, http.MethodPost, "/admin/cache/cleanup", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
