package admincli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"portfolio-chat/pkg/admin"
	"portfolio-chat/pkg/store"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

type adminCall struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   admin.DocumentInput
}

type fakeAdminAPI struct {
	mu    sync.Mutex
	calls []adminCall
}

func (f *fakeAdminAPI) recorded() []adminCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]adminCall(nil), f.calls...)
}

func newRunner(t *testing.T) (*Runner, *fakeAdminAPI, store.Store, *bytes.Buffer) {
	t.Helper()
	api := &fakeAdminAPI{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/documents", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"documents":[{"id":"d1","source":"certifications.md","title":"Certs"}],"total":7,"page":1,"page_size":20}`))
	})
	mux.HandleFunc("POST /admin/documents", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"d9","source":"projects.md"}`))
	})
	mux.HandleFunc("DELETE /admin/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /admin/vectorstore/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ready","collection":"portfolio","document_count":7,"chunk_count":120}`))
	})
	mux.HandleFunc("POST /admin/vectorstore/reingest", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ingested":7,"skipped":0,"failed":1,"errors":["resume.pdf: unsupported"]}`))
	})
	mux.HandleFunc("GET /admin/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"entries":4,"hits":30,"misses":10,"hit_rate":0.75}`))
	})
	mux.HandleFunc("POST /admin/cache/cleanup", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"removed":2}`))
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := adminCall{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Auth: r.Header.Get("Authorization")}
		if r.Body != nil && r.Method != http.MethodGet {
			_ = json.NewDecoder(r.Body).Decode(&call.Body)
		}
		api.mu.Lock()
		api.calls = append(api.calls, call)
		api.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	kv := store.NewMemoryStore()
	client := admin.NewClient(admin.ClientOptions{BaseURL: srv.URL, Store: kv})
	var out bytes.Buffer
	r := NewRunner(client, &out)
	r.readFile = func(path string) ([]byte, error) {
		if path == "projects.md" {
			return []byte("  Built a RAG portfolio assistant.\n"), nil
		}
		return nil, os.ErrNotExist
	}
	return r, api, kv, &out
}

func TestRun_LoginStoresTokenUsedByLaterCommands(t *testing.T) {
	r, api, kv, out := newRunner(t)
	ctx := context.Background()

	require.NoError(t, r.Run(ctx, []string{"login", "admin-key"}))
	token, found, err := kv.Get(ctx, store.KeyAdminToken)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "admin-key", token)

	require.NoError(t, r.Run(ctx, []string{"status"}))
	calls := api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer admin-key", calls[0].Auth)
	assert.Contains(t, out.String(), "portfolio (ready)")
	assert.Contains(t, out.String(), "documents: 7  chunks: 120")

	require.NoError(t, r.Run(ctx, []string{"logout"}))
	err = r.Run(ctx, []string{"status"})
	assert.ErrorIs(t, err, admin.ErrUnauthorized)
	assert.Len(t, api.recorded(), 1)
}

func TestRun_Commands(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		method   string
		path     string
		query    string
		contains string
	}{
		{"list with search and page", []string{"docs", "aws", "2"}, http.MethodGet, "/admin/documents", "page=2&search=aws", "1 of 7 documents"},
		{"delete", []string{"rm", "d1"}, http.MethodDelete, "/admin/documents/d1", "", "Deleted d1."},
		{"reingest", []string{"reingest"}, http.MethodPost, "/admin/vectorstore/reingest", "", "resume.pdf: unsupported"},
		{"cache stats", []string{"cache"}, http.MethodGet, "/admin/cache/stats", "", "hit rate: 75%"},
		{"cache cleanup", []string{"cache-cleanup"}, http.MethodPost, "/admin/cache/cleanup", "", "removed 2 entries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, api, _, out := newRunner(t)
			ctx := context.Background()
			require.NoError(t, r.Run(ctx, []string{"login", "admin-key"}))

			require.NoError(t, r.Run(ctx, tt.args))
			calls := api.recorded()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.method, calls[0].Method)
			assert.Equal(t, tt.path, calls[0].Path)
			assert.Equal(t, tt.query, calls[0].Query)
			assert.Contains(t, out.String(), tt.contains)
		})
	}
}

func TestRun_AddReadsFile(t *testing.T) {
	r, api, _, out := newRunner(t)
	ctx := context.Background()
	require.NoError(t, r.Run(ctx, []string{"login", "admin-key"}))

	require.NoError(t, r.Run(ctx, []string{"add", "projects.md", "projects.md"}))
	calls := api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, admin.DocumentInput{Source: "projects.md", Content: "Built a RAG portfolio assistant."}, calls[0].Body)
	assert.Contains(t, out.String(), "Saved d9 (projects.md).")

	err := r.Run(ctx, []string{"add", "missing.md", "missing.md"})
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Len(t, api.recorded(), 1)
}

func TestRun_Usage(t *testing.T) {
	r, api, _, _ := newRunner(t)
	ctx := context.Background()

	for _, args := range [][]string{
		nil,
		{"login"},
		{"doc"},
		{"rm", "a", "b"},
		{"update", "d1", "projects.md"},
		{"frobnicate"},
	} {
		assert.ErrorIs(t, r.Run(ctx, args), ErrUsage, "%v", args)
	}
	assert.Empty(t, api.recorded())
}
