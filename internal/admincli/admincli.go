// Package admincli maps admin command lines onto the admin REST client.
package admincli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"portfolio-chat/pkg/admin"

	"github.com/fatih/color"
)

var ErrUsage = errors.New("usage")

const Usage = `usage: admin <command> [args]
  login <token>             store the admin bearer token
  logout                    forget the stored token
  docs [search] [page]      list documents
  doc <id>                  show one document
  add <source> <file>       create a document from a file
  update <id> <source> <file>
  rm <id>                   delete a document
  status                    vector store status
  ingest | reingest         index new documents | rebuild the index
  clear-index               drop every vector
  cache                     response cache stats
  cache-clear | cache-cleanup`

var (
	headColor = color.New(color.FgCyan, color.Bold)
	okColor   = color.New(color.FgGreen)
)

// Client is the part of *admin.Client the commands use.
type Client interface {
	SetToken(ctx context.Context, token string) error
	Logout(ctx context.Context) error
	ListDocuments(ctx context.Context, params admin.ListDocumentsParams) (*admin.DocumentPage, error)
	GetDocument(ctx context.Context, id string) (*admin.Document, error)
	CreateDocument(ctx context.Context, in admin.DocumentInput) (*admin.Document, error)
	UpdateDocument(ctx context.Context, id string, in admin.DocumentInput) (*admin.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	VectorStoreStatus(ctx context.Context) (*admin.VectorStoreStatus, error)
	Ingest(ctx context.Context) (*admin.IngestResult, error)
	Reingest(ctx context.Context) (*admin.IngestResult, error)
	ClearVectorStore(ctx context.Context) error
	CacheStats(ctx context.Context) (*admin.CacheStats, error)
	ClearCache(ctx context.Context) (*admin.CacheResult, error)
	CleanupCache(ctx context.Context) (*admin.CacheResult, error)
}

type Runner struct {
	client   Client
	out      io.Writer
	readFile func(string) ([]byte, error)
}

func NewRunner(client Client, out io.Writer) *Runner {
	return &Runner{client: client, out: out, readFile: os.ReadFile}
}

func (r *Runner) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "login":
		if len(rest) != 1 {
			return ErrUsage
		}
		if err := r.client.SetToken(ctx, rest[0]); err != nil {
			return err
		}
		okColor.Fprintln(r.out, "Token saved.")
	case "logout":
		if err := r.client.Logout(ctx); err != nil {
			return err
		}
		okColor.Fprintln(r.out, "Logged out.")
	case "docs":
		return r.listDocuments(ctx, rest)
	case "doc":
		if len(rest) != 1 {
			return ErrUsage
		}
		doc, err := r.client.GetDocument(ctx, rest[0])
		if err != nil {
			return err
		}
		headColor.Fprintf(r.out, "%s  %s\n", doc.ID, doc.Source)
		if doc.Title != "" {
			fmt.Fprintln(r.out, doc.Title)
		}
		fmt.Fprintf(r.out, "chunks: %d\n\n%s\n", doc.ChunkCount, doc.Content)
	case "add", "update":
		return r.writeDocument(ctx, cmd, rest)
	case "rm":
		if len(rest) != 1 {
			return ErrUsage
		}
		if err := r.client.DeleteDocument(ctx, rest[0]); err != nil {
			return err
		}
		okColor.Fprintf(r.out, "Deleted %s.\n", rest[0])
	case "status":
		st, err := r.client.VectorStoreStatus(ctx)
		if err != nil {
			return err
		}
		headColor.Fprintf(r.out, "%s (%s)\n", st.Collection, st.Status)
		fmt.Fprintf(r.out, "documents: %d  chunks: %d\n", st.DocumentCount, st.ChunkCount)
		if st.LastIngestedAt != nil {
			fmt.Fprintf(r.out, "last ingest: %s\n", st.LastIngestedAt.Format("2006-01-02 15:04:05"))
		}
	case "ingest", "reingest":
		run := r.client.Ingest
		if cmd == "reingest" {
			run = r.client.Reingest
		}
		res, err := run(ctx)
		if err != nil {
			return err
		}
		okColor.Fprintf(r.out, "ingested %d, skipped %d, failed %d\n", res.Ingested, res.Skipped, res.Failed)
		for _, e := range res.Errors {
			fmt.Fprintln(r.out, "  "+e)
		}
	case "clear-index":
		if err := r.client.ClearVectorStore(ctx); err != nil {
			return err
		}
		okColor.Fprintln(r.out, "Vector store cleared.")
	case "cache":
		st, err := r.client.CacheStats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "entries: %d  hits: %d  misses: %d  hit rate: %.0f%%\n", st.Entries, st.Hits, st.Misses, st.HitRate*100)
	case "cache-clear", "cache-cleanup":
		run := r.client.ClearCache
		if cmd == "cache-cleanup" {
			run = r.client.CleanupCache
		}
		res, err := run(ctx)
		if err != nil {
			return err
		}
		okColor.Fprintf(r.out, "removed %d entries\n", res.Removed)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
	return nil
}

func (r *Runner) listDocuments(ctx context.Context, args []string) error {
	var params admin.ListDocumentsParams
	for _, arg := range args {
		if page, err := strconv.Atoi(arg); err == nil {
			params.Page = page
			continue
		}
		params.Search = arg
	}

	page, err := r.client.ListDocuments(ctx, params)
	if err != nil {
		return err
	}
	for _, doc := range page.Documents {
		title := doc.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(r.out, "%-36s  %-30s  %s\n", doc.ID, doc.Source, title)
	}
	headColor.Fprintf(r.out, "%d of %d documents\n", len(page.Documents), page.Total)
	return nil
}

func (r *Runner) writeDocument(ctx context.Context, cmd string, args []string) error {
	var id string
	if cmd == "update" {
		if len(args) != 3 {
			return ErrUsage
		}
		id, args = args[0], args[1:]
	}
	if len(args) != 2 {
		return ErrUsage
	}

	content, err := r.readFile(args[1])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[1], err)
	}
	in := admin.DocumentInput{Source: args[0], Content: strings.TrimSpace(string(content))}

	var doc *admin.Document
	if cmd == "update" {
		doc, err = r.client.UpdateDocument(ctx, id, in)
	} else {
		doc, err = r.client.CreateDocument(ctx, in)
	}
	if err != nil {
		return err
	}
	okColor.Fprintf(r.out, "Saved %s (%s).\n", doc.ID, doc.Source)
	return nil
}
