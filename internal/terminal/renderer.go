// Package terminal renders the chat store to a line-oriented terminal.
package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"portfolio-chat/pkg/chat"
	"portfolio-chat/pkg/health"

	"github.com/fatih/color"
)

var (
	assistantColor = color.New(color.FgCyan)
	metaColor      = color.New(color.FgHiBlack)
	errorColor     = color.New(color.FgRed, color.Bold)
	warnColor      = color.New(color.FgYellow)
	okColor        = color.New(color.FgGreen)
)

// Renderer prints the growing assistant message incrementally. Update is
// safe to call from the store's OnChange hook.
type Renderer struct {
	out io.Writer

	mu        sync.Mutex
	currentID string
	printed   string
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Update prints whatever part of the newest assistant message has not been
// printed yet.
func (r *Renderer) Update(messages []chat.Message) {
	var last *chat.Message
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleAssistant {
			last = &messages[i]
			break
		}
	}
	if last == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if last.ID != r.currentID {
		if r.currentID == "" || r.printed != "" {
			fmt.Fprintln(r.out)
		}
		r.currentID = last.ID
		r.printed = ""
		assistantColor.Fprint(r.out, "assistant> ")
	}
	if !strings.HasPrefix(last.Content, r.printed) {
		// Content is only ever extended; a mismatch means a different
		// message took the slot.
		return
	}
	if delta := last.Content[len(r.printed):]; delta != "" {
		fmt.Fprint(r.out, delta)
		r.printed = last.Content
	}
}

// Reset forgets the in-progress message, e.g. after /clear.
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentID = ""
	r.printed = ""
}

// Finish closes the current line and prints the answer's citations and
// quality signals.
func (r *Renderer) Finish(msg chat.Message, state chat.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == r.currentID && strings.HasPrefix(msg.Content, r.printed) {
		fmt.Fprint(r.out, msg.Content[len(r.printed):])
	} else {
		assistantColor.Fprint(r.out, "assistant> ")
		fmt.Fprint(r.out, msg.Content)
	}
	r.currentID = msg.ID
	r.printed = msg.Content
	fmt.Fprintln(r.out)

	if state == chat.StateStopped {
		warnColor.Fprintln(r.out, "  (stopped)")
		return
	}
	for _, line := range describe(msg) {
		metaColor.Fprintln(r.out, "  "+line)
	}
}

func describe(msg chat.Message) []string {
	var lines []string
	if msg.Confidence != nil {
		lines = append(lines, fmt.Sprintf("confidence %.0f%%", *msg.Confidence*100))
	}
	if msg.Grounded != nil && !*msg.Grounded {
		lines = append(lines, "answer is not grounded in the portfolio documents")
	}
	if msg.Ambiguity != nil && msg.Ambiguity.IsAmbiguous {
		lines = append(lines, fmt.Sprintf("question looked ambiguous (score %.2f)", msg.Ambiguity.Score))
	}
	if rw := msg.RewriteMetadata; rw != nil && rw.RewrittenQuery != "" && rw.RewrittenQuery != rw.OriginalQuery {
		lines = append(lines, fmt.Sprintf("searched for %q", rw.RewrittenQuery))
	}
	for i, src := range msg.Sources {
		lines = append(lines, fmt.Sprintf("[%d] %s (%.0f%% relevant)", i+1, src.Source, src.Relevance()))
	}
	return lines
}

func (r *Renderer) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	errorColor.Fprintln(r.out, "error: "+chat.UserMessage(err))
}

func (r *Renderer) Info(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	okColor.Fprintf(r.out, format+"\n", args...)
}

func (r *Renderer) Warn(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	warnColor.Fprintf(r.out, format+"\n", args...)
}

// LLMStatus prints a one-line summary of the LLM health report.
func (r *Renderer) LLMStatus(status health.Status) {
	switch {
	case status.UsingFallback():
		r.Warn("LLM busy, answering with fallback provider %s", status.FallbackProvider)
	case status.Status == health.StatusBusy:
		r.Warn("LLM is busy, answers may be slow")
	case status.Status == health.StatusError:
		r.Warn("LLM reports an error")
	case !status.IsHot:
		r.Warn("LLM is warming up, the first answer may be slow")
	default:
		r.Info("LLM available")
	}
}
