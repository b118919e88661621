package terminal

import (
	"bytes"
	"errors"
	"testing"

	"portfolio-chat/pkg/chat"
	"portfolio-chat/pkg/health"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func init() {
	color.NoColor = true
}

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"", Command{Kind: CmdEmpty}},
		{"   ", Command{Kind: CmdEmpty}},
		{"What certifications do you have?", Command{Kind: CmdAsk, Arg: "What certifications do you have?"}},
		{"  /reset ", Command{Kind: CmdReset}},
		{"/CLEAR", Command{Kind: CmdClear}},
		{"/retry", Command{Kind: CmdRetry}},
		{"/health", Command{Kind: CmdHealth}},
		{"/up", Command{Kind: CmdUp}},
		{"/up   very helpful ", Command{Kind: CmdUp, Arg: "very helpful"}},
		{"/down wrong project", Command{Kind: CmdDown, Arg: "wrong project"}},
		{"/exit", Command{Kind: CmdQuit}},
		{"/quit", Command{Kind: CmdQuit}},
		{"/help", Command{Kind: CmdHelp}},
		{"/frobnicate now", Command{Kind: CmdUnknown, Arg: "/frobnicate"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.line))
		})
	}
}

func TestRenderer_PrintsOnlyDeltas(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out)

	user := chat.Message{ID: "u1", Role: chat.RoleUser, Content: "hi"}
	r.Update([]chat.Message{user})
	assert.Empty(t, out.String())

	r.Update([]chat.Message{user, {ID: "a1", Role: chat.RoleAssistant}})
	r.Update([]chat.Message{user, {ID: "a1", Role: chat.RoleAssistant, Content: "Hel"}})
	r.Update([]chat.Message{user, {ID: "a1", Role: chat.RoleAssistant, Content: "Hel"}})
	r.Update([]chat.Message{user, {ID: "a1", Role: chat.RoleAssistant, Content: "Hello"}})

	assert.Equal(t, "\nassistant> Hello", out.String())
}

func TestRenderer_FinishPrintsMetadata(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out)

	confidence := 0.87
	grounded := false
	msg := chat.Message{
		ID:         "a1",
		Role:       chat.RoleAssistant,
		Content:    "Certified AWS Solutions Architect",
		Confidence: &confidence,
		Grounded:   &grounded,
		Sources:    []chat.Source{{Source: "certifications.md", Distance: 0.2}},
		RewriteMetadata: &chat.RewriteMetadata{
			OriginalQuery:  "certs?",
			RewrittenQuery: "professional certifications",
		},
	}
	r.Update([]chat.Message{{ID: "a1", Role: chat.RoleAssistant, Content: "Certified"}})
	r.Finish(msg, chat.StateCompleted)

	got := out.String()
	assert.Contains(t, got, "assistant> Certified AWS Solutions Architect\n")
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("Certified")))
	assert.Contains(t, got, "confidence 87%")
	assert.Contains(t, got, "not grounded")
	assert.Contains(t, got, `searched for "professional certifications"`)
	assert.Contains(t, got, "[1] certifications.md (90% relevant)")
}

func TestRenderer_FinishStopped(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out)

	r.Finish(chat.Message{ID: "a1", Role: chat.RoleAssistant, Content: "Certified "}, chat.StateStopped)
	assert.Equal(t, "assistant> Certified \n  (stopped)\n", out.String())
}

func TestRenderer_ErrorUsesUserMessage(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out)

	r.Error(&chat.Error{Kind: chat.KindRateLimited, StatusCode: 429, Message: "slow down"})
	r.Error(errors.New("boom"))

	assert.Contains(t, out.String(), "error: ")
	assert.Contains(t, out.String(), "error: boom\n")
}

func TestRenderer_LLMStatus(t *testing.T) {
	tests := []struct {
		name   string
		status health.Status
		want   string
	}{
		{"available", health.Status{Status: health.StatusAvailable, IsHot: true}, "LLM available"},
		{"cold", health.Status{Status: health.StatusAvailable}, "warming up"},
		{"busy", health.Status{Status: health.StatusBusy, IsHot: true}, "busy"},
		{"fallback", health.Status{Status: health.StatusBusy, FallbackAvailable: true, FallbackProvider: "groq"}, "fallback provider groq"},
		{"error", health.Status{Status: health.StatusError}, "reports an error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			NewRenderer(&out).LLMStatus(tt.status)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}
