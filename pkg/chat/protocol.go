package chat

import (
	"encoding/json"
	"strings"

	"portfolio-chat/pkg/sse"
)

// Stream event names.
const (
	EventMetadata = "metadata"
	EventToken    = "token"
	EventError    = "error"
	EventDone     = "done"
)

const MaxQuestionLength = 2000

// ChatRequest is the body of POST /chat/stream.
type ChatRequest struct {
	Question  string `json:"question" validate:"required,min=1,max=2000"`
	SessionID string `json:"session_id,omitempty"`
}

// StreamUpdate is a partial patch for the in-flight assistant message. Nil
// fields are untouched.
type StreamUpdate struct {
	Answer          *string
	Sources         []Source
	Grounded        *bool
	SessionID       string
	Confidence      *float64
	RewriteMetadata *RewriteMetadata
	Ambiguity       *AmbiguityMetadata
}

// ChatResponse is the final authoritative answer assembled from a stream.
type ChatResponse struct {
	Answer          string
	Sources         []Source
	Grounded        bool
	SessionID       string
	Confidence      *float64
	RewriteMetadata *RewriteMetadata
	Ambiguity       *AmbiguityMetadata
}

type metadataPayload struct {
	Sources                *[]Source          `json:"sources"`
	Grounded               *bool              `json:"grounded"`
	SessionID              *string            `json:"session_id"`
	Confidence             *float64           `json:"confidence"`
	RewriteMetadata        *RewriteMetadata   `json:"rewrite_metadata"`
	IsAmbiguous            *bool              `json:"is_ambiguous"`
	AmbiguityScore         *float64           `json:"ambiguity_score"`
	ClarificationRequested *bool              `json:"clarification_requested"`
	Ambiguity              *AmbiguityMetadata `json:"ambiguity"`
}

// Accumulator applies stream frames in arrival order and builds the final
// response.
type Accumulator struct {
	answer strings.Builder
	resp   ChatResponse
	done   bool
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Apply consumes one frame. It returns a non-nil update when the frame
// changed state, and a protocol *Error for an error event. Frames after done
// are ignored.
func (a *Accumulator) Apply(f sse.Frame) (*StreamUpdate, error) {
	if a.done {
		return nil, nil
	}

	switch f.Event {
	case EventMetadata:
		return a.applyMetadata(f.Data), nil
	case EventToken:
		a.answer.WriteString(decodeToken(f.Data))
		full := a.answer.String()
		return &StreamUpdate{Answer: &full}, nil
	case EventError:
		a.done = true
		return nil, protocolError(errorDetail(f.Data))
	case EventDone:
		a.done = true
		return nil, nil
	default:
		return nil, nil
	}
}

// Done reports whether a terminal frame was seen.
func (a *Accumulator) Done() bool {
	return a.done
}

func (a *Accumulator) Answer() string {
	return a.answer.String()
}

// Result validates and returns the final response.
func (a *Accumulator) Result() (*ChatResponse, error) {
	resp := a.resp
	resp.Answer = a.answer.String()
	resp.Sources = append([]Source(nil), a.resp.Sources...)

	if resp.Answer == "" || resp.SessionID == "" {
		return nil, protocolError(incompleteResponse)
	}
	return &resp, nil
}

func (a *Accumulator) applyMetadata(data string) *StreamUpdate {
	var p metadataPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil
	}

	u := &StreamUpdate{}
	changed := false

	if p.Sources != nil {
		a.resp.Sources = append([]Source(nil), (*p.Sources)...)
		u.Sources = append([]Source{}, (*p.Sources)...)
		changed = true
	}
	if p.Grounded != nil {
		a.resp.Grounded = *p.Grounded
		u.Grounded = p.Grounded
		changed = true
	}
	if p.SessionID != nil && *p.SessionID != "" {
		a.resp.SessionID = *p.SessionID
		u.SessionID = *p.SessionID
		changed = true
	}
	if p.Confidence != nil {
		a.resp.Confidence = p.Confidence
		u.Confidence = p.Confidence
		changed = true
	}
	if p.RewriteMetadata != nil {
		a.resp.RewriteMetadata = p.RewriteMetadata
		u.RewriteMetadata = p.RewriteMetadata
		changed = true
	}

	// A nested ambiguity object wins over the flat fields.
	var amb *AmbiguityMetadata
	switch {
	case p.Ambiguity != nil:
		amb = p.Ambiguity
	case p.IsAmbiguous != nil || p.AmbiguityScore != nil || p.ClarificationRequested != nil:
		amb = &AmbiguityMetadata{}
		if p.IsAmbiguous != nil {
			amb.IsAmbiguous = *p.IsAmbiguous
		}
		if p.AmbiguityScore != nil {
			amb.Score = *p.AmbiguityScore
		}
		if p.ClarificationRequested != nil {
			amb.ClarificationRequested = *p.ClarificationRequested
		}
	}
	if amb != nil {
		a.resp.Ambiguity = amb
		u.Ambiguity = amb
		changed = true
	}

	if !changed {
		return nil
	}
	return u
}

// decodeToken unquotes JSON string payloads and passes raw text through.
func decodeToken(data string) string {
	if len(data) >= 2 && strings.HasPrefix(data, `"`) && strings.HasSuffix(data, `"`) {
		var s string
		if err := json.Unmarshal([]byte(data), &s); err == nil {
			return s
		}
	}
	return data
}

func errorDetail(data string) string {
	var p struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal([]byte(data), &p); err == nil && p.Detail != "" {
		return p.Detail
	}
	if msg := strings.TrimSpace(data); msg != "" {
		return msg
	}
	return "stream error"
}
