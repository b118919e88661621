package chat

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source is a retrieved citation ranked by cosine distance (0..2).
type Source struct {
	ID       string  `json:"id"`
	Source   string  `json:"source"`
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

// Relevance converts the distance to a 0..100 percentage.
func (s Source) Relevance() float64 {
	r := (1 - s.Distance/2) * 100
	if r < 0 {
		return 0
	}
	return r
}

// RewriteMetadata describes how the backend rewrote the question before
// retrieval.
type RewriteMetadata struct {
	OriginalQuery  string  `json:"original_query"`
	RewrittenQuery string  `json:"rewritten_query"`
	PatternName    string  `json:"pattern_name,omitempty"`
	ApplyReason    string  `json:"apply_reason,omitempty"`
	LatencyMS      float64 `json:"latency_ms,omitempty"`
}

type AmbiguityMetadata struct {
	IsAmbiguous            bool    `json:"is_ambiguous"`
	Score                  float64 `json:"score"`
	ClarificationRequested bool    `json:"clarification_requested"`
}

type FeedbackState struct {
	ThumbsUp  bool
	Comment   string
	Delivered bool
}

type Message struct {
	ID              string
	Role            Role
	Content         string
	Sources         []Source
	Confidence      *float64
	Grounded        *bool
	Timestamp       time.Time
	RewriteMetadata *RewriteMetadata
	Ambiguity       *AmbiguityMetadata
	// Feedback is set once the user rated the answer.
	Feedback *FeedbackState
}

// clone returns a copy that shares nothing mutable with m.
func (m Message) clone() Message {
	out := m
	if m.Sources != nil {
		out.Sources = append([]Source(nil), m.Sources...)
	}
	if m.Confidence != nil {
		v := *m.Confidence
		out.Confidence = &v
	}
	if m.Grounded != nil {
		v := *m.Grounded
		out.Grounded = &v
	}
	if m.RewriteMetadata != nil {
		v := *m.RewriteMetadata
		out.RewriteMetadata = &v
	}
	if m.Ambiguity != nil {
		v := *m.Ambiguity
		out.Ambiguity = &v
	}
	if m.Feedback != nil {
		v := *m.Feedback
		out.Feedback = &v
	}
	return out
}

// applyUpdate patches metadata fields. Content is left to the animator.
func (m *Message) applyUpdate(u *StreamUpdate) {
	if u.Sources != nil {
		m.Sources = append([]Source(nil), u.Sources...)
	}
	if u.Grounded != nil {
		v := *u.Grounded
		m.Grounded = &v
	}
	if u.Confidence != nil {
		v := *u.Confidence
		m.Confidence = &v
	}
	if u.RewriteMetadata != nil {
		v := *u.RewriteMetadata
		m.RewriteMetadata = &v
	}
	if u.Ambiguity != nil {
		v := *u.Ambiguity
		m.Ambiguity = &v
	}
}

// applyFinal replaces the streamed state with the authoritative response.
func (m *Message) applyFinal(r *ChatResponse) {
	m.Content = r.Answer
	m.Sources = append([]Source(nil), r.Sources...)
	grounded := r.Grounded
	m.Grounded = &grounded
	if r.Confidence != nil {
		v := *r.Confidence
		m.Confidence = &v
	}
	if r.RewriteMetadata != nil {
		v := *r.RewriteMetadata
		m.RewriteMetadata = &v
	}
	if r.Ambiguity != nil {
		v := *r.Ambiguity
		m.Ambiguity = &v
	}
}
