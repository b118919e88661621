package chat

import (
	"strings"
	"testing"

	"portfolio-chat/pkg/sse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, chunks ...string) (*Accumulator, []StreamUpdate, error) {
	t.Helper()
	acc := NewAccumulator()
	var updates []StreamUpdate
	var streamErr error

	dec := sse.NewDecoder(func(f sse.Frame) error {
		u, err := acc.Apply(f)
		if err != nil {
			return err
		}
		if u != nil {
			updates = append(updates, *u)
		}
		return nil
	})
	for _, c := range chunks {
		if _, err := dec.Write([]byte(c)); err != nil {
			streamErr = err
			break
		}
	}
	return acc, updates, streamErr
}

func rawStream(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		b.WriteString("event: " + pairs[i] + "\n")
		b.WriteString("data: " + pairs[i+1] + "\n")
	}
	return b.String()
}

func TestAccumulator_CertificationsStream(t *testing.T) {
	acc, updates, err := decodeAll(t, rawStream(certificationsStream("s-1")...))
	require.NoError(t, err)

	resp, err := acc.Result()
	require.NoError(t, err)
	assert.Equal(t, "Certified Kubernetes Administrator", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "certifications.md", resp.Sources[0].Source)
	assert.True(t, resp.Grounded)
	assert.Equal(t, "s-1", resp.SessionID)

	// One update for metadata, one per token.
	require.Len(t, updates, 3)
	assert.Equal(t, "Certified ", *updates[1].Answer)
	assert.Equal(t, "Certified Kubernetes Administrator", *updates[2].Answer)
}

func TestAccumulator_FragmentationInvariant(t *testing.T) {
	stream := rawStream(
		EventMetadata, `{"sources":[{"id":"a","source":"cv.md","text":"Go, Kubernetes","distance":0.2},{"id":"b","source":"projects.md","text":"é ü","distance":1.1}],"session_id":"s-9"}`,
		EventToken, `"Hello, "`,
		EventToken, `"wörld \"quoted\""`,
		EventToken, `raw tail`,
		EventDone, `{}`,
	)

	ref, _, err := decodeAll(t, stream)
	require.NoError(t, err)
	want, err := ref.Result()
	require.NoError(t, err)

	for i := 0; i <= len(stream); i++ {
		acc, _, err := decodeAll(t, stream[:i], stream[i:])
		require.NoError(t, err, "offset %d", i)
		got, err := acc.Result()
		require.NoError(t, err, "offset %d", i)
		assert.Equal(t, want.Answer, got.Answer, "offset %d", i)
		assert.Equal(t, want.Sources, got.Sources, "offset %d", i)
	}
}

func TestAccumulator_Tokens(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"quoted", `"hi "`, "hi "},
		{"escaped", `"line\nbreak"`, "line\nbreak"},
		{"raw", `plain text`, "plain text"},
		{"raw with inner quote", `say "hi"`, `say "hi"`},
		{"broken quoted", `"unterminated \"`, `"unterminated \"`},
		{"single quote char", `"`, `"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccumulator()
			u, err := acc.Apply(sse.Frame{Event: EventToken, Data: tt.data})
			require.NoError(t, err)
			require.NotNil(t, u)
			assert.Equal(t, tt.want, *u.Answer)
		})
	}
}

func TestAccumulator_MalformedMetadataIsSwallowed(t *testing.T) {
	acc := NewAccumulator()
	_, err := acc.Apply(sse.Frame{Event: EventMetadata, Data: `{"session_id":"s-1","grounded":true}`})
	require.NoError(t, err)

	u, err := acc.Apply(sse.Frame{Event: EventMetadata, Data: `{"session_id": "s-2", "grounded": `})
	require.NoError(t, err)
	assert.Nil(t, u)

	_, _ = acc.Apply(sse.Frame{Event: EventToken, Data: `"ok"`})
	resp, err := acc.Result()
	require.NoError(t, err)
	assert.Equal(t, "s-1", resp.SessionID)
	assert.True(t, resp.Grounded)
}

func TestAccumulator_Ambiguity(t *testing.T) {
	tests := []struct {
		name string
		data string
		want AmbiguityMetadata
	}{
		{
			name: "flat fields",
			data: `{"is_ambiguous":true,"ambiguity_score":0.7,"clarification_requested":true}`,
			want: AmbiguityMetadata{IsAmbiguous: true, Score: 0.7, ClarificationRequested: true},
		},
		{
			name: "nested wins",
			data: `{"is_ambiguous":false,"ambiguity_score":0.1,"ambiguity":{"is_ambiguous":true,"score":0.9,"clarification_requested":false}}`,
			want: AmbiguityMetadata{IsAmbiguous: true, Score: 0.9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccumulator()
			u, err := acc.Apply(sse.Frame{Event: EventMetadata, Data: tt.data})
			require.NoError(t, err)
			require.NotNil(t, u)
			require.NotNil(t, u.Ambiguity)
			assert.Equal(t, tt.want, *u.Ambiguity)
		})
	}
}

func TestAccumulator_RewriteAndConfidence(t *testing.T) {
	acc := NewAccumulator()
	u, err := acc.Apply(sse.Frame{Event: EventMetadata, Data: `{"confidence":0.82,"rewrite_metadata":{"original_query":"certs?","rewritten_query":"What certifications","pattern_name":"expand"}}`})
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.InDelta(t, 0.82, *u.Confidence, 1e-9)
	assert.Equal(t, "What certifications", u.RewriteMetadata.RewrittenQuery)
}

func TestAccumulator_ErrorEvent(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"json detail", `{"detail":"LLM provider unavailable"}`, "LLM provider unavailable"},
		{"raw text", `upstream exploded`, "upstream exploded"},
		{"empty", ``, "stream error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccumulator()
			_, err := acc.Apply(sse.Frame{Event: EventError, Data: tt.data})
			require.Error(t, err)
			assert.Equal(t, KindProtocol, KindOf(err))
			assert.Equal(t, tt.want, UserMessage(err))
			assert.True(t, acc.Done())
		})
	}
}

func TestAccumulator_IgnoresUnknownAndPostDone(t *testing.T) {
	acc, _, err := decodeAll(t, rawStream(
		EventMetadata, `{"session_id":"s"}`,
		"ping", `{"x":1}`,
		EventToken, `"a"`,
		EventDone, `{}`,
		EventToken, `"b"`,
	))
	require.NoError(t, err)
	assert.Equal(t, "a", acc.Answer())
}

func TestAccumulator_IncompleteResponse(t *testing.T) {
	tests := []struct {
		name   string
		stream string
	}{
		{"no session id", rawStream(EventToken, `"answer"`, EventDone, `{}`)},
		{"no answer", rawStream(EventMetadata, `{"session_id":"s"}`, EventDone, `{}`)},
		{"empty stream", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, _, err := decodeAll(t, tt.stream)
			require.NoError(t, err)
			_, err = acc.Result()
			require.Error(t, err)
			assert.Equal(t, KindProtocol, KindOf(err))
			assert.Equal(t, "incomplete response", UserMessage(err))
		})
	}
}

func TestSource_Relevance(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 100},
		{0.5, 75},
		{1, 50},
		{2, 0},
		{2.5, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Source{Distance: tt.distance}.Relevance(), 1e-9, "distance %v", tt.distance)
	}
}
