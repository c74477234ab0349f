package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseReadyCarriesMetadata(t *testing.T) {
	frame, err := Parse([]byte(`{"status":"ready","question_count":5}`))
	require.NoError(t, err)
	require.Equal(t, KindReady, frame.Kind)
	require.Equal(t, map[string]any{"question_count": float64(5)}, frame.Ready)

	frame, err = Parse([]byte(`{"status":"READY"}`))
	require.NoError(t, err)
	require.Equal(t, KindReady, frame.Kind)
	require.Nil(t, frame.Ready)
}

func TestParseErrorFrame(t *testing.T) {
	frame, err := Parse([]byte(`{"status":"error","message":"bad resume"}`))
	require.NoError(t, err)
	require.Equal(t, KindError, frame.Kind)
	require.Equal(t, "bad resume", frame.Message)

	frame, err = Parse([]byte(`{"status":"error"}`))
	require.NoError(t, err)
	require.Equal(t, "remote error", frame.Message)
}

func TestParseGoodbyeWithHistory(t *testing.T) {
	frame, err := Parse([]byte(`{"status":"goodbye","message":"done","history":[{"q":"a"},{"q":"b"}]}`))
	require.NoError(t, err)
	require.Equal(t, KindComplete, frame.Kind)
	require.Equal(t, "done", frame.Message)
	require.NotNil(t, frame.Analysis)
	require.True(t, frame.Analysis.HasResults())
	require.Equal(t, "done", frame.Analysis.Message)
	require.Len(t, frame.Analysis.History, 2)
	require.JSONEq(t, `{"q":"a"}`, string(frame.Analysis.History[0]))
}

func TestParseCompleteWithoutResults(t *testing.T) {
	frame, err := Parse([]byte(`{"status":"complete","message":"bye"}`))
	require.NoError(t, err)
	require.Equal(t, KindComplete, frame.Kind)
	require.False(t, frame.Analysis.HasResults())
}

func TestParseAnalysisFrame(t *testing.T) {
	frame, err := Parse([]byte(`{"type":"analysis","analysis":{"score":8}}`))
	require.NoError(t, err)
	require.Equal(t, KindAnalysis, frame.Kind)
	require.JSONEq(t, `{"score":8}`, string(frame.Analysis.Result))

	frame, err = Parse([]byte(`{"status":"analysis","result":{"score":3},"message":"ok"}`))
	require.NoError(t, err)
	require.Equal(t, KindAnalysis, frame.Kind)
	require.Equal(t, "ok", frame.Analysis.Message)
	require.JSONEq(t, `{"score":3}`, string(frame.Analysis.Result))
}

func TestParseContentVariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		speaker string
		text    string
	}{
		{name: "name content", input: `{"name":"Interviewer","content":"Tell me about yourself"}`, speaker: "Interviewer", text: "Tell me about yourself"},
		{name: "user_name message", input: `{"user_name":"ana","message":"hola"}`, speaker: "ana", text: "hola"},
		{name: "empty text allowed", input: `{"name":"AI","content":""}`, speaker: "AI", text: ""},
		{name: "unrelated type ignored", input: `{"type":"transcript","name":"AI","text":"hi"}`, speaker: "AI", text: "hi"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := Parse([]byte(tc.input))
			require.NoError(t, err)
			require.Equal(t, KindContent, frame.Kind)
			require.Equal(t, tc.speaker, frame.Content.Speaker)
			require.Equal(t, tc.text, frame.Content.Text)
		})
	}
}

func TestParseStatusTakesPriorityOverContent(t *testing.T) {
	frame, err := Parse([]byte(`{"status":"error","name":"AI","content":"x","message":"quota"}`))
	require.NoError(t, err)
	require.Equal(t, KindError, frame.Kind)
	require.Equal(t, "quota", frame.Message)
}

func TestParsePresence(t *testing.T) {
	frame, err := Parse([]byte(`{"status":"user_joined","user_name":"bo","active_users":3}`))
	require.NoError(t, err)
	require.Equal(t, KindPresence, frame.Kind)
	require.Equal(t, Presence{UserName: "bo", Joined: true, ActiveUsers: 3}, frame.Presence)

	frame, err = Parse([]byte(`{"status":"user_left","user_name":"bo","active_users":2}`))
	require.NoError(t, err)
	require.False(t, frame.Presence.Joined)
}

func TestParseMalformedKeepsRawPayload(t *testing.T) {
	frame, err := Parse([]byte("not json at all"))
	require.Error(t, err)
	require.Equal(t, KindUnrecognized, frame.Kind)

	var frameErr *FrameError
	require.True(t, errors.As(err, &frameErr))
	require.Equal(t, "not json at all", frameErr.Raw)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParseUnrecognizedShapes(t *testing.T) {
	for _, input := range []string{`{"status":"thinking"}`, `{"foo":1}`, `{"name":"only"}`, `null`} {
		_, err := Parse([]byte(input))
		require.ErrorIs(t, err, ErrUnrecognized, input)

		var frameErr *FrameError
		require.True(t, errors.As(err, &frameErr))
		require.Equal(t, input, frameErr.Raw)
	}
}

func TestParseCopiesRaw(t *testing.T) {
	data := []byte(`{"status":"ready"}`)
	frame, err := Parse(data)
	require.NoError(t, err)
	data[0] = 'x'
	require.Equal(t, byte('{'), frame.Raw[0])
}

func TestRequestTableEncode(t *testing.T) {
	payload, err := DefaultRequests.Encode(RequestAnalysis)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"ANALYSIS"}`, string(payload))

	payload, err = DefaultRequests.Encode(RequestEnd)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, "END_INTERVIEW", decoded["type"])

	_, err = RequestTable{}.Encode(RequestAnalysis)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no wire name")
}
