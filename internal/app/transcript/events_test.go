package transcript_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-voice/internal/app/transcript"
	"github.com/PabloGalante/farum-voice/internal/domain"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want transcript.Event
	}{
		{
			name: "history added",
			in:   `{"type":"history_added","item":{"itemId":"i1","type":"message","role":"user","content":[{"type":"input_text","text":"Hi"}]}}`,
			want: transcript.HistoryAdded{Item: transcript.Item{
				ItemID: "i1", Type: "message", Role: domain.RoleUser,
				Content: []transcript.ContentPart{{Type: "input_text", Text: "Hi"}},
			}},
		},
		{
			name: "history updated with a function call item",
			in:   `{"type":"history_updated","items":[{"itemId":"f1","type":"function_call"}]}`,
			want: transcript.HistoryUpdated{Items: []transcript.Item{{ItemID: "f1", Type: "function_call"}}},
		},
		{
			name: "input audio delta is a user delta",
			in:   `{"type":"conversation.item.input_audio_transcription.delta","item_id":"i2","delta":"I fe"}`,
			want: transcript.TranscriptionDelta{ItemID: "i2", Role: domain.RoleUser, Delta: "I fe"},
		},
		{
			name: "output audio delta is an assistant delta",
			in:   `{"type":"response.audio_transcript.delta","item_id":"i3","delta":""}`,
			want: transcript.TranscriptionDelta{ItemID: "i3", Role: domain.RoleAssistant, Delta: ""},
		},
		{
			name: "generic delta without role",
			in:   `{"type":"transcription_delta","item_id":"i4","delta":"x"}`,
			want: transcript.TranscriptionDelta{ItemID: "i4", Delta: "x"},
		},
		{
			name: "user voice completion",
			in:   `{"type":"conversation.item.input_audio_transcription.completed","item_id":"i2","transcript":"I feel tired"}`,
			want: transcript.TranscriptionCompleted{ItemID: "i2", Role: domain.RoleUser, Transcript: "I feel tired", UserVoice: true},
		},
		{
			name: "completion without transcript",
			in:   `{"type":"transcription_completed","itemId":"i5","role":"assistant"}`,
			want: transcript.TranscriptionCompleted{ItemID: "i5", Role: domain.RoleAssistant},
		},
		{
			name: "nested guardrail verdict",
			in: `{"type":"guardrail_tripped","result":{"output":{"outputInfo":{` +
				`"moderationCategory":"OFF_BRAND","moderationRationale":"mentions a competitor","testText":"Try the other app"}}}}`,
			want: transcript.GuardrailTripped{Verdict: domain.ModerationVerdict{
				Status: domain.StatusDone, Category: "OFF_BRAND", Rationale: "mentions a competitor", TestText: "Try the other app",
			}},
		},
		{
			name: "tool start",
			in:   `{"type":"agent_tool_start","name":"fetchUserProfile","arguments":"{}"}`,
			want: transcript.ToolCallStarted{Name: domain.ToolFetchProfile, Arguments: []byte(`"{}"`)},
		},
		{
			name: "handoff",
			in:   `{"type":"agent_handoff","from":"greetAgent","to":"safetyAgent"}`,
			want: transcript.AgentHandoff{From: "greetAgent", To: "safetyAgent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := transcript.Decode([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", `{"type":`},
		{"missing type", `{"item_id":"i1"}`},
		{"unknown type", `{"type":"session.created"}`},
		{"added without item", `{"type":"history_added"}`},
		{"item without id", `{"type":"history_added","item":{"type":"message","role":"user"}}`},
		{"message with bad role", `{"type":"history_added","item":{"itemId":"i1","type":"message","role":"system"}}`},
		{"updated without items", `{"type":"history_updated"}`},
		{"delta without item id", `{"type":"transcription_delta","delta":"x"}`},
		{"delta without delta", `{"type":"response.audio_transcript.delta","item_id":"i1"}`},
		{"delta with bad role", `{"type":"transcription_delta","item_id":"i1","delta":"x","role":"tool"}`},
		{"completion without item id", `{"type":"response.audio_transcript.done","transcript":"x"}`},
		{"guardrail without verdict", `{"type":"guardrail_tripped","result":{"output":{}}}`},
		{"tool end without name", `{"type":"agent_tool_end","result":"{}"}`},
		{"handoff without target", `{"type":"agent_handoff","from":"greetAgent"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := transcript.Decode([]byte(tt.in))
			assert.ErrorIs(t, err, domain.ErrMalformedEvent)
		})
	}
}

func TestItemText(t *testing.T) {
	item := transcript.Item{Content: []transcript.ContentPart{
		{Type: "input_text", Text: "first"},
		{Type: "audio", Transcript: "second"},
		{Type: "image", Text: "ignored"},
		{Type: "input_audio"},
		{Type: "output_text", Text: "third"},
	}}
	assert.Equal(t, "first\nsecond\nthird", item.Text())
}

func TestDetectGuardrailMessage(t *testing.T) {
	details, ok := transcript.DetectGuardrailMessage(
		`Rephrase your answer. Failure Details: {"moderationCategory":"OFFENSIVE","info":{"score":0.9}} Thanks.`)
	require.True(t, ok)
	assert.Equal(t, "OFFENSIVE", details["moderationCategory"])
	assert.Equal(t, map[string]any{"score": 0.9}, details["info"])

	_, ok = transcript.DetectGuardrailMessage("Failure Details: not json")
	assert.False(t, ok)
	_, ok = transcript.DetectGuardrailMessage("Failure Details: {broken")
	assert.False(t, ok)
	_, ok = transcript.DetectGuardrailMessage("I had a failure at work")
	assert.False(t, ok)
}
