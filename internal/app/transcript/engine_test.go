package transcript_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-voice/internal/app/agentflow"
	"github.com/PabloGalante/farum-voice/internal/app/transcript"
	"github.com/PabloGalante/farum-voice/internal/domain"
)

type bufferRecorder struct {
	msgs []domain.Message
}

func (r *bufferRecorder) Record(role domain.Role, text string) {
	r.msgs = append(r.msgs, domain.Message{Role: role, Content: text})
}

func newEngine(t *testing.T) (*transcript.Engine, *bufferRecorder) {
	t.Helper()
	g, err := agentflow.NewTherapistGraph()
	require.NoError(t, err)
	rec := &bufferRecorder{}
	return transcript.NewEngine(agentflow.NewRouter(g), rec), rec
}

func applyAll(t *testing.T, e *transcript.Engine, events ...string) {
	t.Helper()
	for _, ev := range events {
		_, err := e.ApplyRaw(context.Background(), []byte(ev))
		require.NoError(t, err)
	}
}

func titles(items []domain.TranscriptItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Title)
	}
	return out
}

func TestStreamedAssistantReplyIsCommittedOnce(t *testing.T) {
	e, rec := newEngine(t)

	applyAll(t, e,
		`{"type":"history_added","item":{"itemId":"u1","type":"message","role":"user","content":[{"type":"input_text","text":"Hi"}]}}`,
		`{"type":"transcription_delta","item_id":"a1","role":"assistant","delta":"Hel"}`,
		`{"type":"transcription_delta","item_id":"a1","role":"assistant","delta":"lo"}`,
		`{"type":"transcription_completed","item_id":"a1","role":"assistant","transcript":"Hello"}`,
	)

	msgs := e.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hi", msgs[0].Title)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello", msgs[1].Title)
	assert.Equal(t, domain.StatusDone, msgs[1].Status)
	assert.Equal(t, agentflow.AgentGreet, msgs[1].Agent)

	assert.Equal(t, []domain.Message{
		{Role: domain.RoleUser, Content: "Hi"},
		{Role: domain.RoleAssistant, Content: "Hello"},
	}, rec.msgs)
}

func TestEmptyCompletionIsInaudibleAndNotRecorded(t *testing.T) {
	e, rec := newEngine(t)

	applyAll(t, e,
		`{"type":"history_added","item":{"itemId":"u1","type":"message","role":"user","content":[{"type":"input_audio"}]}}`,
	)
	item, ok := e.Item("u1")
	require.True(t, ok)
	assert.Equal(t, domain.PlaceholderTranscribing, item.Title)

	applyAll(t, e,
		`{"type":"conversation.item.input_audio_transcription.completed","item_id":"u1","transcript":"\n"}`,
	)
	item, ok = e.Item("u1")
	require.True(t, ok)
	assert.Equal(t, domain.MarkerInaudible, item.Title)
	assert.Equal(t, domain.StatusDone, item.Status)
	assert.Empty(t, rec.msgs)
}

func TestUserVoiceTranscriptionIsRecorded(t *testing.T) {
	e, rec := newEngine(t)

	applyAll(t, e,
		`{"type":"history_added","item":{"itemId":"u1","type":"message","role":"user","content":[]}}`,
		`{"type":"conversation.item.input_audio_transcription.delta","item_id":"u1","delta":"I can't "}`,
		`{"type":"conversation.item.input_audio_transcription.delta","item_id":"u1","delta":"sleep"}`,
	)
	item, _ := e.Item("u1")
	assert.Equal(t, "I can't sleep", item.Title, "deltas replace the placeholder")
	assert.Empty(t, rec.msgs, "neither the placeholder nor deltas are recorded")

	applyAll(t, e,
		`{"type":"conversation.item.input_audio_transcription.completed","item_id":"u1","transcript":"I can't sleep at night"}`,
		// Late delta and duplicate completion for a finalized item.
		`{"type":"conversation.item.input_audio_transcription.delta","item_id":"u1","delta":" zzz"}`,
		`{"type":"conversation.item.input_audio_transcription.completed","item_id":"u1","transcript":"other"}`,
	)
	item, _ = e.Item("u1")
	assert.Equal(t, "I can't sleep at night", item.Title)
	assert.Equal(t, []domain.Message{{Role: domain.RoleUser, Content: "I can't sleep at night"}}, rec.msgs)
}

func TestGuardrailCorrectionBecomesBreadcrumb(t *testing.T) {
	e, rec := newEngine(t)

	applyAll(t, e,
		`{"type":"history_added","item":{"itemId":"g1","type":"message","role":"user","content":[{"type":"input_text",`+
			`"text":"Please rephrase. Failure Details: {\"moderationCategory\":\"OFF_BRAND\",\"moderationRationale\":\"off topic\"}"}]}}`,
		`{"type":"history_added","item":{"itemId":"a1","type":"message","role":"assistant","content":[{"type":"text","text":"Let me try that again."}]}}`,
	)

	assert.Equal(t, []string{"Let me try that again."}, titles(e.Messages()))
	crumbs := e.Breadcrumbs()
	require.Len(t, crumbs, 1)
	assert.Equal(t, "Output Guardrail Active", crumbs[0].Title)
	assert.Equal(t, map[string]any{"details": map[string]any{
		"moderationCategory":  "OFF_BRAND",
		"moderationRationale": "off topic",
	}}, crumbs[0].Data)

	assert.Equal(t, []domain.Message{{Role: domain.RoleAssistant, Content: "Let me try that again."}}, rec.msgs)
}

func TestHistoryUpdatedForwardsAssistantText(t *testing.T) {
	e, rec := newEngine(t)

	updated := `{"type":"history_updated","items":[` +
		`{"itemId":"u1","type":"message","role":"user","content":[{"type":"input_text","text":"Hello"}]},` +
		`{"itemId":"a1","type":"message","role":"assistant","content":[{"type":"audio","transcript":"Hi, I'm here to listen."}]},` +
		`{"itemId":"f1","type":"function_call"}]}`
	applyAll(t, e, updated, updated)

	assert.Equal(t, []string{"Hello", "Hi, I'm here to listen."}, titles(e.Messages()))
	assert.Equal(t, []domain.Message{{Role: domain.RoleAssistant, Content: "Hi, I'm here to listen."}}, rec.msgs,
		"user text is recorded from added events only and repeats are forwarded once")
}

func TestGuardrailTrippedAnnotatesLastAssistantMessage(t *testing.T) {
	e, _ := newEngine(t)

	applyAll(t, e,
		`{"type":"transcription_delta","item_id":"a1","role":"assistant","delta":"First"}`,
		`{"type":"transcription_completed","item_id":"a1","role":"assistant","transcript":"First answer"}`,
		`{"type":"transcription_delta","item_id":"a2","role":"assistant","delta":"Second"}`,
		`{"type":"history_added","item":{"itemId":"u1","type":"message","role":"user","content":[{"type":"input_text","text":"ok"}]}}`,
	)

	first, _ := e.Item("a1")
	require.NotNil(t, first.Guardrail)
	assert.Equal(t, domain.ModerationVerdict{Status: domain.StatusDone, Category: domain.ModerationNone}, *first.Guardrail,
		"completion marks a pending verdict as passed")

	second, _ := e.Item("a2")
	require.NotNil(t, second.Guardrail)
	assert.Equal(t, domain.StatusInProgress, second.Guardrail.Status)

	applyAll(t, e,
		`{"type":"guardrail_tripped","result":{"moderationCategory":"VIOLENCE","moderationRationale":"graphic","testText":"Second"}}`,
	)
	second, _ = e.Item("a2")
	assert.Equal(t, domain.ModerationVerdict{
		Status: domain.StatusDone, Category: "VIOLENCE", Rationale: "graphic", TestText: "Second",
	}, *second.Guardrail)
	assert.Equal(t, "Second", second.Title, "a verdict never changes message text")

	applyAll(t, e,
		`{"type":"guardrail_tripped","itemId":"a1","result":{"output":{"moderationCategory":"OFFENSIVE"}}}`,
	)
	first, _ = e.Item("a1")
	assert.Equal(t, "OFFENSIVE", first.Guardrail.Category)
}

func TestHandoffEvents(t *testing.T) {
	e, _ := newEngine(t)

	applyAll(t, e,
		`{"type":"agent_handoff","from":"greetAgent","to":"cbtTherapistAgent"}`,
		`{"type":"agent_handoff","from":"cbtTherapistAgent","to":"humanisticTherapistAgent"}`,
		`{"type":"response.audio_transcript.delta","item_id":"a1","delta":"Let's look at that thought."}`,
	)

	crumbs := e.Breadcrumbs()
	require.Len(t, crumbs, 2)
	assert.Equal(t, "Agent handoff", crumbs[0].Title)
	assert.Equal(t, "Illegal handoff", crumbs[1].Title)

	msgs := e.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, agentflow.AgentCBT, msgs[0].Agent, "a rejected handoff keeps the current agent")
}

func TestToolCallBreadcrumbs(t *testing.T) {
	e, _ := newEngine(t)

	applyAll(t, e,
		`{"type":"agent_tool_start","name":"fetchHistoryContext","arguments":"{\"limit\":5}"}`,
		`{"type":"agent_tool_end","name":"fetchHistoryContext","result":"{\"success\":true,\"messageCount\":0}"}`,
		`{"type":"agent_tool_end","name":"fetchUserProfile","result":"plain text"}`,
	)

	crumbs := e.Breadcrumbs()
	require.Len(t, crumbs, 3)
	assert.Equal(t, "function call: fetchHistoryContext", crumbs[0].Title)
	assert.Equal(t, map[string]any{"limit": float64(5)}, crumbs[0].Data)
	assert.Equal(t, "function call result: fetchHistoryContext", crumbs[1].Title)
	assert.Equal(t, map[string]any{"success": true, "messageCount": float64(0)}, crumbs[1].Data)
	assert.Equal(t, "plain text", crumbs[2].Data)
}

func TestMalformedEventsAreDropped(t *testing.T) {
	e, rec := newEngine(t)

	_, err := e.ApplyRaw(context.Background(), []byte(`{"type":"transcription_delta","delta":"orphan"}`))
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)

	// Unknown item and no role: nothing to attach the delta to.
	applyAll(t, e, `{"type":"transcription_delta","item_id":"x","delta":"orphan"}`)
	// No assistant message to annotate.
	applyAll(t, e, `{"type":"guardrail_tripped","result":{"moderationCategory":"OFFENSIVE"}}`)

	assert.Empty(t, e.Items())
	assert.Empty(t, rec.msgs)
}
