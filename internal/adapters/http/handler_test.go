package httpadapter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/PabloGalante/farum-voice/internal/adapters/http"
	"github.com/PabloGalante/farum-voice/internal/adapters/llm"
	"github.com/PabloGalante/farum-voice/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-voice/internal/app/agentflow"
	"github.com/PabloGalante/farum-voice/internal/app/conversation"
	"github.com/PabloGalante/farum-voice/internal/app/profile"
	"github.com/PabloGalante/farum-voice/internal/app/session"
	"github.com/PabloGalante/farum-voice/internal/app/tools"
	"github.com/PabloGalante/farum-voice/internal/domain"
)

type testServer struct {
	handler  http.Handler
	history  *conversation.Service
	profiles *profile.Service
	sessions *session.Manager
}

func newTestServer(t *testing.T) testServer {
	t.Helper()

	registry, err := agentflow.DefaultRegistry()
	require.NoError(t, err)

	history := conversation.NewService(memory.NewScenarioStore())
	profiles := profile.NewService(memory.NewProfileStore())

	sessions := session.NewManager(registry, history, llm.NewMockModerator(),
		tools.NewDefaultTools(profiles, history)...)
	h := httpadapter.NewServer(httpadapter.Deps{
		History:  history,
		Profiles: profiles,
		Registry: registry,
		Sessions: sessions,
	})
	return testServer{handler: h, history: history, profiles: profiles, sessions: sessions}
}

// open starts a live session the way the stream endpoint does.
func (s testServer) open(t *testing.T, scenario string) *session.Session {
	t.Helper()
	sess, err := s.sessions.Open(context.Background(), scenario)
	require.NoError(t, err)
	return sess
}

func (s testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	sess := srv.open(t, "")
	srv.do(t, http.MethodPost, "/sessions/"+sess.ID()+"/tools/fetchUserProfile", `{}`, nil)

	w := srv.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "farum_tool_calls_total")
}

func TestToolCallStatusCodes(t *testing.T) {
	srv := newTestServer(t)
	greeting := srv.open(t, "")
	therapy := srv.open(t, "")
	require.NoError(t, therapy.Handle(context.Background(),
		[]byte(`{"type":"agent_handoff","to":"cbtTherapistAgent"}`)))

	tests := []struct {
		name    string
		path    string
		body    string
		headers map[string]string
		want    int
		wantErr string
	}{
		{"fetch profile as greeter", "/sessions/" + greeting.ID() + "/tools/fetchUserProfile", `{}`, nil, http.StatusOK, ""},
		{"session from header", "/tools/fetchUserProfile", `{}`, map[string]string{"X-Session-ID": greeting.ID()}, http.StatusOK, ""},
		{"missing session header", "/tools/fetchUserProfile", `{}`, nil, http.StatusBadRequest, "X-Session-ID"},
		{"unknown session", "/sessions/sess_nope/tools/fetchUserProfile", `{}`, nil, http.StatusNotFound, "session not found"},
		{"unknown tool", "/sessions/" + greeting.ID() + "/tools/deleteEverything", `{}`, nil, http.StatusNotFound, "unknown tool"},
		{"greeter cannot write progress", "/sessions/" + greeting.ID() + "/tools/updateProgress", `{"text":"x","agent":"greetAgent","tags":[]}`, nil, http.StatusForbidden, "not allowed"},
		{"claimed agent is not active", "/sessions/" + greeting.ID() + "/tools/updateMemory", `{"text":"x","agent":"safetyAgent","tags":[]}`, map[string]string{"X-Agent-ID": "safetyAgent"}, http.StatusForbidden, "not the active agent"},
		{"unknown claimed agent", "/sessions/" + greeting.ID() + "/tools/fetchUserProfile", `{}`, map[string]string{"X-Agent-ID": "ghostAgent"}, http.StatusForbidden, ""},
		{"missing tags", "/sessions/" + therapy.ID() + "/tools/updateProgress", `{"text":"x","agent":"cbtTherapistAgent"}`, nil, http.StatusBadRequest, "tags"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, http.MethodPost, tt.path, tt.body, tt.headers)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.wantErr != "" {
				assert.Contains(t, w.Body.String(), tt.wantErr)
			}
		})
	}
}

func TestToolCallFollowsSessionHandoffs(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	sess := srv.open(t, "")

	path := "/sessions/" + sess.ID() + "/tools/updateMemory"
	body := `{"text":"Feels unsafe at home","agent":"safetyAgent","tags":["risk"]}`
	headers := map[string]string{"X-Agent-ID": "safetyAgent", "X-User-ID": "sam"}

	w := srv.do(t, http.MethodPost, path, body, headers)
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	assert.Empty(t, srv.profiles.FetchProfile(ctx, "sam").Memory.Entries)

	require.NoError(t, sess.Handle(ctx, []byte(`{"type":"agent_handoff","to":"safetyAgent"}`)))

	w = srv.do(t, http.MethodPost, path, body, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"agent":"safetyAgent"`)
	assert.Len(t, srv.profiles.FetchProfile(ctx, "sam").Memory.Entries, 1)

	require.NoError(t, srv.sessions.Close(ctx, sess.ID()))
	w = srv.do(t, http.MethodPost, path, body, headers)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestToolCallWritesProfile(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	sess := srv.open(t, "")
	require.NoError(t, sess.Handle(ctx, []byte(`{"type":"agent_handoff","to":"cbtTherapistAgent"}`)))

	headers := map[string]string{"X-Agent-ID": "cbtTherapistAgent", "X-User-ID": "sam", "X-Session-ID": sess.ID()}
	w := srv.do(t, http.MethodPost, "/tools/updateProgress",
		`{"text":"Completed a thought record","agent":"cbtTherapistAgent","tags":["cbt"]}`, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		Tool      string `json:"tool"`
		Success   bool   `json:"success"`
		Agent     string `json:"agent"`
		Scenario  string `json:"scenario"`
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "updateProgress", res.Tool)
	assert.True(t, res.Success)
	assert.Equal(t, "cbtTherapistAgent", res.Agent)
	assert.Equal(t, domain.DefaultScenario, res.Scenario)
	assert.Equal(t, sess.ID(), res.SessionID)

	p := srv.profiles.FetchProfile(ctx, "sam")
	require.Len(t, p.Progress.Entries, 1)
	assert.Equal(t, "Completed a thought record", p.Progress.Entries[0].Text)

	w = srv.do(t, http.MethodGet, "/profiles/sam", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Completed a thought record")

	w = srv.do(t, http.MethodDelete, "/profiles/sam", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, srv.profiles.FetchProfile(ctx, "sam").Progress.Entries)
}

func TestHistoryAndScenarios(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)

	require.NoError(t, srv.history.Append(ctx, "therapy", domain.RoleUser, "I slept badly"))
	require.NoError(t, srv.history.Append(ctx, "therapy", domain.RoleAssistant, "That sounds exhausting."))

	w := srv.do(t, http.MethodGet, "/scenarios/therapy/history?limit=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got domain.HistorySummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Success)
	assert.Equal(t, 1, got.MessageCount)
	assert.Contains(t, got.HistoryText, "1. Assistant: That sounds exhausting.")

	w = srv.do(t, http.MethodGet, "/scenarios/therapy/history?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodGet, "/scenarios", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"scenarioName":"therapy"`)
	assert.Contains(t, w.Body.String(), domain.DefaultScenario)

	w = srv.do(t, http.MethodDelete, "/scenarios", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	sums, err := srv.history.Summaries(ctx)
	require.NoError(t, err)
	assert.Empty(t, sums)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(t, http.MethodOptions, "/tools/fetchUserProfile", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStreamFlushesOnDisconnect(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/therapy/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	events := []string{
		`{"type":"history_added","item":{"itemId":"u1","type":"message","role":"user","content":[{"type":"input_text","text":"I feel stuck"}]}}`,
		`{"type":"transcription_delta","item_id":"a1","role":"assistant","delta":"Let's look "}`,
		`{"type":"transcription_completed","item_id":"a1","role":"assistant","transcript":"Let's look at that together."}`,
		`{"type":"history_added"}`,
	}
	var replies []map[string]any
	for _, ev := range events {
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(ev)))
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var reply map[string]any
		require.NoError(t, json.Unmarshal(data, &reply))
		replies = append(replies, reply)
	}

	assert.Equal(t, "ack", replies[0]["type"])
	assert.Equal(t, "greetAgent", replies[0]["agent"])
	assert.EqualValues(t, 2, replies[2]["buffered"])
	assert.Equal(t, "error", replies[3]["type"], "malformed events are reported, not fatal")

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	require.Eventually(t, func() bool {
		msgs, err := srv.history.RecentMessages(context.Background(), "therapy", 0)
		return err == nil && len(msgs) == 2
	}, 2*time.Second, 20*time.Millisecond)

	msgs, err := srv.history.RecentMessages(context.Background(), "therapy", 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{
		{Role: domain.RoleUser, Content: "I feel stuck"},
		{Role: domain.RoleAssistant, Content: "Let's look at that together."},
	}, msgs)
}
