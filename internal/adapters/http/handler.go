package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/PabloGalante/farum-voice/internal/app/agentflow"
	"github.com/PabloGalante/farum-voice/internal/app/conversation"
	"github.com/PabloGalante/farum-voice/internal/app/profile"
	"github.com/PabloGalante/farum-voice/internal/app/session"
	"github.com/PabloGalante/farum-voice/internal/app/tools"
	"github.com/PabloGalante/farum-voice/internal/domain"
	"github.com/PabloGalante/farum-voice/internal/observability"
)

const maxBodyBytes = 1 << 20

// Deps are the application services exposed over HTTP.
type Deps struct {
	History      *conversation.Service
	Profiles     *profile.Service
	Registry     *agentflow.Registry
	Sessions     *session.Manager
	HistoryLimit int
}

type Server struct {
	deps Deps
}

func NewServer(deps Deps) http.Handler {
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = domain.DefaultHistoryLimit
	}
	s := &Server{deps: deps}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", observability.MetricsHandler())

	// Tool calls from the realtime agent runtime, always bound to a session.
	mux.HandleFunc("POST /tools/{tool}", s.handleToolCall)
	mux.HandleFunc("POST /sessions/{id}/tools/{tool}", s.handleSessionToolCall)

	mux.HandleFunc("GET /scenarios", s.handleListScenarios)
	mux.HandleFunc("DELETE /scenarios", s.handleClearScenarios)
	mux.HandleFunc("GET /scenarios/{scenario}/history", s.handleHistory)

	mux.HandleFunc("GET /profiles/{user}", s.handleGetProfile)
	mux.HandleFunc("DELETE /profiles/{user}", s.handleDeleteProfile)

	// One websocket per realtime session.
	mux.HandleFunc("GET /sessions/{scenario}/stream", s.handleStream)

	return chainMiddlewares(mux, withCORS, withLogging)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type scenarioListResponse struct {
	Scenarios []domain.ScenarioSummary `json:"scenarios"`
	Graphs    []string                 `json:"graphs"`
}

type toolResponse struct {
	tools.Result
	Agent     domain.AgentID `json:"agent"`
	Scenario  string         `json:"scenario"`
	SessionID string         `json:"sessionId"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleToolCall serves the header form of a session tool call: the session
// comes from X-Session-ID.
func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get("X-Session-ID")
	if id == "" {
		badRequest(w, "X-Session-ID header is required")
		return
	}
	s.dispatchTool(w, r, id)
}

func (s *Server) handleSessionToolCall(w http.ResponseWriter, r *http.Request) {
	s.dispatchTool(w, r, r.PathValue("id"))
}

// dispatchTool runs a tool call inside a live session, so the calling agent is
// always the session's active one. X-Agent-ID, when present, must name it.
func (s *Server) dispatchTool(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, ok := s.deps.Sessions.Get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		badRequest(w, "request body too large")
		return
	}

	call := tools.Call{Tool: domain.ToolName(r.PathValue("tool")), Args: body}
	claimed := domain.AgentID(r.Header.Get("X-Agent-ID"))
	user := domain.UserID(r.Header.Get("X-User-ID"))

	res, err := sess.Dispatch(r.Context(), user, claimed, call)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toolResponse{
			Result:    res,
			Agent:     sess.Agent().ID,
			Scenario:  sess.Scenario(),
			SessionID: sess.ID(),
		})
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, domain.ErrUnknownTool):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrToolNotAllowed), errors.Is(err, domain.ErrAgentNotFound):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidToolArgs):
		badRequest(w, err.Error())
	default:
		internalError(w, r, err)
	}
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	sums, err := s.deps.History.Summaries(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scenarioListResponse{
		Scenarios: sums,
		Graphs:    s.deps.Registry.Scenarios(),
	})
}

func (s *Server) handleClearScenarios(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.History.ClearAll(r.Context()); err != nil {
		internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.deps.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	// FetchHistory never fails; storage problems show up as success=false.
	writeJSON(w, http.StatusOK, s.deps.History.FetchHistory(r.Context(), r.PathValue("scenario"), limit))
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p := s.deps.Profiles.FetchProfile(r.Context(), domain.UserID(r.PathValue("user")))
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Profiles.Clear(r.Context(), domain.UserID(r.PathValue("user"))); err != nil {
		internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
