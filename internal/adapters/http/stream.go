package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/PabloGalante/farum-voice/internal/app/session"
	"github.com/PabloGalante/farum-voice/internal/domain"
	"github.com/PabloGalante/farum-voice/internal/observability"
)

const closeTimeout = 10 * time.Second

// streamReply is written back after every inbound event.
type streamReply struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Agent     domain.AgentID `json:"agent"`
	Items     int            `json:"items"`
	Buffered  int            `json:"buffered"`
	Error     string         `json:"error,omitempty"`
}

// handleStream applies one JSON transcript event per websocket message. The
// session recorder is flushed before the handler returns, however the
// connection ends.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	log := observability.LoggerFromContext(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Browser front-end served from another origin.
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	sess, err := s.deps.Sessions.Open(ctx, r.PathValue("scenario"))
	if err != nil {
		log.Error("open session failed", "error", err)
		conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}
	log = log.With("session_id", sess.ID(), "scenario", sess.Scenario())

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := s.deps.Sessions.Close(closeCtx, sess.ID()); err != nil {
			log.Error("session flush failed", "error", err)
			return
		}
		log.Info("session closed")
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				log.Info("stream ended", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		reply := streamReply{Type: "ack"}
		if err := sess.Handle(ctx, data); err != nil {
			if errors.Is(err, session.ErrClosed) {
				return
			}
			reply.Type = "error"
			reply.Error = err.Error()
		}
		reply.SessionID = sess.ID()
		reply.Agent = sess.Agent().ID
		reply.Items = len(sess.Transcript())
		reply.Buffered = len(sess.Buffered())

		out, err := json.Marshal(reply)
		if err != nil {
			log.Error("encode reply", "error", err)
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			log.Info("stream write failed", "error", err)
			return
		}
	}
}
