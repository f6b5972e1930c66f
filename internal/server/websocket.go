package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-copilot/internal/audit"
	"github.com/kubilitics/kubilitics-copilot/internal/reasoning/engine"
	"github.com/kubilitics/kubilitics-copilot/pkg/types"
)

const (
	// wsReadTimeout bounds the wait for the single request frame.
	wsReadTimeout = 30 * time.Second
	wsWriteWait   = 10 * time.Second
)

// defaultAllowedOrigins apply when no origins are configured.
var defaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// newUpgrader returns an upgrader that accepts the configured origins.
// "*" accepts any origin; a request without an Origin header is a
// non-browser client and is always accepted.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultAllowedOrigins
	}

	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			_, ok := allowed[strings.ToLower(strings.TrimRight(origin, "/"))]
			return ok
		},
	}
}

// handleDiagnoseStream runs one diagnosis over a WebSocket. The client sends
// a single DiagnoseRequest; the server answers with one stage event per
// pipeline stage, then a result or error event, and closes.
func (s *Server) handleDiagnoseStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	requestID := audit.CorrelationID(ctx)
	log := s.logger.With(zap.String("request_id", requestID))

	conn.SetReadLimit(s.config.Server.MaxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

	var req types.DiagnoseRequest
	if err := conn.ReadJSON(&req); err != nil {
		log.Debug("invalid websocket request", zap.Error(err))
		s.sendEvent(conn, types.StreamEvent{Type: types.EventError, Error: "Invalid request: " + err.Error()})
		s.closeStream(conn, websocket.CloseUnsupportedData, "invalid request")
		return
	}

	// Stage events are written from the engine's goroutine, one at a time.
	obs := func(ev engine.StageEvent) {
		count := ev.Count
		s.sendEvent(conn, types.StreamEvent{
			Type:  types.EventStage,
			Stage: ev.Stage,
			Count: &count,
			Tier:  string(ev.Tier),
			Model: ev.Model,
			Path:  ev.Path,
		})
	}

	out, err := s.engine.Diagnose(ctx, s.engineRequest(ctx, req), obs)
	if err != nil {
		s.sendEvent(conn, types.StreamEvent{Type: types.EventError, Error: err.Error()})
		s.closeStream(conn, websocket.CloseInternalServerErr, "diagnosis failed")
		return
	}

	s.sendEvent(conn, types.StreamEvent{
		Type:   types.EventResult,
		Tier:   string(out.Tier),
		Model:  out.Model,
		Path:   out.Path,
		Result: out.Result,
	})
	s.closeStream(conn, websocket.CloseNormalClosure, "")
}

func (s *Server) sendEvent(conn *websocket.Conn, ev types.StreamEvent) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(ev); err != nil {
		s.logger.Debug("websocket write failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

func (s *Server) closeStream(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
