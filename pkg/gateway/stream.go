package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leialab/leia/pkg/wizard"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// turnRequest is one client frame on the websocket: a user message for
// the session named at connect time.
type turnRequest struct {
	Message string `json:"message"`
}

const writeTimeout = 10 * time.Second

// handleWebSocket upgrades the connection and serves wizard turns for
// one session. Each client frame starts a turn; every turn event is
// written back as one JSON frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "sessionId query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	defer conn.Close()

	clientID, _ := gonanoid.New()
	log := s.logger.With().
		Str("client_id", clientID).
		Str("session_id", sessionID).
		Logger()
	log.Info().Str("ip", r.RemoteAddr).Msg("Client connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("Client read error")
			}
			return
		}

		var req turnRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Message == "" {
			if werr := s.writeEvent(conn, wizard.Event{
				Type:      wizard.EventError,
				SessionID: sessionID,
				Error:     "frame must be a JSON object with a non-empty message",
			}); werr != nil {
				return
			}
			continue
		}

		events := s.orchestrator.StartTurn(r.Context(), sessionID, req.Message)
		for ev := range events {
			if err := s.writeEvent(conn, ev); err != nil {
				log.Warn().Err(err).Msg("Client write error")
				// Drain so the turn goroutine can finish.
				for range events {
				}
				return
			}
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, ev wizard.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(ev)
}
