package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/session"
)

// SessionAcceptor is the subset of the session manager the websocket
// endpoint drives. Accept blocks for the lifetime of the connection.
type SessionAcceptor interface {
	Accept(ctx context.Context, deviceID string, ch session.Channel) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The device channel is not browser-originated; any origin is accepted
	// the way the bidirectional endpoint is specified to behave (spec.md
	// §9: no authentication of devices beyond identifier assertion).
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebSocketHandler struct {
	sessions SessionAcceptor
}

func NewWebSocketHandler(sessions SessionAcceptor) *WebSocketHandler {
	return &WebSocketHandler{sessions: sessions}
}

// Upgrade serves GET /ws/{device_id}, promoting the HTTP connection to a
// persistent frame-carrying channel (spec.md §6).
func (h *WebSocketHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "device_id")
	log := hlog.FromRequest(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("websocket upgrade failed")
		return
	}

	if err := h.sessions.Accept(r.Context(), deviceID, conn); err != nil {
		log.Info().Err(err).Str("device_id", deviceID).Msg("session rejected")
	}
}

func (h *WebSocketHandler) Routes(r chi.Router) {
	r.Get("/ws/{device_id}", h.Upgrade)
}
