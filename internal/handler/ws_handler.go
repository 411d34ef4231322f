package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/checkio-backend/internal/middleware"
	"github.com/stemsi/checkio-backend/internal/response"
	"github.com/stemsi/checkio-backend/internal/service"
	ws "github.com/stemsi/checkio-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the live board.
type WSHandler struct {
	checkIO  *service.CheckIOService
	hub      *ws.Hub
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(checkIO *service.CheckIOService, hub *ws.Hub, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		checkIO:  checkIO,
		hub:      hub,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// BoardStream godoc
// WS /ws/v1/board?token=
// Sends the caller's board on connect and again after every change.
func (h *WSHandler) BoardStream(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctx := c.Request.Context()
	view, err := h.checkIO.ViewFor(ctx, actor)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	// Subscribe before reading the board so no change between the two is lost.
	sub := h.hub.Subscribe(view)
	initial, err := h.checkIO.Board(ctx, actor)
	if err != nil {
		h.hub.Unsubscribe(sub)
		fail(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.Unsubscribe(sub)
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("user_id", actor.UserID).
		Str("role", string(actor.Role)).
		Logger()
	wsLog.Info().Msg("Board subscriber connected")

	h.hub.Serve(conn, sub, initial, wsLog)

	wsLog.Info().Msg("Board subscriber disconnected")
}
