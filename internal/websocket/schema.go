package websocket

import "github.com/stemsi/checkio-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError Event = "error"
	EventBoard Event = "board"
	EventPong  Event = "pong"
)

// BoardEvent carries a checked-in / checked-out partition.
type BoardEvent struct {
	Event Event       `json:"event"`
	Board model.Board `json:"board"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
