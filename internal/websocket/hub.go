package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/checkio-backend/internal/metrics"
	"github.com/stemsi/checkio-backend/internal/model"
)

const sendBuffer = 8

// View narrows a board for one subscriber (parents only see their children).
type View func(model.Board) model.Board

// Subscriber is one live board connection.
type Subscriber struct {
	send chan model.Board
	view View
}

// Updates yields the boards published to this subscriber. The channel is
// closed when the hub drops the subscriber.
func (s *Subscriber) Updates() <-chan model.Board { return s.send }

// Hub fans board publications out to subscribers. Publications older than
// the newest one already sent are dropped, so a slow refresh that finishes
// late cannot overwrite a newer board.
type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscriber]struct{}
	lastGen uint64
	latest  *model.Board

	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(m *metrics.Metrics, log zerolog.Logger) *Hub {
	return &Hub{
		subs:    make(map[*Subscriber]struct{}),
		metrics: m,
		log:     log.With().Str("component", "board_hub").Logger(),
	}
}

// Subscribe registers a subscriber. A nil view sends boards unchanged.
func (h *Hub) Subscribe(view View) *Subscriber {
	if view == nil {
		view = func(b model.Board) model.Board { return b }
	}
	s := &Subscriber{send: make(chan model.Board, sendBuffer), view: view}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	h.metrics.BoardSubscribers.Inc()
	return s
}

// Unsubscribe removes s and closes its channel. Calling it twice is safe.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.send)
	h.metrics.BoardSubscribers.Dec()
}

// Publish sends b to every subscriber unless a board with a higher
// generation was already published. It reports whether b was sent.
// Subscribers that cannot keep up are dropped.
func (h *Hub) Publish(b model.Board) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if b.Generation < h.lastGen {
		h.log.Debug().Uint64("generation", b.Generation).Uint64("last", h.lastGen).Msg("Dropped stale board")
		return false
	}
	h.lastGen = b.Generation
	h.latest = &b

	for s := range h.subs {
		select {
		case s.send <- s.view(b):
		default:
			h.log.Warn().Msg("Subscriber too slow, disconnecting")
			h.removeLocked(s)
		}
	}
	return true
}

// Latest returns the newest published board, if any.
func (h *Hub) Latest() (model.Board, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return model.Board{}, false
	}
	return *h.latest, true
}

// Serve pumps board updates to conn and answers pings until either side
// closes. initial is written first.
func (h *Hub) Serve(conn *websocket.Conn, s *Subscriber, initial model.Board, log zerolog.Logger) {
	defer h.Unsubscribe(s)

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return WriteTyped(conn, v)
	}

	if err := write(BoardEvent{Event: EventBoard, Board: initial}); err != nil {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg RequestEnvelope
			if err := ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Msg("Unexpected close")
				} else {
					log.Debug().Msg("Connection closed")
				}
				return
			}
			switch msg.Action {
			case ActionPing:
				_ = write(PongResponse{Event: EventPong})
			default:
				_ = write(ErrorResponse{Event: EventError, Error: "unknown action: " + string(msg.Action)})
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case b, ok := <-s.Updates():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"), time.Now().Add(writeWait))
				return
			}
			if err := write(BoardEvent{Event: EventBoard, Board: b}); err != nil {
				return
			}
		}
	}
}

// Subscribers returns the number of live board connections.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
