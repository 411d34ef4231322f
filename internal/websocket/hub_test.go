package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/checkio-backend/internal/metrics"
	"github.com/stemsi/checkio-backend/internal/model"
)

func TestHub_DropsStaleGenerations(t *testing.T) {
	h := NewHub(metrics.New(), zerolog.Nop())
	s := h.Subscribe(nil)

	assert.True(t, h.Publish(model.Board{Generation: 2}))
	assert.False(t, h.Publish(model.Board{Generation: 1}))
	assert.True(t, h.Publish(model.Board{Generation: 3}))

	require.Len(t, s.Updates(), 2)
	assert.EqualValues(t, 2, (<-s.Updates()).Generation)
	assert.EqualValues(t, 3, (<-s.Updates()).Generation)

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.EqualValues(t, 3, latest.Generation)
}

func TestHub_AppliesSubscriberView(t *testing.T) {
	h := NewHub(metrics.New(), zerolog.Nop())
	mine := func(b model.Board) model.Board {
		b.CheckedIn = nil
		return b
	}
	s := h.Subscribe(mine)

	h.Publish(model.Board{Generation: 1, CheckedIn: []model.Student{{ID: "x"}}})
	got := <-s.Updates()
	assert.Empty(t, got.CheckedIn)
}

func TestHub_DisconnectsSlowSubscriber(t *testing.T) {
	h := NewHub(metrics.New(), zerolog.Nop())
	s := h.Subscribe(nil)

	for i := 1; i <= sendBuffer+1; i++ {
		h.Publish(model.Board{Generation: uint64(i)})
	}

	n := 0
	for range s.Updates() {
		n++
	}
	assert.Equal(t, sendBuffer, n)

	// Unsubscribing an already dropped subscriber is a no-op.
	h.Unsubscribe(s)
}

func TestHub_ServeStreamsBoards(t *testing.T) {
	h := NewHub(metrics.New(), zerolog.Nop())
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		h.Serve(conn, h.Subscribe(nil), model.Board{Generation: 1}, zerolog.Nop())
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var ev BoardEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventBoard, ev.Event)
	assert.EqualValues(t, 1, ev.Board.Generation)
	assert.Equal(t, 1, h.Subscribers())

	h.Publish(model.Board{Generation: 2, CheckedIn: []model.Student{{ID: "s1"}}})
	require.NoError(t, conn.ReadJSON(&ev))
	assert.EqualValues(t, 2, ev.Board.Generation)
	require.Len(t, ev.Board.CheckedIn, 1)

	require.NoError(t, conn.WriteJSON(RequestEnvelope{Action: ActionPing}))
	var pong PongResponse
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, EventPong, pong.Event)
}
