package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/prog-le/Simultaneous-Interpretation/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The event channel is attached by session id, which is the
	// client's bearer credential here; origin checks belong to the
	// deployment's proxy layer.
	CheckOrigin: func(*http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// wsSubscriber adapts a websocket connection to the sink's Subscriber
// interface. All writes happen on the sink's delivery goroutine, so no
// write lock is needed.
type wsSubscriber struct {
	conn *websocket.Conn
}

func (w *wsSubscriber) Send(ev models.Event) error {
	w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(ev)
}

// controlMessage is a client command received over the websocket.
type controlMessage struct {
	Command string `json:"command"`
}

// serveWS attaches the client's event channel to the session sink and
// runs the control-command loop until the peer disconnects. Events
// published before the attach were buffered by the sink and are
// replayed first. Disconnecting detaches the subscriber but leaves the
// session running.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.registry.Get(sessionID)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("sessionId", sessionID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sink := sess.Sink()
	sink.Attach(&wsSubscriber{conn: conn})
	defer sink.Detach()

	sink.Publish(models.Event{Kind: models.EventConnected})
	h.logger.Info().Str("sessionId", sessionID).Msg("subscriber attached")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.logger.Info().Str("sessionId", sessionID).Msg("subscriber disconnected")
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn().Str("sessionId", sessionID).Msg("ignoring malformed control message")
			continue
		}

		switch msg.Command {
		case "pause":
			if err := sess.Pause(); err != nil {
				sink.Publish(models.Event{Kind: models.EventError, Message: err.Error()})
				continue
			}
			sink.Publish(models.Event{Kind: models.EventPaused})
		case "resume":
			if err := sess.Resume(); err != nil {
				sink.Publish(models.Event{Kind: models.EventError, Message: err.Error()})
				continue
			}
			sink.Publish(models.Event{Kind: models.EventResumed})
		case "stop":
			// Publish the acknowledgement before removal closes the sink.
			sink.Publish(models.Event{Kind: models.EventStopped})
			if err := h.registry.Stop(sessionID); err != nil {
				h.logger.Warn().Err(err).Str("sessionId", sessionID).Msg("stop via websocket failed")
			}
			return
		default:
			h.logger.Warn().Str("command", msg.Command).Msg("ignoring unknown control command")
		}
	}
}
