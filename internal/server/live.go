package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/shared"
	"github.com/desertthunder/ytfetch/internal/tasks"
	"github.com/gorilla/websocket"
)

const (
	liveBuffer = 32
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// subscribe attaches a channel subscriber to taskID. It returns a nil subscriber when the task is
// no longer live, in which case snap is the only state to send.
func (a *API) subscribe(taskID string) (*tasks.ChannelSubscriber, func(), models.Snapshot, error) {
	snap, err := a.tasks.Status(taskID)
	if err != nil {
		return nil, nil, snap, err
	}
	if a.live == nil {
		return nil, nil, snap, nil
	}

	sub := tasks.NewChannelSubscriber(liveBuffer)
	unsubscribe, err := a.live.Subscribe(taskID, sub)
	switch {
	case err == nil:
		return sub, unsubscribe, snap, nil
	case errors.Is(err, shared.ErrTaskNotFound), errors.Is(err, shared.ErrBridgeClosed):
		return nil, nil, snap, nil
	default:
		return nil, nil, snap, err
	}
}

func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	sub, unsubscribe, snap, err := a.subscribe(taskID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if unsubscribe != nil {
		defer unsubscribe()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "task", taskID, "error", err)
		return
	}
	defer conn.Close()

	if sub == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(models.NewStatusUpdate(snap)); err == nil {
			closeWebSocket(conn, "task finished")
		}
		return
	}

	// A read error means the client went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				unsubscribe()
				return
			}
		}
	}()

	for msg := range sub.Messages() {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			a.logger.Debug("websocket write failed", "task", taskID, "error", err)
			return
		}
	}
	closeWebSocket(conn, "task finished")
}

func closeWebSocket(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	sub, unsubscribe, snap, err := a.subscribe(taskID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if unsubscribe != nil {
		defer unsubscribe()
	}

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if sub == nil {
		_ = writeEvent(w, rc, models.NewStatusUpdate(snap))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if err := writeEvent(w, rc, msg); err != nil {
				a.logger.Debug("stream write failed", "task", taskID, "error", err)
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, msg models.Message) error {
	data, err := shared.MarshalJSON(msg, false)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data); err != nil {
		return err
	}
	return rc.Flush()
}
