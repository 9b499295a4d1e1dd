package control

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/events"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
)

// hub upgrades /ws/events connections and relays the process-wide
// event bus to each subscriber as line-delimited JSON (spec §6). Every
// client gets its own bounded subscription; when a client can't keep
// up and its buffer is full, events.Bus drops each newly published
// event for that client. The client itself is not disconnected.
type hub struct {
	bus      *events.Bus
	backlog  int
	logger   obs.Logger
	upgrader websocket.Upgrader
}

func newHub(bus *events.Bus, backlog int, logger obs.Logger) *hub {
	return &hub{
		bus:     bus,
		backlog: backlog,
		logger:  logger,
		upgrader: websocket.Upgrader{
			// The local web UI and reverse-proxy tunnel are the only
			// expected callers; origin checking is delegated to the
			// same CORS policy the REST surface uses.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// wireMessage is one line of the /ws/events protocol.
type wireMessage struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

func (h *hub) serveHTTP(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	clientID := uuid.New().String()
	defer conn.Close()

	topics := c.QueryArray("topic")
	sub := h.bus.Subscribe(h.backlog, topics...)
	defer sub.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Drain (and discard) client reads on their own goroutine so a
	// half-closed connection is detected promptly; this protocol is
	// server-to-client only.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			msg := wireMessage{Topic: ev.Topic, Payload: ev.Payload}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if h.logger != nil {
					h.logger.WithFields(obs.Fields{"client_id": clientID, "error": err.Error()}).Debug("websocket write failed, closing")
				}
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
