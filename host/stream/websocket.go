package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub broadcasts points to websocket clients. It is an http.Handler for
// the websocket endpoint.
type Hub struct {
	log     zerolog.Logger
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{log: log, clients: map[*websocket.Conn]bool{}}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	h.mu.Lock()
	h.clients[ws] = true
	h.mu.Unlock()
	h.log.Info().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(ws)
}

func (h *Hub) drop(ws *websocket.Conn) {
	h.mu.Lock()
	if h.clients[ws] {
		delete(h.clients, ws)
		ws.Close()
	}
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish sends p to every client. Clients that fail are dropped.
func (h *Hub) Publish(p Point) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ws := range h.clients {
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(p); err != nil {
			h.log.Warn().Err(err).Msg("websocket write")
			ws.Close()
			delete(h.clients, ws)
		}
	}
	return nil
}

// Close disconnects all clients.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ws := range h.clients {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		ws.Close()
		delete(h.clients, ws)
	}
	return nil
}
