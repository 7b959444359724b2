package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/tutu-network/idlemine/internal/domain"
	"github.com/tutu-network/idlemine/internal/infra/observability"
)

// ─── Live Mining Feed ───────────────────────────────────────────────────────
// "The Mining Screen": every engine event is fanned out to connected
// clients over SSE or WebSocket. Clients may filter by ?user=<id>.

const (
	liveBuffer     = 32
	wsWriteTimeout = 10 * time.Second
	wsPingPeriod   = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type liveClient struct {
	userID string // empty receives every user
}

// LiveHub broadcasts mining events to subscribers. It implements
// domain.EventSink.
type LiveHub struct {
	mu      sync.Mutex
	clients map[chan []byte]liveClient
}

// NewLiveHub creates a new broadcast hub.
func NewLiveHub() *LiveHub {
	return &LiveHub{
		clients: make(map[chan []byte]liveClient),
	}
}

var _ domain.EventSink = (*LiveHub)(nil)

// Publish sends an event to every matching client.
func (h *LiveHub) Publish(ev domain.MiningEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, c := range h.clients {
		if c.userID != "" && c.userID != ev.UserID {
			continue
		}
		select {
		case ch <- data:
		default:
			// Client too slow, drop message
		}
	}
}

// Subscribe registers a new client. Returns the channel and an unsubscribe func.
func (h *LiveHub) Subscribe(userID string) (chan []byte, func()) {
	ch := make(chan []byte, liveBuffer)
	h.mu.Lock()
	h.clients[ch] = liveClient{userID: userID}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// ClientCount returns the number of connected clients.
func (h *LiveHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleSSE serves the live feed via Server-Sent Events.
// GET /api/mining/live?user=<id>
func (h *LiveHub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unsub := h.Subscribe(r.URL.Query().Get("user"))
	defer unsub()
	gauge := observability.LiveClients.WithLabelValues("sse")
	gauge.Inc()
	defer gauge.Dec()

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

// HandleWebSocket serves the live feed over a WebSocket. Incoming messages
// are ignored; reading only detects the client going away.
// GET /api/mining/ws?user=<id>
func (h *LiveHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, unsub := h.Subscribe(r.URL.Query().Get("user"))
	defer unsub()
	gauge := observability.LiveClients.WithLabelValues("ws")
	gauge.Inc()
	defer gauge.Dec()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
