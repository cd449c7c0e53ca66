package viewer

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/neatsnake/harness"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Frames queued per client before new ones are dropped.
	clientBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans live frames out to every connected websocket client. Slow
// clients lose frames rather than stall publishers.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[chan LiveFrame]struct{}
	closed  bool
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{log: log, clients: make(map[chan LiveFrame]struct{})}
}

// Publish queues f for every client. It never blocks.
func (h *Hub) Publish(f LiveFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- f:
		default:
		}
	}
}

// Observer returns a harness step hook that publishes every step.
func (h *Hub) Observer(episodeID, candidateID string) func(harness.StepInfo) {
	return func(si harness.StepInfo) {
		h.Publish(FrameFromStep(episodeID, candidateID, si))
	}
}

// FrameFromStep converts an observed step for the wire.
func FrameFromStep(episodeID, candidateID string, si harness.StepInfo) LiveFrame {
	st := si.State
	body := make([]Point, len(st.Body))
	for i, p := range st.Body {
		body[i] = Point{X: int32(p.X), Y: int32(p.Y)}
	}
	return LiveFrame{
		EpisodeID:   episodeID,
		CandidateID: candidateID,
		Step:        si.Step,
		Size:        st.Size,
		Action:      si.Action.String(),
		Score:       st.Score,
		Fitness:     si.Fitness,
		Terminal:    si.Terminal,
		Food:        Point{X: int32(st.Food.X), Y: int32(st.Food.Y)},
		Body:        body,
	}
}

// Clients reports how many websocket clients are connected.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) subscribe() (chan LiveFrame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan LiveFrame, clientBuffer)
	h.clients[ch] = struct{}{}
	return ch, true
}

func (h *Hub) unsubscribe(ch chan LiveFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

// ServeWS upgrades the request and streams frames until either side goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer ws.Close()

	ch, ok := h.subscribe()
	if !ok {
		closeWebsocket(ws)
		return
	}
	defer h.unsubscribe(ch)

	// The reader only exists to process pongs and notice the client leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f, ok := <-ch:
			if !ok {
				closeWebsocket(ws)
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func closeWebsocket(ws *websocket.Conn) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
