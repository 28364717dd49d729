// internal/server/hub.go
package server

import (
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// reloadMessage is the only frame the preview ever sends. The script appended
// to served pages reloads the tab when it arrives.
const reloadMessage = "reload"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local preview server; any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub tracks the browser tabs showing built doc pages so a successful
// rebuild can tell all of them to reload. A failed rebuild sends nothing and
// the tabs keep showing the previous output.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	log   *log.Logger
}

func newHub(l *log.Logger) *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{}), log: l}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
	h.log.Debug("Preview tab connected", "remote", conn.RemoteAddr(), "tabs", len(h.conns))
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; !ok {
		return
	}
	delete(h.conns, conn)
	conn.Close()
	h.log.Debug("Preview tab disconnected", "remote", conn.RemoteAddr(), "tabs", len(h.conns))
}

func (h *Hub) tabs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Reload asks every connected tab to refresh. Tabs whose socket can no
// longer be written are dropped. It returns how many tabs were notified.
func (h *Hub) Reload() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	sent := 0
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reloadMessage)); err != nil {
			h.log.Warn("Dropping preview tab", "remote", conn.RemoteAddr(), "err", err)
			conn.Close()
			delete(h.conns, conn)
			continue
		}
		sent++
	}
	return sent
}

// ServeHTTP upgrades a tab's /ws request and keeps it registered until the
// tab goes away. Tabs never send anything; reads only detect the close.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade error", "err", err)
		return
	}
	h.add(conn)
	defer h.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
