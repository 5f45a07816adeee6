package web

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/agent-arcade/internal/monitor"
)

type wsClientMessage struct {
	Type string `json:"type"`
}

type wsServerMessage struct {
	Type    string    `json:"type"`            // status, transition, error
	Event   string    `json:"event,omitempty"` // connected, pong, ready, busy
	Message string    `json:"message,omitempty"`
	Play    *Status   `json:"play,omitempty"`
	Time    time.Time `json:"time,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     allowWSOrigin,
}

// allowWSOrigin accepts same-host browsers and non-browser clients,
// which send no Origin header at all.
func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}

	return strings.EqualFold(originURL.Host, r.Host)
}

// wsConnWriter serializes writes to one websocket connection.
type wsConnWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConnWriter(conn *websocket.Conn) *wsConnWriter {
	return &wsConnWriter{conn: conn}
}

func (w *wsConnWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(v)
}

// handleWS streams agent transitions to the client as they happen. The
// client may send {"type":"ping"} frames; anything else is reported and
// ignored.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	writer := newWSConnWriter(conn)

	// Subscribe before the hello frame so a transition arriving right
	// after the client connects is never dropped.
	events := s.subscribeEvents()
	defer s.unsubscribeEvents(events)

	st := s.currentStatus()
	_ = writer.WriteJSON(wsServerMessage{
		Type:  "status",
		Event: "connected",
		Play:  &st,
		Time:  time.Now().UTC(),
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			var msg wsClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case "ping":
				_ = writer.WriteJSON(wsServerMessage{
					Type:  "status",
					Event: "pong",
					Time:  time.Now().UTC(),
				})
			default:
				_ = writer.WriteJSON(wsServerMessage{
					Type:    "error",
					Message: "supported message types: ping",
					Time:    time.Now().UTC(),
				})
			}
		}
	}()

	for {
		select {
		case <-readDone:
			return
		case <-s.baseCtx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writer.WriteJSON(transitionMessage(ev)); err != nil {
				return
			}
		}
	}
}

func transitionMessage(ev monitor.Event) wsServerMessage {
	return wsServerMessage{
		Type:    "transition",
		Event:   strings.ToLower(string(ev.Status)),
		Message: ev.Message,
		Time:    ev.Timestamp,
	}
}
