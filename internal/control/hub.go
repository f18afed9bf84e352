package control

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"token-detector/internal/logging"
	"token-detector/internal/observability"
	"token-detector/internal/telemetry"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	sendBufSize = 64
)

// SurfaceGate is told whether any UI session is connected.
type SurfaceGate interface {
	SetOpen(open bool)
}

// session is one connected UI client.
type session struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (s *session) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub tracks UI sessions over WebSocket. The first session opens the gate,
// the last one to leave closes it. Telemetry events are pushed to every session.
type Hub struct {
	gate     SurfaceGate
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	// gateMu serialises session count changes with the gate update so the
	// gate always ends up reflecting the final count.
	gateMu sync.Mutex

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
}

// NewHub creates a hub driving gate.
func NewHub(gate SurfaceGate, logger *zerolog.Logger) *Hub {
	return &Hub{
		gate: gate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:   logging.OrNop(logger).With().Str("component", "ws_hub").Logger(),
		sessions: make(map[uuid.UUID]*session),
	}
}

// Sessions returns the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// ServeHTTP upgrades the request and serves the session until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	s := &session{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, sendBufSize),
		done: make(chan struct{}),
	}
	h.register(s)

	go h.writePump(s)
	h.readPump(s)
}

func (h *Hub) register(s *session) {
	h.gateMu.Lock()
	defer h.gateMu.Unlock()

	h.mu.Lock()
	h.sessions[s.id] = s
	n := len(h.sessions)
	h.mu.Unlock()

	observability.SetConnectedSessions(n)
	h.logger.Info().Str("session", s.id.String()).Int("sessions", n).Msg("session connected")
	if n == 1 {
		h.gate.SetOpen(true)
	}
}

func (h *Hub) unregister(s *session) {
	h.gateMu.Lock()
	defer h.gateMu.Unlock()

	h.mu.Lock()
	if _, ok := h.sessions[s.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.id)
	n := len(h.sessions)
	h.mu.Unlock()

	s.close()
	observability.SetConnectedSessions(n)
	h.logger.Info().Str("session", s.id.String()).Int("sessions", n).Msg("session disconnected")
	if n == 0 {
		h.gate.SetOpen(false)
	}
}

// readPump discards client messages and returns when the connection drops.
func (h *Hub) readPump(s *session) {
	defer func() {
		h.unregister(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("session", s.id.String()).Msg("websocket read")
			}
			return
		}
	}
}

func (h *Hub) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Record implements telemetry.Sink by broadcasting the event as JSON.
// Sessions whose buffer is full miss the event.
func (h *Hub) Record(_ context.Context, e telemetry.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		h.logger.Warn().Err(err).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, s := range h.sessions {
		select {
		case s.send <- payload:
		default:
			h.logger.Warn().Str("session", id.String()).Msg("session send buffer full, dropping event")
		}
	}
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.RLock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(writeWait))
		_ = s.conn.Close()
	}
}

var _ telemetry.Sink = (*Hub)(nil)
