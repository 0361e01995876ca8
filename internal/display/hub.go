// Package display pushes transcript updates to browser clients over
// websockets.
package display

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-chat-transcript-service/internal/models"
	"ai-chat-transcript-service/internal/observability/logging"
	"ai-chat-transcript-service/internal/observability/metrics"
	"ai-chat-transcript-service/internal/service/session"
)

// Frame types.
const (
	FrameTranscript    = "transcript"
	FrameBound         = "conversation_bound"
	FrameConversations = "conversations"
	FrameNotification  = "notification"
)

const writeTimeout = 5 * time.Second

// Frame is one JSON message sent to clients.
type Frame struct {
	Type           string                       `json:"type"`
	SessionID      string                       `json:"sessionId,omitempty"`
	ConversationID string                       `json:"conversationId,omitempty"`
	Entries        []models.EntryView           `json:"entries,omitempty"`
	Conversations  []models.ConversationSummary `json:"conversations,omitempty"`
	Notification   *session.Notification        `json:"notification,omitempty"`
}

var _ session.Display = (*Hub)(nil)

// Hub manages WebSocket connections.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Frame
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex

	// latest frames replayed to new clients
	lastTranscript    *Frame
	lastConversations *Frame

	upgrader websocket.Upgrader
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewHub creates a hub. Call Run to start delivering frames.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Frame, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // allow all origins for local dev
			},
		},
		logger:  logging.WithComponent("display"),
		metrics: metrics.DefaultMetrics,
	}
}

// Run delivers frames until ctx is cancelled, then closes all clients.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			h.metrics.RecordDisplayClients(0)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			replay := h.replayFrames()
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.RecordDisplayClients(n)
			h.logger.Info().Int("clients", n).Msg("display client connected")
			for _, f := range replay {
				h.write(conn, f)
			}

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.RecordDisplayClients(n)
			h.logger.Info().Int("clients", n).Msg("display client disconnected")

		case frame := <-h.broadcast:
			h.mu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.mu.RUnlock()
			for _, conn := range conns {
				h.write(conn, frame)
			}
		}
	}
}

// write sends one frame; a failed client is dropped.
func (h *Hub) write(conn *websocket.Conn, frame Frame) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		h.logger.Warn().Err(err).Str("frame", frame.Type).Msg("display write error")
		h.mu.Lock()
		if _, ok := h.clients[conn]; ok {
			delete(h.clients, conn)
			conn.Close()
		}
		h.mu.Unlock()
	}
}

// replayFrames returns the frames a new client needs. Called with h.mu held.
func (h *Hub) replayFrames() []Frame {
	var out []Frame
	if h.lastConversations != nil {
		out = append(out, *h.lastConversations)
	}
	if h.lastTranscript != nil {
		out = append(out, *h.lastTranscript)
	}
	return out
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade error")
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// keep the connection alive until the client goes away
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) send(frame Frame) {
	select {
	case h.broadcast <- frame:
	default:
		h.logger.Warn().Str("frame", frame.Type).Msg("display broadcast buffer full, dropping frame")
	}
}

// --- session.Display implementation ---

// TranscriptUpdated broadcasts the full transcript of a session.
func (h *Hub) TranscriptUpdated(sessionID string, entries []models.TranscriptEntry) {
	frame := Frame{Type: FrameTranscript, SessionID: sessionID, Entries: models.Views(entries)}
	h.mu.Lock()
	h.lastTranscript = &frame
	h.mu.Unlock()
	h.send(frame)
}

// ConversationBound tells clients to adopt the server-assigned id.
func (h *Hub) ConversationBound(sessionID, conversationID string) {
	h.send(Frame{Type: FrameBound, SessionID: sessionID, ConversationID: conversationID})
}

// ConversationsUpdated broadcasts the conversation list.
func (h *Hub) ConversationsUpdated(conversations []models.ConversationSummary) {
	frame := Frame{Type: FrameConversations, Conversations: conversations}
	h.mu.Lock()
	h.lastConversations = &frame
	h.mu.Unlock()
	h.send(frame)
}

// Notify broadcasts a user-facing notification.
func (h *Hub) Notify(n session.Notification) {
	h.send(Frame{Type: FrameNotification, Notification: &n})
}
