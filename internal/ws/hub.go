package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"companion-chat/backend/internal/models"
	"companion-chat/backend/internal/service"
	apperrors "companion-chat/backend/pkg/errors"
	"companion-chat/backend/pkg/logger"
	"companion-chat/backend/shared/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	sendBuffer = 64
)

// Frame types
const (
	FrameChat    = "chat"
	FramePing    = "ping"
	FramePong    = "pong"
	FrameHistory = "history"
	FrameTyping  = "typing"
	FrameMessage = "message"
	FrameError   = "error"
)

// Message is the envelope of every frame in both directions
type Message struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

type chatContent struct {
	Text  string `json:"text"`
	Mode  string `json:"mode"`
	Model string `json:"model"`
}

// SessionOpener seeds and loads a session. *service.MessageService implements it.
type SessionOpener interface {
	OpenSession(ctx context.Context, characterID uint, sessionID string) (*service.Session, error)
}

// TurnRunner runs one chat turn. *service.TurnService implements it.
type TurnRunner interface {
	SendTurn(ctx context.Context, req service.TurnRequest, notifier service.TurnNotifier) (*service.TurnResult, error)
}

// Hub tracks live chat views
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex

	sessions SessionOpener
	turns    TurnRunner
	upgrader websocket.Upgrader
	metrics  *observability.Metrics
	log      *logger.Logger
}

// NewHub creates a hub. An empty origin list or "*" accepts any origin.
func NewHub(sessions SessionOpener, turns TurnRunner, allowedOrigins []string, metrics *observability.Metrics, log *logger.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		sessions:   sessions,
		turns:      turns,
		metrics:    metrics,
		log:        log,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      originChecker(allowedOrigins),
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

// Run processes registrations until ctx is done, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.AddWSClients(1)
			client.log.Debug("Client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				h.metrics.AddWSClients(-1)
				client.log.Debug("Client unregistered")
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
				h.metrics.AddWSClients(-1)
			}
			h.mu.Unlock()
			return
		}
	}
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWs opens the session named by the query and upgrades the connection.
// GET /ws?characterId=&sessionId=
func (h *Hub) ServeWs(c *gin.Context) {
	characterID, err := strconv.ParseUint(c.Query("characterId"), 10, 32)
	if err != nil || characterID == 0 {
		_ = c.Error(apperrors.NewBadRequestError("INVALID_ID", "characterId is required"))
		c.Abort()
		return
	}

	sessionID := c.Query("sessionId")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	session, err := h.sessions.OpenSession(c.Request.Context(), uint(characterID), sessionID)
	if err != nil {
		_ = c.Error(service.ToAppError(err))
		c.Abort()
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithContext(c.Request.Context()).Warn("WebSocket upgrade failed", "error", err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	client := &Client{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		characterID: uint(characterID),
		sessionID:   sessionID,
		ctx:         ctx,
		cancel:      cancel,
		log:         h.log.WithContext(c.Request.Context()).WithSession(uint(characterID), sessionID),
	}

	client.sendFrame(FrameHistory, gin.H{"sessionId": sessionID, "messages": session.Messages})

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		cancel()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// Client is one connected chat view
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	characterID uint
	sessionID   string
	busy        atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc
	log         *logger.Logger

	mu     sync.Mutex
	closed bool
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.send)
}

func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("WebSocket read failed", "error", err.Error())
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("Malformed frame")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case FrameChat:
		c.handleChat(msg.Content)
	case FramePing:
		c.sendFrame(FramePong, nil)
	default:
		c.sendError("Unknown frame type: " + msg.Type)
	}
}

// handleChat starts a turn unless one is already running for this connection
func (c *Client) handleChat(raw json.RawMessage) {
	var content chatContent
	if err := json.Unmarshal(raw, &content); err != nil {
		c.sendError("Malformed chat frame")
		return
	}

	if !c.busy.CompareAndSwap(false, true) {
		c.sendError("A message is already being processed")
		return
	}

	go func() {
		defer c.busy.Store(false)

		_, err := c.hub.turns.SendTurn(c.ctx, service.TurnRequest{
			CharacterID: c.characterID,
			SessionID:   c.sessionID,
			Text:        content.Text,
			Mode:        content.Mode,
			Model:       content.Model,
		}, c)
		if err != nil {
			c.log.Warn("Turn rejected", "error", err.Error())
			c.sendError(service.ToAppError(err).Message)
		}
	}()
}

// SetTyping reports the typing indicator to the peer
func (c *Client) SetTyping(active bool) {
	c.sendFrame(FrameTyping, gin.H{"active": active})
}

// MessagePersisted pushes a stored message to the peer
func (c *Client) MessagePersisted(msg *models.ChatMessage) {
	c.sendFrame(FrameMessage, msg)
}

func (c *Client) sendError(text string) {
	c.sendFrame(FrameError, gin.H{"message": text})
}

func (c *Client) sendFrame(frameType string, content any) {
	msg := Message{Type: frameType}
	if content != nil {
		raw, err := json.Marshal(content)
		if err != nil {
			c.log.LogError(err, "Failed to encode frame", "type", frameType)
			return
		}
		msg.Content = raw
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("Dropping frame for slow client", "type", frameType)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Each queued frame goes out as its own message
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
