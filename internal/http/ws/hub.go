// Package ws pushes live game state to browsers over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/notify"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	defaultSendBuffer = 64
	broadcastBuffer   = 256
)

// Message types pushed to clients.
const (
	TypeSnapshot     = "snapshot"
	TypeGameUpserted = "game.upserted"
	TypeGameRemoved  = "game.removed"
	TypeConnection   = "connection"
	TypeNotification = "notification"
)

// Message is the envelope for every push.
type Message struct {
	Type         string                       `json:"type"`
	Games        []domaingames.Game           `json:"games,omitempty"`
	Game         *domaingames.Game            `json:"game,omitempty"`
	Connection   *domaingames.ConnectionState `json:"connection,omitempty"`
	Notification *notify.Notification         `json:"notification,omitempty"`
}

// Source supplies the snapshot a new client starts from.
type Source interface {
	LiveGames() []domaingames.Game
	ConnectionState() domaingames.ConnectionState
}

// Hub tracks connected clients and fans messages out to them. Clients that
// can't keep up are dropped.
type Hub struct {
	source   Source
	logger   *slog.Logger
	upgrader websocket.Upgrader

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	sendBuffer int

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub builds a hub. An empty or "*" origin list accepts any origin.
func NewHub(source Source, logger *slog.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		source:     source,
		logger:     logger,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, broadcastBuffer),
		done:       make(chan struct{}),
		sendBuffer: defaultSendBuffer,
		clients:    make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// Run owns the client set until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			// The snapshot is taken here so no broadcast can slip between it and registration.
			c.send <- h.snapshot()
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Info(h.logger, "ws client registered", logging.FieldClientID, c.id, logging.FieldCount, total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Info(h.logger, "ws client unregistered", logging.FieldClientID, c.id, logging.FieldCount, total)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
					logging.Warn(h.logger, "ws client too slow, dropped", logging.FieldClientID, c.id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients reports how many clients are connected.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify implements notify.Sink.
func (h *Hub) Notify(n notify.Notification) {
	h.publish(Message{Type: TypeNotification, Notification: &n})
}

// OnStoreEvent is a store.Listener.
func (h *Hub) OnStoreEvent(e store.Event) {
	g := e.Game
	switch e.Type {
	case store.EventUpserted:
		h.publish(Message{Type: TypeGameUpserted, Game: &g})
	case store.EventRemoved:
		h.publish(Message{Type: TypeGameRemoved, Game: &g})
	}
}

// OnConnection is a connection-state listener.
func (h *Hub) OnConnection(s domaingames.ConnectionState) {
	h.publish(Message{Type: TypeConnection, Connection: &s})
}

// ServeHTTP upgrades the request and starts the client's pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), h.logger)
	id, err := gonanoid.New()
	if err != nil {
		logging.Error(logger, "ws client id failed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logging.Warn(logger, "ws upgrade failed", logging.FieldError, err)
		return
	}

	c := &client{id: id, hub: h, conn: conn, send: make(chan []byte, h.sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (h *Hub) snapshot() []byte {
	var games []domaingames.Game
	var conn domaingames.ConnectionState
	if h.source != nil {
		games = h.source.LiveGames()
		conn = h.source.ConnectionState()
	}
	if games == nil {
		games = []domaingames.Game{}
	}
	return h.marshal(Message{Type: TypeSnapshot, Games: games, Connection: &conn})
}

// publish never blocks the caller; store and connection listeners run on the reconciler's goroutine.
func (h *Hub) publish(m Message) {
	data := h.marshal(m)
	select {
	case h.broadcast <- data:
	default:
		logging.Warn(h.logger, "ws broadcast queue full, message dropped", "type", m.Type)
	}
}

func (h *Hub) marshal(m Message) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		logging.Error(h.logger, "ws marshal failed", err, "type", m.Type)
		return []byte(`{}`)
	}
	return data
}

func (c *client) readPump() {
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
		// Clients don't send anything meaningful; reads only drive control frames.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn(c.hub.logger, "ws read failed", logging.FieldClientID, c.id, logging.FieldError, err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
