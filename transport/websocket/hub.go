package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/wricardo/monopoly-live/game/engine"
	"github.com/wricardo/monopoly-live/game/service"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Outbound frames buffered per client before it is dropped as slow.
	sendBuffer = 256
)

// Game is the part of the game service the hub drives.
type Game interface {
	GetGameState(ctx context.Context, sessionID string) (*engine.GameState, error)
	Roll(ctx context.Context, sessionID, playerID string) (*service.RollResult, error)
	SetConnected(ctx context.Context, sessionID, playerID string, connected bool) (*service.ConnectivityResult, error)
}

// Client is one subscribed connection. A client without a playerID is a
// spectator.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
	playerID  string

	// set by the hub loop
	room *room

	// version of the snapshot the client started from, owned by its room
	since uint64
}

// outbound is a frame routed to a session's room. version 0 marks frames
// that carry no session state (errors).
type outbound struct {
	sessionID string
	version   uint64
	data      []byte
	target    *Client
	close     bool
}

// Hub routes clients and frames to one room per session. The Run goroutine
// owns the room table; each room owns its clients.
type Hub struct {
	game     Game
	clock    clockwork.Clock
	upgrader websocket.Upgrader

	// Rooms with at least one registered client, by session ID
	rooms map[string]*room

	// Rooms closed for being empty, which may still be recording disconnects
	retired map[string]*room

	broadcast  chan *outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithAllowedOrigins restricts upgrades to the given Origin values. An empty
// list or "*" allows every origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			if o == "*" {
				return
			}
			allowed[o] = true
		}
		if len(allowed) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}
}

// WithClock sets the clock used for the out-of-order frame timeout.
func WithClock(clock clockwork.Clock) Option {
	return func(h *Hub) {
		h.clock = clock
	}
}

// NewHub creates a new WebSocket hub
func NewHub(game Game, opts ...Option) *Hub {
	h := &Hub{
		game:  game,
		clock: clockwork.NewRealClock(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms:      make(map[string]*room),
		retired:    make(map[string]*room),
		broadcast:  make(chan *outbound, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub's event loop and blocks until ctx is cancelled, after
// which every client is disconnected.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, r := range h.rooms {
				h.closeRoom(r)
			}
			return

		case client := <-h.register:
			r := h.rooms[client.sessionID]
			if r == nil {
				r = newRoom(h, client.sessionID, h.retired[client.sessionID])
				delete(h.retired, client.sessionID)
				h.rooms[client.sessionID] = r
				go r.run()
			}
			r.members++
			client.room = r
			r.post(roomMessage{register: client})

		case client := <-h.unregister:
			r := client.room
			if r == nil || h.rooms[client.sessionID] != r {
				// the room was closed with the client in it
				continue
			}
			r.post(roomMessage{unregister: client})
			r.members--
			if r.members == 0 {
				h.closeRoom(r)
				h.retired[r.sessionID] = r
			}

		case message := <-h.broadcast:
			r := h.rooms[message.sessionID]
			if message.close {
				delete(h.retired, message.sessionID)
				if r != nil {
					h.closeRoom(r)
				}
				continue
			}
			if r != nil {
				r.post(roomMessage{frame: message})
			}
		}
	}
}

func (h *Hub) closeRoom(r *room) {
	delete(h.rooms, r.sessionID)
	r.post(roomMessage{close: true})
}

// ServeWS upgrades the request and subscribes the connection to a session.
// An empty playerID subscribes a spectator.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID, playerID string) {
	state, err := h.game.GetGameState(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if playerID != "" && state.Player(playerID) == nil {
		http.Error(w, "player not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		sessionID: state.ID,
		playerID:  playerID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// BroadcastJoined announces a newly seated player to the session.
func (h *Hub) BroadcastJoined(res *service.JoinResult) {
	h.publish(res.GameState, PlayerJoinedEvent{Player: res.Player, State: res.GameState})
}

// BroadcastMove announces a resolved turn to the session.
func (h *Hub) BroadcastMove(res *service.RollResult) {
	h.publish(res.GameState, DiceRolledEvent{Move: res.Move, State: res.GameState})
}

// BroadcastFinished announces that a session stopped accepting moves.
func (h *Hub) BroadcastFinished(state *engine.GameState) {
	h.publish(state, SessionFinishedEvent{State: state})
}

// CloseSession disconnects every client of a session, e.g. after deletion.
func (h *Hub) CloseSession(sessionID string) {
	h.enqueue(&outbound{sessionID: sessionID, close: true})
}

func (h *Hub) publish(state *engine.GameState, event Event) {
	data, err := encode(state.ID, state.Version, event)
	if err != nil {
		log.Error().Err(err).Str("type", event.eventType()).Msg("failed to marshal websocket message")
		return
	}
	h.enqueue(&outbound{sessionID: state.ID, version: state.Version, data: data})
}

func (h *Hub) sendSnapshot(c *Client, state *engine.GameState) {
	data, err := encode(state.ID, state.Version, SnapshotEvent{State: state})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal snapshot")
		return
	}
	h.enqueue(&outbound{sessionID: c.sessionID, version: state.Version, data: data, target: c})
}

func (h *Hub) sendError(c *Client, code, message string) {
	data, err := encode(c.sessionID, 0, ErrorEvent{Code: code, Message: message})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal error")
		return
	}
	h.enqueue(&outbound{sessionID: c.sessionID, data: data, target: c})
}

func (h *Hub) enqueue(m *outbound) {
	select {
	case h.broadcast <- m:
	case <-h.done:
	}
}

// handle processes one client request.
func (c *Client) handle(data []byte) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		c.hub.sendError(c, service.CodeBadRequest, "malformed message")
		return
	}

	ctx := context.Background()
	switch req.Type {
	case RequestRoll:
		if c.playerID == "" {
			c.hub.sendError(c, service.CodeBadRequest, "spectators cannot roll")
			return
		}
		res, err := c.hub.game.Roll(ctx, c.sessionID, c.playerID)
		if err != nil {
			c.hub.sendError(c, service.ErrorCode(err), err.Error())
			return
		}
		c.hub.BroadcastMove(res)

	case RequestSync:
		state, err := c.hub.game.GetGameState(ctx, c.sessionID)
		if err != nil {
			c.hub.sendError(c, service.ErrorCode(err), err.Error())
			return
		}
		c.hub.sendSnapshot(c, state)

	default:
		c.hub.sendError(c, service.CodeBadRequest, fmt.Sprintf("unknown message type %q", req.Type))
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("session_id", c.sessionID).Msg("websocket read error")
			}
			break
		}
		c.handle(message)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
