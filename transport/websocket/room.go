package websocket

import (
	"context"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/wricardo/monopoly-live/game/service"
)

// How long a frame waits for an earlier version before it is sent anyway.
const gapWait = 2 * time.Second

type roomMessage struct {
	register   *Client
	unregister *Client
	frame      *outbound
	close      bool
}

// room serves the subscribers of one session. State-bearing frames are sent
// in version order, whatever order their publishers reached the hub in.
// Game calls made here only hold up this session.
type room struct {
	hub       *Hub
	sessionID string
	inbox     chan roomMessage
	exited    chan struct{}

	// a closed room of the same session that must finish first
	prev *room

	// registered minus unregistered clients, owned by the hub loop
	members int

	// everything below is owned by run
	clients  map[*Client]bool
	presence map[string]int

	started bool
	last    uint64
	held    map[uint64]*outbound
	gap     clockwork.Timer
}

func newRoom(h *Hub, sessionID string, prev *room) *room {
	return &room{
		hub:       h,
		sessionID: sessionID,
		prev:      prev,
		inbox:     make(chan roomMessage, sendBuffer),
		exited:    make(chan struct{}),
		clients:   make(map[*Client]bool),
		presence:  make(map[string]int),
		held:      make(map[uint64]*outbound),
	}
}

func (r *room) post(m roomMessage) {
	r.inbox <- m
}

func (r *room) run() {
	defer close(r.exited)
	defer r.stopGap()

	if r.prev != nil {
		<-r.prev.exited
		r.prev = nil
	}

	for {
		var gapC <-chan time.Time
		if r.gap != nil {
			gapC = r.gap.Chan()
		}

		select {
		case m := <-r.inbox:
			switch {
			case m.register != nil:
				r.join(m.register)
			case m.unregister != nil:
				r.leave(m.unregister)
			case m.frame != nil:
				r.route(m.frame)
			case m.close:
				for c := range r.clients {
					delete(r.clients, c)
					close(c.send)
				}
				return
			}

		case <-gapC:
			r.gap = nil
			log.Warn().
				Str("session_id", r.sessionID).
				Uint64("after", r.last).
				Int("held", len(r.held)).
				Msg("sending frames past a missing version")
			r.flush()
		}
	}
}

// join marks the player connected, then sends the snapshot. Frames no newer
// than the snapshot are skipped for this client.
func (r *room) join(c *Client) {
	var connectivity *outbound
	if c.playerID != "" {
		r.presence[c.playerID]++
		if r.presence[c.playerID] == 1 {
			connectivity = r.setConnected(c.playerID, true)
		}
	}

	state, err := r.hub.game.GetGameState(context.Background(), r.sessionID)
	if err != nil {
		// the session went away after the upgrade
		if data, encErr := encode(r.sessionID, 0, ErrorEvent{Code: service.ErrorCode(err), Message: err.Error()}); encErr == nil {
			c.send <- data
		}
		close(c.send)
		r.release(c)
		return
	}

	data, err := encode(state.ID, state.Version, SnapshotEvent{State: state})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal snapshot")
		close(c.send)
		r.release(c)
		return
	}

	c.since = state.Version
	c.send <- data
	r.clients[c] = true
	if !r.started {
		r.started = true
		r.last = state.Version
	}

	log.Debug().
		Str("session_id", r.sessionID).
		Str("player_id", c.playerID).
		Int("clients", len(r.clients)).
		Msg("client registered")

	if connectivity != nil {
		r.route(connectivity)
	}
}

// leave removes a client. The player is marked disconnected when its last
// connection goes away.
func (r *room) leave(c *Client) {
	if !r.clients[c] {
		return
	}
	delete(r.clients, c)
	close(c.send)

	log.Debug().
		Str("session_id", r.sessionID).
		Str("player_id", c.playerID).
		Int("clients", len(r.clients)).
		Msg("client unregistered")

	r.release(c)
}

func (r *room) release(c *Client) {
	if c.playerID == "" {
		return
	}
	r.presence[c.playerID]--
	if r.presence[c.playerID] > 0 {
		return
	}
	delete(r.presence, c.playerID)
	if f := r.setConnected(c.playerID, false); f != nil {
		r.route(f)
	}
}

// setConnected records the flag and returns the frame announcing it, or nil
// when nothing changed.
func (r *room) setConnected(playerID string, connected bool) *outbound {
	res, err := r.hub.game.SetConnected(context.Background(), r.sessionID, playerID, connected)
	if err != nil {
		log.Debug().Err(err).
			Str("session_id", r.sessionID).
			Str("player_id", playerID).
			Msg("connectivity not recorded")
		return nil
	}
	if !res.Changed {
		return nil
	}

	state := res.GameState
	data, err := encode(state.ID, state.Version, ConnectivityEvent{PlayerID: playerID, Connected: connected})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal connectivity")
		return nil
	}
	return &outbound{sessionID: state.ID, version: state.Version, data: data}
}

// route sends targeted and stateless frames at once. A state frame goes out
// when it is the next version; a later one is held until the gap fills or
// gapWait passes. A frame older than the last one sent is still delivered.
func (r *room) route(m *outbound) {
	if !r.started {
		return
	}
	if m.target != nil || m.version == 0 || m.version <= r.last {
		r.deliver(m)
		return
	}
	if m.version > r.last+1 {
		r.held[m.version] = m
		if r.gap == nil {
			r.gap = r.hub.clock.NewTimer(gapWait)
		}
		return
	}

	r.deliver(m)
	r.last = m.version
	for {
		next, ok := r.held[r.last+1]
		if !ok {
			break
		}
		delete(r.held, next.version)
		r.deliver(next)
		r.last = next.version
	}
	if len(r.held) == 0 {
		r.stopGap()
	}
}

// flush sends every held frame in version order.
func (r *room) flush() {
	versions := make([]uint64, 0, len(r.held))
	for v := range r.held {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	for _, v := range versions {
		m := r.held[v]
		delete(r.held, v)
		r.deliver(m)
		r.last = v
	}
}

func (r *room) stopGap() {
	if r.gap != nil {
		r.gap.Stop()
		r.gap = nil
	}
}

// deliver writes a frame to its recipients. Clients whose buffer is full
// are dropped.
func (r *room) deliver(m *outbound) {
	var dropped []*Client
	for client := range r.clients {
		if m.target != nil && client != m.target {
			continue
		}
		if m.target == nil && m.version != 0 && m.version <= client.since {
			continue
		}

		select {
		case client.send <- m.data:
		default:
			dropped = append(dropped, client)
		}
	}

	for _, client := range dropped {
		log.Warn().
			Str("session_id", r.sessionID).
			Str("player_id", client.playerID).
			Msg("dropping slow websocket client")
		r.leave(client)
	}
}
