package websocket

import (
	"encoding/json"

	"github.com/wricardo/monopoly-live/game/engine"
)

// Outbound message types
const (
	TypeSnapshot        = "snapshot"
	TypePlayerJoined    = "player_joined"
	TypeDiceRolled      = "dice_rolled"
	TypeSessionFinished = "session_finished"
	TypeConnectivity    = "connectivity"
	TypeError           = "error"
)

// Inbound request types
const (
	RequestRoll = "roll"
	RequestSync = "sync"
)

// Envelope is the JSON frame written to clients.
type Envelope struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Version   uint64      `json:"version,omitempty"`
	Data      interface{} `json:"data"`
}

// Event is one of the outbound payloads below.
type Event interface {
	eventType() string
}

// SnapshotEvent carries the full session state.
type SnapshotEvent struct {
	State *engine.GameState `json:"state"`
}

// PlayerJoinedEvent announces a new seat.
type PlayerJoinedEvent struct {
	Player *engine.Player    `json:"player"`
	State  *engine.GameState `json:"state"`
}

// DiceRolledEvent carries a resolved turn and the state after it.
type DiceRolledEvent struct {
	Move  *engine.MoveResult `json:"move"`
	State *engine.GameState  `json:"state"`
}

// SessionFinishedEvent announces that the session no longer accepts moves.
type SessionFinishedEvent struct {
	State *engine.GameState `json:"state"`
}

// ConnectivityEvent reports a player's channel going up or down.
type ConnectivityEvent struct {
	PlayerID  string `json:"player_id"`
	Connected bool   `json:"connected"`
}

// ErrorEvent is sent only to the client whose request failed.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (SnapshotEvent) eventType() string        { return TypeSnapshot }
func (PlayerJoinedEvent) eventType() string    { return TypePlayerJoined }
func (DiceRolledEvent) eventType() string      { return TypeDiceRolled }
func (SessionFinishedEvent) eventType() string { return TypeSessionFinished }
func (ConnectivityEvent) eventType() string    { return TypeConnectivity }
func (ErrorEvent) eventType() string           { return TypeError }

// Request is a client message.
type Request struct {
	Type string `json:"type"`
}

func encode(sessionID string, version uint64, event Event) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      event.eventType(),
		SessionID: sessionID,
		Version:   version,
		Data:      event,
	})
}
