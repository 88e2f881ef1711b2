package service

import (
	"time"

	"github.com/wricardo/monopoly-live/game/engine"
)

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string            `json:"id"`
	Status         engine.Status     `json:"status"`
	PlayerCount    int               `json:"player_count"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	GameState      *engine.GameState `json:"game_state"`
}

// JoinResult contains the newly seated player and the session after the join
type JoinResult struct {
	Player    *engine.Player    `json:"player"`
	GameState *engine.GameState `json:"game_state"`
	Activated bool              `json:"activated"`
}

// RollResult contains the resolved move and the session after it
type RollResult struct {
	Move      *engine.MoveResult `json:"move"`
	GameState *engine.GameState  `json:"game_state"`
}

// ConnectivityResult reports a connectivity flag update
type ConnectivityResult struct {
	PlayerID  string            `json:"player_id"`
	Connected bool              `json:"connected"`
	Changed   bool              `json:"changed"`
	GameState *engine.GameState `json:"game_state"`
}

func toSessionInfo(s *Session) *SessionInfo {
	return &SessionInfo{
		ID:             s.ID,
		Status:         s.State.Status,
		PlayerCount:    len(s.State.Players),
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
		GameState:      s.State,
	}
}
