package service

import (
	"context"
	"time"

	"github.com/wricardo/monopoly-live/game/board"
	"github.com/wricardo/monopoly-live/game/engine"
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Game Operations
	Join(ctx context.Context, sessionID, displayName string) (*JoinResult, error)
	Roll(ctx context.Context, sessionID, playerID string) (*RollResult, error)
	SetConnected(ctx context.Context, sessionID, playerID string, connected bool) (*ConnectivityResult, error)
	Finish(ctx context.Context, sessionID string) (*engine.GameState, error)

	// Game State
	GetGameState(ctx context.Context, sessionID string) (*engine.GameState, error)
	Board() *board.Board
}

// SessionManager defines session storage operations. WithSession runs fn on
// a private copy of the state under the session's exclusive mutation scope
// and commits the copy only when fn returns nil.
type SessionManager interface {
	Create() (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	WithSession(id string, fn func(state *engine.GameState) error) (*Session, error)
}

// Notifier receives informational lifecycle events. Delivery is best effort
// and implementations must not block the caller for long.
type Notifier interface {
	SessionActivated(ctx context.Context, state *engine.GameState)
	TurnStarted(ctx context.Context, sessionID string, player *engine.Player)
}

// Session represents a game session held by the registry
type Session struct {
	ID             string
	State          *engine.GameState
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
