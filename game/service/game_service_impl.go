package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wricardo/monopoly-live/game/board"
	"github.com/wricardo/monopoly-live/game/engine"
)

var (
	ErrInvalidName = errors.New("invalid display name")
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	board    *board.Board
	dice     engine.Dice
	notifier Notifier
}

// Option configures the game service.
type Option func(*gameServiceImpl)

// WithDice replaces the random dice, e.g. with engine.SequenceDice in tests.
func WithDice(d engine.Dice) Option {
	return func(s *gameServiceImpl) { s.dice = d }
}

// WithNotifier sets the receiver of session-active and turn-started events.
func WithNotifier(n Notifier) Option {
	return func(s *gameServiceImpl) { s.notifier = n }
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, b *board.Board, opts ...Option) GameService {
	s := &gameServiceImpl{
		sessions: sessions,
		board:    b,
		dice:     engine.RandomDice{},
		notifier: nopNotifier{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession creates a new game session
func (s *gameServiceImpl) CreateSession(ctx context.Context) (*SessionInfo, error) {
	sess, err := s.sessions.Create()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info().Str("session_id", sess.ID).Msg("session created")
	return toSessionInfo(sess), nil
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return toSessionInfo(sess), nil
}

// ListSessions returns all sessions
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, toSessionInfo(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(sessionID); err != nil {
		return err
	}
	log.Info().Str("session_id", sessionID).Msg("session deleted")
	return nil
}

// GetGameState returns a point-in-time snapshot of the session
func (s *gameServiceImpl) GetGameState(ctx context.Context, sessionID string) (*engine.GameState, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.State, nil
}

// Board returns the track shared by all sessions
func (s *gameServiceImpl) Board() *board.Board {
	return s.board
}

// Join seats a new player at the end of the roster
func (s *gameServiceImpl) Join(ctx context.Context, sessionID, displayName string) (*JoinResult, error) {
	playerID := uuid.NewString()
	var activated bool
	sess, err := s.sessions.WithSession(sessionID, func(state *engine.GameState) error {
		// an unknown session is reported before a bad name
		name, err := normalizeName(displayName)
		if err != nil {
			return err
		}
		wasActive := state.Status == engine.StatusActive
		if _, err := engine.Join(state, playerID, name); err != nil {
			return err
		}
		activated = !wasActive && state.Status == engine.StatusActive
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sessionID).
		Str("player_id", playerID).
		Int("players", len(sess.State.Players)).
		Str("status", string(sess.State.Status)).
		Msg("player joined")

	if activated {
		s.notifier.SessionActivated(ctx, sess.State)
		s.notifier.TurnStarted(ctx, sess.ID, sess.State.CurrentPlayer())
	}

	return &JoinResult{
		Player:    sess.State.Player(playerID),
		GameState: sess.State,
		Activated: activated,
	}, nil
}

// Roll resolves the current player's turn with a fresh dice draw
func (s *gameServiceImpl) Roll(ctx context.Context, sessionID, playerID string) (*RollResult, error) {
	var move *engine.MoveResult
	sess, err := s.sessions.WithSession(sessionID, func(state *engine.GameState) error {
		var err error
		move, err = engine.Roll(state, s.board, playerID, s.dice)
		return err
	})
	if err != nil {
		log.Debug().Err(err).Str("session_id", sessionID).Str("player_id", playerID).Msg("roll rejected")
		return nil, err
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("player_id", playerID).
		Ints("dice", move.Dice[:]).
		Int("from", move.FromPosition).
		Int("to", move.ToPosition).
		Bool("passed_go", move.PassedGo).
		Msg("turn resolved")

	s.notifier.TurnStarted(ctx, sess.ID, sess.State.CurrentPlayer())

	return &RollResult{Move: move, GameState: sess.State}, nil
}

// SetConnected records a channel connect or disconnect for a player
func (s *gameServiceImpl) SetConnected(ctx context.Context, sessionID, playerID string, connected bool) (*ConnectivityResult, error) {
	var changed bool
	sess, err := s.sessions.WithSession(sessionID, func(state *engine.GameState) error {
		var err error
		changed, err = engine.SetConnected(state, playerID, connected)
		if err == nil && !changed {
			return errUnchanged
		}
		return err
	})
	if errors.Is(err, errUnchanged) {
		state, err := s.GetGameState(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return &ConnectivityResult{PlayerID: playerID, Connected: connected, GameState: state}, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sessionID).
		Str("player_id", playerID).
		Bool("connected", connected).
		Msg("player connectivity changed")

	return &ConnectivityResult{
		PlayerID:  playerID,
		Connected: connected,
		Changed:   true,
		GameState: sess.State,
	}, nil
}

// errUnchanged aborts a mutation scope that has nothing to commit, so the
// version only moves on real changes.
var errUnchanged = errors.New("unchanged")

// Finish moves the session to its terminal state
func (s *gameServiceImpl) Finish(ctx context.Context, sessionID string) (*engine.GameState, error) {
	sess, err := s.sessions.WithSession(sessionID, engine.Finish)
	if err != nil {
		return nil, err
	}

	log.Info().Str("session_id", sessionID).Msg("session finished")
	return sess.State, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > engine.MaxDisplayNameLen {
		return "", fmt.Errorf("%w: name longer than %d characters", ErrInvalidName, engine.MaxDisplayNameLen)
	}
	return name, nil
}

type nopNotifier struct{}

func (nopNotifier) SessionActivated(context.Context, *engine.GameState) {}
func (nopNotifier) TurnStarted(context.Context, string, *engine.Player) {}
