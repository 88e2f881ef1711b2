package engine

import (
	"errors"
	"fmt"

	"github.com/wricardo/monopoly-live/game/board"
)

var (
	ErrSessionFull       = errors.New("session is full")
	ErrNotAcceptingMoves = errors.New("session is not accepting moves")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrSessionFinished   = errors.New("session is finished")
)

// MoveResult describes one resolved turn. It is not stored; the effect is
// folded into the mover's position and cash.
type MoveResult struct {
	PlayerID     string      `json:"player_id"`
	Dice         [2]int      `json:"dice"`
	Steps        int         `json:"steps"`
	FromPosition int         `json:"from_position"`
	ToPosition   int         `json:"to_position"`
	PassedGo     bool        `json:"passed_go"`
	Bonus        int         `json:"bonus"`
	LandedSpace  board.Space `json:"landed_space"`
	NextPlayerID string      `json:"next_player_id"`
}

// Join seats a new player at the end of the roster. The session becomes
// active once it holds MinActivePlayers and never returns to waiting.
func Join(s *GameState, playerID, name string) (*Player, error) {
	if s.Status == StatusFinished || len(s.Players) >= MaxPlayers {
		return nil, ErrSessionFull
	}
	if s.Player(playerID) != nil {
		return nil, fmt.Errorf("player %s already seated", playerID)
	}

	p := &Player{
		ID:          playerID,
		Name:        name,
		Position:    0,
		Cash:        StartingCash,
		OwnedSpaces: []int{},
		Connected:   true,
	}
	s.Players = append(s.Players, p)

	if len(s.Players) >= MinActivePlayers {
		s.Status = StatusActive
	}
	s.syncCurrent()

	return p, nil
}

// Advance moves steps spaces forward from position. passedGo is true exactly
// when the move wrapped past index 0, that is when the new position is
// strictly lower than the old one.
func Advance(position, steps int) (to int, passedGo bool) {
	to = (position + steps) % board.Size
	return to, to < position
}

// checkTurn validates that playerID may move now.
func checkTurn(s *GameState, playerID string) (*Player, error) {
	if s.Status != StatusActive {
		return nil, ErrNotAcceptingMoves
	}
	p := s.Player(playerID)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	if s.CurrentPlayer().ID != playerID {
		return nil, ErrNotYourTurn
	}
	return p, nil
}

// ResolveTurn moves the current player by steps, pays the passing-GO bonus
// and hands the turn to the next seat. Turn order is seating order and
// disconnected players are not skipped.
func ResolveTurn(s *GameState, b *board.Board, playerID string, steps int) (*MoveResult, error) {
	p, err := checkTurn(s, playerID)
	if err != nil {
		return nil, err
	}
	return applyMove(s, b, p, steps), nil
}

// Roll draws two dice and resolves the turn with their sum. Nothing is drawn
// when the roll is rejected.
func Roll(s *GameState, b *board.Board, playerID string, dice Dice) (*MoveResult, error) {
	p, err := checkTurn(s, playerID)
	if err != nil {
		return nil, err
	}

	d1, d2 := dice.Roll()
	result := applyMove(s, b, p, d1+d2)
	result.Dice = [2]int{d1, d2}
	return result, nil
}

func applyMove(s *GameState, b *board.Board, p *Player, steps int) *MoveResult {
	from := p.Position
	to, passedGo := Advance(from, steps)

	bonus := 0
	if passedGo {
		bonus = PassGoBonus
		p.Cash += bonus
	}
	p.Position = to

	s.TurnIndex = (s.TurnIndex + 1) % len(s.Players)
	s.syncCurrent()

	return &MoveResult{
		PlayerID:     p.ID,
		Steps:        steps,
		FromPosition: from,
		ToPosition:   to,
		PassedGo:     passedGo,
		Bonus:        bonus,
		LandedSpace:  b.SpaceAt(to),
		NextPlayerID: s.CurrentPlayerID,
	}
}

// SetConnected records a channel connect or disconnect for a player. It
// reports whether the flag changed. Seating, turn order, cash and position
// are left alone.
func SetConnected(s *GameState, playerID string, connected bool) (bool, error) {
	if s.Status == StatusFinished {
		return false, ErrSessionFinished
	}
	p := s.Player(playerID)
	if p == nil {
		return false, ErrPlayerNotFound
	}
	if p.Connected == connected {
		return false, nil
	}
	p.Connected = connected
	return true, nil
}

// Finish moves the session to its terminal state.
func Finish(s *GameState) error {
	if s.Status == StatusFinished {
		return ErrSessionFinished
	}
	s.Status = StatusFinished
	return nil
}
