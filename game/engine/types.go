package engine

const (
	MaxPlayers        = 4
	MinActivePlayers  = 2
	StartingCash      = 1500
	PassGoBonus       = 200
	DieFaces          = 6
	MaxDisplayNameLen = 32
)

// Status is the lifecycle stage of a session.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Player is one seat in a session.
type Player struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Position    int    `json:"position"`
	Cash        int    `json:"cash"`
	OwnedSpaces []int  `json:"owned_spaces"`
	Connected   bool   `json:"connected"`
}

// Clone returns a deep copy of the player.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	c.OwnedSpaces = append([]int{}, p.OwnedSpaces...)
	return &c
}

// GameState is the authoritative record of one session. Players are kept in
// seating order; TurnIndex points at the current player whenever the roster
// is non-empty. Version increases by one on every committed change.
type GameState struct {
	ID              string    `json:"id"`
	Players         []*Player `json:"players"`
	TurnIndex       int       `json:"turn_index"`
	CurrentPlayerID string    `json:"current_player_id,omitempty"`
	Status          Status    `json:"status"`
	Version         uint64    `json:"version"`
}

// NewGameState returns an empty session waiting for players.
func NewGameState(id string) *GameState {
	return &GameState{
		ID:      id,
		Players: []*Player{},
		Status:  StatusWaiting,
	}
}

// Clone returns a deep copy of the state.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	c := *s
	c.Players = make([]*Player, len(s.Players))
	for i, p := range s.Players {
		c.Players[i] = p.Clone()
	}
	return &c
}

// CurrentPlayer returns the player whose turn it is, or nil for an empty roster.
func (s *GameState) CurrentPlayer() *Player {
	if len(s.Players) == 0 {
		return nil
	}
	return s.Players[s.TurnIndex]
}

// Player looks up a seated player by id.
func (s *GameState) Player(id string) *Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// syncCurrent keeps CurrentPlayerID in step with TurnIndex.
func (s *GameState) syncCurrent() {
	if p := s.CurrentPlayer(); p != nil {
		s.CurrentPlayerID = p.ID
		return
	}
	s.CurrentPlayerID = ""
}
