// Package engine holds the authoritative state of one game and the rules that
// change it.
//
// The engine implements:
//   - Seating players in join order, up to MaxPlayers
//   - Session status transitions (waiting, active, finished)
//   - Turn resolution: dice, movement around the board and the passing-GO bonus
//   - Strict turn ownership: only the current player may roll
//   - Connectivity flags that never affect seating or turn order
//
// Core Types:
//
// GameState is the per-session record. Every rule is a plain function over a
// *GameState and performs no I/O, so callers decide how state is shared and
// locked. MoveResult describes one resolved roll. Dice supplies the random
// draws and can be replaced to make games reproducible.
//
// Usage:
//
//	state := engine.NewGameState(id)
//	if _, err := engine.Join(state, playerID, "Ada"); err != nil {
//		return err
//	}
//	result, err := engine.Roll(state, board.Classic(), playerID, engine.RandomDice{})
//
// Errors:
//
// Rule violations are reported with sentinel errors (ErrSessionFull,
// ErrNotAcceptingMoves, ErrNotYourTurn, ErrPlayerNotFound,
// ErrSessionFinished). A rule that returns an error has not modified the
// state.
package engine
