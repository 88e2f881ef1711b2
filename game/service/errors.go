package service

import (
	"errors"

	"github.com/wricardo/monopoly-live/game/engine"
)

// ErrSessionNotFound is returned by session managers for unknown or removed
// sessions.
var ErrSessionNotFound = errors.New("session not found")

// Error codes shared by the REST and WebSocket surfaces.
const (
	CodeNotFound          = "not_found"
	CodeSessionFull       = "session_full"
	CodeNotAcceptingMoves = "not_accepting_moves"
	CodeNotYourTurn       = "not_your_turn"
	CodeSessionFinished   = "session_finished"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)

// ErrorCode classifies err for clients. Unknown errors are internal.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, engine.ErrPlayerNotFound):
		return CodeNotFound
	case errors.Is(err, engine.ErrSessionFull):
		return CodeSessionFull
	case errors.Is(err, engine.ErrNotAcceptingMoves):
		return CodeNotAcceptingMoves
	case errors.Is(err, engine.ErrNotYourTurn):
		return CodeNotYourTurn
	case errors.Is(err, engine.ErrSessionFinished):
		return CodeSessionFinished
	case errors.Is(err, ErrInvalidName):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}
