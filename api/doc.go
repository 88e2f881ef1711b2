// Package api provides the HTTP REST API for game sessions.
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Create new session
//   - GET /api/sessions - List sessions (?status=, ?sort=created|accessed, ?order=, ?limit=)
//   - GET /api/sessions/{id} - Get specific session
//   - DELETE /api/sessions/{id} - Delete session and disconnect its subscribers
//
// Game Operations:
//   - GET /api/sessions/{id}/state - Current snapshot
//   - POST /api/sessions/{id}/join - Seat a player: {"name": "Alice"}
//   - POST /api/sessions/{id}/roll - Resolve a turn: {"player_id": "..."}
//   - POST /api/sessions/{id}/finish - Stop accepting moves
//
// Board:
//   - GET /api/board - The board every session plays on
//   - GET /api/boards - Boards available to the server
//
// Other:
//   - GET /ws?session=<id>&player=<id> - WebSocket subscription
//   - GET /health - Liveness and session count
//
// Successful mutations are also broadcast to WebSocket subscribers of the
// session.
//
// Error Handling:
//
// Errors are returned as JSON with a stable code:
//
//	{
//	  "error": "not your turn",
//	  "code": "not_your_turn"
//	}
//
// not_found maps to 404; session_full, not_accepting_moves, not_your_turn and
// session_finished map to 409; bad_request maps to 400.
package api
