// Package mcp provides a Model Context Protocol server for game sessions.
//
// The server is a thin client of the REST API: every tool call becomes an
// HTTP request, so the MCP process can run next to an agent while the game
// server runs elsewhere.
//
// MCP Tools:
//   - create_session: Create a new session
//   - list_sessions: List sessions, optionally by status
//   - get_session: Session details with standings
//   - join_session: Seat a player and return its player_id
//   - roll_dice: Resolve the current player's turn
//   - finish_session: End a session
//   - board: Show the 40 spaces of the board
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	if err := client.ServeStdio(); err != nil {
//		log.Fatal(err)
//	}
package mcp
