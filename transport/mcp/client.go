package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/monopoly-live/game/board"
	"github.com/wricardo/monopoly-live/game/engine"
	"github.com/wricardo/monopoly-live/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer

	mu    sync.Mutex
	board *board.Board
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Monopoly Live",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Monopoly Live - MCP Interface

This is a thin client that proxies all requests to the REST API server.

A session seats 2 to 4 players. It starts accepting rolls once two players
have joined. Players move in join order; each roll moves the current player
by the sum of two dice around a 40-space board and passing GO pays $200.

AVAILABLE TOOLS:
- create_session: Create a new session
- list_sessions: List sessions
- get_session: Session details and standings
- join_session: Seat a player (keep the returned player_id)
- roll_dice: Roll for the player whose turn it is
- finish_session: End a session
- board: Show the board layout`),
	)

	// Register all tools
	c.registerTools()
}

func sessionIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new game session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List game sessions, optionally filtered by status",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"status": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"waiting", "active", "finished"},
					"description": "Only list sessions in this status",
				},
			},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details and standings of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetSession)

	// Game operations
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "join_session",
		Description: "Seat a new player in a waiting or active session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Display name of the player",
				},
			},
			Required: []string{"session_id", "name"},
		},
	}, c.handleJoin)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "roll_dice",
		Description: "Roll two dice and move the player whose turn it is",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"player_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the rolling player, as returned by join_session",
				},
			},
			Required: []string{"session_id", "player_id"},
		},
	}, c.handleRoll)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "finish_session",
		Description: "End a session; no further rolls are accepted",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleFinish)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "board",
		Description: "Show all 40 spaces of the board",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleBoard)
}

// GetMCPServer returns the underlying MCP server
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeStdio serves the MCP protocol on stdin/stdout until EOF.
func (c *Client) ServeStdio() error {
	return server.ServeStdio(c.mcpServer)
}

// apiCall makes a REST API call
func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			if code := errResp["code"]; code != "" {
				return fmt.Errorf("%s (%s)", msg, code)
			}
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// boardLayout fetches the server's board once. Failures are retried on the
// next call.
func (c *Client) boardLayout(ctx context.Context) *board.Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.board != nil {
		return c.board
	}

	var raw json.RawMessage
	if err := c.apiCall(ctx, "GET", "/api/board", nil, &raw); err != nil {
		return nil
	}
	// JSON is a subset of YAML, so the board parser validates it as-is.
	b, err := board.Parse(raw)
	if err != nil {
		return nil
	}
	c.board = b
	return b
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}
	return args
}

func requireString(args map[string]interface{}, key string) (string, *mcp.CallToolResult) {
	v, _ := args[key].(string)
	if strings.TrimSpace(v) == "" {
		return "", mcp.NewToolResultError(key + " is required")
	}
	return v, nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nStatus: %s\nJoin with join_session; play starts with %d players.\n",
		session.ID, session.Status, engine.MinActivePlayers)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/sessions"
	if status, _ := arguments(request)["status"].(string); status != "" {
		path += "?status=" + status
	}

	var resp struct {
		Sessions []*service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(resp.Sessions) == 0 {
		return mcp.NewToolResultText("No sessions"), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("%d session(s):\n", len(resp.Sessions)))
	for _, s := range resp.Sessions {
		result.WriteString(fmt.Sprintf("- %s [%s] players=%d/%d last_active=%s\n",
			s.ID, s.Status, s.PlayerCount, engine.MaxPlayers,
			s.LastAccessedAt.Format("2006-01-02 15:04:05")))
	}
	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errResult := requireString(arguments(request), "session_id")
	if errResult != nil {
		return errResult, nil
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", "/api/sessions/"+sessionID, nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session, c.boardLayout(ctx))), nil
}

func (c *Client) handleJoin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, errResult := requireString(args, "session_id")
	if errResult != nil {
		return errResult, nil
	}
	name, errResult := requireString(args, "name")
	if errResult != nil {
		return errResult, nil
	}

	var res service.JoinResult
	if err := c.apiCall(ctx, "POST", "/api/sessions/"+sessionID+"/join", map[string]string{"name": name}, &res); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Joined as %s\nplayer_id: %s\nSeat: %d of %d\nSession status: %s\n",
		res.Player.Name, res.Player.ID, len(res.GameState.Players), engine.MaxPlayers, res.GameState.Status)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleRoll(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, errResult := requireString(args, "session_id")
	if errResult != nil {
		return errResult, nil
	}
	playerID, errResult := requireString(args, "player_id")
	if errResult != nil {
		return errResult, nil
	}

	var res service.RollResult
	if err := c.apiCall(ctx, "POST", "/api/sessions/"+sessionID+"/roll", map[string]string{"player_id": playerID}, &res); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRollResult(&res)), nil
}

func (c *Client) handleFinish(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errResult := requireString(arguments(request), "session_id")
	if errResult != nil {
		return errResult, nil
	}

	var state engine.GameState
	if err := c.apiCall(ctx, "POST", "/api/sessions/"+sessionID+"/finish", nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("Session finished\n\n" + formatGameState(&state, c.boardLayout(ctx))), nil
}

func (c *Client) handleBoard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b := c.boardLayout(ctx)
	if b == nil {
		return mcp.NewToolResultError("board unavailable"), nil
	}
	return mcp.NewToolResultText(formatBoard(b)), nil
}

// Formatting

func formatSessionInfo(session *service.SessionInfo, b *board.Board) string {
	return fmt.Sprintf("Session: %s\nCreated: %s\n\n%s",
		session.ID,
		session.CreatedAt.Format("2006-01-02 15:04:05"),
		formatGameState(session.GameState, b))
}

func formatGameState(state *engine.GameState, b *board.Board) string {
	if state == nil {
		return "No game state available"
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Status: %s | Players: %d/%d | Version: %d\n\n",
		state.Status, len(state.Players), engine.MaxPlayers, state.Version))

	for i, p := range state.Players {
		marker := "  "
		if state.Status == engine.StatusActive && i == state.TurnIndex {
			marker = "> "
		}
		space := fmt.Sprintf("%d", p.Position)
		if b != nil {
			space = fmt.Sprintf("%d %s", p.Position, b.SpaceAt(p.Position).Name)
		}
		line := fmt.Sprintf("%s%s (%s) at %s, $%d", marker, p.Name, p.ID, space, p.Cash)
		if !p.Connected {
			line += " [offline]"
		}
		result.WriteString(line + "\n")
	}

	switch state.Status {
	case engine.StatusWaiting:
		result.WriteString(fmt.Sprintf("\nWaiting for %d more player(s)", engine.MinActivePlayers-len(state.Players)))
	case engine.StatusActive:
		if cur := state.CurrentPlayer(); cur != nil {
			result.WriteString(fmt.Sprintf("\nNext to roll: %s", cur.Name))
		}
	}

	return result.String()
}

func formatRollResult(res *service.RollResult) string {
	m := res.Move

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Rolled %d + %d = %d\n", m.Dice[0], m.Dice[1], m.Steps))
	result.WriteString(fmt.Sprintf("Moved %d -> %d (%s)\n", m.FromPosition, m.ToPosition, m.LandedSpace.Name))
	if m.PassedGo {
		result.WriteString(fmt.Sprintf("Passed GO, collected $%d\n", m.Bonus))
	}
	if p := res.GameState.Player(m.PlayerID); p != nil {
		result.WriteString(fmt.Sprintf("Cash: $%d\n", p.Cash))
	}
	if next := res.GameState.Player(m.NextPlayerID); next != nil {
		result.WriteString(fmt.Sprintf("Next to roll: %s (%s)\n", next.Name, next.ID))
	}
	return result.String()
}

func formatBoard(b *board.Board) string {
	var result strings.Builder
	result.WriteString(fmt.Sprintf("%s: %s\n\n", b.Name(), b.Description()))
	for _, s := range b.Spaces() {
		line := fmt.Sprintf("%2d %-24s %s", s.Index, s.Name, s.Kind)
		if s.Group != "" {
			line += " " + s.Group
		}
		if s.Price > 0 {
			line += fmt.Sprintf(" $%d", s.Price)
		}
		result.WriteString(line + "\n")
	}
	return result.String()
}
