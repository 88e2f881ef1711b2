package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wricardo/monopoly-live/game/board"
	"github.com/wricardo/monopoly-live/game/config"
	"github.com/wricardo/monopoly-live/game/engine"
	"github.com/wricardo/monopoly-live/game/service"
	"github.com/wricardo/monopoly-live/game/session"
	"github.com/wricardo/monopoly-live/transport/websocket"
)

// MockGameService implements service.GameService for testing
type MockGameService struct {
	// Session Management
	CreateSessionFunc func(ctx context.Context) (*service.SessionInfo, error)
	GetSessionFunc    func(ctx context.Context, sessionID string) (*service.SessionInfo, error)
	ListSessionsFunc  func(ctx context.Context) ([]*service.SessionInfo, error)
	DeleteSessionFunc func(ctx context.Context, sessionID string) error

	// Game Operations
	JoinFunc         func(ctx context.Context, sessionID, name string) (*service.JoinResult, error)
	RollFunc         func(ctx context.Context, sessionID, playerID string) (*service.RollResult, error)
	SetConnectedFunc func(ctx context.Context, sessionID, playerID string, connected bool) (*service.ConnectivityResult, error)
	FinishFunc       func(ctx context.Context, sessionID string) (*engine.GameState, error)

	// Game State
	GetGameStateFunc func(ctx context.Context, sessionID string) (*engine.GameState, error)
}

// Session Management
func (m *MockGameService) CreateSession(ctx context.Context) (*service.SessionInfo, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx)
	}
	return &service.SessionInfo{
		ID:        "test-session",
		Status:    engine.StatusWaiting,
		CreatedAt: time.Now(),
	}, nil
}

func (m *MockGameService) GetSession(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, sessionID)
	}
	return &service.SessionInfo{
		ID:        sessionID,
		Status:    engine.StatusWaiting,
		CreatedAt: time.Now(),
	}, nil
}

func (m *MockGameService) ListSessions(ctx context.Context) ([]*service.SessionInfo, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx)
	}
	return []*service.SessionInfo{}, nil
}

func (m *MockGameService) DeleteSession(ctx context.Context, sessionID string) error {
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, sessionID)
	}
	return nil
}

// Game Operations
func (m *MockGameService) Join(ctx context.Context, sessionID, name string) (*service.JoinResult, error) {
	if m.JoinFunc != nil {
		return m.JoinFunc(ctx, sessionID, name)
	}
	state := engine.NewGameState(sessionID)
	p, _ := engine.Join(state, "player-1", name)
	return &service.JoinResult{Player: p, GameState: state}, nil
}

func (m *MockGameService) Roll(ctx context.Context, sessionID, playerID string) (*service.RollResult, error) {
	if m.RollFunc != nil {
		return m.RollFunc(ctx, sessionID, playerID)
	}
	return &service.RollResult{
		Move:      &engine.MoveResult{PlayerID: playerID},
		GameState: engine.NewGameState(sessionID),
	}, nil
}

func (m *MockGameService) SetConnected(ctx context.Context, sessionID, playerID string, connected bool) (*service.ConnectivityResult, error) {
	if m.SetConnectedFunc != nil {
		return m.SetConnectedFunc(ctx, sessionID, playerID, connected)
	}
	return &service.ConnectivityResult{PlayerID: playerID, Connected: connected, GameState: engine.NewGameState(sessionID)}, nil
}

func (m *MockGameService) Finish(ctx context.Context, sessionID string) (*engine.GameState, error) {
	if m.FinishFunc != nil {
		return m.FinishFunc(ctx, sessionID)
	}
	state := engine.NewGameState(sessionID)
	state.Status = engine.StatusFinished
	return state, nil
}

// Game State
func (m *MockGameService) GetGameState(ctx context.Context, sessionID string) (*engine.GameState, error) {
	if m.GetGameStateFunc != nil {
		return m.GetGameStateFunc(ctx, sessionID)
	}
	return engine.NewGameState(sessionID), nil
}

func (m *MockGameService) Board() *board.Board {
	return board.Classic()
}

// Test helpers
func setupTestServer(t *testing.T, svc service.GameService, opts ...Option) *Server {
	t.Helper()
	hub := websocket.NewHub(svc)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return NewServer(svc, hub, opts...)
}

func makeRequest(method, path string, body interface{}) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Session Management Tests

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name           string
		setupMock      func(*MockGameService)
		expectedStatus int
	}{
		{
			name:           "Create session",
			setupMock:      func(m *MockGameService) {},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "Create session fails",
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context) (*service.SessionInfo, error) {
					return nil, errors.New("disk full")
				}
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockGameService{}
			tt.setupMock(mock)
			server := setupTestServer(t, mock)

			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("POST", "/api/sessions", nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestListSessions(t *testing.T) {
	now := time.Now()
	mock := &MockGameService{
		ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
			return []*service.SessionInfo{
				{ID: "a", Status: engine.StatusWaiting, CreatedAt: now.Add(-3 * time.Hour), LastAccessedAt: now.Add(-1 * time.Hour)},
				{ID: "b", Status: engine.StatusActive, CreatedAt: now.Add(-2 * time.Hour), LastAccessedAt: now.Add(-3 * time.Hour)},
				{ID: "c", Status: engine.StatusActive, CreatedAt: now.Add(-1 * time.Hour), LastAccessedAt: now.Add(-2 * time.Hour)},
			}, nil
		},
	}
	server := setupTestServer(t, mock)

	tests := []struct {
		name    string
		query   string
		wantIDs string
		total   int
	}{
		{"default sort by access desc", "", "a,c,b", 3},
		{"created ascending", "?sort=created&order=asc", "a,b,c", 3},
		{"limit", "?sort=created&limit=1", "c", 3},
		{"status filter", "?status=active&order=asc", "b,c", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("GET", "/api/sessions"+tt.query, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}

			var resp struct {
				Count    int                    `json:"count"`
				Total    int                    `json:"total"`
				Sessions []*service.SessionInfo `json:"sessions"`
			}
			parseResponse(t, w, &resp)

			var ids []string
			for _, s := range resp.Sessions {
				ids = append(ids, s.ID)
			}
			if got := strings.Join(ids, ","); got != tt.wantIDs {
				t.Errorf("Expected %s, got %s", tt.wantIDs, got)
			}
			if resp.Total != tt.total || resp.Count != len(ids) {
				t.Errorf("Expected total %d count %d, got %d %d", tt.total, len(ids), resp.Total, resp.Count)
			}
		})
	}
}

func TestGetAndDeleteSession(t *testing.T) {
	mock := &MockGameService{
		GetSessionFunc: func(ctx context.Context, id string) (*service.SessionInfo, error) {
			if id != "known" {
				return nil, service.ErrSessionNotFound
			}
			return &service.SessionInfo{ID: id}, nil
		},
		DeleteSessionFunc: func(ctx context.Context, id string) error {
			if id != "known" {
				return service.ErrSessionNotFound
			}
			return nil
		},
	}
	server := setupTestServer(t, mock)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{"GET", "/api/sessions/known", http.StatusOK},
		{"GET", "/api/sessions/missing", http.StatusNotFound},
		{"DELETE", "/api/sessions/known", http.StatusOK},
		{"DELETE", "/api/sessions/missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest(tt.method, tt.path, nil))
		if w.Code != tt.status {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.status, w.Code)
		}
	}
}

// Game Operation Tests

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrSessionNotFound, http.StatusNotFound, service.CodeNotFound},
		{engine.ErrPlayerNotFound, http.StatusNotFound, service.CodeNotFound},
		{engine.ErrSessionFull, http.StatusConflict, service.CodeSessionFull},
		{engine.ErrNotAcceptingMoves, http.StatusConflict, service.CodeNotAcceptingMoves},
		{engine.ErrNotYourTurn, http.StatusConflict, service.CodeNotYourTurn},
		{engine.ErrSessionFinished, http.StatusConflict, service.CodeSessionFinished},
		{fmt.Errorf("%w: too long", service.ErrInvalidName), http.StatusBadRequest, service.CodeBadRequest},
		{errors.New("boom"), http.StatusInternalServerError, service.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			mock := &MockGameService{
				RollFunc: func(ctx context.Context, sessionID, playerID string) (*service.RollResult, error) {
					return nil, tt.err
				},
			}
			server := setupTestServer(t, mock)

			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("POST", "/api/sessions/s1/roll", map[string]string{"player_id": "p1"}))

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			var resp errorResponse
			parseResponse(t, w, &resp)
			if resp.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, resp.Code)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	var gotName string
	mock := &MockGameService{
		JoinFunc: func(ctx context.Context, sessionID, name string) (*service.JoinResult, error) {
			gotName = name
			if sessionID == "full" {
				return nil, engine.ErrSessionFull
			}
			state := engine.NewGameState(sessionID)
			p, _ := engine.Join(state, "p1", name)
			return &service.JoinResult{Player: p, GameState: state}, nil
		},
	}
	server := setupTestServer(t, mock)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/api/sessions/s1/join", map[string]string{"name": "Alice"}))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	var res service.JoinResult
	parseResponse(t, w, &res)
	if gotName != "Alice" || res.Player.Cash != engine.StartingCash {
		t.Errorf("Unexpected join result: %+v", res.Player)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/api/sessions/full/join", map[string]string{"name": "Eve"}))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/sessions/s1/join", strings.NewReader("{"))
	server.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed body, got %d", w.Code)
	}
}

func TestRollRequiresPlayer(t *testing.T) {
	server := setupTestServer(t, &MockGameService{})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/api/sessions/s1/roll", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestFinish(t *testing.T) {
	server := setupTestServer(t, &MockGameService{})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/api/sessions/s1/finish", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var state engine.GameState
	parseResponse(t, w, &state)
	if state.Status != engine.StatusFinished {
		t.Errorf("Expected finished, got %s", state.Status)
	}
}

// Board Tests

func TestBoardEndpoints(t *testing.T) {
	boards, err := config.NewManager("")
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	server := setupTestServer(t, &MockGameService{}, WithBoards(boards))

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/board", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var b struct {
		Name   string        `json:"name"`
		Spaces []board.Space `json:"spaces"`
	}
	parseResponse(t, w, &b)
	if len(b.Spaces) != board.Size || b.Spaces[0].Kind != board.Go {
		t.Errorf("Unexpected board: %d spaces", len(b.Spaces))
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/boards", nil))
	var list []config.BoardInfo
	parseResponse(t, w, &list)
	if len(list) != 1 || list[0].ID != config.DefaultBoard {
		t.Errorf("Unexpected boards: %+v", list)
	}
}

func TestHealthAndCORS(t *testing.T) {
	mock := &MockGameService{
		ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
			return []*service.SessionInfo{
				{ID: "a", Status: engine.StatusWaiting},
				{ID: "b", Status: engine.StatusActive},
				{ID: "c", Status: engine.StatusActive},
			}, nil
		},
	}
	server := setupTestServer(t, mock, WithAllowedOrigins([]string{"http://localhost:3000"}))

	w := httptest.NewRecorder()
	req := makeRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Expected CORS header, got %q", got)
	}

	var health struct {
		Status   string         `json:"status"`
		Sessions int            `json:"sessions"`
		ByStatus map[string]int `json:"by_status"`
	}
	parseResponse(t, w, &health)
	if health.Status != "healthy" || health.Sessions != 3 {
		t.Errorf("Unexpected health %+v", health)
	}
	want := map[string]int{"waiting": 1, "active": 2, "finished": 0}
	for status, n := range want {
		if health.ByStatus[status] != n {
			t.Errorf("Expected %d %s sessions, got %d", n, status, health.ByStatus[status])
		}
	}
}

func TestWebSocketRequiresSession(t *testing.T) {
	server := setupTestServer(t, &MockGameService{})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/ws", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

// End-to-end through the real service

func TestGameFlow(t *testing.T) {
	svc := service.NewGameService(
		session.NewManager(),
		board.Classic(),
		service.WithDice(engine.NewSequenceDice([2]int{3, 4}, [2]int{1, 1})),
	)
	server := setupTestServer(t, svc)

	do := func(method, path string, body interface{}, target interface{}) int {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest(method, path, body))
		if target != nil {
			parseResponse(t, w, target)
		}
		return w.Code
	}

	var info service.SessionInfo
	do("POST", "/api/sessions", nil, &info)

	var alice, bob service.JoinResult
	do("POST", "/api/sessions/"+info.ID+"/join", map[string]string{"name": "Alice"}, &alice)
	do("POST", "/api/sessions/"+info.ID+"/join", map[string]string{"name": "Bob"}, &bob)
	if bob.GameState.Status != engine.StatusActive {
		t.Fatalf("Expected active session, got %s", bob.GameState.Status)
	}

	var errResp errorResponse
	if code := do("POST", "/api/sessions/"+info.ID+"/roll", map[string]string{"player_id": bob.Player.ID}, &errResp); code != http.StatusConflict {
		t.Errorf("Expected 409 for out-of-turn roll, got %d", code)
	}

	var roll service.RollResult
	if code := do("POST", "/api/sessions/"+info.ID+"/roll", map[string]string{"player_id": alice.Player.ID}, &roll); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if roll.Move.ToPosition != 7 || roll.Move.LandedSpace.Kind != board.Card {
		t.Errorf("Expected to land on Chance at 7, got %+v", roll.Move)
	}

	var state engine.GameState
	do("GET", "/api/sessions/"+info.ID+"/state", nil, &state)
	if state.CurrentPlayerID != bob.Player.ID || state.Players[0].Position != 7 {
		t.Errorf("Unexpected state after roll: %+v", state)
	}

	do("POST", "/api/sessions/"+info.ID+"/finish", nil, nil)
	if code := do("POST", "/api/sessions/"+info.ID+"/roll", map[string]string{"player_id": bob.Player.ID}, &errResp); code != http.StatusConflict || errResp.Code != service.CodeNotAcceptingMoves {
		t.Errorf("Expected not_accepting_moves after finish, got %d %s", code, errResp.Code)
	}
}
