package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/monopoly-live/api"
	"github.com/wricardo/monopoly-live/game/board"
	"github.com/wricardo/monopoly-live/game/service"
	"github.com/wricardo/monopoly-live/game/session"
	"github.com/wricardo/monopoly-live/transport/mcp"
	"github.com/wricardo/monopoly-live/transport/websocket"
	"gopkg.in/yaml.v3"
)

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName == "" {
		t.Error("AppName should not be empty")
	}
}

// parseSettings runs the root command with args and returns what the action saw.
func parseSettings(t *testing.T, args ...string) settings {
	t.Helper()
	var got settings
	cmd := newCommand()
	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		got = settingsFrom(c)
		return nil
	}
	if err := cmd.Run(context.Background(), append([]string{"monopoly-live"}, args...)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return got
}

func TestFlagDefaults(t *testing.T) {
	s := parseSettings(t)

	if s.Port != 8080 || s.Host != "localhost" {
		t.Errorf("Unexpected address %s", s.addr())
	}
	if s.Board != "classic" || s.SessionsDir != "" {
		t.Errorf("Unexpected board settings: %+v", s)
	}
	if s.SessionTTL != 24*time.Hour || s.CleanupInterval != time.Hour || s.SnapshotInterval != 5*time.Second {
		t.Errorf("Unexpected intervals: %+v", s)
	}
	if s.NATSPrefix != "monopoly" || s.NATSURL != "" {
		t.Errorf("Unexpected NATS settings: %+v", s)
	}
}

func TestFlagsAndEnvironment(t *testing.T) {
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("CORS_ORIGINS", "http://a.example,http://b.example")

	s := parseSettings(t, "--port", "9090", "--debug")

	if s.Port != 9090 || !s.Debug {
		t.Errorf("Flags not applied: %+v", s)
	}
	if s.SessionTTL != 2*time.Hour {
		t.Errorf("Expected SESSION_TTL from environment, got %v", s.SessionTTL)
	}
	if strings.Join(s.CORSOrigins, " ") != "http://a.example http://b.example" {
		t.Errorf("Unexpected CORS origins %v", s.CORSOrigins)
	}
}

func TestInitializeServices(t *testing.T) {
	dir := t.TempDir()
	s := settings{
		Board:       "classic",
		BoardDir:    filepath.Join(dir, "boards"),
		SessionsDir: filepath.Join(dir, "sessions"),
	}

	svc, err := initializeServices(s, clockwork.NewFakeClock())
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}
	defer svc.Close()

	if svc.persistence == nil {
		t.Error("Expected persistence with a sessions dir")
	}
	if svc.game.Board().Name() != "classic" {
		t.Errorf("Expected classic board, got %s", svc.game.Board().Name())
	}

	ctx := context.Background()
	info, _ := svc.game.CreateSession(ctx)
	if _, err := svc.game.Join(ctx, info.ID, "Alice"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if err := svc.sessions.SaveAllSessions(); err != nil {
		t.Fatalf("SaveAllSessions failed: %v", err)
	}

	// a second process picks the session up from disk
	restarted, err := initializeServices(s, clockwork.NewFakeClock())
	if err != nil {
		t.Fatalf("Failed to reinitialize services: %v", err)
	}
	state, err := restarted.game.GetGameState(ctx, info.ID)
	if err != nil {
		t.Fatalf("Expected persisted session, got %v", err)
	}
	if len(state.Players) != 1 || state.Players[0].Connected {
		t.Errorf("Expected one disconnected player, got %+v", state.Players)
	}
}

func TestInitializeServices_UnknownBoard(t *testing.T) {
	_, err := initializeServices(settings{Board: "atlantis", BoardDir: t.TempDir()}, clockwork.NewFakeClock())
	if err == nil {
		t.Error("Expected error for unknown board")
	}
}

func TestInitializeServices_NATSUnavailable(t *testing.T) {
	svc, err := initializeServices(settings{NATSURL: "nats://127.0.0.1:1"}, clockwork.NewFakeClock())
	if err != nil {
		t.Fatalf("NATS failure should not be fatal: %v", err)
	}
	if svc.closeNotify != nil {
		t.Error("Expected log notifier fallback")
	}
}

func TestSessionCleanupRoutine(t *testing.T) {
	clock := clockwork.NewFakeClock()
	manager := session.NewManager(session.WithClock(clock))
	if _, err := manager.Create(); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sessionCleanupRoutine(ctx, clock, manager, time.Hour, 10*time.Minute, nil)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("Ticker never started: %v", err)
	}

	clock.Advance(2 * time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for manager.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected idle session to be cleaned up")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionCleanupClosesSubscribers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	manager := session.NewManager(session.WithClock(clock))
	svc := service.NewGameService(manager, board.Classic())
	info, err := svc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub(svc)
	go hub.Run(ctx)
	server := httptest.NewServer(api.NewServer(svc, hub))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?session=" + info.ID
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("Expected snapshot, got %v", err)
	}

	go sessionCleanupRoutine(ctx, clock, manager, time.Hour, 10*time.Minute, hub.CloseSession)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("Ticker never started: %v", err)
	}
	clock.Advance(2 * time.Hour)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !gorillaws.IsCloseError(err, gorillaws.CloseNoStatusReceived, gorillaws.CloseNormalClosure) {
		t.Errorf("Expected the expired session's socket to close, got %v", err)
	}
	if manager.Count() != 0 {
		t.Errorf("Expected session removed, %d left", manager.Count())
	}
}

func TestNewHandler(t *testing.T) {
	svc, err := initializeServices(settings{}, clockwork.NewFakeClock())
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}
	hub := websocket.NewHub(svc.game)
	handler := newHandler(api.NewServer(svc.game, hub), mcp.NewClient("http://127.0.0.1:1"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected /health 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/mcp", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected GET /mcp 405, got %d", w.Code)
	}
}

func TestValidateBoards(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	data, _ := yaml.Marshal(map[string]interface{}{"name": "good", "spaces": board.Classic().Spaces()})
	os.WriteFile(good, data, 0644)

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("name: bad\nspaces: []\n"), 0644)

	var out bytes.Buffer
	if err := validateBoards(&out, []string{good}); err != nil {
		t.Errorf("Expected valid board, got %v", err)
	}

	out.Reset()
	err := validateBoards(&out, []string{good, bad})
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("Expected one invalid board, got %v", err)
	}
	if !strings.Contains(out.String(), "FAIL "+bad) || !strings.Contains(out.String(), "OK   "+good) {
		t.Errorf("Unexpected report:\n%s", out.String())
	}

	if err := validateBoards(&out, nil); err == nil {
		t.Error("Expected error without files")
	}
}
