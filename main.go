// Command monopoly-live starts the real-time game session server.
//
// It supports three commands:
//  1. "server" (default) runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "mcp" runs an MCP stdio server and spins up an internal HTTP API if none is available
//  3. "validate-board" checks board YAML files and exits
//
// Flags control host/port, board selection, session retention and
// persistence, NATS notifications, CORS, logging, and optional ngrok
// tunneling for easy external access during development. Every flag can also
// be set through the environment variable named in its help text.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/monopoly-live/api"
	"github.com/wricardo/monopoly-live/game/config"
	"github.com/wricardo/monopoly-live/game/service"
	"github.com/wricardo/monopoly-live/game/session"
	"github.com/wricardo/monopoly-live/transport/mcp"
	"github.com/wricardo/monopoly-live/transport/notify"
	"github.com/wricardo/monopoly-live/transport/websocket"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Monopoly Live Server"
)

// settings is the resolved configuration of one run.
type settings struct {
	Host             string
	Port             int
	Board            string
	BoardDir         string
	SessionsDir      string
	SessionTTL       time.Duration
	CleanupInterval  time.Duration
	SnapshotInterval time.Duration
	NATSURL          string
	NATSPrefix       string
	CORSOrigins      []string
	Debug            bool
	LogFormat        string
	NgrokEnabled     bool
	NgrokAuth        string
	NgrokDomain      string
	APIURL           string
}

func (s settings) addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host", Sources: cli.EnvVars("HOST")},
		&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
		&cli.StringFlag{Name: "board", Value: config.DefaultBoard, Usage: "Board to play on", Sources: cli.EnvVars("BOARD")},
		&cli.StringFlag{Name: "board-dir", Value: "boards", Usage: "Directory containing board YAML files", Sources: cli.EnvVars("BOARD_DIR")},
		&cli.StringFlag{Name: "sessions-dir", Usage: "Directory for session snapshots (empty disables persistence)", Sources: cli.EnvVars("SESSIONS_DIR")},
		&cli.DurationFlag{Name: "session-ttl", Value: 24 * time.Hour, Usage: "Remove sessions idle for longer than this", Sources: cli.EnvVars("SESSION_TTL")},
		&cli.DurationFlag{Name: "cleanup-interval", Value: time.Hour, Usage: "How often idle sessions are removed", Sources: cli.EnvVars("CLEANUP_INTERVAL")},
		&cli.DurationFlag{Name: "snapshot-interval", Value: 5 * time.Second, Usage: "How often sessions are written to the sessions dir", Sources: cli.EnvVars("SNAPSHOT_INTERVAL")},
		&cli.StringFlag{Name: "nats-url", Usage: "NATS server for session notifications (empty logs them instead)", Sources: cli.EnvVars("NATS_URL")},
		&cli.StringFlag{Name: "nats-subject-prefix", Value: notify.DefaultSubjectPrefix, Usage: "Prefix of published NATS subjects", Sources: cli.EnvVars("NATS_SUBJECT_PREFIX")},
		&cli.StringSliceFlag{Name: "cors-origins", Usage: "Allowed CORS and WebSocket origins", Sources: cli.EnvVars("CORS_ORIGINS")},
		&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging", Sources: cli.EnvVars("DEBUG")},
		&cli.StringFlag{Name: "log-format", Value: "console", Usage: "console or json", Sources: cli.EnvVars("LOG_FORMAT")},
		&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
		&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
		&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
	}
}

func settingsFrom(cmd *cli.Command) settings {
	return settings{
		Host:             cmd.String("host"),
		Port:             int(cmd.Int("port")),
		Board:            cmd.String("board"),
		BoardDir:         cmd.String("board-dir"),
		SessionsDir:      cmd.String("sessions-dir"),
		SessionTTL:       cmd.Duration("session-ttl"),
		CleanupInterval:  cmd.Duration("cleanup-interval"),
		SnapshotInterval: cmd.Duration("snapshot-interval"),
		NATSURL:          cmd.String("nats-url"),
		NATSPrefix:       cmd.String("nats-subject-prefix"),
		CORSOrigins:      cmd.StringSlice("cors-origins"),
		Debug:            cmd.Bool("debug"),
		LogFormat:        cmd.String("log-format"),
		NgrokEnabled:     cmd.Bool("ngrok"),
		NgrokAuth:        cmd.String("ngrok-auth"),
		NgrokDomain:      cmd.String("ngrok-domain"),
		APIURL:           cmd.String("api-url"),
	}
}

func newCommand() *cli.Command {
	serve := func(ctx context.Context, cmd *cli.Command) error {
		s := settingsFrom(cmd)
		setupLogging(s)
		return runHTTPServer(ctx, s)
	}

	return &cli.Command{
		Name:    "monopoly-live",
		Usage:   "Real-time multiplayer board game sessions",
		Version: Version,
		Flags:   flags(),
		Action:  serve,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint (default)",
				Action:  serve,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "Run MCP stdio server, with an internal HTTP server if no API is reachable",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "api-url", Usage: "REST API to proxy to (default http://<host>:<port>)", Sources: cli.EnvVars("MCP_API_URL")},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					s := settingsFrom(cmd)
					setupLogging(s)
					return runStdioMCP(ctx, s)
				},
			},
			{
				Name:      "validate-board",
				Usage:     "Validate board YAML files",
				ArgsUsage: "FILE...",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					setupLogging(settingsFrom(cmd))
					return validateBoards(cmd.Root().Writer, cmd.Args().Slice())
				},
			},
		},
	}
}

// main loads .env and runs the selected command.
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("exited with error")
	}
}

// setupLogging configures the global zerolog logger. Logs always go to
// stderr so the MCP stdio transport keeps stdout to itself.
func setupLogging(s settings) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if s.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if s.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// services holds everything a run needs.
type services struct {
	sessions    *session.Manager
	persistence session.SessionPersistence
	boards      *config.Manager
	game        service.GameService
	closeNotify func()
}

func (s *services) Close() {
	if s.closeNotify != nil {
		s.closeNotify()
	}
}

// initializeServices wires session/board managers, notifications and the
// game service.
func initializeServices(s settings, clock clockwork.Clock) (*services, error) {
	boards, err := config.NewManager(s.BoardDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create board manager: %w", err)
	}
	b, err := boards.LoadBoard(s.Board)
	if err != nil {
		return nil, fmt.Errorf("failed to load board: %w", err)
	}

	opts := []session.Option{session.WithClock(clock)}
	var persistence session.SessionPersistence
	if s.SessionsDir != "" {
		fp, err := session.NewFilePersistence(s.SessionsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create session persistence: %w", err)
		}
		persistence = fp
		opts = append(opts, session.WithPersistence(fp))
	}

	sessions := session.NewManager(opts...)
	if err := sessions.LoadPersistedSessions(); err != nil {
		log.Warn().Err(err).Msg("failed to load persisted sessions")
	}

	var notifier service.Notifier = notify.LogNotifier{}
	var closeNotify func()
	if s.NATSURL != "" {
		n, err := notify.Connect(notify.Config{URL: s.NATSURL, SubjectPrefix: s.NATSPrefix})
		if err != nil {
			log.Warn().Err(err).Str("url", s.NATSURL).Msg("NATS unavailable, logging notifications instead")
		} else {
			log.Info().Str("url", s.NATSURL).Str("prefix", s.NATSPrefix).Msg("publishing notifications to NATS")
			notifier = n
			closeNotify = n.Close
		}
	}

	game := service.NewGameService(sessions, b, service.WithNotifier(notifier))

	log.Info().
		Str("board", b.Name()).
		Int("sessions", sessions.Count()).
		Bool("persistence", persistence != nil).
		Msg("services initialized")

	return &services{
		sessions:    sessions,
		persistence: persistence,
		boards:      boards,
		game:        game,
		closeNotify: closeNotify,
	}, nil
}

// sessionCleanupRoutine periodically removes sessions that have not been accessed
// within the provided retention window. onRemoved is called for each removed
// session so its subscribers can be disconnected.
func sessionCleanupRoutine(ctx context.Context, clock clockwork.Clock, manager *session.Manager, ttl, interval time.Duration, onRemoved func(sessionID string)) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			removed := manager.CleanupExpiredSessions(ttl)
			if len(removed) == 0 {
				continue
			}
			log.Info().Int("count", len(removed)).Msg("cleaned up expired sessions")
			if onRemoved != nil {
				for _, id := range removed {
					onRemoved(id)
				}
			}
		}
	}
}

// snapshotRoutine periodically writes all sessions to persistence.
func snapshotRoutine(ctx context.Context, clock clockwork.Clock, manager *session.Manager, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := manager.SaveAllSessions(); err != nil {
				log.Warn().Err(err).Msg("session snapshot incomplete")
			}
		}
	}
}

// newHandler combines the API server and the /mcp endpoint.
func newHandler(apiServer http.Handler, mcpClient *mcp.Client) http.Handler {
	mainRouter := http.NewServeMux()

	// Mount API server at root
	mainRouter.Handle("/", apiServer)

	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})

	return h2c.NewHandler(mainRouter, &http2.Server{})
}

// runHTTPServer starts the HTTP server with REST API, WebSocket hub, and an /mcp proxy endpoint.
// If ngrok is enabled it also provisions a public tunnel. It returns once ctx
// is cancelled and everything has been shut down.
func runHTTPServer(ctx context.Context, s settings) error {
	log.Info().Str("version", Version).Msgf("Starting %s", AppName)

	clock := clockwork.NewRealClock()
	svc, err := initializeServices(s, clock)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	hub := websocket.NewHub(svc.game,
		websocket.WithAllowedOrigins(s.CORSOrigins),
		websocket.WithClock(clock),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sessionCleanupRoutine(ctx, clock, svc.sessions, s.SessionTTL, s.CleanupInterval, hub.CloseSession)
	}()

	if svc.persistence != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshotRoutine(ctx, clock, svc.sessions, s.SnapshotInterval)
		}()
	}

	apiServer := api.NewServer(svc.game, hub,
		api.WithBoards(svc.boards),
		api.WithAllowedOrigins(s.CORSOrigins),
	)

	addr := s.addr()
	handler := newHandler(apiServer, mcp.NewClient("http://"+addr))

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		log.Info().Msgf("REST API: http://%s/api", addr)
		log.Info().Msgf("WebSocket: ws://%s/ws?session=<session_id>&player=<player_id>", addr)
		log.Info().Msgf("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if s.NgrokEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, s, handler)
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down...")
	case err := <-serverErr:
		cancel()
		wg.Wait()
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	wg.Wait()

	if err := svc.sessions.SaveAllSessions(); err != nil {
		log.Warn().Err(err).Msg("failed to save sessions on shutdown")
	}

	log.Info().Msg("Server stopped")
	return nil
}

// runNgrok serves handler through an ngrok tunnel until ctx is cancelled.
func runNgrok(ctx context.Context, s settings, handler http.Handler) {
	if s.NgrokAuth == "" {
		log.Warn().Msg("Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Info().Msg("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if s.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(s.NgrokDomain))
		log.Info().Str("domain", s.NgrokDomain).Msg("Using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(s.NgrokAuth))
	if err != nil {
		log.Error().Err(err).Msg("Failed to start ngrok tunnel")
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close ngrok tunnel")
		}
	}()

	ngrokURL := tun.URL()
	log.Info().Str("url", ngrokURL).Msg("Ngrok tunnel established")
	log.Info().Msgf("  REST API (ngrok): %s/api", ngrokURL)
	log.Info().Msgf("  WebSocket (ngrok): %s/ws?session=<session_id>", ngrokURL)
	log.Info().Msgf("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		log.Warn().Err(err).Msg("Ngrok server error")
	}
	log.Info().Msg("Ngrok tunnel closed")
}

// apiReachable reports whether a game API answers at baseURL.
func apiReachable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runStdioMCP runs an MCP stdio server.
// It tries to reuse an external API first; if unavailable, it starts a
// minimal internal HTTP API bound to a random loopback port and targets that.
func runStdioMCP(ctx context.Context, s settings) error {
	externalURL := s.APIURL
	if externalURL == "" {
		externalURL = "http://" + s.addr()
	}

	log.Info().Str("url", externalURL).Msg("Checking for external API server")

	baseURL := externalURL
	if !apiReachable(externalURL) {
		log.Info().Msg("No external API server found, starting internal HTTP server")

		svc, err := initializeServices(s, clockwork.NewRealClock())
		if err != nil {
			return err
		}
		defer svc.Close()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		hub := websocket.NewHub(svc.game)
		go hub.Run(ctx)

		httpServer := &http.Server{
			Handler: api.NewServer(svc.game, hub, api.WithBoards(svc.boards)),
		}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Internal HTTP server error")
			}
		}()
		defer httpServer.Close()

		baseURL = "http://" + listener.Addr().String()
		log.Info().Str("addr", listener.Addr().String()).Msg("Internal HTTP server started for MCP stdio")
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Info().Str("api", baseURL).Msg("MCP stdio server ready")

	if err := mcpClient.ServeStdio(); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// validateBoards loads every file and reports problems. It fails if any
// board is invalid.
func validateBoards(w io.Writer, paths []string) error {
	if len(paths) == 0 {
		return errors.New("no board files given")
	}

	failed := 0
	for _, path := range paths {
		b, err := config.LoadFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(w, "FAIL %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(w, "OK   %s (%s)\n", path, b.Name())
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d boards invalid", failed, len(paths))
	}
	return nil
}
