// Command autoplay drives bots through a game session over the REST API. It
// seats players, rolls for whoever holds the turn, and prints the standings.
// With --contend the turn holder fires one roll per seat at once, which
// exercises the server's one-accepted-roll-per-turn guarantee.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/monopoly-live/game/engine"
	"github.com/wricardo/monopoly-live/game/service"
	"golang.org/x/sync/errgroup"
)

// Client talks to the game REST API.
type Client struct {
	baseURL string
	client  *http.Client
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse %s response: %w", path, err)
		}
	}
	return nil
}

func (c *Client) CreateSession(ctx context.Context) (*service.SessionInfo, error) {
	var info service.SessionInfo
	err := c.do(ctx, "POST", "/api/sessions", nil, &info)
	return &info, err
}

func (c *Client) Join(ctx context.Context, sessionID, name string) (*service.JoinResult, error) {
	var res service.JoinResult
	err := c.do(ctx, "POST", "/api/sessions/"+sessionID+"/join", map[string]string{"name": name}, &res)
	return &res, err
}

func (c *Client) Roll(ctx context.Context, sessionID, playerID string) (*service.RollResult, error) {
	var res service.RollResult
	err := c.do(ctx, "POST", "/api/sessions/"+sessionID+"/roll", map[string]string{"player_id": playerID}, &res)
	return &res, err
}

func (c *Client) State(ctx context.Context, sessionID string) (*engine.GameState, error) {
	var state engine.GameState
	err := c.do(ctx, "GET", "/api/sessions/"+sessionID+"/state", nil, &state)
	return &state, err
}

// options controls one autoplay run.
type options struct {
	Players int
	Rounds  int
	Contend bool
	Delay   time.Duration
}

// Standing is one player's result.
type Standing struct {
	Name     string
	Position int
	Cash     int
	Laps     int
}

// Report summarizes a run.
type Report struct {
	SessionID string
	Turns     int
	Rejected  int
	Standings []Standing
}

// play creates a session, seats the bots and plays Rounds full rounds.
func play(ctx context.Context, c *Client, opts options) (*Report, error) {
	if opts.Players < engine.MinActivePlayers || opts.Players > engine.MaxPlayers {
		return nil, fmt.Errorf("players must be between %d and %d", engine.MinActivePlayers, engine.MaxPlayers)
	}

	info, err := c.CreateSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	log.Info().Str("session_id", info.ID).Msg("session created")

	var seated []string
	for i := 1; i <= opts.Players; i++ {
		res, err := c.Join(ctx, info.ID, fmt.Sprintf("Bot %d", i))
		if err != nil {
			return nil, fmt.Errorf("join bot %d: %w", i, err)
		}
		seated = append(seated, res.Player.ID)
	}

	report := &Report{SessionID: info.ID}
	laps := make(map[string]int)
	turns := opts.Rounds * opts.Players

	for report.Turns < turns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var move *engine.MoveResult
		var rejected int
		if opts.Contend {
			move, rejected, err = contendedRoll(ctx, c, info.ID, len(seated))
		} else {
			move, err = currentRoll(ctx, c, info.ID)
		}
		if err != nil {
			return nil, err
		}

		report.Turns++
		report.Rejected += rejected
		if move.PassedGo {
			laps[move.PlayerID]++
		}
		log.Debug().
			Str("player_id", move.PlayerID).
			Ints("dice", move.Dice[:]).
			Int("to", move.ToPosition).
			Str("space", move.LandedSpace.Name).
			Msg("rolled")

		if opts.Delay > 0 {
			time.Sleep(opts.Delay)
		}
	}

	state, err := c.State(ctx, info.ID)
	if err != nil {
		return nil, fmt.Errorf("final state: %w", err)
	}
	for _, p := range state.Players {
		report.Standings = append(report.Standings, Standing{
			Name:     p.Name,
			Position: p.Position,
			Cash:     p.Cash,
			Laps:     laps[p.ID],
		})
	}
	sort.SliceStable(report.Standings, func(i, j int) bool {
		return report.Standings[i].Cash > report.Standings[j].Cash
	})
	return report, nil
}

// currentRoll rolls for whoever holds the turn.
func currentRoll(ctx context.Context, c *Client, sessionID string) (*engine.MoveResult, error) {
	state, err := c.State(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	res, err := c.Roll(ctx, sessionID, state.CurrentPlayerID)
	if err != nil {
		return nil, fmt.Errorf("roll: %w", err)
	}
	return res.Move, nil
}

// contendedRoll sends n simultaneous rolls for the turn holder. Exactly one
// must be accepted; the turn has moved on for the rest.
func contendedRoll(ctx context.Context, c *Client, sessionID string, n int) (*engine.MoveResult, int, error) {
	state, err := c.State(ctx, sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("get state: %w", err)
	}
	holder := state.CurrentPlayerID

	var (
		accepted atomic.Pointer[engine.MoveResult]
		wins     atomic.Int32
		rejected atomic.Int32
	)

	g, gctx := errgroup.WithContext(ctx)
	for range n {
		g.Go(func() error {
			res, err := c.Roll(gctx, sessionID, holder)
			var apiErr *APIError
			switch {
			case err == nil:
				wins.Add(1)
				accepted.Store(res.Move)
				return nil
			case errors.As(err, &apiErr) && apiErr.Code == service.CodeNotYourTurn:
				rejected.Add(1)
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("contended roll: %w", err)
	}
	if wins.Load() != 1 {
		return nil, 0, fmt.Errorf("contended roll: %d rolls accepted for one turn", wins.Load())
	}
	return accepted.Load(), int(rejected.Load()), nil
}

func printReport(w io.Writer, r *Report) {
	fmt.Fprintf(w, "Session %s: %d turns, %d rejected rolls\n", r.SessionID, r.Turns, r.Rejected)
	for i, s := range r.Standings {
		fmt.Fprintf(w, "%d. %-8s $%-5d at %2d, %d lap(s)\n", i+1, s.Name, s.Cash, s.Position, s.Laps)
	}
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cmd := &cli.Command{
		Name:  "autoplay",
		Usage: "Play a game session with bots over the REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "Game server URL"},
			&cli.IntFlag{Name: "players", Value: 4, Usage: "Number of bots"},
			&cli.IntFlag{Name: "rounds", Value: 10, Usage: "Rounds to play"},
			&cli.BoolFlag{Name: "contend", Usage: "Every bot rolls on every turn"},
			&cli.DurationFlag{Name: "delay", Usage: "Pause between turns"},
			&cli.BoolFlag{Name: "v", Usage: "Verbose output"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if cmd.Bool("v") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}

			report, err := play(ctx, NewClient(cmd.String("url")), options{
				Players: int(cmd.Int("players")),
				Rounds:  int(cmd.Int("rounds")),
				Contend: cmd.Bool("contend"),
				Delay:   cmd.Duration("delay"),
			})
			if err != nil {
				return err
			}
			printReport(os.Stdout, report)
			return nil
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("autoplay failed")
	}
}
