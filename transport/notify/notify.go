package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/wricardo/monopoly-live/game/engine"
)

// DefaultSubjectPrefix is prepended to every published subject.
const DefaultSubjectPrefix = "monopoly"

// Publisher is the subset of *nats.Conn used for delivery.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Event is the JSON body published for every notification.
type Event struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id"`
	Timestamp time.Time        `json:"timestamp"`
	Player    *engine.Player   `json:"player,omitempty"`
	Players   []*engine.Player `json:"players,omitempty"`
}

const (
	EventSessionActive = "session.active"
	EventTurnStarted   = "turn.started"
)

// NATSNotifier publishes session lifecycle events to NATS subjects
// <prefix>.sessions.<id>.active and <prefix>.sessions.<id>.turn.
type NATSNotifier struct {
	pub    Publisher
	prefix string
	now    func() time.Time
	closer func()
}

// Config holds the NATS connection settings.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Connect dials NATS and returns a notifier that owns the connection.
func Connect(cfg Config) (*NATSNotifier, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	opts := []nats.Option{
		nats.Name("monopoly-live"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	n := NewNATSNotifier(nc, cfg.SubjectPrefix)
	n.closer = func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}
	return n, nil
}

// NewNATSNotifier wraps an existing publisher.
func NewNATSNotifier(pub Publisher, prefix string) *NATSNotifier {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSNotifier{pub: pub, prefix: prefix, now: time.Now}
}

// Subject returns the subject for a session event kind ("active" or "turn").
func (n *NATSNotifier) Subject(sessionID, kind string) string {
	return fmt.Sprintf("%s.sessions.%s.%s", n.prefix, sessionID, kind)
}

// SessionActivated publishes the roster when a session starts accepting moves.
func (n *NATSNotifier) SessionActivated(ctx context.Context, state *engine.GameState) {
	n.publish(n.Subject(state.ID, "active"), Event{
		Type:      EventSessionActive,
		SessionID: state.ID,
		Timestamp: n.now().UTC(),
		Players:   state.Players,
	})
}

// TurnStarted publishes the player whose turn it now is.
func (n *NATSNotifier) TurnStarted(ctx context.Context, sessionID string, player *engine.Player) {
	if player == nil {
		return
	}
	n.publish(n.Subject(sessionID, "turn"), Event{
		Type:      EventTurnStarted,
		SessionID: sessionID,
		Timestamp: n.now().UTC(),
		Player:    player,
	})
}

func (n *NATSNotifier) publish(subject string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to marshal notification")
		return
	}
	if err := n.pub.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to publish notification")
		return
	}
	log.Debug().Str("subject", subject).Str("type", event.Type).Msg("published notification")
}

// Close drains the owned connection, if any.
func (n *NATSNotifier) Close() {
	if n.closer != nil {
		n.closer()
	}
}

// LogNotifier writes notifications to the log instead of a broker.
type LogNotifier struct{}

func (LogNotifier) SessionActivated(ctx context.Context, state *engine.GameState) {
	log.Info().
		Str("session_id", state.ID).
		Int("players", len(state.Players)).
		Msg("session active")
}

func (LogNotifier) TurnStarted(ctx context.Context, sessionID string, player *engine.Player) {
	if player == nil {
		return
	}
	log.Info().
		Str("session_id", sessionID).
		Str("player_id", player.ID).
		Str("player", player.Name).
		Int("position", player.Position).
		Msg("turn started")
}
