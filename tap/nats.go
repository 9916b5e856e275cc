// Package tap mirrors relayed game events onto NATS so other processes
// (replays, dashboards, bots) can observe a match without joining it.
package tap

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/4cecoder/arena/protocol"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const SenderHeader = "Sender-Id"

type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// NATS publishes each event to <prefix>.<event type>. Publishing is
// fire-and-forget; failures are logged and never reach the relay.
type NATS struct {
	nc     *nats.Conn
	prefix string
}

func NewNATS(cfg Config) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("arena-relay"),
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
	return &NATS{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject an event of type typ is published on.
func Subject(prefix, typ string) string {
	if prefix == "" {
		return typ
	}
	return prefix + "." + typ
}

// NewEventMsg builds the NATS message for one relayed event. The body is the
// event payload in the JSON wire format.
func NewEventMsg(prefix, senderID string, msg protocol.Message) (*nats.Msg, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.Type(), err)
	}
	m := nats.NewMsg(Subject(prefix, msg.Type()))
	m.Header.Set(SenderHeader, senderID)
	m.Data = body
	return m, nil
}

func (t *NATS) Publish(senderID string, msg protocol.Message) {
	m, err := NewEventMsg(t.prefix, senderID, msg)
	if err != nil {
		log.Error().Err(err).Str("session_id", senderID).Msg("failed to build tap message")
		return
	}
	if err := t.nc.PublishMsg(m); err != nil {
		log.Warn().Err(err).Str("subject", m.Subject).Msg("failed to publish tap message")
	}
}

// Close flushes pending events and closes the connection.
func (t *NATS) Close() error {
	if err := t.nc.Drain(); err != nil {
		t.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
