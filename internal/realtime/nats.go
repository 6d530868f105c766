package realtime

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/wonhochoi1/nature/internal/engine/lib"
)

// NATSBridge subscribes to run progress subjects and pushes messages into the Hub.
type NATSBridge struct {
	conn     *nats.Conn
	hub      *Hub
	tenantID string
	logger   zerolog.Logger
}

func NewNATSBridge(natsURL, tenantID string, hub *Hub, logger zerolog.Logger) (*NATSBridge, error) {
	nc, err := nats.Connect(natsURL, nats.Name("nature-realtime"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSBridge{conn: nc, hub: hub, tenantID: tenantID, logger: logger}, nil
}

// Subscribe listens for progress messages on tenant.<tenantID>.run.*.progress
func (b *NATSBridge) Subscribe() error {
	subject := lib.Subject(b.tenantID, "*")
	_, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		runID, err := parseRunIDFromSubject(msg.Subject)
		if err != nil {
			b.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("nats: bad subject")
			return
		}

		data, err := envelope(runID, msg.Data)
		if err != nil {
			b.logger.Warn().Err(err).Msg("nats: marshal envelope")
			return
		}
		b.hub.Publish(runID, data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %q: %w", subject, err)
	}

	b.logger.Info().Str("subject", subject).Msg("NATS bridge subscribed")
	return nil
}

// Close drains the NATS connection.
func (b *NATSBridge) Close() {
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn().Err(err).Msg("nats drain")
	}
}

// envelope wraps a raw progress payload for websocket clients.
func envelope(runID string, payload []byte) ([]byte, error) {
	return json.Marshal(outgoingMsg{
		Type:    "run.progress",
		RunID:   runID,
		Payload: json.RawMessage(payload),
	})
}

// parseRunIDFromSubject extracts runID from "tenant.<tid>.run.<runID>.progress"
func parseRunIDFromSubject(subject string) (string, error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 5 || parts[0] != "tenant" || parts[2] != "run" || parts[4] != "progress" {
		return "", fmt.Errorf("unexpected subject layout %q", subject)
	}
	if parts[3] == "" {
		return "", fmt.Errorf("empty run id in %q", subject)
	}
	return parts[3], nil
}
