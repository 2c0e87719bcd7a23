// Package publish delivers alert events to the external notification
// collaborator over Kafka. Delivery of the rendered notification (email,
// chat) is out of scope; this only puts events on the topic.
package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/edgargomero/analisis-resultados/internal/alert"
)

// Config selects the alert topic.
type Config struct {
	Enabled bool     `json:"enabled" mapstructure:"enabled"`
	Brokers []string `json:"brokers" mapstructure:"brokers"`
	Topic   string   `json:"topic" mapstructure:"topic"`
}

// DefaultConfig leaves publishing disabled; batch runs on a laptop should
// not need a broker.
func DefaultConfig() Config {
	return Config{Enabled: false, Topic: "forecast.alerts"}
}

// Publisher emits alert events for external consumers.
type Publisher interface {
	PublishAlerts(ctx context.Context, runID string, events []alert.Event) error
	Close() error
}

// New returns a Kafka publisher, or a no-op one when disabled.
func New(cfg Config, log zerolog.Logger) Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return nopPublisher{}
	}
	return &kafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
		log: log,
	}
}

type kafkaPublisher struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

type alertMessage struct {
	RunID string      `json:"run_id"`
	Event alert.Event `json:"event"`
}

// PublishAlerts writes one message per event, keyed by date so consumers
// partition by day.
func (p *kafkaPublisher) PublishAlerts(ctx context.Context, runID string, events []alert.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(alertMessage{RunID: runID, Event: e})
		if err != nil {
			return fmt.Errorf("encode alert: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Date.Format("2006-01-02")),
			Value: payload,
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write alerts: %w", err)
	}
	p.log.Info().Int("events", len(events)).Str("topic", p.writer.Topic).Msg("alerts published")
	return nil
}

func (p *kafkaPublisher) Close() error { return p.writer.Close() }

type nopPublisher struct{}

func (nopPublisher) PublishAlerts(context.Context, string, []alert.Event) error { return nil }
func (nopPublisher) Close() error                                               { return nil }
