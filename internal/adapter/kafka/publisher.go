package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/outbreak-lookup-service/internal/config"
	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
	"github.com/couchcryptid/outbreak-lookup-service/internal/observability"
	"github.com/couchcryptid/outbreak-lookup-service/internal/pipeline"
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher emits every new snapshot to a Kafka topic, one message per
// country keyed by country name. It implements pipeline.Publisher.
type Publisher struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a Kafka producer for the configured snapshot topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaSnapshotTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, logger: logger, metrics: metrics}
}

// Publish writes the whole snapshot in a single WriteMessages call.
func (p *Publisher) Publish(ctx context.Context, snap *pipeline.Snapshot) error {
	msgs, err := serializeSnapshot(snap)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write snapshot %s: %w", snap.ID, err)
	}
	p.metrics.MessagesProduced.Add(float64(len(msgs)))
	p.logger.Debug("snapshot published to kafka", "snapshot", snap.ID, "messages", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// CountryRecord is the message value for one country of a snapshot.
type CountryRecord struct {
	SnapshotID string          `json:"snapshot_id"`
	BuiltAt    time.Time       `json:"built_at"`
	Country    string          `json:"country"`
	Totals     *domain.Metrics `json:"totals,omitempty"`
	Areas      []AreaRecord    `json:"areas,omitempty"`
}

// AreaRecord is one area of a CountryRecord.
type AreaRecord struct {
	Name    string         `json:"name"`
	Metrics domain.Metrics `json:"metrics"`
}

// serializeSnapshot turns a snapshot into one message per country in tree order.
func serializeSnapshot(snap *pipeline.Snapshot) ([]kafkago.Message, error) {
	builtAt := []byte(snap.BuiltAt.Format(time.RFC3339))
	countries := snap.Tree.Countries()
	msgs := make([]kafkago.Message, 0, len(countries))

	for _, c := range countries {
		rec := CountryRecord{
			SnapshotID: snap.ID,
			BuiltAt:    snap.BuiltAt,
			Country:    c.Name,
			Totals:     c.Totals,
		}
		for _, name := range c.AreaNames() {
			m, _ := c.Area(name)
			rec.Areas = append(rec.Areas, AreaRecord{Name: name, Metrics: m})
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("serialize country %s: %w", c.Name, err)
		}
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(c.Name),
			Value: data,
			Headers: []kafkago.Header{
				{Key: "snapshot_id", Value: []byte(snap.ID)},
				{Key: "built_at", Value: builtAt},
			},
		})
	}
	return msgs, nil
}
