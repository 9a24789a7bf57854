// Package kafka publishes ingest notifications for newly downloaded raw
// files. The feature is optional; the pipeline is fully functional with
// publishing disabled.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/knmi-obs-sync/internal/config"
	"github.com/couchcryptid/knmi-obs-sync/internal/store"
)

// Publisher produces ingest notifications to a Kafka topic.
// It implements poller.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// ingestEvent is the published payload: which raw file arrived and when.
type ingestEvent struct {
	Filename   string    `json:"filename"`
	ObservedAt time.Time `json:"observed_at"`
	IngestedAt time.Time `json:"ingested_at"`
}

// PublishIngested announces the given raw files in a single WriteMessages
// call. Filenames whose timestamp does not decode are skipped with a
// warning rather than failing the batch.
func (p *Publisher) PublishIngested(ctx context.Context, filenames []string) error {
	if len(filenames) == 0 {
		return nil
	}

	now := time.Now().UTC()
	msgs := make([]kafkago.Message, 0, len(filenames))
	for _, name := range filenames {
		observedAt, err := store.TimestampFromFilename(name)
		if err != nil {
			p.logger.Warn("skipping ingest notification for undecodable filename",
				"file", name, "error", err)
			continue
		}
		msg, err := serializeToMessage(ingestEvent{
			Filename:   name,
			ObservedAt: observedAt,
			IngestedAt: now,
		})
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an ingest event into a Kafka message keyed
// by filename, so replays of the same file land on the same partition.
func serializeToMessage(event ingestEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize ingest event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Filename),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "observed_at", Value: []byte(event.ObservedAt.Format(time.RFC3339))},
		},
	}, nil
}
