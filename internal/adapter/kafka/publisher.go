package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/fits-map-service/internal/domain"
)

// Publisher produces update notices to a Kafka topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish writes notices in a single WriteMessages call.
func (p *Publisher) Publish(ctx context.Context, notices ...domain.UpdateNotice) error {
	if len(notices) == 0 {
		return nil
	}
	now := time.Now().UTC()
	msgs := make([]kafkago.Message, len(notices))
	for i := range notices {
		msg, err := serializeToMessage(notices[i], now)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish update notices: %w", err)
	}
	p.logger.Debug("published update notices", "count", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a notice keyed by type so notices for one type
// stay ordered within a partition.
func serializeToMessage(n domain.UpdateNotice, at time.Time) (kafkago.Message, error) {
	if n.TypeID == "" {
		return kafkago.Message{}, errors.New("serialize update notice: missing typeID")
	}
	data, err := json.Marshal(n)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize update notice: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(n.TypeID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "type_id", Value: []byte(n.TypeID)},
			{Key: "published_at", Value: []byte(at.Format(time.RFC3339))},
		},
	}, nil
}
