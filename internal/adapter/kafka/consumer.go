package kafka

import (
	"context"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/fits-map-service/internal/config"
	"github.com/couchcryptid/fits-map-service/internal/domain"
	"github.com/couchcryptid/fits-map-service/internal/observability"
)

// Invalidator drops cached data for an observation type.
type Invalidator interface {
	InvalidateType(typeID string)
}

// messageReader is the subset of *kafkago.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads update notices and invalidates caches for the named type.
type Consumer struct {
	reader       messageReader
	invalidators []Invalidator
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewConsumer creates a consumer group reader for the configured notice topic.
func NewConsumer(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger, invalidators ...Invalidator) *Consumer {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		GroupID: cfg.KafkaGroupID,
		MaxWait: time.Second,
	})
	return newConsumer(r, metrics, logger, invalidators...)
}

func newConsumer(r messageReader, metrics *observability.Metrics, logger *slog.Logger, invalidators ...Invalidator) *Consumer {
	return &Consumer{
		reader:       r,
		invalidators: invalidators,
		metrics:      metrics,
		logger:       logger,
	}
}

// Run consumes notices until ctx is cancelled. Read errors are retried with
// exponential backoff.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("update notice consumer started")

	backoff := initialBackoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("update notice consumer stopping", "reason", ctx.Err())
				return
			}
			c.logger.Error("fetch update notice failed", "error", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff

		c.handle(msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn("commit offset failed", "error", err,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		}
	}
}

// handle applies one message. Malformed notices are logged and dropped.
func (c *Consumer) handle(msg kafkago.Message) {
	n, err := domain.ParseUpdateNotice(msg.Value)
	if err != nil {
		c.metrics.UpdateNotices.WithLabelValues("malformed").Inc()
		c.logger.Warn("skipping malformed update notice", "error", err,
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		return
	}

	for _, inv := range c.invalidators {
		inv.InvalidateType(n.TypeID)
	}
	c.metrics.UpdateNotices.WithLabelValues("applied").Inc()
	c.logger.Debug("applied update notice", "type_id", n.TypeID, "site_id", n.SiteID, "network_id", n.NetworkID)
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
