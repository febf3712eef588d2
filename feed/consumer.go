package feed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/internal/metrics"
	"github.com/liamcoop/campaignrules/rules"
)

// Handler receives every decoded snapshot. The message is committed as soon
// as Handler returns nil, so a handler that only queues the snapshot gives
// at-most-once processing. Returning an error stops the consumer without
// committing the message, unless it wraps ErrRejected.
type Handler func(ctx context.Context, s *rules.Snapshot) error

// ErrRejected marks a snapshot the handler refused for good. The record is
// counted as rejected and committed.
var ErrRejected = errors.New("snapshot rejected")

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig configures the snapshot topic reader
type ConsumerConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

// Consumer reads campaign records from Kafka and hands snapshots to a Handler.
// Malformed records are logged, counted and committed so they are not redelivered.
type Consumer struct {
	reader  messageReader
	handler Handler
	now     func() time.Time

	received atomic.Uint64
	rejected atomic.Uint64
}

// NewConsumer creates a consumer group reader for the snapshot topic
func NewConsumer(cfg ConsumerConfig, handler Handler) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("group id is required")
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10e6
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	})

	return newConsumer(reader, handler), nil
}

func newConsumer(reader messageReader, handler Handler) *Consumer {
	return &Consumer{reader: reader, handler: handler, now: time.Now}
}

// Run consumes until ctx is cancelled or the handler fails.
func (c *Consumer) Run(ctx context.Context) error {
	logger.Info("Snapshot consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}
		c.received.Add(1)

		s, err := DecodeRecord(msg.Value, c.now())
		if err == nil {
			err = c.handler(ctx, s)
			if err != nil && !errors.Is(err, ErrRejected) {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to handle snapshot: %w", err)
			}
		}
		if err != nil {
			c.rejected.Add(1)
			metrics.SnapshotsIngestedTotal.WithLabelValues("kafka", "rejected").Inc()
			logger.Warn("Dropping campaign record",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err)
		} else {
			metrics.SnapshotsIngestedTotal.WithLabelValues("kafka", "accepted").Inc()
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit offset %d: %w", msg.Offset, err)
		}
	}
}

// Close closes the underlying reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// ConsumerStats holds consumer counters
type ConsumerStats struct {
	Received uint64
	Rejected uint64
}

// Stats returns consumer statistics
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Received: c.received.Load(),
		Rejected: c.rejected.Load(),
	}
}
