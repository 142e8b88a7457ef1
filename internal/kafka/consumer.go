package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"websocket-service/config"
	"websocket-service/internal/ports"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var _ ports.MessageConsumer = (*Consumer)(nil)

// Options holds the reader settings that are not part of the broker client
// configuration.
type Options struct {
	MinBytes       int
	MaxBytes       int
	MaxWait        time.Duration
	RetryDelay     time.Duration
	CommitInterval time.Duration
}

// reader is the subset of *kafka.Reader the consumer uses.
type reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader     reader
	sink       ports.MessageSink
	autoCommit bool
	retryDelay time.Duration
	logger     *zap.Logger
}

// ReaderConfig maps a broker client configuration onto kafka-go reader settings.
// With enable.auto.commit the reader commits every CommitInterval; otherwise
// offsets are committed explicitly after delivery.
func ReaderConfig(client config.BrokerClientConfig, topic string, opts Options) (kafka.ReaderConfig, error) {
	if err := client.Validate(); err != nil {
		return kafka.ReaderConfig{}, err
	}
	if topic == "" {
		return kafka.ReaderConfig{}, &config.ConfigError{Kind: config.MissingValue, Key: "topic"}
	}
	autoCommit, err := client.AutoCommit()
	if err != nil {
		return kafka.ReaderConfig{}, err
	}

	rc := kafka.ReaderConfig{
		Brokers:     client.Brokers(),
		GroupID:     client.GroupID(),
		Topic:       topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    opts.MinBytes,
		MaxBytes:    opts.MaxBytes,
		MaxWait:     opts.MaxWait,
	}
	if autoCommit {
		rc.CommitInterval = opts.CommitInterval
	}
	return rc, nil
}

func NewConsumer(
	client config.BrokerClientConfig,
	topic string,
	sink ports.MessageSink,
	opts Options,
	logger *zap.Logger,
) (*Consumer, error) {
	rc, err := ReaderConfig(client, topic, opts)
	if err != nil {
		return nil, fmt.Errorf("kafka reader config: %w", err)
	}
	autoCommit, _ := client.AutoCommit()

	return newConsumer(kafka.NewReader(rc), sink, autoCommit, opts.RetryDelay, logger), nil
}

func newConsumer(r reader, sink ports.MessageSink, autoCommit bool, retryDelay time.Duration, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader:     r,
		sink:       sink,
		autoCommit: autoCommit,
		retryDelay: retryDelay,
		logger:     logger.Named("kafka-consumer"),
	}
}

// Start reads messages until ctx is cancelled. Read errors are logged and
// retried after the retry delay.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting consumer", zap.Bool("auto_commit", c.autoCommit))

	for {
		msg, err := c.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("error reading message", zap.Error(err))
			if !sleep(ctx, c.retryDelay) {
				return nil
			}
			continue
		}

		if err := c.processMessage(ctx, msg); err != nil {
			c.logger.Error("error processing message",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}

func (c *Consumer) next(ctx context.Context) (kafka.Message, error) {
	if c.autoCommit {
		return c.reader.ReadMessage(ctx)
	}
	return c.reader.FetchMessage(ctx)
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	if err := c.sink.Deliver(ctx, msg.Value); err != nil {
		return fmt.Errorf("deliver message: %w", err)
	}

	if !c.autoCommit {
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit offset: %w", err)
		}
	}

	c.logger.Debug("message delivered",
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.Int("bytes", len(msg.Value)))
	return nil
}

func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close reader: %w", err)
	}
	return nil
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
