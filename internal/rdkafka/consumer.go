// Package rdkafka consumes through librdkafka. The broker client configuration
// is handed over key for key, so any librdkafka property set in a
// BrokerClientConfig takes effect unchanged.
package rdkafka

import (
	"context"
	"fmt"
	"time"

	"websocket-service/config"
	"websocket-service/internal/ports"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

var _ ports.MessageConsumer = (*Consumer)(nil)

const defaultPollTimeout = 100 * time.Millisecond

// poller is the subset of *kafka.Consumer used here.
type poller interface {
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error
	Poll(timeoutMs int) kafka.Event
	CommitMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
	Close() error
}

type Consumer struct {
	consumer    poller
	topic       string
	sink        ports.MessageSink
	autoCommit  bool
	pollTimeout time.Duration
	logger      *zap.Logger
}

// ConfigMap copies every entry of the broker client configuration.
func ConfigMap(client config.BrokerClientConfig) *kafka.ConfigMap {
	m := make(kafka.ConfigMap, client.Len())
	for _, e := range client.Entries() {
		m[e.Key] = e.Value
	}
	return &m
}

func NewConsumer(client config.BrokerClientConfig, topic string, sink ports.MessageSink, logger *zap.Logger) (*Consumer, error) {
	if err := client.Validate(); err != nil {
		return nil, fmt.Errorf("librdkafka config: %w", err)
	}
	autoCommit, _ := client.AutoCommit()

	c, err := kafka.NewConsumer(ConfigMap(client))
	if err != nil {
		return nil, fmt.Errorf("create librdkafka consumer: %w", err)
	}

	return newConsumer(c, topic, sink, autoCommit, logger), nil
}

func newConsumer(p poller, topic string, sink ports.MessageSink, autoCommit bool, logger *zap.Logger) *Consumer {
	return &Consumer{
		consumer:    p,
		topic:       topic,
		sink:        sink,
		autoCommit:  autoCommit,
		pollTimeout: defaultPollTimeout,
		logger:      logger.Named("rdkafka-consumer"),
	}
}

// Start subscribes to the topic and polls until ctx is cancelled or
// librdkafka reports a fatal error.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.consumer.SubscribeTopics([]string{c.topic}, nil); err != nil {
		return fmt.Errorf("subscribe %q: %w", c.topic, err)
	}
	c.logger.Info("starting consumer", zap.String("topic", c.topic), zap.Bool("auto_commit", c.autoCommit))

	timeoutMs := int(c.pollTimeout / time.Millisecond)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		switch e := c.consumer.Poll(timeoutMs).(type) {
		case nil:
		case *kafka.Message:
			if err := c.processMessage(ctx, e); err != nil {
				c.logger.Error("error processing message", zap.Stringer("partition", e.TopicPartition), zap.Error(err))
			}
		case kafka.Error:
			if e.IsFatal() {
				return fmt.Errorf("%w: %v", ports.ErrConsumerDown, e)
			}
			c.logger.Warn("consumer error", zap.Stringer("code", e.Code()), zap.Error(e))
		default:
			c.logger.Debug("ignored event", zap.Stringer("event", e))
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg *kafka.Message) error {
	if err := c.sink.Deliver(ctx, msg.Value); err != nil {
		return fmt.Errorf("deliver message: %w", err)
	}
	if !c.autoCommit {
		if _, err := c.consumer.CommitMessage(msg); err != nil {
			return fmt.Errorf("commit offset: %w", err)
		}
	}
	return nil
}

func (c *Consumer) Close() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("close librdkafka consumer: %w", err)
	}
	return nil
}
