package ports

import (
	"context"
)

//go:generate mockgen -source=consumer.go -destination=../mocks/mock_consumer.go -package=mocks

// MessageConsumer reads messages from the broker and hands them to a MessageSink.
// Start blocks until ctx is cancelled or the consumer fails.
type MessageConsumer interface {
	Start(ctx context.Context) error
	Close() error
}
