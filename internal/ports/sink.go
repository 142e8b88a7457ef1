package ports

import "context"

//go:generate mockgen -source=sink.go -destination=../mocks/mock_sink.go -package=mocks

// MessageSink receives the value of every consumed message.
type MessageSink interface {
	Deliver(ctx context.Context, payload []byte) error
}

// SinkFunc adapts a function to MessageSink.
type SinkFunc func(ctx context.Context, payload []byte) error

func (f SinkFunc) Deliver(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}
