package ports

import (
	"context"
)

// MessageHistory keeps the most recent broadcast messages so new clients can
// catch up.
type MessageHistory interface {
	Append(ctx context.Context, payload []byte) error
	// Recent returns up to n messages, oldest first.
	Recent(ctx context.Context, n int) ([][]byte, error)
	Close() error
}
