package ports

import "errors"

var (
	ErrHubClosed    = errors.New("hub is closed")
	ErrHubFull      = errors.New("hub has reached its client limit")
	ErrConsumerDown = errors.New("consumer stopped")
)
