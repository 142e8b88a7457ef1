package ports

import "context"

//go:generate mockgen -source=server.go -destination=../mocks/mock_server.go -package=mocks

type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}
