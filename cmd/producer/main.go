package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"websocket-service/config"
	"websocket-service/internal/logging"

	"github.com/alecthomas/kingpin/v2"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// GridUpdate is a single pixel change as published by the draw API.
type GridUpdate struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Color int `json:"color"`
}

// validateFlags rejects values rand.Intn or the send loop cannot work with.
func validateFlags(count, gridSize, colors int, delay time.Duration) error {
	switch {
	case count <= 0:
		return fmt.Errorf("--count must be positive, got %d", count)
	case gridSize <= 0:
		return fmt.Errorf("--grid-size must be positive, got %d", gridSize)
	case colors <= 0:
		return fmt.Errorf("--colors must be positive, got %d", colors)
	case delay < 0:
		return fmt.Errorf("--delay cannot be negative, got %s", delay)
	}
	return nil
}

func main() {
	app := kingpin.New("producer", "Publishes random grid updates for local testing")
	topic := app.Flag("topic", "Topic to publish to").Default("grid_updates").String()
	count := app.Flag("count", "Number of updates to send").Default("100").Int()
	gridSize := app.Flag("grid-size", "Width and height of the grid").Default("100").Int()
	colors := app.Flag("colors", "Size of the color palette").Default("16").Int()
	delay := app.Flag("delay", "Pause between messages").Default("10ms").Duration()

	kingpin.MustParse(app.Parse(os.Args[1:]))
	if err := validateFlags(*count, *gridSize, *colors, *delay); err != nil {
		app.Fatalf("%v", err)
	}

	logger, err := logging.New("info", "development")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	brokerConfig := config.GetKafkaConfig()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerConfig.Brokers()...),
		Topic:        *topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	defer writer.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < *count; i++ {
		update := GridUpdate{
			X:     rng.Intn(*gridSize),
			Y:     rng.Intn(*gridSize),
			Color: rng.Intn(*colors),
		}

		payload, err := json.Marshal(update)
		if err != nil {
			logger.Fatal("failed to marshal update", zap.Error(err))
		}

		err = writer.WriteMessages(context.Background(),
			kafka.Message{
				Key:   []byte(fmt.Sprintf("%d:%d", update.X, update.Y)),
				Value: payload,
			},
		)
		if err != nil {
			logger.Fatal("failed to write message", zap.Error(err))
		}

		time.Sleep(*delay)
	}

	logger.Info("all updates sent", zap.Int("count", *count), zap.String("topic", *topic))
}
