package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"websocket-service/config"
	"websocket-service/internal/cache"
	"websocket-service/internal/http"
	"websocket-service/internal/kafka"
	"websocket-service/internal/logging"
	"websocket-service/internal/ports"
	"websocket-service/internal/rdkafka"
	"websocket-service/internal/ws"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := kingpin.New("websocket-service", "Broadcasts broker messages to websocket clients")
	httpAddr := app.Flag("http-addr", "HTTP listen address (overrides HTTP_ADDR)").String()
	client := app.Flag("client", "Broker client implementation (overrides KAFKA_CLIENT)").Enum(config.ClientKafkaGo, config.ClientLibrdkafka)
	printConfig := app.Flag("print-config", "Print the default broker client configuration and exit").Bool()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	if *printConfig {
		if err := writeBrokerConfig(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if *client != "" {
		cfg.Kafka.Client = *client
	}

	logger, err := logging.New(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting service", zap.String("env", cfg.App.Env), zap.String("client", cfg.Kafka.Client))

	brokerConfig, err := cfg.Kafka.ClientConfig()
	if err != nil {
		return fmt.Errorf("broker config: %w", err)
	}
	logger.Info("broker client config", zap.Stringer("config", brokerConfig))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// history init
	var history ports.MessageHistory
	if cfg.Cache.Enabled() {
		h, err := cache.NewRedisHistory(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, cfg.Cache.HistorySize, cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("redis history: %w", err)
		}
		defer h.Close()
		history = h
	}

	hub := ws.NewHub(ws.Options{
		PingInterval: cfg.Hub.PingInterval,
		ReadTimeout:  cfg.Hub.ReadTimeout,
		WriteTimeout: cfg.Hub.WriteTimeout,
		ClientQueue:  cfg.Hub.ClientQueue,
		MaxClients:   cfg.Hub.MaxClients,
		Replay:       min(cfg.Cache.HistorySize, cfg.Hub.ClientQueue),
	}, history, reg, logger)
	defer hub.Close()

	// consumer init
	consumer, err := newConsumer(cfg, brokerConfig, hub, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 2)
	consumerDone := startConsumer(ctx, consumer, errs)

	server := http.NewServer(cfg.HTTP.Addr, brokerConfig, hub, reg, logger)
	go func() {
		if err := server.Start(); err != nil {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.Info("service started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down service")
	case runErr = <-errs:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}

	// The consumer, hub and history are closed by the defers above; none of
	// them may be closed while Start is still running.
	<-consumerDone

	return runErr
}

// startConsumer runs c until ctx is done. The returned channel is closed once
// Start has returned.
func startConsumer(ctx context.Context, c ports.MessageConsumer, errs chan<- error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Start(ctx); err != nil {
			select {
			case errs <- fmt.Errorf("consumer: %w", err):
			default:
			}
		}
	}()
	return done
}

// writeBrokerConfig prints the default broker client configuration as YAML.
func writeBrokerConfig(w io.Writer) error {
	out, err := yaml.Marshal(config.GetKafkaConfig())
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func newConsumer(cfg *config.Config, brokerConfig config.BrokerClientConfig, sink ports.MessageSink, logger *zap.Logger) (ports.MessageConsumer, error) {
	switch cfg.Kafka.Client {
	case config.ClientLibrdkafka:
		return rdkafka.NewConsumer(brokerConfig, cfg.Kafka.Topic, sink, logger)
	default:
		return kafka.NewConsumer(brokerConfig, cfg.Kafka.Topic, sink, kafka.Options{
			MinBytes:       cfg.Consumer.MinBytes,
			MaxBytes:       cfg.Consumer.MaxBytes,
			MaxWait:        cfg.Consumer.MaxWait,
			RetryDelay:     cfg.Consumer.RetryDelay,
			CommitInterval: cfg.Consumer.CommitInterval,
		}, logger)
	}
}
