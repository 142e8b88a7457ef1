package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Broker client implementations selectable through KAFKA_CLIENT.
const (
	ClientKafkaGo    = "kafka-go"
	ClientLibrdkafka = "librdkafka"
)

type Config struct {
	Kafka    KafkaConfig
	Cache    CacheConfig
	HTTP     HTTPConfig
	Consumer ConsumerConfig
	Hub      HubConfig
	App      AppConfig
}

type KafkaConfig struct {
	Brokers    []string `envconfig:"KAFKA_BROKERS"`
	GroupID    string   `envconfig:"KAFKA_GROUP_ID"`
	AutoCommit bool     `envconfig:"KAFKA_AUTO_COMMIT"`
	Topic      string   `envconfig:"KAFKA_TOPIC"`
	Client     string   `envconfig:"KAFKA_CLIENT"`
}

// CacheConfig configures the Redis message history. An empty Addr disables it.
type CacheConfig struct {
	Addr        string        `envconfig:"REDIS_ADDR"`
	Password    string        `envconfig:"REDIS_PASSWORD"`
	DB          int           `envconfig:"REDIS_DB"`
	TTL         time.Duration `envconfig:"CACHE_TTL"`
	HistorySize int           `envconfig:"HISTORY_SIZE"`
}

type HTTPConfig struct {
	Addr string `envconfig:"HTTP_ADDR"`
}

type ConsumerConfig struct {
	MinBytes       int           `envconfig:"CONSUMER_MIN_BYTES"`
	MaxBytes       int           `envconfig:"CONSUMER_MAX_BYTES"`
	MaxWait        time.Duration `envconfig:"CONSUMER_MAX_WAIT"`
	RetryDelay     time.Duration `envconfig:"CONSUMER_RETRY_DELAY"`
	CommitInterval time.Duration `envconfig:"CONSUMER_COMMIT_INTERVAL"`
}

type HubConfig struct {
	PingInterval time.Duration `envconfig:"WS_PING_INTERVAL"`
	ReadTimeout  time.Duration `envconfig:"WS_READ_TIMEOUT"`
	WriteTimeout time.Duration `envconfig:"WS_WRITE_TIMEOUT"`
	ClientQueue  int           `envconfig:"WS_CLIENT_QUEUE"`
	MaxClients   int           `envconfig:"WS_MAX_CLIENTS"`
}

type AppConfig struct {
	Env      string `envconfig:"APP_ENV"`
	LogLevel string `envconfig:"LOG_LEVEL"`
}

// Load reads the service configuration from the environment on top of the
// defaults and validates it.
func Load() (*Config, error) {
	cfg := Default()

	sections := []interface{}{&cfg.Kafka, &cfg.Cache, &cfg.HTTP, &cfg.Consumer, &cfg.Hub, &cfg.App}
	for _, s := range sections {
		if err := envconfig.Process("", s); err != nil {
			return nil, fmt.Errorf("invalid config: %w", fromEnvError(err))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no environment is set. The
// Kafka section mirrors GetKafkaConfig.
func Default() *Config {
	broker := GetKafkaConfig()
	autoCommit, _ := broker.AutoCommit()

	return &Config{
		Kafka: KafkaConfig{
			Brokers:    broker.Brokers(),
			GroupID:    broker.GroupID(),
			AutoCommit: autoCommit,
			Topic:      "grid_updates",
			Client:     ClientKafkaGo,
		},
		Cache: CacheConfig{
			DB:          0,
			TTL:         time.Hour,
			HistorySize: 256,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Consumer: ConsumerConfig{
			MinBytes:       1,
			MaxBytes:       10 * 1024 * 1024, // 10MB
			MaxWait:        500 * time.Millisecond,
			RetryDelay:     5 * time.Second,
			CommitInterval: time.Second,
		},
		Hub: HubConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			ClientQueue:  64,
		},
		App: AppConfig{
			Env:      "development",
			LogLevel: "info",
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Kafka.Validate(); err != nil {
		return fmt.Errorf("kafka config: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http config: %w", missingValue("HTTP_ADDR"))
	}
	if err := c.Consumer.Validate(); err != nil {
		return fmt.Errorf("consumer config: %w", err)
	}
	if err := c.Hub.Validate(); err != nil {
		return fmt.Errorf("hub config: %w", err)
	}
	return nil
}

// ClientConfig converts the section into a broker client configuration.
func (c KafkaConfig) ClientConfig() (BrokerClientConfig, error) {
	return NewBrokerClientConfig(
		ConfigEntry{Key: KeyGroupID, Value: c.GroupID},
		ConfigEntry{Key: KeyBootstrapServers, Value: strings.Join(c.Brokers, ",")},
		ConfigEntry{Key: KeyEnableAutoCommit, Value: strconv.FormatBool(c.AutoCommit)},
	)
}

func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return missingValue("KAFKA_BROKERS")
	}
	if c.GroupID == "" {
		return missingValue("KAFKA_GROUP_ID")
	}
	if c.Topic == "" {
		return missingValue("KAFKA_TOPIC")
	}
	switch c.Client {
	case ClientKafkaGo, ClientLibrdkafka:
	default:
		return &ConfigError{Kind: InvalidValue, Key: "KAFKA_CLIENT", Value: c.Client}
	}

	client, err := c.ClientConfig()
	if err != nil {
		return err
	}
	return client.Validate()
}

func (c CacheConfig) Enabled() bool {
	return c.Addr != ""
}

func (c CacheConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if err := validateAddress(c.Addr); err != nil {
		return &ConfigError{Kind: InvalidAddress, Key: "REDIS_ADDR", Value: c.Addr, Err: err}
	}
	if c.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("HISTORY_SIZE must be positive")
	}
	return nil
}

func (c ConsumerConfig) Validate() error {
	if c.MinBytes <= 0 {
		return fmt.Errorf("CONSUMER_MIN_BYTES must be positive")
	}
	if c.MaxBytes <= c.MinBytes {
		return fmt.Errorf("CONSUMER_MAX_BYTES must be greater than CONSUMER_MIN_BYTES")
	}
	if c.MaxWait <= 0 {
		return fmt.Errorf("CONSUMER_MAX_WAIT must be positive")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("CONSUMER_RETRY_DELAY cannot be negative")
	}
	if c.CommitInterval < 0 {
		return fmt.Errorf("CONSUMER_COMMIT_INTERVAL cannot be negative")
	}
	return nil
}

func (c HubConfig) Validate() error {
	if c.PingInterval <= 0 {
		return fmt.Errorf("WS_PING_INTERVAL must be positive")
	}
	if c.ReadTimeout <= c.PingInterval {
		return fmt.Errorf("WS_READ_TIMEOUT must be greater than WS_PING_INTERVAL")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("WS_WRITE_TIMEOUT must be positive")
	}
	if c.ClientQueue <= 0 {
		return fmt.Errorf("WS_CLIENT_QUEUE must be positive")
	}
	if c.MaxClients < 0 {
		return fmt.Errorf("WS_MAX_CLIENTS cannot be negative")
	}
	return nil
}

func fromEnvError(err error) error {
	var pe *envconfig.ParseError
	if errors.As(err, &pe) {
		return &ConfigError{Kind: InvalidValue, Key: pe.KeyName, Value: pe.Value, Err: pe.Err}
	}
	return err
}
