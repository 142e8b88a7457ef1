package config

import (
	"bytes"
	"encoding/json"
	"net"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Recognized broker client keys.
const (
	KeyGroupID          = "group.id"
	KeyBootstrapServers = "bootstrap.servers"
	KeyEnableAutoCommit = "enable.auto.commit"
)

const (
	DefaultGroupID          = "websocket_service"
	DefaultBootstrapServers = "localhost:9092"
	DefaultEnableAutoCommit = "true"
)

// ConfigEntry is a single broker client setting.
type ConfigEntry struct {
	Key   string
	Value string
}

// BrokerClientConfig is an immutable set of broker client settings. Entries
// keep the order they were given in for display; lookups and equality ignore
// order.
type BrokerClientConfig struct {
	entries []ConfigEntry
	index   map[string]int
}

// GetKafkaConfig returns the broker client configuration the websocket
// service consumes with. Every call returns a fresh value.
func GetKafkaConfig() BrokerClientConfig {
	return mustBrokerClientConfig(
		ConfigEntry{Key: KeyGroupID, Value: DefaultGroupID},
		ConfigEntry{Key: KeyBootstrapServers, Value: DefaultBootstrapServers},
		ConfigEntry{Key: KeyEnableAutoCommit, Value: DefaultEnableAutoCommit},
	)
}

// mustBrokerClientConfig is NewBrokerClientConfig for compile-time entries.
// It panics if they are invalid.
func mustBrokerClientConfig(entries ...ConfigEntry) BrokerClientConfig {
	cfg, err := NewBrokerClientConfig(entries...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// NewBrokerClientConfig builds a config from entries. It either returns a
// fully populated config or a *ConfigError, never a partial value.
func NewBrokerClientConfig(entries ...ConfigEntry) (BrokerClientConfig, error) {
	cfg := BrokerClientConfig{
		entries: make([]ConfigEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if e.Key == "" {
			return BrokerClientConfig{}, missingValue("<key>")
		}
		if e.Value == "" {
			return BrokerClientConfig{}, missingValue(e.Key)
		}
		if _, dup := cfg.index[e.Key]; dup {
			return BrokerClientConfig{}, &ConfigError{Kind: InvalidValue, Key: e.Key, Value: e.Value}
		}
		cfg.index[e.Key] = len(cfg.entries)
		cfg.entries = append(cfg.entries, e)
	}
	return cfg, nil
}

// Get returns the value for key.
func (c BrokerClientConfig) Get(key string) (string, bool) {
	i, ok := c.index[key]
	if !ok {
		return "", false
	}
	return c.entries[i].Value, true
}

func (c BrokerClientConfig) Len() int {
	return len(c.entries)
}

// Entries returns a copy of the settings in insertion order.
func (c BrokerClientConfig) Entries() []ConfigEntry {
	out := make([]ConfigEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c BrokerClientConfig) Keys() []string {
	keys := make([]string, len(c.entries))
	for i, e := range c.entries {
		keys[i] = e.Key
	}
	return keys
}

// Equal reports whether both configs hold the same key/value pairs.
func (c BrokerClientConfig) Equal(other BrokerClientConfig) bool {
	if c.Len() != other.Len() {
		return false
	}
	for _, e := range c.entries {
		v, ok := other.Get(e.Key)
		if !ok || v != e.Value {
			return false
		}
	}
	return true
}

func (c BrokerClientConfig) GroupID() string {
	v, _ := c.Get(KeyGroupID)
	return v
}

// Brokers splits bootstrap.servers into individual addresses.
func (c BrokerClientConfig) Brokers() []string {
	v, _ := c.Get(KeyBootstrapServers)
	return splitList(v)
}

// AutoCommit parses enable.auto.commit. A config without the key does not
// auto-commit.
func (c BrokerClientConfig) AutoCommit() (bool, error) {
	v, ok := c.Get(KeyEnableAutoCommit)
	if !ok {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &ConfigError{Kind: InvalidValue, Key: KeyEnableAutoCommit, Value: v, Err: err}
	}
	return b, nil
}

// Validate checks the recognized keys: group.id present, every bootstrap
// server a host:port pair and enable.auto.commit a bool.
func (c BrokerClientConfig) Validate() error {
	if c.GroupID() == "" {
		return missingValue(KeyGroupID)
	}
	brokers := c.Brokers()
	if len(brokers) == 0 {
		return missingValue(KeyBootstrapServers)
	}
	for _, b := range brokers {
		if err := validateAddress(b); err != nil {
			return &ConfigError{Kind: InvalidAddress, Key: KeyBootstrapServers, Value: b, Err: err}
		}
	}
	if _, err := c.AutoCommit(); err != nil {
		return err
	}
	return nil
}

func (c BrokerClientConfig) String() string {
	parts := make([]string, len(c.entries))
	for i, e := range c.entries {
		parts[i] = e.Key + "=" + e.Value
	}
	return strings.Join(parts, " ")
}

// MarshalJSON encodes the config as a JSON object in insertion order.
func (c BrokerClientConfig) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML encodes the config as a mapping in insertion order.
func (c BrokerClientConfig) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range c.entries {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Value, Style: yaml.DoubleQuotedStyle},
		)
	}
	return node, nil
}

func validateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "" {
		return missingValue("host")
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return err
	}
	if n <= 0 || n > 65535 {
		return &ConfigError{Kind: InvalidValue, Key: "port", Value: port}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
