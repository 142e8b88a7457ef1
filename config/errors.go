package config

import "fmt"

// ErrorKind classifies a configuration failure.
type ErrorKind int

const (
	// MissingValue means a required key or setting has no value.
	MissingValue ErrorKind = iota + 1
	// InvalidAddress means a broker or server address is not host:port.
	InvalidAddress
	// InvalidValue means a value is present but cannot be interpreted.
	InvalidValue
)

func (k ErrorKind) String() string {
	switch k {
	case MissingValue:
		return "missing value"
	case InvalidAddress:
		return "invalid address"
	case InvalidValue:
		return "invalid value"
	default:
		return "unknown"
	}
}

// ConfigError reports a misconfigured deployment. It is never recovered from
// locally; callers propagate it up to main.
type ConfigError struct {
	Kind  ErrorKind
	Key   string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config %s: %s", e.Kind, e.Key)
	if e.Value != "" {
		msg += fmt.Sprintf(" = %q", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is matches another *ConfigError by Kind, so errors.Is(err, &ConfigError{Kind: MissingValue})
// works regardless of key.
func (e *ConfigError) Is(target error) bool {
	t, ok := target.(*ConfigError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Key == "" || t.Key == e.Key)
}

func missingValue(key string) error {
	return &ConfigError{Kind: MissingValue, Key: key}
}
