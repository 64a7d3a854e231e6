// Package round interprets the per-round configuration sent by the
// coordinator.
package round

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
)

const (
	KeyServerRound = "server_round"
	KeyLocalEpochs = "local_epochs"
)

var ErrConfiguration = errors.New("invalid round configuration")

type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %q %s", ErrConfiguration, e.Key, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// Config is the raw key/value mapping supplied by the coordinator.
type Config map[string]any

func (c Config) Clone() Config {
	if c == nil {
		return Config{}
	}

	return maps.Clone(c)
}

// Int returns the value under key as an integer. Any numeric kind is
// accepted as long as it holds an integral value; so are strings of digits.
func (c Config) Int(key string) (int64, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return 0, &ConfigurationError{Key: key, Reason: "is required"}
	}

	n, err := toInt(v)
	if err != nil {
		return 0, &ConfigurationError{Key: key, Reason: err.Error()}
	}

	return n, nil
}

// Without returns a copy of c with the given keys removed.
func (c Config) Without(keys ...string) Config {
	out := c.Clone()
	for _, k := range keys {
		delete(out, k)
	}

	return out
}

// FitConfig is the closed record for a fit round. Extra carries every key
// the client does not interpret.
type FitConfig struct {
	ServerRound int64
	LocalEpochs int
	Extra       Config
}

type EvaluateConfig struct {
	ServerRound int64
	Extra       Config
}

func ParseFit(c Config) (FitConfig, error) {
	sr, err := serverRound(c)
	if err != nil {
		return FitConfig{}, err
	}

	epochs, err := c.Int(KeyLocalEpochs)
	if err != nil {
		return FitConfig{}, err
	}
	if epochs < 0 {
		return FitConfig{}, &ConfigurationError{Key: KeyLocalEpochs, Reason: "must not be negative"}
	}
	if epochs > math.MaxInt32 {
		return FitConfig{}, &ConfigurationError{Key: KeyLocalEpochs, Reason: "is out of range"}
	}

	return FitConfig{
		ServerRound: sr,
		LocalEpochs: int(epochs),
		Extra:       c.Without(KeyServerRound, KeyLocalEpochs),
	}, nil
}

func ParseEvaluate(c Config) (EvaluateConfig, error) {
	sr, err := serverRound(c)
	if err != nil {
		return EvaluateConfig{}, err
	}

	return EvaluateConfig{
		ServerRound: sr,
		Extra:       c.Without(KeyServerRound),
	}, nil
}

func serverRound(c Config) (int64, error) {
	sr, err := c.Int(KeyServerRound)
	if err != nil {
		return 0, err
	}
	if sr < 0 {
		return 0, &ConfigurationError{Key: KeyServerRound, Reason: "must not be negative"}
	}

	return sr, nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return uintToInt(uint64(n))
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return uintToInt(n)
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, errors.New("is not a number")
		}

		return floatToInt(f)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, errors.New("is not an integer")
		}

		return i, nil
	default:
		return 0, fmt.Errorf("has unsupported type %T", v)
	}
}

func uintToInt(n uint64) (int64, error) {
	if n > math.MaxInt64 {
		return 0, errors.New("is out of range")
	}

	return int64(n), nil
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, errors.New("is not an integer")
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errors.New("is out of range")
	}

	return int64(f), nil
}
