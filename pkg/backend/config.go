package backend

import (
	"fmt"
	"slices"
)

const (
	AcceleratorAuto = "auto"
	AcceleratorCPU  = "cpu"

	StrategyAuto         = "auto"
	StrategySingle       = "single"
	StrategyDataParallel = "data_parallel"

	Precision32 = "32-true"
	Precision64 = "64-true"
)

var (
	accelerators = []string{AcceleratorAuto, AcceleratorCPU}
	strategies   = []string{StrategyAuto, StrategySingle, StrategyDataParallel}
	precisions   = []string{"", Precision32, Precision64}
)

// Config describes where and how a round executes. It is passed explicitly
// to New; nothing here touches process-wide state.
type Config struct {
	Accelerator   string `json:"accelerator"   toml:"accelerator"   yaml:"accelerator"`
	Devices       int    `json:"devices"       toml:"devices"       yaml:"devices"`
	Strategy      string `json:"strategy"      toml:"strategy"      yaml:"strategy"`
	Precision     string `json:"precision"     toml:"precision"     yaml:"precision"`
	Deterministic bool   `json:"deterministic" toml:"deterministic" yaml:"deterministic"`
	// DeviceIndex selects the first local device used by the session.
	DeviceIndex int `json:"device_num" toml:"device_num" yaml:"device_num"`
}

func DefaultConfig() Config {
	return Config{
		Accelerator: AcceleratorAuto,
		Devices:     1,
		Strategy:    StrategyAuto,
	}
}

func (c Config) normalize() Config {
	if c.Accelerator == "" {
		c.Accelerator = AcceleratorAuto
	}
	if c.Devices == 0 {
		c.Devices = 1
	}
	if c.Strategy == "" || c.Strategy == StrategyAuto {
		c.Strategy = StrategySingle
		if c.Devices > 1 {
			c.Strategy = StrategyDataParallel
		}
	}

	return c
}

func (c Config) Validate() error {
	c = c.normalize()

	switch {
	case !slices.Contains(accelerators, c.Accelerator):
		return fmt.Errorf("%w: accelerator %q is not available, use one of %v", ErrInvalidConfig, c.Accelerator, accelerators)
	case !slices.Contains(strategies, c.Strategy):
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	case !slices.Contains(precisions, c.Precision):
		return fmt.Errorf("%w: unknown precision %q", ErrInvalidConfig, c.Precision)
	case c.Devices < 0:
		return fmt.Errorf("%w: devices must be positive, got %d", ErrInvalidConfig, c.Devices)
	case c.DeviceIndex < 0:
		return fmt.Errorf("%w: device_num must not be negative", ErrInvalidConfig)
	case c.Strategy == StrategySingle && c.Devices > 1:
		return fmt.Errorf("%w: strategy %q cannot use %d devices", ErrInvalidConfig, StrategySingle, c.Devices)
	}

	return nil
}
