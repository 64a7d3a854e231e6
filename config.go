package flclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/absmach/flclient/pkg/backend"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

const rootDirVar = "${root_dir}"

var (
	ErrConfigMissing      = errors.New("the config doesn't exist")
	ErrConfigIsDir        = errors.New("config is a directory, expected a single file")
	ErrUnsupportedFormat  = errors.New("unsupported config format")
	ErrMissingComponent   = errors.New("component name is required")
	ErrMissingServerAddr  = errors.New("server address is required")
	ErrMissingConfigField = errors.New("missing config field")
)

// Component names a registered model or data source and carries the
// options handed to its factory.
type Component struct {
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

type Config struct {
	ClientID      string `json:"cid"`
	RootDir       string `json:"root_dir"`
	ServerAddress string `json:"server_address"`
	// ServerAdress is the legacy spelling, still honoured when
	// server_address is absent.
	ServerAdress string `json:"server_adress,omitempty"`
	DeviceNum    *int   `json:"device_num,omitempty"`

	DomainID  string `json:"domain_id"`
	ChannelID string `json:"channel_id"`
	Namespace string `json:"namespace"`

	Model  Component      `json:"model"`
	Data   Component      `json:"data"`
	Fabric backend.Config `json:"fabric"`
}

// Overrides are command-line values laid over the loaded file. Nil fields
// leave the file value untouched.
type Overrides struct {
	ClientID      *string
	DeviceNum     *int
	RootDir       *string
	ServerAddress *string
}

// LoadConfig reads a TOML or YAML client config. The format is chosen by
// file extension.
func LoadConfig(path string) (Config, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("%w: %s", ErrConfigMissing, path)
	case err != nil:
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	case info.IsDir():
		return Config{}, fmt.Errorf("%w: %s", ErrConfigIsDir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	}

	var raw map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		tree, err := toml.LoadBytes(data)
		if err != nil {
			return Config{}, fmt.Errorf("error parsing config file: %w", err)
		}
		raw = tree.ToMap()
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("error parsing config file: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	return decodeConfig(raw)
}

func decodeConfig(raw map[string]any) (Config, error) {
	// Client IDs are commonly written as bare integers.
	switch cid := raw["cid"].(type) {
	case nil, string:
	default:
		raw["cid"] = fmt.Sprint(cid)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg := Config{Fabric: backend.DefaultConfig()}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.ServerAddress == "" {
		cfg.ServerAddress = cfg.ServerAdress
	}
	cfg.ServerAdress = ""

	return cfg, nil
}

// Apply lays o over cfg and resolves derived settings: the device index of
// the backend and the root_dir of the model and data options.
func (cfg Config) Apply(o Overrides) Config {
	if o.ClientID != nil {
		cfg.ClientID = *o.ClientID
	}
	if o.DeviceNum != nil {
		n := *o.DeviceNum
		cfg.DeviceNum = &n
	}
	if o.RootDir != nil {
		cfg.RootDir = *o.RootDir
	}
	if o.ServerAddress != nil {
		cfg.ServerAddress = *o.ServerAddress
	}

	if cfg.DeviceNum != nil {
		cfg.Fabric.DeviceIndex = *cfg.DeviceNum
	}
	cfg.Model.Config = withRootDir(cfg.Model.Config, cfg.RootDir, false)
	cfg.Data.Config = withRootDir(cfg.Data.Config, cfg.RootDir, true)

	return cfg
}

// Validate checks what every command needs. Commands that connect to a
// coordinator also call ValidateServer.
func (cfg Config) Validate() error {
	var errs []error
	if cfg.Model.Name == "" {
		errs = append(errs, fmt.Errorf("model: %w", ErrMissingComponent))
	}
	if cfg.Data.Name == "" {
		errs = append(errs, fmt.Errorf("data: %w", ErrMissingComponent))
	}
	if err := cfg.Fabric.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("fabric: %w", err))
	}

	return errors.Join(errs...)
}

func (cfg Config) ValidateServer() error {
	var errs []error
	if cfg.ServerAddress == "" {
		errs = append(errs, ErrMissingServerAddr)
	}
	if cfg.ChannelID == "" {
		errs = append(errs, fmt.Errorf("%w: channel_id", ErrMissingConfigField))
	}

	return errors.Join(errs...)
}

// withRootDir expands ${root_dir} in string options and, when inject is
// set, adds root_dir itself if the section does not define it.
func withRootDir(options map[string]any, rootDir string, inject bool) map[string]any {
	if rootDir == "" {
		return options
	}

	out := make(map[string]any, len(options)+1)
	for k, v := range options {
		if s, ok := v.(string); ok {
			v = strings.ReplaceAll(s, rootDirVar, rootDir)
		}
		out[k] = v
	}
	if _, ok := out["root_dir"]; inject && !ok {
		out["root_dir"] = rootDir
	}

	return out
}
