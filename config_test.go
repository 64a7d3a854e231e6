package flclient_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	flclient "github.com/absmach/flclient"
	"github.com/absmach/flclient/pkg/backend"
	"github.com/absmach/flclient/pkg/ml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tomlConfig = `
cid = "client-1"
server_adress = "tcp://coordinator:1883"
domain_id = "d1"
channel_id = "c1"
device_num = 1

[model]
name = "linear"
[model.config]
features = 4
classes = 3

[data]
name = "synthetic"
[data.config]
features = 4
classes = 3
train_size = 30
val_size = 9

[fabric]
accelerator = "cpu"
devices = 2
strategy = "data_parallel"
deterministic = true
`

const yamlConfig = `
cid: client-2
server_address: tcp://localhost:1883
channel_id: c1
model:
  name: linear
  config:
    features: 4
data:
  name: synthetic
  config:
    cache: ${root_dir}/cache
fabric:
  devices: 1
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadTOML(t *testing.T) {
	t.Parallel()

	cfg, err := flclient.LoadConfig(writeFile(t, "client.toml", tomlConfig))
	require.NoError(t, err)

	assert.Equal(t, "client-1", cfg.ClientID)
	assert.Equal(t, "tcp://coordinator:1883", cfg.ServerAddress)
	assert.Equal(t, "linear", cfg.Model.Name)
	assert.Equal(t, 3.0, cfg.Model.Config["classes"])
	assert.Equal(t, backend.Config{
		Accelerator:   "cpu",
		Devices:       2,
		Strategy:      backend.StrategyDataParallel,
		Deterministic: true,
	}, cfg.Fabric)
	require.NotNil(t, cfg.DeviceNum)

	cfg = cfg.Apply(flclient.Overrides{})
	assert.Equal(t, 1, cfg.Fabric.DeviceIndex)
	assert.NoError(t, cfg.Validate())
	assert.NoError(t, cfg.ValidateServer())
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	cfg, err := flclient.LoadConfig(writeFile(t, "client.yaml", yamlConfig))
	require.NoError(t, err)
	assert.Equal(t, "client-2", cfg.ClientID)
	assert.Equal(t, "tcp://localhost:1883", cfg.ServerAddress)
	assert.Equal(t, backend.AcceleratorAuto, cfg.Fabric.Accelerator)
	assert.Nil(t, cfg.DeviceNum)

	rootDir := "/datasets"
	cfg = cfg.Apply(flclient.Overrides{RootDir: &rootDir})
	assert.Equal(t, "/datasets/cache", cfg.Data.Config["cache"])
	assert.Equal(t, "/datasets", cfg.Data.Config["root_dir"])
	assert.NotContains(t, cfg.Model.Config, "root_dir")
}

func TestLoadIntegerClientID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		file    string
		content string
	}{
		{name: "toml", file: "client.toml", content: "cid = 1\n[model]\nname = \"linear\"\n[data]\nname = \"synthetic\"\n"},
		{name: "yaml", file: "client.yaml", content: "cid: 1\nmodel:\n  name: linear\ndata:\n  name: synthetic\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := flclient.LoadConfig(writeFile(t, tc.file, tc.content))
			require.NoError(t, err)
			assert.Equal(t, "1", cfg.ClientID)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := flclient.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, flclient.ErrConfigMissing)

	_, err = flclient.LoadConfig(t.TempDir())
	assert.ErrorIs(t, err, flclient.ErrConfigIsDir)

	_, err = flclient.LoadConfig(writeFile(t, "client.ini", "cid=1"))
	assert.ErrorIs(t, err, flclient.ErrUnsupportedFormat)

	_, err = flclient.LoadConfig(writeFile(t, "client.toml", "cid = "))
	assert.Error(t, err)
}

func TestOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := flclient.LoadConfig(writeFile(t, "client.toml", tomlConfig))
	require.NoError(t, err)

	cid, addr, dev := "override", "tcp://other:1883", 3
	cfg = cfg.Apply(flclient.Overrides{ClientID: &cid, ServerAddress: &addr, DeviceNum: &dev})
	assert.Equal(t, "override", cfg.ClientID)
	assert.Equal(t, "tcp://other:1883", cfg.ServerAddress)
	assert.Equal(t, 3, cfg.Fabric.DeviceIndex)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	err := flclient.Config{Fabric: backend.Config{Accelerator: "tpu"}}.Validate()
	assert.ErrorIs(t, err, flclient.ErrMissingComponent)
	assert.ErrorIs(t, err, backend.ErrInvalidConfig)

	err = flclient.Config{}.ValidateServer()
	assert.ErrorIs(t, err, flclient.ErrMissingServerAddr)
	assert.ErrorIs(t, err, flclient.ErrMissingConfigField)
}

func TestRegistriesBuild(t *testing.T) {
	t.Parallel()

	r, err := flclient.NewRegistries()
	require.NoError(t, err)
	assert.Equal(t, []string{"linear"}, r.Models.Names())
	assert.Equal(t, []string{"synthetic"}, r.DataSources.Names())

	cfg, err := flclient.LoadConfig(writeFile(t, "client.toml", tomlConfig))
	require.NoError(t, err)
	model, data, err := r.Build(cfg.Apply(flclient.Overrides{}))
	require.NoError(t, err)
	assert.Equal(t, ml.SampleCounts{Train: 30, Val: 9}, data.Counts())
	assert.Len(t, model.Slots(), 2)

	cfg.Model.Name = "unet"
	_, _, err = r.Build(cfg)
	assert.True(t, errors.Is(err, ml.ErrUnknownIdentifier))
	assert.Contains(t, err.Error(), "linear")
}
