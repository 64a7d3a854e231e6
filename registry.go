package flclient

import (
	"errors"

	"github.com/absmach/flclient/pkg/ml"
	"github.com/absmach/flclient/pkg/ml/linear"
	"github.com/absmach/flclient/pkg/ml/synthetic"
)

type Registries struct {
	Models      *ml.Registry[ml.Model]
	DataSources *ml.Registry[ml.DataSource]
}

// NewRegistries returns registries holding the built-in models and data
// sources.
func NewRegistries() (Registries, error) {
	r := Registries{
		Models:      ml.NewRegistry[ml.Model]("model"),
		DataSources: ml.NewRegistry[ml.DataSource]("data source"),
	}

	err := errors.Join(
		r.Models.Register(linear.Name, linear.New),
		r.DataSources.Register(synthetic.Name, synthetic.New),
	)

	return r, err
}

// Build constructs the data source and model named by cfg.
func (r Registries) Build(cfg Config) (ml.Model, ml.DataSource, error) {
	data, err := r.DataSources.Build(cfg.Data.Name, cfg.Data.Config)
	if err != nil {
		return nil, nil, err
	}

	model, err := r.Models.Build(cfg.Model.Name, cfg.Model.Config)
	if err != nil {
		return nil, nil, err
	}

	return model, data, nil
}
