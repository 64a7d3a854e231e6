package client

import (
	"context"
	"errors"

	"github.com/absmach/flclient/pkg/ml"
	"github.com/absmach/flclient/pkg/params"
	"github.com/absmach/flclient/pkg/round"
)

var (
	ErrMissingClientID = errors.New("client ID is required")
	ErrMissingDep      = errors.New("client dependency is missing")
	ErrInvalidState    = errors.New("invalid round state transition")
)

// Service is one federated-learning participant. Rounds are serialized:
// a call blocks until any round already in progress has completed.
type Service interface {
	// Fit loads the global parameters, trains locally for the configured
	// number of epochs and returns the updated parameters.
	Fit(ctx context.Context, ps params.ParameterSet, config round.Config) (FitResult, error)
	// Evaluate loads the global parameters and scores them on the local
	// validation feed. Local weights are replaced by ps.
	Evaluate(ctx context.Context, ps params.ParameterSet, config round.Config) (EvaluateResult, error)
	// GetParameters returns a snapshot of the current local weights.
	GetParameters(ctx context.Context, config round.Config) (params.ParameterSet, error)
	GetProperties(ctx context.Context, config round.Config) (Properties, error)
}

type Metrics struct {
	Accuracy float64 `json:"accuracy"`
	Loss     float64 `json:"loss"`
	ClientID string  `json:"cid"`
}

func (m Metrics) Map() map[string]any {
	return map[string]any{
		"accuracy": m.Accuracy,
		"loss":     m.Loss,
		"cid":      m.ClientID,
	}
}

type FitResult struct {
	Parameters  params.ParameterSet `json:"parameters"`
	NumExamples int                 `json:"num_examples"`
	Metrics     Metrics             `json:"metrics"`
}

type EvaluateResult struct {
	Loss        float64 `json:"loss"`
	NumExamples int     `json:"num_examples"`
	Metrics     Metrics `json:"metrics"`
}

type Properties struct {
	ClientID  string          `json:"cid"`
	Counts    ml.SampleCounts `json:"num_examples"`
	Layout    params.Layout   `json:"layout"`
	Optimizer string          `json:"optimizer"`
	Strategy  string          `json:"strategy"`
	Devices   int             `json:"devices"`
}

func (p Properties) Map() map[string]any {
	return map[string]any{
		"cid":            p.ClientID,
		"trainset":       p.Counts.Train,
		"valset":         p.Counts.Val,
		"num_parameters": p.Layout.NumParameters(),
		"num_slots":      len(p.Layout),
		"optimizer":      p.Optimizer,
		"strategy":       p.Strategy,
		"devices":        p.Devices,
	}
}
