// Package ml defines the contracts the federated client expects from a
// model, its optimizer and its data source, plus the named registries used
// to build them from configuration.
package ml

import "github.com/absmach/flclient/pkg/params"

// Model owns the trainable weight state.
type Model interface {
	params.Weights
	// NewOptimizer returns an optimizer bound to this model's parameters.
	NewOptimizer() Optimizer
}

// Optimizer applies gradients to the parameters of the model it was
// created for. Its internal state (step count, momentum) lives as long as
// the optimizer does.
type Optimizer interface {
	Name() string
	Step(grads [][]float64) error
	Steps() int64
}

// BatchResult is the outcome of one forward pass. Loss is the mean over
// Count examples; Grads follow the model's slot order and are nil when no
// gradient was requested.
type BatchResult struct {
	Loss    float64
	Correct int
	Count   int
	Grads   [][]float64
}

// Differentiable is implemented by models the reference engine can train.
type Differentiable interface {
	Model
	Forward(batch []Example, withGrad bool) (BatchResult, error)
}

// Merge combines results of disjoint batches into a single result, as if the
// union had gone through one forward pass.
func Merge(results ...BatchResult) BatchResult {
	var out BatchResult
	for _, r := range results {
		out.Count += r.Count
	}
	if out.Count == 0 {
		return out
	}

	for _, r := range results {
		if r.Count == 0 {
			continue
		}
		w := float64(r.Count) / float64(out.Count)
		out.Loss += r.Loss * w
		out.Correct += r.Correct
		if r.Grads == nil {
			continue
		}
		if out.Grads == nil {
			out.Grads = make([][]float64, len(r.Grads))
			for i, g := range r.Grads {
				out.Grads[i] = make([]float64, len(g))
			}
		}
		for i, g := range r.Grads {
			for j, v := range g {
				out.Grads[i][j] += v * w
			}
		}
	}

	return out
}
