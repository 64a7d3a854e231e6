// Package linear provides a multinomial logistic regression model and its
// SGD optimizer.
package linear

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/absmach/flclient/pkg/ml"
	"github.com/absmach/flclient/pkg/params"
)

const Name = "linear"

var errShape = errors.New("malformed batch")

type Options struct {
	Features     int          `json:"features"`
	Classes      int          `json:"classes"`
	DType        params.DType `json:"dtype"`
	Seed         uint64       `json:"seed"`
	LearningRate float64      `json:"learning_rate"`
	Momentum     float64      `json:"momentum"`
}

func DefaultOptions() Options {
	return Options{
		Features:     4,
		Classes:      2,
		DType:        params.Float32,
		Seed:         1,
		LearningRate: 0.1,
	}
}

func (o Options) Validate() error {
	switch {
	case o.Features <= 0:
		return errors.New("features must be positive")
	case o.Classes < 2:
		return errors.New("classes must be at least 2")
	case !o.DType.Valid():
		return fmt.Errorf("unsupported dtype %q", o.DType)
	case o.LearningRate <= 0:
		return errors.New("learning_rate must be positive")
	case o.Momentum < 0 || o.Momentum >= 1:
		return errors.New("momentum must be in [0, 1)")
	}

	return nil
}

// Model computes softmax(W x + b). Slots are declared as "weight"
// (classes x features) followed by "bias" (classes).
type Model struct {
	opts Options

	mu     sync.RWMutex
	weight []float64
	bias   []float64
}

var _ ml.Differentiable = (*Model)(nil)

// New is the registry factory.
func New(options map[string]any) (ml.Model, error) {
	opts := DefaultOptions()
	if err := ml.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}

	return NewModel(opts)
}

func NewModel(opts Options) (*Model, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	scale := 1 / math.Sqrt(float64(opts.Features))

	m := &Model{
		opts:   opts,
		weight: make([]float64, opts.Classes*opts.Features),
		bias:   make([]float64, opts.Classes),
	}
	for i := range m.weight {
		m.weight[i] = opts.DType.Round((rng.Float64()*2 - 1) * scale)
	}

	return m, nil
}

func (m *Model) Options() Options {
	return m.opts
}

func (m *Model) Slots() []params.Array {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return []params.Array{
		{Name: "weight", DType: m.opts.DType, Shape: []int{m.opts.Classes, m.opts.Features}, Values: m.weight},
		{Name: "bias", DType: m.opts.DType, Shape: []int{m.opts.Classes}, Values: m.bias},
	}
}

func (m *Model) Load(ps params.ParameterSet) error {
	if err := params.LayoutOf(m).Check(ps); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.weight = append([]float64(nil), ps[0].Values...)
	m.bias = append([]float64(nil), ps[1].Values...)

	return nil
}

func (m *Model) NewOptimizer() ml.Optimizer {
	return &SGD{
		model:        m,
		learningRate: m.opts.LearningRate,
		momentum:     m.opts.Momentum,
	}
}

func (m *Model) Forward(batch []ml.Example, withGrad bool) (ml.BatchResult, error) {
	if len(batch) == 0 {
		return ml.BatchResult{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	nf, nc := m.opts.Features, m.opts.Classes
	res := ml.BatchResult{Count: len(batch)}
	if withGrad {
		res.Grads = [][]float64{make([]float64, nc*nf), make([]float64, nc)}
	}

	probs := make([]float64, nc)
	for _, ex := range batch {
		if len(ex.Features) != nf || ex.Label < 0 || ex.Label >= nc {
			return ml.BatchResult{}, fmt.Errorf("%w: want %d features and label in [0, %d)", errShape, nf, nc)
		}

		maxLogit := math.Inf(-1)
		for c := range nc {
			z := m.bias[c]
			row := m.weight[c*nf : (c+1)*nf]
			for j, x := range ex.Features {
				z += row[j] * x
			}
			probs[c] = z
			maxLogit = max(maxLogit, z)
		}

		var sum float64
		for c := range nc {
			probs[c] = math.Exp(probs[c] - maxLogit)
			sum += probs[c]
		}

		best := 0
		for c := range nc {
			probs[c] /= sum
			if probs[c] > probs[best] {
				best = c
			}
		}
		if best == ex.Label {
			res.Correct++
		}
		res.Loss -= math.Log(max(probs[ex.Label], 1e-12))

		if !withGrad {
			continue
		}
		for c := range nc {
			d := probs[c]
			if c == ex.Label {
				d--
			}
			res.Grads[1][c] += d
			row := res.Grads[0][c*nf : (c+1)*nf]
			for j, x := range ex.Features {
				row[j] += d * x
			}
		}
	}

	n := float64(len(batch))
	res.Loss /= n
	for _, g := range res.Grads {
		for i := range g {
			g[i] /= n
		}
	}

	return res, nil
}

func (m *Model) apply(update func(slot int, values []float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	update(0, m.weight)
	update(1, m.bias)
	for i := range m.weight {
		m.weight[i] = m.opts.DType.Round(m.weight[i])
	}
	for i := range m.bias {
		m.bias[i] = m.opts.DType.Round(m.bias[i])
	}
}
