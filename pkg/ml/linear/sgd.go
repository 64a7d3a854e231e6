package linear

import (
	"fmt"

	"github.com/absmach/flclient/pkg/ml"
)

// SGD is stochastic gradient descent with optional heavy-ball momentum.
// The velocity survives weight reloads, so momentum carries over between
// rounds.
type SGD struct {
	model        *Model
	learningRate float64
	momentum     float64
	velocity     [][]float64
	steps        int64
}

var _ ml.Optimizer = (*SGD)(nil)

func (o *SGD) Name() string {
	return "sgd"
}

func (o *SGD) Steps() int64 {
	return o.steps
}

func (o *SGD) Step(grads [][]float64) error {
	nc, nf := o.model.opts.Classes, o.model.opts.Features
	if len(grads) != 2 || len(grads[0]) != nc*nf || len(grads[1]) != nc {
		return fmt.Errorf("sgd: gradients do not match model layout")
	}

	if o.velocity == nil {
		o.velocity = [][]float64{make([]float64, nc*nf), make([]float64, nc)}
	}

	o.model.apply(func(slot int, values []float64) {
		v := o.velocity[slot]
		for i, g := range grads[slot] {
			v[i] = o.momentum*v[i] + g
			values[i] -= o.learningRate * v[i]
		}
	})
	o.steps++

	return nil
}
