package backend

import (
	"context"

	"github.com/absmach/flclient/pkg/ml"
	"golang.org/x/sync/errgroup"
)

// Module is a model bound to a session.
type Module struct {
	session *Session
	model   ml.Differentiable
}

// Forward runs one batch. Under the data_parallel strategy the batch is
// split into one contiguous shard per device and the shard results are
// merged in device order before returning.
func (m *Module) Forward(ctx context.Context, batch []ml.Example, withGrad bool) (ml.BatchResult, error) {
	if err := m.session.check(); err != nil {
		return ml.BatchResult{}, err
	}

	n := len(m.session.ctx.Devices)
	if m.session.ctx.Strategy != StrategyDataParallel || n < 2 || len(batch) < 2 {
		return m.model.Forward(batch, withGrad)
	}

	shards := shard(batch, n)
	results := make([]ml.BatchResult, len(shards))

	if m.session.ctx.Deterministic {
		for i, part := range shards {
			res, err := m.model.Forward(part, withGrad)
			if err != nil {
				return ml.BatchResult{}, err
			}
			results[i] = res
		}

		return ml.Merge(results...), nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range shards {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := m.model.Forward(part, withGrad)
			if err != nil {
				return err
			}
			results[i] = res

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ml.BatchResult{}, err
	}

	return ml.Merge(results...), nil
}

func shard(batch []ml.Example, n int) [][]ml.Example {
	n = min(n, len(batch))
	size := (len(batch) + n - 1) / n

	out := make([][]ml.Example, 0, n)
	for start := 0; start < len(batch); start += size {
		end := min(start+size, len(batch))
		out = append(out, batch[start:end:end])
	}

	return out
}

// Optimizer is an optimizer bound to a session.
type Optimizer struct {
	session *Session
	opt     ml.Optimizer
}

func (o *Optimizer) Name() string {
	return o.opt.Name()
}

func (o *Optimizer) Steps() int64 {
	return o.opt.Steps()
}

func (o *Optimizer) Step(grads [][]float64) error {
	if err := o.session.check(); err != nil {
		return err
	}

	return o.opt.Step(grads)
}

// Feed is a data feed bound to a session.
type Feed struct {
	session *Session
	feed    ml.Feed
}

func (f *Feed) Len() int {
	return f.feed.Len()
}

func (f *Feed) Batches() ([][]ml.Example, error) {
	if err := f.session.check(); err != nil {
		return nil, err
	}

	return f.feed.Batches(), nil
}
