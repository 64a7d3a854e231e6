// Package engine runs local training and evaluation loops over
// backend-wrapped handles.
package engine

import (
	"context"
	"errors"

	"github.com/absmach/flclient/pkg/backend"
	"github.com/absmach/flclient/pkg/ml"
)

var (
	ErrEmptyFeed      = errors.New("feed has no examples")
	ErrInvalidEpochs  = errors.New("epochs must not be negative")
	ErrEmptyGradients = errors.New("forward pass returned no gradients")
)

// Result is the outcome of a loop. Loss is the mean loss per example and
// Accuracy the fraction of correctly classified examples.
type Result struct {
	Loss     float64
	Accuracy float64
	Examples int
	Steps    int
}

type Engine interface {
	// Train runs epochs passes over feed, stepping opt once per batch, and
	// reports the loss and accuracy of the final epoch. With zero epochs the
	// weights are left unchanged and an evaluation pass over feed is reported.
	Train(ctx context.Context, m *backend.Module, feed *backend.Feed, opt *backend.Optimizer, epochs int) (Result, error)
	Evaluate(ctx context.Context, m *backend.Module, feed *backend.Feed) (Result, error)
}

type loop struct{}

var _ Engine = (*loop)(nil)

// New returns the reference mini-batch loop engine.
func New() Engine {
	return &loop{}
}

func (l *loop) Train(ctx context.Context, m *backend.Module, feed *backend.Feed, opt *backend.Optimizer, epochs int) (Result, error) {
	if epochs < 0 {
		return Result{}, ErrInvalidEpochs
	}
	if epochs == 0 {
		return l.Evaluate(ctx, m, feed)
	}

	batches, err := batchesOf(feed)
	if err != nil {
		return Result{}, err
	}

	var (
		last  []ml.BatchResult
		steps int
	)
	for range epochs {
		last = last[:0]
		for _, batch := range batches {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}

			res, err := m.Forward(ctx, batch, true)
			if err != nil {
				return Result{}, err
			}
			if res.Grads == nil {
				return Result{}, ErrEmptyGradients
			}
			if err := opt.Step(res.Grads); err != nil {
				return Result{}, err
			}
			steps++
			res.Grads = nil
			last = append(last, res)
		}
	}

	out := summarize(ml.Merge(last...))
	out.Steps = steps

	return out, nil
}

func (l *loop) Evaluate(ctx context.Context, m *backend.Module, feed *backend.Feed) (Result, error) {
	batches, err := batchesOf(feed)
	if err != nil {
		return Result{}, err
	}

	results := make([]ml.BatchResult, 0, len(batches))
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		res, err := m.Forward(ctx, batch, false)
		if err != nil {
			return Result{}, err
		}
		results = append(results, res)
	}

	return summarize(ml.Merge(results...)), nil
}

func batchesOf(feed *backend.Feed) ([][]ml.Example, error) {
	if feed.Len() == 0 {
		return nil, ErrEmptyFeed
	}

	return feed.Batches()
}

func summarize(r ml.BatchResult) Result {
	out := Result{Loss: r.Loss, Examples: r.Count}
	if r.Count > 0 {
		out.Accuracy = float64(r.Correct) / float64(r.Count)
	}

	return out
}
