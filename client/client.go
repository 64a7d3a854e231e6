package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/absmach/flclient/pkg/backend"
	"github.com/absmach/flclient/pkg/engine"
	"github.com/absmach/flclient/pkg/ml"
	"github.com/absmach/flclient/pkg/params"
	"github.com/absmach/flclient/pkg/round"
	"github.com/looplab/fsm"
)

var _ Service = (*client)(nil)

type client struct {
	id        string
	model     ml.Model
	optimizer ml.Optimizer
	data      ml.DataSource
	counts    ml.SampleCounts
	layout    params.Layout
	backend   *backend.Backend
	engine    engine.Engine
	logger    *slog.Logger

	mu    sync.Mutex
	state *fsm.FSM
}

// New builds a client owning model and its optimizer. Sample counts and
// the parameter layout are captured once here and stay fixed for the
// lifetime of the client.
func New(id string, model ml.Model, data ml.DataSource, b *backend.Backend, e engine.Engine, logger *slog.Logger) (Service, error) {
	switch {
	case id == "":
		return nil, ErrMissingClientID
	case model == nil, data == nil, b == nil, e == nil:
		return nil, ErrMissingDep
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &client{
		id:        id,
		model:     model,
		optimizer: model.NewOptimizer(),
		data:      data,
		counts:    data.Counts(),
		layout:    params.LayoutOf(model),
		backend:   b,
		engine:    e,
		logger:    logger,
		state:     newRoundFSM(logger),
	}, nil
}

func (c *client) Fit(ctx context.Context, ps params.ParameterSet, config round.Config) (FitResult, error) {
	cfg, err := round.ParseFit(config)
	if err != nil {
		return FitResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.round(ctx, ps, c.data.TrainFeed(), true, func(ctx context.Context, m *backend.Module, f *backend.Feed, o *backend.Optimizer) (engine.Result, error) {
		return c.engine.Train(ctx, m, f, o, cfg.LocalEpochs)
	})
	if err != nil {
		return FitResult{}, err
	}

	out := FitResult{
		Parameters:  params.Encode(c.model),
		NumExamples: c.counts.Train,
		Metrics:     c.metrics(res),
	}
	if err := c.fire(ctx, eventReport); err != nil {
		c.abort(ctx)

		return FitResult{}, err
	}

	return out, nil
}

func (c *client) Evaluate(ctx context.Context, ps params.ParameterSet, config round.Config) (EvaluateResult, error) {
	if _, err := round.ParseEvaluate(config); err != nil {
		return EvaluateResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.round(ctx, ps, c.data.ValFeed(), false, func(ctx context.Context, m *backend.Module, f *backend.Feed, _ *backend.Optimizer) (engine.Result, error) {
		return c.engine.Evaluate(ctx, m, f)
	})
	if err != nil {
		return EvaluateResult{}, err
	}

	out := EvaluateResult{
		Loss:        res.Loss,
		NumExamples: c.counts.Val,
		Metrics:     c.metrics(res),
	}
	if err := c.fire(ctx, eventReport); err != nil {
		c.abort(ctx)

		return EvaluateResult{}, err
	}

	return out, nil
}

func (c *client) GetParameters(_ context.Context, _ round.Config) (params.ParameterSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return params.Encode(c.model), nil
}

func (c *client) GetProperties(_ context.Context, _ round.Config) (Properties, error) {
	cfg := c.backend.Config()

	return Properties{
		ClientID:  c.id,
		Counts:    c.counts,
		Layout:    c.layout,
		Optimizer: c.optimizer.Name(),
		Strategy:  cfg.Strategy,
		Devices:   cfg.Devices,
	}, nil
}

type computeFunc func(ctx context.Context, m *backend.Module, f *backend.Feed, o *backend.Optimizer) (engine.Result, error)

// round drives a fit or evaluate from idle to result_ready. On any error
// the state is reset to idle; on success the caller reports and fires
// eventReport.
func (c *client) round(ctx context.Context, ps params.ParameterSet, feed ml.Feed, train bool, compute computeFunc) (engine.Result, error) {
	if err := c.fire(ctx, eventLoad); err != nil {
		return engine.Result{}, err
	}

	if err := params.Decode(c.model, ps); err != nil {
		c.abort(ctx)

		return engine.Result{}, err
	}

	res, err := c.compute(ctx, feed, train, compute)
	if err != nil {
		c.abort(ctx)

		return engine.Result{}, err
	}

	return res, nil
}

func (c *client) compute(ctx context.Context, feed ml.Feed, train bool, compute computeFunc) (engine.Result, error) {
	sess, err := c.backend.Launch(ctx)
	if err != nil {
		return engine.Result{}, fmt.Errorf("failed to launch backend: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			c.logger.Warn("failed to close backend session", slog.Any("error", err))
		}
	}()

	mod, err := sess.SetupModule(c.model)
	if err != nil {
		return engine.Result{}, fmt.Errorf("failed to set up model: %w", err)
	}
	wrappedFeed, err := sess.SetupFeed(feed)
	if err != nil {
		return engine.Result{}, fmt.Errorf("failed to set up feed: %w", err)
	}
	var opt *backend.Optimizer
	if train {
		if opt, err = sess.SetupOptimizer(c.optimizer); err != nil {
			return engine.Result{}, fmt.Errorf("failed to set up optimizer: %w", err)
		}
	}

	if err := c.fire(ctx, eventCompute); err != nil {
		return engine.Result{}, err
	}

	res, err := compute(ctx, mod, wrappedFeed, opt)
	if err != nil {
		return engine.Result{}, err
	}

	if err := c.fire(ctx, eventFinish); err != nil {
		return engine.Result{}, err
	}

	return res, nil
}

func (c *client) metrics(res engine.Result) Metrics {
	return Metrics{
		Accuracy: res.Accuracy,
		Loss:     res.Loss,
		ClientID: c.id,
	}
}
