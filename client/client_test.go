package client_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/absmach/flclient/client"
	"github.com/absmach/flclient/pkg/backend"
	"github.com/absmach/flclient/pkg/engine"
	"github.com/absmach/flclient/pkg/ml"
	"github.com/absmach/flclient/pkg/params"
	"github.com/absmach/flclient/pkg/round"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clientID = "client-7"

// quadModel has a float32 (4,) bias and a float64 (2,2) weight. Its loss
// is the sum of squared weights, so every SGD step shrinks it.
type quadModel struct {
	mu     sync.Mutex
	bias   []float64
	weight []float64
}

func newQuadModel() *quadModel {
	return &quadModel{
		bias:   []float64{0.5, -0.5, 0.25, -0.25},
		weight: []float64{1, 2, 3, 4},
	}
}

func (m *quadModel) Slots() []params.Array {
	m.mu.Lock()
	defer m.mu.Unlock()

	return []params.Array{
		{Name: "bias", DType: params.Float32, Shape: []int{4}, Values: m.bias},
		{Name: "weight", DType: params.Float64, Shape: []int{2, 2}, Values: m.weight},
	}
}

func (m *quadModel) Load(ps params.ParameterSet) error {
	if err := params.LayoutOf(m).Check(ps); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bias = append([]float64(nil), ps[0].Values...)
	m.weight = append([]float64(nil), ps[1].Values...)

	return nil
}

func (m *quadModel) NewOptimizer() ml.Optimizer {
	return &quadOptimizer{model: m}
}

func (m *quadModel) Forward(batch []ml.Example, withGrad bool) (ml.BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := ml.BatchResult{Count: len(batch), Correct: len(batch) / 2}
	grads := [][]float64{make([]float64, 4), make([]float64, 4)}
	for i, v := range m.bias {
		res.Loss += v * v
		grads[0][i] = 2 * v
	}
	for i, v := range m.weight {
		res.Loss += v * v
		grads[1][i] = 2 * v
	}
	if withGrad {
		res.Grads = grads
	}

	return res, nil
}

type quadOptimizer struct {
	model *quadModel
	steps int64
}

func (o *quadOptimizer) Name() string { return "quad-sgd" }

func (o *quadOptimizer) Steps() int64 { return o.steps }

func (o *quadOptimizer) Step(grads [][]float64) error {
	o.model.mu.Lock()
	defer o.model.mu.Unlock()
	for i, g := range grads[0] {
		o.model.bias[i] = float64(float32(o.model.bias[i] - 0.1*g))
	}
	for i, g := range grads[1] {
		o.model.weight[i] -= 0.1 * g
	}
	o.steps++

	return nil
}

type dataSource struct {
	train, val *ml.SliceFeed
}

func newDataSource() *dataSource {
	examples := func(n int) []ml.Example {
		out := make([]ml.Example, n)
		for i := range out {
			out[i] = ml.Example{Features: []float64{float64(i)}, Label: i % 2}
		}

		return out
	}

	return &dataSource{
		train: &ml.SliceFeed{Examples: examples(6), BatchSize: 2},
		val:   &ml.SliceFeed{Examples: examples(4), BatchSize: 4},
	}
}

func (d *dataSource) TrainFeed() ml.Feed { return d.train }

func (d *dataSource) ValFeed() ml.Feed { return d.val }

func (d *dataSource) Counts() ml.SampleCounts {
	return ml.SampleCounts{Train: d.train.Len(), Val: d.val.Len()}
}

type failingEngine struct {
	err error
}

func (e failingEngine) Train(context.Context, *backend.Module, *backend.Feed, *backend.Optimizer, int) (engine.Result, error) {
	return engine.Result{}, e.err
}

func (e failingEngine) Evaluate(context.Context, *backend.Module, *backend.Feed) (engine.Result, error) {
	return engine.Result{}, e.err
}

func newClient(t *testing.T, e engine.Engine) (client.Service, *quadModel) {
	t.Helper()

	b, err := backend.New(backend.DefaultConfig())
	require.NoError(t, err)
	if e == nil {
		e = engine.New()
	}
	model := newQuadModel()
	svc, err := client.New(clientID, model, newDataSource(), b, e, nil)
	require.NoError(t, err)

	return svc, model
}

func globalParameters() params.ParameterSet {
	return params.ParameterSet{
		{DType: params.Float32, Shape: []int{4}, Values: []float64{1, 1, 1, 1}},
		{DType: params.Float64, Shape: []int{2, 2}, Values: []float64{1, 1, 1, 1}},
	}
}

func fitConfig(epochs any) round.Config {
	return round.Config{round.KeyServerRound: 1, round.KeyLocalEpochs: epochs}
}

func TestNew(t *testing.T) {
	t.Parallel()

	b, err := backend.New(backend.DefaultConfig())
	require.NoError(t, err)

	_, err = client.New("", newQuadModel(), newDataSource(), b, engine.New(), nil)
	assert.ErrorIs(t, err, client.ErrMissingClientID)

	_, err = client.New(clientID, nil, newDataSource(), b, engine.New(), nil)
	assert.ErrorIs(t, err, client.ErrMissingDep)

	_, err = client.New(clientID, newQuadModel(), newDataSource(), nil, engine.New(), nil)
	assert.ErrorIs(t, err, client.ErrMissingDep)
}

func TestFit(t *testing.T) {
	t.Parallel()
	svc, _ := newClient(t, nil)

	res, err := svc.Fit(context.Background(), globalParameters(), fitConfig(2))
	require.NoError(t, err)

	require.Len(t, res.Parameters, 2)
	assert.Equal(t, []int{4}, res.Parameters[0].Shape)
	assert.Equal(t, params.Float32, res.Parameters[0].DType)
	assert.Equal(t, []int{2, 2}, res.Parameters[1].Shape)
	assert.Equal(t, params.Float64, res.Parameters[1].DType)
	assert.False(t, res.Parameters.Equal(globalParameters()))
	for _, v := range res.Parameters[1].Values {
		assert.Less(t, v, 1.0)
	}

	assert.Equal(t, 6, res.NumExamples)
	assert.Equal(t, clientID, res.Metrics.ClientID)
	assert.InDelta(t, 0.5, res.Metrics.Accuracy, 1e-9)
	assert.Equal(t, map[string]any{"accuracy": res.Metrics.Accuracy, "loss": res.Metrics.Loss, "cid": clientID}, res.Metrics.Map())

	current, err := svc.GetParameters(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, current.Equal(res.Parameters))
}

func TestFitReturnsCopy(t *testing.T) {
	t.Parallel()
	svc, _ := newClient(t, nil)

	res, err := svc.Fit(context.Background(), globalParameters(), fitConfig(1))
	require.NoError(t, err)
	res.Parameters[0].Values[0] = 42

	current, err := svc.GetParameters(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEqual(t, 42.0, current[0].Values[0])
}

func TestFitZeroEpochs(t *testing.T) {
	t.Parallel()
	svc, _ := newClient(t, nil)

	res, err := svc.Fit(context.Background(), globalParameters(), fitConfig(0))
	require.NoError(t, err)
	assert.True(t, res.Parameters.Equal(globalParameters()))
	assert.Equal(t, 6, res.NumExamples)
	assert.InDelta(t, 8.0, res.Metrics.Loss, 1e-9)
}

func TestFitConfigurationError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		config round.Config
	}{
		{name: "missing local_epochs", config: round.Config{round.KeyServerRound: 1}},
		{name: "missing server_round", config: round.Config{round.KeyLocalEpochs: 1}},
		{name: "fractional epochs", config: fitConfig(1.5)},
		{name: "negative epochs", config: fitConfig(-1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc, _ := newClient(t, nil)
			before, err := svc.GetParameters(context.Background(), nil)
			require.NoError(t, err)

			_, err = svc.Fit(context.Background(), globalParameters(), tc.config)
			assert.ErrorIs(t, err, round.ErrConfiguration)

			after, err := svc.GetParameters(context.Background(), nil)
			require.NoError(t, err)
			assert.True(t, before.Equal(after))
		})
	}
}

func TestParameterMismatchLeavesModel(t *testing.T) {
	t.Parallel()

	wrong := globalParameters()
	wrong[1].Shape = []int{4}

	cases := []struct {
		name string
		ps   params.ParameterSet
	}{
		{name: "wrong shape", ps: wrong},
		{name: "missing slot", ps: globalParameters()[:1]},
		{name: "extra slot", ps: append(globalParameters(), params.Array{DType: params.Float32, Shape: []int{1}, Values: []float64{0}})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc, _ := newClient(t, nil)
			before, err := svc.GetParameters(context.Background(), nil)
			require.NoError(t, err)

			res, err := svc.Evaluate(context.Background(), tc.ps, round.Config{round.KeyServerRound: 3})
			assert.ErrorIs(t, err, params.ErrParameterMismatch)
			assert.Equal(t, client.EvaluateResult{}, res)

			_, err = svc.Fit(context.Background(), tc.ps, fitConfig(1))
			assert.ErrorIs(t, err, params.ErrParameterMismatch)

			after, err := svc.GetParameters(context.Background(), nil)
			require.NoError(t, err)
			assert.True(t, before.Equal(after))
		})
	}
}

func TestEvaluateIsRepeatable(t *testing.T) {
	t.Parallel()
	svc, _ := newClient(t, nil)
	cfg := round.Config{round.KeyServerRound: 2, "batch": "ignored"}

	first, err := svc.Evaluate(context.Background(), globalParameters(), cfg)
	require.NoError(t, err)
	second, err := svc.Evaluate(context.Background(), globalParameters(), cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 4, first.NumExamples)
	assert.InDelta(t, 8.0, first.Loss, 1e-9)
	assert.Equal(t, first.Loss, first.Metrics.Loss)

	current, err := svc.GetParameters(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, current.Equal(globalParameters()))
}

func TestEvaluateDoesNotStepOptimizer(t *testing.T) {
	t.Parallel()
	svc, _ := newClient(t, nil)

	_, err := svc.Evaluate(context.Background(), globalParameters(), round.Config{round.KeyServerRound: 1})
	require.NoError(t, err)
	_, err = svc.Fit(context.Background(), globalParameters(), fitConfig(1))
	require.NoError(t, err)
	first, err := svc.Evaluate(context.Background(), globalParameters(), round.Config{round.KeyServerRound: 1})
	require.NoError(t, err)

	props, err := svc.GetProperties(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "quad-sgd", props.Optimizer)

	second, err := svc.Evaluate(context.Background(), globalParameters(), round.Config{round.KeyServerRound: 1})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEngineErrorIsReturned(t *testing.T) {
	t.Parallel()
	errDiverged := errors.New("loss diverged")
	svc, _ := newClient(t, failingEngine{err: errDiverged})

	_, err := svc.Fit(context.Background(), globalParameters(), fitConfig(1))
	assert.ErrorIs(t, err, errDiverged)

	res, err := svc.Evaluate(context.Background(), globalParameters(), round.Config{round.KeyServerRound: 1})
	assert.ErrorIs(t, err, errDiverged)
	assert.Equal(t, client.EvaluateResult{}, res)
}

func TestRecoversAfterFailedRound(t *testing.T) {
	t.Parallel()
	svc, _ := newClient(t, nil)

	_, err := svc.Fit(context.Background(), globalParameters()[:1], fitConfig(1))
	require.ErrorIs(t, err, params.ErrParameterMismatch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Fit(ctx, globalParameters(), fitConfig(1))
	require.ErrorIs(t, err, context.Canceled)

	_, err = svc.Fit(context.Background(), globalParameters(), fitConfig(1))
	assert.NoError(t, err)
}

func TestSampleCountsAreConstant(t *testing.T) {
	t.Parallel()
	svc, _ := newClient(t, nil)

	for r := 1; r <= 3; r++ {
		fit, err := svc.Fit(context.Background(), globalParameters(), round.Config{round.KeyServerRound: r, round.KeyLocalEpochs: r})
		require.NoError(t, err)
		assert.Equal(t, 6, fit.NumExamples)

		eval, err := svc.Evaluate(context.Background(), fit.Parameters, round.Config{round.KeyServerRound: r})
		require.NoError(t, err)
		assert.Equal(t, 4, eval.NumExamples)
	}

	props, err := svc.GetProperties(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ml.SampleCounts{Train: 6, Val: 4}, props.Counts)
	assert.Equal(t, clientID, props.ClientID)
	assert.Equal(t, 8, props.Layout.NumParameters())
	assert.Equal(t, 8, props.Map()["num_parameters"])
}

func TestConcurrentRoundsAreSerialized(t *testing.T) {
	t.Parallel()
	svc, _ := newClient(t, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, err := svc.Fit(context.Background(), globalParameters(), fitConfig(1))
				errs <- err

				return
			}
			_, err := svc.Evaluate(context.Background(), globalParameters(), round.Config{round.KeyServerRound: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
