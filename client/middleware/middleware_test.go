package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/absmach/flclient/client"
	"github.com/absmach/flclient/client/middleware"
	"github.com/absmach/flclient/pkg/params"
	"github.com/absmach/flclient/pkg/round"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

var errRound = errors.New("round failed")

type stubService struct {
	fail bool
}

func (s stubService) Fit(context.Context, params.ParameterSet, round.Config) (client.FitResult, error) {
	if s.fail {
		return client.FitResult{}, errRound
	}

	return client.FitResult{NumExamples: 10, Metrics: client.Metrics{Loss: 0.5, Accuracy: 0.75, ClientID: "c1"}}, nil
}

func (s stubService) Evaluate(context.Context, params.ParameterSet, round.Config) (client.EvaluateResult, error) {
	if s.fail {
		return client.EvaluateResult{}, errRound
	}

	return client.EvaluateResult{Loss: 0.25, NumExamples: 4}, nil
}

func (s stubService) GetParameters(context.Context, round.Config) (params.ParameterSet, error) {
	return params.ParameterSet{}, nil
}

func (s stubService) GetProperties(context.Context, round.Config) (client.Properties, error) {
	return client.Properties{ClientID: "c1"}, nil
}

type methodCounter struct {
	method string
	counts map[string]float64
}

func newMethodCounter() *methodCounter {
	return &methodCounter{counts: make(map[string]float64)}
}

func (c *methodCounter) With(labelValues ...string) metrics.Counter {
	return &methodCounter{method: labelValues[len(labelValues)-1], counts: c.counts}
}

func (c *methodCounter) Add(delta float64) {
	c.counts[c.method] += delta
}

func wrap(svc client.Service, logger *slog.Logger) (client.Service, *methodCounter) {
	counter := newMethodCounter()
	latency := discard.NewHistogram()

	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(noop.NewTracerProvider().Tracer("test"), svc)
	svc = middleware.Metrics(counter, latency, svc)

	return svc, counter
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		lines = append(lines, entry)
	}

	return lines
}

func TestMiddlewarePassesResults(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	svc, counter := wrap(stubService{}, slog.New(slog.NewJSONHandler(&buf, nil)))
	cfg := round.Config{round.KeyServerRound: 3, round.KeyLocalEpochs: 1}

	fit, err := svc.Fit(context.Background(), nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, 10, fit.NumExamples)

	eval, err := svc.Evaluate(context.Background(), nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, 0.25, eval.Loss)

	_, err = svc.GetParameters(context.Background(), nil)
	require.NoError(t, err)
	props, err := svc.GetProperties(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "c1", props.ClientID)

	assert.Equal(t, map[string]float64{"fit": 1, "evaluate": 1, "get-parameters": 1, "get-properties": 1}, counter.counts)

	lines := logLines(t, &buf)
	require.Len(t, lines, 4)
	assert.Equal(t, "Fit round completed successfully", lines[0]["msg"])
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, 3.0, lines[0]["server_round"])
	assert.Equal(t, map[string]any{"cid": "c1", "loss": 0.5, "accuracy": 0.75}, lines[0]["metrics"])
}

func TestMiddlewarePassesErrors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	svc, counter := wrap(stubService{fail: true}, slog.New(slog.NewJSONHandler(&buf, nil)))

	_, err := svc.Fit(context.Background(), nil, round.Config{round.KeyServerRound: 1})
	assert.ErrorIs(t, err, errRound)
	_, err = svc.Evaluate(context.Background(), nil, round.Config{round.KeyServerRound: 1})
	assert.ErrorIs(t, err, errRound)

	assert.Equal(t, map[string]float64{"fit": 1, "evaluate": 1}, counter.counts)

	lines := logLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "Evaluate round failed", lines[1]["msg"])
	assert.Equal(t, errRound.Error(), lines[1]["error"])
}
