package middleware

import (
	"context"
	"time"

	"github.com/absmach/flclient/client"
	"github.com/absmach/flclient/pkg/params"
	"github.com/absmach/flclient/pkg/round"
	"github.com/go-kit/kit/metrics"
)

var _ client.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     client.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc client.Service) client.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Fit(ctx context.Context, ps params.ParameterSet, config round.Config) (client.FitResult, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "fit").Add(1)
		mm.latency.With("method", "fit").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Fit(ctx, ps, config)
}

func (mm *metricsMiddleware) Evaluate(ctx context.Context, ps params.ParameterSet, config round.Config) (client.EvaluateResult, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "evaluate").Add(1)
		mm.latency.With("method", "evaluate").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Evaluate(ctx, ps, config)
}

func (mm *metricsMiddleware) GetParameters(ctx context.Context, config round.Config) (params.ParameterSet, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-parameters").Add(1)
		mm.latency.With("method", "get-parameters").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetParameters(ctx, config)
}

func (mm *metricsMiddleware) GetProperties(ctx context.Context, config round.Config) (client.Properties, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-properties").Add(1)
		mm.latency.With("method", "get-properties").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetProperties(ctx, config)
}
