package middleware

import (
	"context"
	"strconv"

	"github.com/absmach/flclient/client"
	"github.com/absmach/flclient/pkg/params"
	"github.com/absmach/flclient/pkg/round"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ client.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    client.Service
}

func Tracing(tracer trace.Tracer, svc client.Service) client.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Fit(ctx context.Context, ps params.ParameterSet, config round.Config) (resp client.FitResult, err error) {
	ctx, span := tm.tracer.Start(ctx, "fit", trace.WithAttributes(
		attribute.Int("slots", len(ps)),
		attribute.String("server_round", roundAttr(config)),
	))
	defer func() { end(span, err) }()

	return tm.svc.Fit(ctx, ps, config)
}

func (tm *tracing) Evaluate(ctx context.Context, ps params.ParameterSet, config round.Config) (resp client.EvaluateResult, err error) {
	ctx, span := tm.tracer.Start(ctx, "evaluate", trace.WithAttributes(
		attribute.Int("slots", len(ps)),
		attribute.String("server_round", roundAttr(config)),
	))
	defer func() { end(span, err) }()

	return tm.svc.Evaluate(ctx, ps, config)
}

func (tm *tracing) GetParameters(ctx context.Context, config round.Config) (resp params.ParameterSet, err error) {
	ctx, span := tm.tracer.Start(ctx, "get-parameters")
	defer func() { end(span, err) }()

	return tm.svc.GetParameters(ctx, config)
}

func (tm *tracing) GetProperties(ctx context.Context, config round.Config) (resp client.Properties, err error) {
	ctx, span := tm.tracer.Start(ctx, "get-properties")
	defer func() { end(span, err) }()

	return tm.svc.GetProperties(ctx, config)
}

func roundAttr(config round.Config) string {
	n, err := config.Int(round.KeyServerRound)
	if err != nil {
		return ""
	}

	return strconv.FormatInt(n, 10)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
