package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/flclient/client"
	"github.com/absmach/flclient/pkg/params"
	"github.com/absmach/flclient/pkg/round"
)

var _ client.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    client.Service
}

func Logging(logger *slog.Logger, svc client.Service) client.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Fit(ctx context.Context, ps params.ParameterSet, config round.Config) (res client.FitResult, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Any("server_round", config[round.KeyServerRound]),
			slog.Any("local_epochs", config[round.KeyLocalEpochs]),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Fit round failed", args...)

			return
		}
		args = append(args,
			slog.Int("num_examples", res.NumExamples),
			slog.Group("metrics",
				slog.String("cid", res.Metrics.ClientID),
				slog.Float64("loss", res.Metrics.Loss),
				slog.Float64("accuracy", res.Metrics.Accuracy),
			),
		)
		lm.logger.Info("Fit round completed successfully", args...)
	}(time.Now())

	return lm.svc.Fit(ctx, ps, config)
}

func (lm *loggingMiddleware) Evaluate(ctx context.Context, ps params.ParameterSet, config round.Config) (res client.EvaluateResult, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Any("server_round", config[round.KeyServerRound]),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Evaluate round failed", args...)

			return
		}
		args = append(args,
			slog.Int("num_examples", res.NumExamples),
			slog.Group("metrics",
				slog.String("cid", res.Metrics.ClientID),
				slog.Float64("loss", res.Metrics.Loss),
				slog.Float64("accuracy", res.Metrics.Accuracy),
			),
		)
		lm.logger.Info("Evaluate round completed successfully", args...)
	}(time.Now())

	return lm.svc.Evaluate(ctx, ps, config)
}

func (lm *loggingMiddleware) GetParameters(ctx context.Context, config round.Config) (ps params.ParameterSet, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Any("config", config),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get parameters failed", args...)

			return
		}
		args = append(args, slog.Int("slots", len(ps)))
		lm.logger.Info("Get parameters completed successfully", args...)
	}(time.Now())

	return lm.svc.GetParameters(ctx, config)
}

func (lm *loggingMiddleware) GetProperties(ctx context.Context, config round.Config) (props client.Properties, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get properties failed", args...)

			return
		}
		lm.logger.Info("Get properties completed successfully", args...)
	}(time.Now())

	return lm.svc.GetProperties(ctx, config)
}
