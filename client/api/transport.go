package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/absmach/flclient/client"
	"github.com/absmach/flclient/pkg/params"
	"github.com/absmach/flclient/pkg/round"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	ContentType     = "application/json"
	CBORContentType = "application/cbor"
	svcName         = "flclient"
)

func MakeHandler(svc client.Service, logger *slog.Logger, instanceID, clientID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(loggingErrorEncoder(logger)),
	}

	mux.Get("/parameters", otelhttp.NewHandler(kithttp.NewServer(
		getParametersEndpoint(svc),
		decodeParametersReq,
		encodeResponse,
		opts...,
	), "get-parameters").ServeHTTP)

	mux.Get("/properties", otelhttp.NewHandler(kithttp.NewServer(
		getPropertiesEndpoint(svc),
		kithttp.NopRequestDecoder,
		encodeResponse,
		opts...,
	), "get-properties").ServeHTTP)

	mux.Get("/health", health(instanceID, clientID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func health(instanceID, clientID string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_ = encodeResponse(context.Background(), w, healthRes{
			Status:     "pass",
			Service:    svcName,
			InstanceID: instanceID,
			ClientID:   clientID,
		})
	}
}

// decodeParametersReq selects the CBOR wire form when the client asks for
// it. Remaining query parameters are passed on as the request config.
func decodeParametersReq(_ context.Context, r *http.Request) (any, error) {
	q := r.URL.Query()
	req := parametersReq{
		cbor:   strings.Contains(r.Header.Get("Accept"), CBORContentType) || q.Get("format") == "cbor",
		config: round.Config{},
	}
	for k, v := range q {
		if k == "format" || len(v) == 0 {
			continue
		}
		req.config[k] = v[0]
	}

	return req, nil
}

func encodeResponse(_ context.Context, w http.ResponseWriter, response any) error {
	if res, ok := response.(cborRes); ok {
		w.Header().Set("Content-Type", CBORContentType)
		w.WriteHeader(http.StatusOK)
		_, err := w.Write(res.data)

		return err
	}

	w.Header().Set("Content-Type", ContentType)
	if sc, ok := response.(statusCoder); ok {
		w.WriteHeader(sc.Code())
	}

	return json.NewEncoder(w).Encode(response)
}

func loggingErrorEncoder(logger *slog.Logger) kithttp.ErrorEncoder {
	return func(ctx context.Context, err error, w http.ResponseWriter) {
		logger.Warn("request failed", slog.Any("error", err))
		encodeError(ctx, err, w)
	}
}

func encodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)

	switch {
	case errors.Is(err, round.ErrConfiguration):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, params.ErrParameterMismatch), errors.Is(err, client.ErrInvalidState):
		w.WriteHeader(http.StatusConflict)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	_ = json.NewEncoder(w).Encode(errorRes{Error: err.Error()})
}
