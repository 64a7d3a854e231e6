package api

import (
	"context"

	"github.com/absmach/flclient/client"
	"github.com/absmach/flclient/pkg/params"
	"github.com/absmach/flclient/pkg/round"
	"github.com/go-kit/kit/endpoint"
)

type parametersReq struct {
	cbor   bool
	config round.Config
}

func getParametersEndpoint(svc client.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(parametersReq)

		ps, err := svc.GetParameters(ctx, req.config)
		if err != nil {
			return nil, err
		}

		if req.cbor {
			data, err := params.Marshal(ps)
			if err != nil {
				return nil, err
			}

			return cborRes{data: data}, nil
		}

		var n int
		for _, a := range ps {
			n += len(a.Values)
		}

		return parametersRes{Parameters: ps, NumParameters: n}, nil
	}
}

func getPropertiesEndpoint(svc client.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		props, err := svc.GetProperties(ctx, nil)
		if err != nil {
			return nil, err
		}

		return propertiesRes{Properties: props.Map()}, nil
	}
}
