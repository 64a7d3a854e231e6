package api

import (
	"net/http"

	"github.com/absmach/flclient/pkg/params"
)

type healthRes struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	InstanceID string `json:"instance_id"`
	ClientID   string `json:"cid"`
}

type parametersRes struct {
	Parameters    params.ParameterSet `json:"parameters"`
	NumParameters int                 `json:"num_parameters"`
}

// cborRes is written as the raw CBOR wire encoding.
type cborRes struct {
	data []byte
}

type propertiesRes struct {
	Properties map[string]any `json:"properties"`
}

type errorRes struct {
	Error string `json:"error"`
}

type statusCoder interface {
	Code() int
}

func (healthRes) Code() int {
	return http.StatusOK
}
