package fl

import "time"

type InstructionType string

const (
	InstructionFit           InstructionType = "fit"
	InstructionEvaluate      InstructionType = "evaluate"
	InstructionGetParameters InstructionType = "get_parameters"
	InstructionGetProperties InstructionType = "get_properties"
)

func (t InstructionType) Valid() bool {
	switch t {
	case InstructionFit, InstructionEvaluate, InstructionGetParameters, InstructionGetProperties:
		return true
	default:
		return false
	}
}

// Instruction is sent by the coordinator to a single client.
type Instruction struct {
	ID          string          `json:"id"`
	Type        InstructionType `json:"type"`
	ServerRound uint64          `json:"server_round,omitempty"`
	// ParametersB64 holds the CBOR parameter payload, base64 encoded.
	ParametersB64 string         `json:"parameters_b64,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
}

// Reply answers exactly one Instruction. A failed round carries Error and
// no parameters or metrics.
type Reply struct {
	InstructionID string          `json:"instruction_id"`
	ClientID      string          `json:"client_id"`
	Type          InstructionType `json:"type"`
	ParametersB64 string          `json:"parameters_b64,omitempty"`
	NumExamples   int             `json:"num_examples,omitempty"`
	Loss          *float64        `json:"loss,omitempty"`
	Metrics       map[string]any  `json:"metrics,omitempty"`
	Properties    map[string]any  `json:"properties,omitempty"`
	Error         string          `json:"error,omitempty"`
	SentAt        time.Time       `json:"sent_at"`
}

// Announcement is published on discovery and liveliness topics.
type Announcement struct {
	ClientID  string    `json:"proplet_id"`
	Status    string    `json:"status"`
	Namespace string    `json:"namespace,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
