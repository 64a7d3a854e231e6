package cli

import (
	"fmt"
	"math"
	"os"

	flclient "github.com/absmach/flclient"
	"github.com/absmach/flclient/pkg/params"
	"github.com/spf13/cobra"
)

type slotSummary struct {
	Index       int          `json:"index"`
	Name        string       `json:"name,omitempty"`
	DType       params.DType `json:"dtype"`
	Shape       []int        `json:"shape"`
	NumElements int          `json:"num_elements"`
	Min         float64      `json:"min"`
	Max         float64      `json:"max"`
	Mean        float64      `json:"mean"`
}

type parametersSummary struct {
	File          string        `json:"file"`
	NumSlots      int           `json:"num_slots"`
	NumParameters int           `json:"num_parameters"`
	Slots         []slotSummary `json:"slots"`
}

func NewParamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params [inspect|init]",
		Short: "Parameter files",
		Long:  `Inspect CBOR parameter files or create one from a client config.`,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Inspect parameter file",
		Long: `Print the layout and value summary of a CBOR parameter file.

Examples:
  flclient params inspect round-3.cbor`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			summary, err := inspect(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, summary)
		},
	}

	initCmd := &cobra.Command{
		Use:   "init <config> <out>",
		Short: "Write initial parameters",
		Long: `Build the model named in a client config and write its initial
parameters as CBOR. A coordinator can use the file to seed the first round.

Examples:
  flclient params init client.toml round-0.cbor`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			if err := initParameters(args[0], args[1]); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd, fmt.Sprintf("wrote %s", args[1]))
		},
	}

	cmd.AddCommand(inspectCmd, initCmd)

	return cmd
}

func inspect(path string) (parametersSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return parametersSummary{}, err
	}

	ps, err := params.Unmarshal(data)
	if err != nil {
		return parametersSummary{}, err
	}

	out := parametersSummary{File: path, NumSlots: len(ps), Slots: make([]slotSummary, len(ps))}
	for i, a := range ps {
		s := slotSummary{
			Index:       i,
			Name:        a.Name,
			DType:       a.DType,
			Shape:       a.Shape,
			NumElements: len(a.Values),
		}
		if len(a.Values) > 0 {
			s.Min, s.Max = math.Inf(1), math.Inf(-1)
			var sum float64
			for _, v := range a.Values {
				s.Min = min(s.Min, v)
				s.Max = max(s.Max, v)
				sum += v
			}
			s.Mean = sum / float64(len(a.Values))
		}
		out.Slots[i] = s
		out.NumParameters += len(a.Values)
	}

	return out, nil
}

func initParameters(configPath, out string) error {
	cfg, err := flclient.LoadConfig(configPath)
	if err != nil {
		return err
	}
	cfg = cfg.Apply(flclient.Overrides{})
	if err := cfg.Validate(); err != nil {
		return err
	}

	registries, err := flclient.NewRegistries()
	if err != nil {
		return err
	}
	model, err := registries.Models.Build(cfg.Model.Name, cfg.Model.Config)
	if err != nil {
		return err
	}

	data, err := params.Marshal(params.Encode(model))
	if err != nil {
		return err
	}

	return os.WriteFile(out, data, 0o644)
}
