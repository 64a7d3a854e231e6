// Package synthetic generates seeded Gaussian-blob classification data.
// Every class is centred on its own random point; examples are drawn
// around the centre with the configured spread.
package synthetic

import (
	"errors"
	"math/rand/v2"

	"github.com/absmach/flclient/pkg/ml"
)

const Name = "synthetic"

type Options struct {
	Features  int     `json:"features"`
	Classes   int     `json:"classes"`
	TrainSize int     `json:"train_size"`
	ValSize   int     `json:"val_size"`
	BatchSize int     `json:"batch_size"`
	Spread    float64 `json:"spread"`
	Seed      uint64  `json:"seed"`
	// RootDir is accepted for parity with file-backed sources and ignored.
	RootDir string `json:"root_dir"`
}

func DefaultOptions() Options {
	return Options{
		Features:  4,
		Classes:   2,
		TrainSize: 256,
		ValSize:   64,
		BatchSize: 32,
		Spread:    0.5,
		Seed:      1,
	}
}

func (o Options) Validate() error {
	switch {
	case o.Features <= 0:
		return errors.New("features must be positive")
	case o.Classes < 2:
		return errors.New("classes must be at least 2")
	case o.TrainSize < 0 || o.ValSize < 0:
		return errors.New("dataset sizes must not be negative")
	case o.Spread < 0:
		return errors.New("spread must not be negative")
	}

	return nil
}

type Source struct {
	train *ml.SliceFeed
	val   *ml.SliceFeed
}

var _ ml.DataSource = (*Source)(nil)

// New is the registry factory.
func New(options map[string]any) (ml.DataSource, error) {
	opts := DefaultOptions()
	if err := ml.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}

	return NewSource(opts)
}

func NewSource(opts Options) (*Source, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed+1))
	centres := make([][]float64, opts.Classes)
	for c := range centres {
		centres[c] = make([]float64, opts.Features)
		for j := range centres[c] {
			centres[c][j] = rng.Float64()*4 - 2
		}
	}

	return &Source{
		train: &ml.SliceFeed{Examples: sample(rng, centres, opts.TrainSize, opts.Spread), BatchSize: opts.BatchSize},
		val:   &ml.SliceFeed{Examples: sample(rng, centres, opts.ValSize, opts.Spread), BatchSize: opts.BatchSize},
	}, nil
}

func (s *Source) TrainFeed() ml.Feed {
	return s.train
}

func (s *Source) ValFeed() ml.Feed {
	return s.val
}

func (s *Source) Counts() ml.SampleCounts {
	return ml.SampleCounts{
		Train: s.train.Len(),
		Val:   s.val.Len(),
	}
}

func sample(rng *rand.Rand, centres [][]float64, n int, spread float64) []ml.Example {
	out := make([]ml.Example, n)
	for i := range out {
		label := i % len(centres)
		features := make([]float64, len(centres[label]))
		for j, c := range centres[label] {
			features[j] = c + rng.NormFloat64()*spread
		}
		out[i] = ml.Example{Features: features, Label: label}
	}

	return out
}
