package ml_test

import (
	"errors"
	"testing"

	"github.com/absmach/flclient/pkg/ml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceFeed(t *testing.T) {
	t.Parallel()

	examples := make([]ml.Example, 5)
	for i := range examples {
		examples[i] = ml.Example{Label: i}
	}

	cases := []struct {
		name      string
		batchSize int
		sizes     []int
	}{
		{name: "even split", batchSize: 5, sizes: []int{5}},
		{name: "remainder", batchSize: 2, sizes: []int{2, 2, 1}},
		{name: "single batch", batchSize: 0, sizes: []int{5}},
		{name: "oversized", batchSize: 10, sizes: []int{5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			feed := &ml.SliceFeed{Examples: examples, BatchSize: tc.batchSize}
			assert.Equal(t, 5, feed.Len())

			var sizes []int
			for _, b := range feed.Batches() {
				sizes = append(sizes, len(b))
			}
			assert.Equal(t, tc.sizes, sizes)
		})
	}

	empty := &ml.SliceFeed{}
	assert.Empty(t, empty.Batches())
}

func TestMerge(t *testing.T) {
	t.Parallel()

	got := ml.Merge(
		ml.BatchResult{Loss: 1, Correct: 1, Count: 1, Grads: [][]float64{{3}}},
		ml.BatchResult{Loss: 4, Correct: 2, Count: 3, Grads: [][]float64{{-1}}},
		ml.BatchResult{},
	)
	assert.Equal(t, 4, got.Count)
	assert.Equal(t, 3, got.Correct)
	assert.InDelta(t, 3.25, got.Loss, 1e-12)
	assert.InDelta(t, 0, got.Grads[0][0], 1e-12)

	assert.Equal(t, ml.BatchResult{}, ml.Merge())
}

func TestSampleCountsMap(t *testing.T) {
	t.Parallel()
	assert.Equal(t, map[string]int{"trainset": 10, "valset": 3}, ml.SampleCounts{Train: 10, Val: 3}.Map())
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := ml.NewRegistry[string]("model")

	require.NoError(t, reg.Register("echo", func(opts map[string]any) (string, error) {
		var o struct {
			Word string `json:"word"`
		}
		if err := ml.DecodeOptions(opts, &o); err != nil {
			return "", err
		}

		return o.Word, nil
	}))
	require.NoError(t, reg.Register("alpha", func(map[string]any) (string, error) { return "a", nil }))

	err := reg.Register("echo", func(map[string]any) (string, error) { return "", nil })
	assert.True(t, errors.Is(err, ml.ErrDuplicateIdentifier))

	got, err := reg.Build("echo", map[string]any{"word": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	_, err = reg.Build("echo", map[string]any{"wrod": "hi"})
	assert.True(t, errors.Is(err, ml.ErrInvalidOptions))

	_, err = reg.Build("resnet", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ml.ErrUnknownIdentifier))
	assert.Contains(t, err.Error(), "alpha, echo")

	assert.Equal(t, []string{"alpha", "echo"}, reg.Names())
}
