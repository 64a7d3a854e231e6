package ml

type Example struct {
	Features []float64 `json:"features"`
	Label    int       `json:"label"`
}

// Feed is a finite, re-iterable sequence of batches.
type Feed interface {
	Len() int
	Batches() [][]Example
}

type SampleCounts struct {
	Train int `json:"trainset"`
	Val   int `json:"valset"`
}

func (c SampleCounts) Map() map[string]int {
	return map[string]int{
		"trainset": c.Train,
		"valset":   c.Val,
	}
}

type DataSource interface {
	TrainFeed() Feed
	ValFeed() Feed
	Counts() SampleCounts
}

// SliceFeed serves a fixed slice of examples in batches of BatchSize. A
// non-positive BatchSize yields a single batch.
type SliceFeed struct {
	Examples  []Example
	BatchSize int
}

var _ Feed = (*SliceFeed)(nil)

func (f *SliceFeed) Len() int {
	return len(f.Examples)
}

func (f *SliceFeed) Batches() [][]Example {
	if len(f.Examples) == 0 {
		return nil
	}
	size := f.BatchSize
	if size <= 0 || size > len(f.Examples) {
		size = len(f.Examples)
	}

	batches := make([][]Example, 0, (len(f.Examples)+size-1)/size)
	for start := 0; start < len(f.Examples); start += size {
		end := min(start+size, len(f.Examples))
		batches = append(batches, f.Examples[start:end:end])
	}

	return batches
}
