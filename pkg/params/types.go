package params

import (
	"math"
	"slices"
)

type DType string

const (
	Float32 DType = "float32"
	Float64 DType = "float64"
)

// Size returns the width in bytes of one element, or 0 for unknown dtypes.
func (d DType) Size() int {
	switch d {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

func (d DType) Valid() bool {
	return d.Size() > 0
}

// Round narrows v to the precision of d. Float32 values are held in float64
// storage and converting back to float32 is exact.
func (d DType) Round(v float64) float64 {
	if d == Float32 {
		return float64(float32(v))
	}

	return v
}

// Array is a dense host-resident numeric array. Values are row-major.
type Array struct {
	Name   string    `json:"name,omitempty"`
	DType  DType     `json:"dtype"`
	Shape  []int     `json:"shape"`
	Values []float64 `json:"values"`
}

// NumElements returns the number of elements described by shape. A scalar
// (empty shape) holds one element. Negative dimensions, or a product that
// overflows int, yield -1.
func NumElements(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return -1
		}
		if d != 0 && n > math.MaxInt/d {
			return -1
		}
		n *= d
	}

	return n
}

func (a Array) Clone() Array {
	return Array{
		Name:   a.Name,
		DType:  a.DType,
		Shape:  slices.Clone(a.Shape),
		Values: slices.Clone(a.Values),
	}
}

// Equal reports whether both arrays have the same dtype, shape and bitwise
// identical values. Names are ignored.
func (a Array) Equal(b Array) bool {
	if a.DType != b.DType || !slices.Equal(a.Shape, b.Shape) || len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Values {
		if math.Float64bits(a.Values[i]) != math.Float64bits(b.Values[i]) {
			return false
		}
	}

	return true
}

// ParameterSet is the ordered, transport-neutral encoding of a model's
// weight state: one Array per trainable slot in declaration order.
type ParameterSet []Array

func (ps ParameterSet) Clone() ParameterSet {
	if ps == nil {
		return nil
	}
	out := make(ParameterSet, len(ps))
	for i, a := range ps {
		out[i] = a.Clone()
	}

	return out
}

func (ps ParameterSet) Equal(other ParameterSet) bool {
	if len(ps) != len(other) {
		return false
	}
	for i := range ps {
		if !ps[i].Equal(other[i]) {
			return false
		}
	}

	return true
}

// Weights is the part of a model the codec talks to.
type Weights interface {
	// Slots enumerates the trainable weight slots with their current values
	// in the model's canonical declared order. Returned values may alias
	// live model memory.
	Slots() []Array
	// Load replaces every slot with the given arrays, positionally. The set
	// has already been validated against the model's layout.
	Load(ps ParameterSet) error
}
