// Package params converts model weight state to and from an ordered
// sequence of dense numeric arrays, and packs those arrays for the wire.
package params

import "slices"

// Encode snapshots the model's weights in declared order. The result shares
// no memory with the model.
func Encode(w Weights) ParameterSet {
	slots := w.Slots()
	ps := make(ParameterSet, len(slots))
	for i, s := range slots {
		ps[i] = s.Clone()
	}

	return ps
}

// Decode replaces the model's weights with ps. The whole set is validated
// against the model's layout before anything is handed to the model, so a
// mismatch leaves the weights untouched.
func Decode(w Weights, ps ParameterSet) error {
	layout := LayoutOf(w)
	if err := layout.Check(ps); err != nil {
		return err
	}

	in := make(ParameterSet, len(ps))
	for i, a := range ps {
		values := make([]float64, len(a.Values))
		for j, v := range a.Values {
			values[j] = a.DType.Round(v)
		}
		in[i] = Array{
			Name:   layout[i].Name,
			DType:  a.DType,
			Shape:  slices.Clone(a.Shape),
			Values: values,
		}
	}

	return w.Load(in)
}
