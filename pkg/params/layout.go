package params

import (
	"fmt"
	"slices"
)

// SlotSpec is the static description of one weight slot.
type SlotSpec struct {
	Name  string `json:"name"`
	DType DType  `json:"dtype"`
	Shape []int  `json:"shape"`
}

// Layout is the ordering contract shared by encode, decode and the
// coordinator. It is derived once from the model's declared slots.
type Layout []SlotSpec

func LayoutOf(w Weights) Layout {
	slots := w.Slots()
	l := make(Layout, len(slots))
	for i, s := range slots {
		l[i] = SlotSpec{
			Name:  s.Name,
			DType: s.DType,
			Shape: slices.Clone(s.Shape),
		}
	}

	return l
}

func (l Layout) Equal(other Layout) bool {
	return slices.EqualFunc(l, other, func(a, b SlotSpec) bool {
		return a.Name == b.Name && a.DType == b.DType && slices.Equal(a.Shape, b.Shape)
	})
}

// Check validates ps against the layout positionally. Names are compared
// only when both sides carry one.
func (l Layout) Check(ps ParameterSet) error {
	if len(ps) != len(l) {
		return &MismatchError{
			Index:  -1,
			Reason: fmt.Sprintf("expected %d arrays, got %d", len(l), len(ps)),
		}
	}

	for i, spec := range l {
		a := ps[i]
		switch {
		case a.Name != "" && spec.Name != "" && a.Name != spec.Name:
			return &MismatchError{Index: i, Slot: spec.Name, Reason: fmt.Sprintf("name %q does not match", a.Name)}
		case a.DType != spec.DType:
			return &MismatchError{Index: i, Slot: spec.Name, Reason: fmt.Sprintf("dtype %q, want %q", a.DType, spec.DType)}
		case !slices.Equal(a.Shape, spec.Shape):
			return &MismatchError{Index: i, Slot: spec.Name, Reason: fmt.Sprintf("shape %v, want %v", a.Shape, spec.Shape)}
		case len(a.Values) != NumElements(spec.Shape):
			return &MismatchError{Index: i, Slot: spec.Name, Reason: fmt.Sprintf("%d values for shape %v", len(a.Values), spec.Shape)}
		}
	}

	return nil
}

// NumParameters returns the total number of scalar weights in the layout.
func (l Layout) NumParameters() int {
	n := 0
	for _, s := range l {
		n += NumElements(s.Shape)
	}

	return n
}
