package params

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// TensorType tags the byte layout of every tensor: little-endian raw
// elements of the array's dtype.
const TensorType = "ndarray.le"

type wireTensor struct {
	Name  string `cbor:"1,keyasint,omitempty"`
	DType DType  `cbor:"2,keyasint"`
	Shape []int  `cbor:"3,keyasint"`
	Data  []byte `cbor:"4,keyasint"`
}

type wireParameters struct {
	TensorType string       `cbor:"1,keyasint"`
	Tensors    []wireTensor `cbor:"2,keyasint"`
}

// Marshal packs ps into CBOR.
func Marshal(ps ParameterSet) ([]byte, error) {
	wp := wireParameters{
		TensorType: TensorType,
		Tensors:    make([]wireTensor, len(ps)),
	}
	for i, a := range ps {
		data, err := packValues(a)
		if err != nil {
			return nil, fmt.Errorf("array %d: %w", i, err)
		}
		wp.Tensors[i] = wireTensor{
			Name:  a.Name,
			DType: a.DType,
			Shape: a.Shape,
			Data:  data,
		}
	}

	return cbor.Marshal(wp)
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(data []byte) (ParameterSet, error) {
	var wp wireParameters
	if err := cbor.Unmarshal(data, &wp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	if wp.TensorType != TensorType {
		return nil, fmt.Errorf("%w: unsupported tensor type %q", ErrInvalidEncoding, wp.TensorType)
	}

	ps := make(ParameterSet, len(wp.Tensors))
	for i, t := range wp.Tensors {
		values, err := unpackValues(t)
		if err != nil {
			return nil, fmt.Errorf("tensor %d: %w", i, err)
		}
		shape := t.Shape
		if shape == nil {
			shape = []int{}
		}
		ps[i] = Array{
			Name:   t.Name,
			DType:  t.DType,
			Shape:  shape,
			Values: values,
		}
	}

	return ps, nil
}

func EncodeB64(ps ParameterSet) (string, error) {
	data, err := Marshal(ps)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

func DecodeB64(s string) (ParameterSet, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}

	return Unmarshal(data)
}

func packValues(a Array) ([]byte, error) {
	size := a.DType.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: unknown dtype %q", ErrInvalidEncoding, a.DType)
	}
	if n := NumElements(a.Shape); n != len(a.Values) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrInvalidEncoding, len(a.Values), a.Shape)
	}

	buf := make([]byte, len(a.Values)*size)
	for i, v := range a.Values {
		switch a.DType {
		case Float32:
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
		case Float64:
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
	}

	return buf, nil
}

func unpackValues(t wireTensor) ([]float64, error) {
	size := t.DType.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: unknown dtype %q", ErrInvalidEncoding, t.DType)
	}
	n := NumElements(t.Shape)
	if n < 0 || n > math.MaxInt/size {
		return nil, fmt.Errorf("%w: invalid shape %v", ErrInvalidEncoding, t.Shape)
	}
	if len(t.Data) != n*size {
		return nil, fmt.Errorf("%w: %d bytes for shape %v of %s", ErrInvalidEncoding, len(t.Data), t.Shape, t.DType)
	}

	values := make([]float64, n)
	for i := range values {
		switch t.DType {
		case Float32:
			values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(t.Data[i*4:])))
		case Float64:
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(t.Data[i*8:]))
		}
	}

	return values, nil
}
