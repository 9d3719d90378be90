// Package tensorutils bridges gonum matrices and Gorgonia tensors
package tensorutils

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// FromMat returns a copy of m as a row major *tensor.Dense of the same
// shape
func FromMat(m mat.Matrix) *tensor.Dense {
	r, c := m.Dims()
	backing := make([]float64, r*c)
	dst := mat.NewDense(r, c, backing)
	dst.Copy(m)

	return tensor.New(
		tensor.WithShape(r, c),
		tensor.WithBacking(backing),
	)
}

// FromSlice returns a copy of data as a *tensor.Dense vector
func FromSlice(data []float64) *tensor.Dense {
	return tensor.New(
		tensor.WithShape(len(data)),
		tensor.WithBacking(append([]float64(nil), data...)),
	)
}

// ToMat returns a copy of the float64 matrix t as a *mat.Dense. Vectors
// are returned as a single column.
func ToMat(t tensor.Tensor) (*mat.Dense, error) {
	if v, ok := t.Data().(float64); ok {
		return mat.NewDense(1, 1, []float64{v}), nil
	}
	data, ok := t.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("toMat: unsupported data type %T", t.Data())
	}

	shape := t.Shape()
	switch len(shape) {
	case 1:
		return mat.NewDense(shape[0], 1, append([]float64(nil), data...)), nil
	case 2:
		return mat.NewDense(shape[0], shape[1],
			append([]float64(nil), data...)), nil
	default:
		return nil, fmt.Errorf("toMat: cannot convert shape %v to a matrix",
			shape)
	}
}

// OneHot encodes each row of the single column matrix indices as a one
// hot row of width n. Each index must be an integer in [0, n).
func OneHot(indices mat.Matrix, n int) (*mat.Dense, error) {
	rows, cols := indices.Dims()
	if cols != 1 {
		return nil, fmt.Errorf("oneHot: indices must have a single column, "+
			"have %d", cols)
	}

	out := mat.NewDense(rows, n, nil)
	for i := 0; i < rows; i++ {
		v := indices.At(i, 0)
		if v != math.Trunc(v) || v < 0 || int(v) >= n {
			return nil, fmt.Errorf("oneHot: index %v at row %d not in [0, %d)",
				v, i, n)
		}
		out.Set(i, int(v), 1)
	}
	return out, nil
}
