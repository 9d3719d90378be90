package tensorutils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

func TestFromMat(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	d := FromMat(m)

	assert.Equal(t, tensor.Shape{2, 3}, d.Shape())
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, d.Data())

	// The tensor does not alias the matrix
	m.Set(0, 0, 10)
	assert.Equal(t, 1.0, d.Data().([]float64)[0])
}

func TestFromMatTransposed(t *testing.T) {
	m := mat.NewDense(2, 1, []float64{1, 2})
	d := FromMat(m.T())
	assert.Equal(t, tensor.Shape{1, 2}, d.Shape())
	assert.Equal(t, []float64{1, 2}, d.Data())
}

func TestToMat(t *testing.T) {
	m, err := ToMat(FromSlice([]float64{1, 2, 3}))
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 1, c)

	m, err = ToMat(tensor.New(tensor.WithShape(2, 2),
		tensor.WithBacking([]float64{1, 2, 3, 4})))
	require.NoError(t, err)
	assert.Equal(t, 3.0, m.At(1, 0))

	_, err = ToMat(tensor.New(tensor.WithShape(1, 1, 2),
		tensor.WithBacking([]float64{1, 2})))
	assert.Error(t, err)
}

func TestOneHot(t *testing.T) {
	indices := mat.NewDense(3, 1, []float64{0, 4, 2})
	out, err := OneHot(indices, 5)
	require.NoError(t, err)

	want := mat.NewDense(3, 5, []float64{
		1, 0, 0, 0, 0,
		0, 0, 0, 0, 1,
		0, 0, 1, 0, 0,
	})
	assert.True(t, mat.Equal(want, out))
}

func TestOneHotInvalid(t *testing.T) {
	for _, v := range []float64{-1, 5, 1.5, math.NaN()} {
		_, err := OneHot(mat.NewDense(1, 1, []float64{v}), 5)
		assert.Error(t, err, "index %v", v)
	}

	_, err := OneHot(mat.NewDense(1, 2, nil), 5)
	assert.Error(t, err)
}
