package environment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDiscreteSpec(t *testing.T) {
	s, err := NewDiscreteSpec(Action, 5)
	require.NoError(t, err)

	assert.True(t, s.IsDiscrete())
	assert.Equal(t, 5, s.NumActions())
	assert.Equal(t, 1, s.Dims())

	_, err = NewDiscreteSpec(Action, 0)
	assert.Error(t, err)
}

func TestBoxSpec(t *testing.T) {
	s, err := NewBoxSpec(Action, []float64{-1, -2}, []float64{1, 2})
	require.NoError(t, err)

	assert.False(t, s.IsDiscrete())
	assert.Equal(t, 2, s.Dims())
	assert.Equal(t, 0, s.NumActions())
	assert.Equal(t, 2.0, s.UpperBound.AtVec(1))

	_, err = NewBoxSpec(Action, []float64{1}, []float64{0})
	assert.Error(t, err)

	_, err = NewBoxSpec(Action, []float64{1}, []float64{2, 3})
	assert.Error(t, err)
}

func TestUnboundedSpec(t *testing.T) {
	s, err := NewUnboundedSpec(Observation, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Dims())
	assert.True(t, math.IsInf(s.LowerBound.AtVec(0), -1))

	_, err = NewUnboundedSpec(Observation, 0)
	assert.Error(t, err)
}

func TestNewSpecCardinality(t *testing.T) {
	v := mat.NewVecDense(1, []float64{1})
	_, err := NewSpec(v, Action, v, v, Cardinality("Mixed"))
	assert.Error(t, err)

	assert.True(t, Continuous.Valid())
	assert.False(t, Cardinality("").Valid())
}
