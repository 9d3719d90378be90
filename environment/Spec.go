// Package environment describes the observation and action spaces that
// agents are built for.
package environment

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an action, an observation, or a global state
type SpecType int

const (
	Action SpecType = iota
	Observation
	State
)

// Cardinality determines the cardinality of a number (discrete or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Valid returns whether the Cardinality is one of Continuous or
// Discrete
func (c Cardinality) Valid() bool {
	return c == Continuous || c == Discrete
}

// Spec implements an environment specification, which tells the type,
// shape, and bounds of an action, observation, or state
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// NewSpec constructs a new environment specification
// The shape argument outlines the shape of the data described by the
// specification. The argument t outlines what the specification is
// describing (e.g. actions, observations, etc.). The cardinality
// arguments describes whether the values that the spec describes are
// continuous or discrete.
func NewSpec(shape mat.Vector, t SpecType, lowerBound,
	upperBound mat.Vector, cardinality Cardinality) (Spec, error) {
	if shape.Len() != lowerBound.Len() {
		return Spec{}, fmt.Errorf("newSpec: shape length %v must match "+
			"lower bounds length %v", shape.Len(), lowerBound.Len())
	}
	if shape.Len() != upperBound.Len() {
		return Spec{}, fmt.Errorf("newSpec: shape length %v must match "+
			"upper bounds length %v", shape.Len(), upperBound.Len())
	}
	if !cardinality.Valid() {
		return Spec{}, fmt.Errorf("newSpec: invalid cardinality %q",
			cardinality)
	}
	for i := 0; i < shape.Len(); i++ {
		if lowerBound.AtVec(i) > upperBound.AtVec(i) {
			return Spec{}, fmt.Errorf("newSpec: lower bound %v exceeds "+
				"upper bound %v at dimension %d", lowerBound.AtVec(i),
				upperBound.AtVec(i), i)
		}
	}
	return Spec{shape, t, lowerBound, upperBound, cardinality}, nil
}

// NewBoxSpec returns the Spec of a continuous space with bounds low and
// high in each dimension.
func NewBoxSpec(t SpecType, low, high []float64) (Spec, error) {
	if len(low) == 0 {
		return Spec{}, fmt.Errorf("newBoxSpec: space must have at least " +
			"one dimension")
	}
	shape := make([]float64, len(low))
	floats.AddConst(1, shape)

	return NewSpec(
		mat.NewVecDense(len(shape), shape),
		t,
		mat.NewVecDense(len(low), append([]float64(nil), low...)),
		mat.NewVecDense(len(high), append([]float64(nil), high...)),
		Continuous,
	)
}

// NewUnboundedSpec returns the Spec of a continuous space of dims
// dimensions with no bounds.
func NewUnboundedSpec(t SpecType, dims int) (Spec, error) {
	if dims <= 0 {
		return Spec{}, fmt.Errorf("newUnboundedSpec: space must have at "+
			"least one dimension, have %d", dims)
	}
	low := make([]float64, dims)
	high := make([]float64, dims)
	floats.AddConst(math.Inf(-1), low)
	floats.AddConst(math.Inf(1), high)

	return NewBoxSpec(t, low, high)
}

// NewDiscreteSpec returns the Spec of a single discrete variable taking
// values in [0, n).
func NewDiscreteSpec(t SpecType, n int) (Spec, error) {
	if n <= 0 {
		return Spec{}, fmt.Errorf("newDiscreteSpec: number of values must "+
			"be positive, have %d", n)
	}
	return NewSpec(
		mat.NewVecDense(1, []float64{1}),
		t,
		mat.NewVecDense(1, []float64{0}),
		mat.NewVecDense(1, []float64{float64(n - 1)}),
		Discrete,
	)
}

// Dims returns the number of dimensions of the space
func (s Spec) Dims() int {
	if s.Shape == nil {
		return 0
	}
	return s.Shape.Len()
}

// NumActions returns the number of values a discrete Spec can take.
// Continuous specs have no such number and return 0.
func (s Spec) NumActions() int {
	if s.Cardinality != Discrete || s.UpperBound == nil {
		return 0
	}
	return int(s.UpperBound.AtVec(0)) + 1
}

// IsDiscrete returns whether s describes a discrete space
func (s Spec) IsDiscrete() bool {
	return s.Cardinality == Discrete
}
