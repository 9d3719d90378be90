package solver

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	G "gorgonia.org/gorgonia"
)

// Default hyperparameters of the Adam solvers
const (
	DefaultBeta1 = 0.9
	DefaultBeta2 = 0.999

	// DefaultClippedAdamEpsilon is the numerical floor added to √v̂ by
	// the ClippedAdam
	DefaultClippedAdamEpsilon = 1e-5

	// DefaultAdamEpsilon is the smoothing factor of the managed Adam
	// solver
	DefaultAdamEpsilon = 1e-8
)

// AdamState holds the first and second moment estimates of each
// parameter updated by a ClippedAdam, in parameter order, along with
// the number of steps taken so far.
type AdamState struct {
	M    [][]float64
	V    [][]float64
	Step int
}

// Clone returns a deep copy of the AdamState
func (s AdamState) Clone() AdamState {
	if s.M == nil && s.V == nil {
		return AdamState{Step: s.Step}
	}
	clone := AdamState{
		M:    make([][]float64, len(s.M)),
		V:    make([][]float64, len(s.V)),
		Step: s.Step,
	}
	for i := range s.M {
		clone.M[i] = append([]float64(nil), s.M[i]...)
	}
	for i := range s.V {
		clone.V[i] = append([]float64(nil), s.V[i]...)
	}
	return clone
}

// ClippedAdam implements Adam with global norm gradient clipping and
// explicit moment state. Unlike a managed solver, the state of a
// ClippedAdam can be read and replaced between steps.
//
// Each step, gradients g are clipped by their global norm, negated if
// the ClippedAdam maximizes, and then:
//
//	m = β1 * m + (1 - β1) * g
//	v = β2 * v + (1 - β2) * g²
//	m̂ = m / (1 - β1^t)
//	v̂ = v / (1 - β2^t)
//	θ = θ - η * m̂ / (√v̂ + ε)
//
// where t is the 1-based step number.
//
// A ClippedAdam is bound to the parameter list of its first step: the
// number and shapes of parameters must not change afterwards.
type ClippedAdam struct {
	beta1, beta2, eps float64
	maximize          bool
	state             AdamState
	log               logrus.FieldLogger
}

// NewClippedAdam returns a new ClippedAdam. Zero-valued
// hyperparameters of c are replaced by their defaults.
func NewClippedAdam(c ClippedAdamConfig, maximize bool,
	log logrus.FieldLogger) *ClippedAdam {
	c = c.withDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &ClippedAdam{
		beta1:    c.Beta1,
		beta2:    c.Beta2,
		eps:      c.Epsilon,
		maximize: maximize,
		log:      log,
	}
}

// State returns a copy of the current optimizer state
func (a *ClippedAdam) State() AdamState {
	return a.state.Clone()
}

// SetState replaces the optimizer state with a copy of s
func (a *ClippedAdam) SetState(s AdamState) error {
	if len(s.M) != len(s.V) {
		return fmt.Errorf("setState: %w: %d first moments and %d second "+
			"moments", ErrShapeMismatch, len(s.M), len(s.V))
	}
	if s.Step < 0 {
		return fmt.Errorf("setState: step must be non-negative, have %v",
			s.Step)
	}
	a.state = s.Clone()
	return nil
}

// Maximize returns whether the ClippedAdam performs gradient ascent
func (a *ClippedAdam) Maximize() bool {
	return a.maximize
}

// Update implements the Updater interface
func (a *ClippedAdam) Update(obj GradientProvider, module, params G.Nodes,
	lr, maxNorm float64) error {
	const op = "clippedAdam"
	if err := validateStep(op, lr, maxNorm); err != nil {
		return err
	}

	zeroGrads(module)

	_, grads, data, err := gradients(op, obj, params)
	if err != nil {
		return err
	}

	if err := a.checkState(data); err != nil {
		return err
	}

	if err := clip(op, grads, maxNorm, a.log); err != nil {
		return err
	}

	if a.maximize {
		negate(grads)
	}

	// All checks have passed, nothing below can fail
	if a.state.M == nil {
		a.state.M = make([][]float64, len(data))
		a.state.V = make([][]float64, len(data))
		for i := range data {
			a.state.M[i] = make([]float64, len(data[i]))
			a.state.V[i] = make([]float64, len(data[i]))
		}
	}

	step := a.state.Step + 1
	correction1 := 1 - math.Pow(a.beta1, float64(step))
	correction2 := 1 - math.Pow(a.beta2, float64(step))

	for i := range data {
		m, v, g, w := a.state.M[i], a.state.V[i], grads[i], data[i]
		for j := range w {
			m[j] = a.beta1*m[j] + (1-a.beta1)*g[j]
			v[j] = a.beta2*v[j] + (1-a.beta2)*(g[j]*g[j])

			mHat := m[j] / correction1
			vHat := v[j] / correction2

			w[j] -= lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
	a.state.Step = step

	return nil
}

// checkState ensures the moments of the ClippedAdam were created for
// parameters with the same sizes as data.
func (a *ClippedAdam) checkState(data [][]float64) error {
	if a.state.M == nil {
		return nil
	}
	if err := sameSizes("clippedAdam", a.state.M, data); err != nil {
		return err
	}
	return sameSizes("clippedAdam", a.state.V, data)
}

// ClippedAdamConfig describes a configuration of the ClippedAdam
// engine.
type ClippedAdamConfig struct {
	Epsilon float64 // Numerical floor added to √v̂
	Beta1   float64
	Beta2   float64
}

// NewClippedAdamSolver returns a new ClippedAdam Solver
func NewClippedAdamSolver(epsilon, beta1, beta2 float64) (*Solver, error) {
	config := ClippedAdamConfig{
		Epsilon: epsilon,
		Beta1:   beta1,
		Beta2:   beta2,
	}

	return newSolver(ClippedAdamType, config)
}

// Create returns a new ClippedAdam as described by the
// ClippedAdamConfig
func (c ClippedAdamConfig) Create(maximize bool,
	log logrus.FieldLogger) Updater {
	return NewClippedAdam(c, maximize, log)
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (c ClippedAdamConfig) ValidType(t Type) bool {
	return t == ClippedAdamType
}

// Validate returns an error describing whether or not the
// configuration is valid.
func (c ClippedAdamConfig) Validate() error {
	if c.Epsilon < 0 {
		return fmt.Errorf("validate: epsilon must be non-negative")
	}
	if c.Beta1 < 0 || c.Beta1 >= 1 || c.Beta2 < 0 || c.Beta2 >= 1 {
		return fmt.Errorf("validate: betas must be in [0, 1)")
	}
	return nil
}

func (c ClippedAdamConfig) withDefaults() ClippedAdamConfig {
	if c.Epsilon == 0 {
		c.Epsilon = DefaultClippedAdamEpsilon
	}
	if c.Beta1 == 0 {
		c.Beta1 = DefaultBeta1
	}
	if c.Beta2 == 0 {
		c.Beta2 = DefaultBeta2
	}
	return c
}
