package solver

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
)

// AdamConfig describes a configuration of the managed Adam solver,
// which clips gradients by their global norm and keeps its moment
// estimates inside the Updater.
type AdamConfig struct {
	Epsilon float64 // Smoothing factor
	Beta1   float64
	Beta2   float64
	Batch   int
}

// NewDefaultAdam returns a new Adam Solver with default hyperparameters
func NewDefaultAdam() (*Solver, error) {
	return NewAdam(DefaultAdamEpsilon, DefaultBeta1, DefaultBeta2, 1)
}

// NewAdam returns a new Adam Solver
func NewAdam(epsilon, beta1, beta2 float64, batchSize int) (*Solver,
	error) {
	adam := AdamConfig{
		Epsilon: epsilon,
		Beta1:   beta1,
		Beta2:   beta2,
		Batch:   batchSize,
	}

	return newSolver(Adam, adam)
}

// Create returns a new managed Adam Updater as described by the
// AdamConfig
func (a AdamConfig) Create(maximize bool, log logrus.FieldLogger) Updater {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ManagedAdam{
		config:   a.withDefaults(),
		maximize: maximize,
		log:      log,
	}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}

// Validate returns an error describing whether or not the
// configuration is valid.
func (a AdamConfig) Validate() error {
	if a.Epsilon < 0 {
		return fmt.Errorf("validate: epsilon must be non-negative")
	}
	if a.Beta1 < 0 || a.Beta1 >= 1 || a.Beta2 < 0 || a.Beta2 >= 1 {
		return fmt.Errorf("validate: betas must be in [0, 1)")
	}
	if a.Batch < 0 {
		return fmt.Errorf("validate: batch size must be non-negative")
	}
	return nil
}

func (a AdamConfig) withDefaults() AdamConfig {
	if a.Epsilon == 0 {
		a.Epsilon = DefaultAdamEpsilon
	}
	if a.Beta1 == 0 {
		a.Beta1 = DefaultBeta1
	}
	if a.Beta2 == 0 {
		a.Beta2 = DefaultBeta2
	}
	if a.Batch == 0 {
		a.Batch = 1
	}
	return a
}

// ManagedAdam implements an Updater which clips gradients by their
// global norm and then takes an Adam step. Gradients are averaged over
// the configured batch size after clipping. The moments are created at
// the first update and kept for all later updates, while lr is taken
// from each call.
//
// The Adam step is applied here rather than through gorgonia's
// AdamSolver, whose Step adds the update to the weights twice in
// gorgonia v0.9.17.
type ManagedAdam struct {
	config   AdamConfig
	maximize bool
	log      logrus.FieldLogger

	m, v [][]float64
	step int
}

// Update implements the Updater interface
func (m *ManagedAdam) Update(obj GradientProvider, module, params G.Nodes,
	lr, maxNorm float64) error {
	const op = "managedAdam"
	if err := validateStep(op, lr, maxNorm); err != nil {
		return err
	}

	zeroGrads(module)

	_, gradData, data, err := gradients(op, obj, params)
	if err != nil {
		return err
	}

	if m.m != nil {
		if err := sameSizes(op, m.m, data); err != nil {
			return err
		}
	}

	if err := clip(op, gradData, maxNorm, m.log); err != nil {
		return err
	}

	// Ascent on an objective is descent on its negation
	if m.maximize {
		negate(gradData)
	}
	if m.config.Batch > 1 {
		for _, g := range gradData {
			floats.Scale(1/float64(m.config.Batch), g)
		}
	}

	if m.m == nil {
		m.m = make([][]float64, len(data))
		m.v = make([][]float64, len(data))
		for i := range data {
			m.m[i] = make([]float64, len(data[i]))
			m.v[i] = make([]float64, len(data[i]))
		}
	}

	m.step++
	beta1, beta2 := m.config.Beta1, m.config.Beta2
	correction1 := 1 - math.Pow(beta1, float64(m.step))
	correction2 := 1 - math.Pow(beta2, float64(m.step))

	for i, g := range gradData {
		mom, vel, w := m.m[i], m.v[i], data[i]
		sq := floats.MulTo(make([]float64, len(g)), g, g)

		floats.Scale(beta1, mom)
		floats.AddScaled(mom, 1-beta1, g)
		floats.Scale(beta2, vel)
		floats.AddScaled(vel, 1-beta2, sq)

		for j := range w {
			mHat := mom[j] / correction1
			vHat := vel[j] / correction2
			w[j] -= lr * mHat / (math.Sqrt(vHat) + m.config.Epsilon)
		}
	}
	return nil
}

// Steps returns the number of updates taken
func (m *ManagedAdam) Steps() int {
	return m.step
}
