package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// clipEpsilon is added to the global norm before computing the
	// clipping coefficient
	clipEpsilon = 1e-6

	// clipTolerance is the absolute amount by which the global norm may
	// exceed its bound after clipping
	clipTolerance = 1.0
)

// GlobalNorm returns the L2 norm of the concatenation of all gradients.
// The per gradient norms are combined without squaring them, so the
// result only overflows if the norm itself does.
func GlobalNorm(grads [][]float64) float64 {
	var norm float64
	for _, g := range grads {
		norm = math.Hypot(norm, floats.Norm(g, 2))
	}
	return norm
}

// ClipByGlobalNorm scales all gradients in place by a single factor so
// that their global L2 norm does not exceed maxNorm. Gradients whose
// global norm is already at most maxNorm are left untouched. The
// global norm before and after clipping is returned.
//
// An error wrapping ErrClippingInvariant is returned if the gradients
// are not finite or if the clipped norm exceeds maxNorm by more than
// the clipping tolerance.
func ClipByGlobalNorm(grads [][]float64, maxNorm float64) (before,
	after float64, err error) {
	before = GlobalNorm(grads)
	if math.IsNaN(before) || math.IsInf(before, 0) {
		return before, before, &UpdateError{
			Op:  "clipByGlobalNorm",
			Err: fmt.Errorf("%w: non-finite gradient norm %v", ErrClippingInvariant, before),
		}
	}

	coef := maxNorm / (before + clipEpsilon)
	if coef < 1 {
		for _, g := range grads {
			floats.Scale(coef, g)
		}
	}

	after = GlobalNorm(grads)
	if after-maxNorm > clipTolerance {
		return before, after, &UpdateError{
			Op: "clipByGlobalNorm",
			Err: fmt.Errorf("%w: norm after clipping %v exceeds threshold %v",
				ErrClippingInvariant, after, maxNorm),
		}
	}

	return before, after, nil
}
