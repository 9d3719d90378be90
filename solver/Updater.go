package solver

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Updater applies a single optimization step to a list of parameters
// using the gradients of an objective.
//
// Each call first resets any gradient accumulated on the nodes of
// module, the full parameter set of the network that owns params, then
// requests fresh gradients for params from the GradientProvider, clips
// them by their global norm to at most maxNorm, and updates params in
// place with step size lr. Either every parameter is updated or none
// is.
type Updater interface {
	Update(obj GradientProvider, module, params G.Nodes, lr,
		maxNorm float64) error
}

// zeroGrads zeroes the gradients accumulated on the dual values of
// nodes. Nodes without an accumulated gradient are skipped.
func zeroGrads(nodes G.Nodes) {
	for _, n := range nodes {
		grad, err := n.Grad()
		if err != nil {
			continue
		}
		if dense, ok := grad.(*tensor.Dense); ok {
			dense.Zero()
		}
	}
}

// paramData returns the backing data of a parameter node, which must
// hold a float64 *tensor.Dense.
func paramData(n *G.Node) ([]float64, error) {
	dense, ok := n.Value().(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("parameter %v has unsupported value type %T",
			n.Name(), n.Value())
	}
	data, ok := dense.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("parameter %v has unsupported dtype %v",
			n.Name(), dense.Dtype())
	}
	return data, nil
}

// gradients requests the gradients of obj with respect to params and
// returns them along with the backing data of params. Nil gradients are
// replaced by zeroes. An error wrapping ErrShapeMismatch is returned if
// any gradient's shape differs from its parameter's shape.
func gradients(op string, obj GradientProvider, params G.Nodes) (
	grads []*tensor.Dense, gradData, data [][]float64, err error) {
	grads, err = obj.Gradients(params)
	if err != nil {
		return nil, nil, nil, &UpdateError{Op: op, Err: err}
	}
	if len(grads) != len(params) {
		return nil, nil, nil, &UpdateError{
			Op: op,
			Err: fmt.Errorf("%w: %d gradients for %d parameters",
				ErrShapeMismatch, len(grads), len(params)),
		}
	}

	gradData = make([][]float64, len(params))
	data = make([][]float64, len(params))
	for i, p := range params {
		if data[i], err = paramData(p); err != nil {
			return nil, nil, nil, &UpdateError{Op: op, Err: err}
		}

		if grads[i] == nil {
			grads[i] = tensor.New(
				tensor.WithShape(p.Shape()...),
				tensor.WithBacking(make([]float64, len(data[i]))),
			)
		} else if !grads[i].Shape().Eq(p.Shape()) {
			return nil, nil, nil, &UpdateError{
				Op: op,
				Err: fmt.Errorf("%w: gradient %d has shape %v, parameter %v "+
					"has shape %v", ErrShapeMismatch, i, grads[i].Shape(),
					p.Name(), p.Shape()),
			}
		}

		g, ok := grads[i].Data().([]float64)
		if !ok || len(g) != len(data[i]) {
			return nil, nil, nil, &UpdateError{
				Op: op,
				Err: fmt.Errorf("%w: gradient %d does not match parameter %v",
					ErrShapeMismatch, i, p.Name()),
			}
		}
		gradData[i] = g
	}

	return grads, gradData, data, nil
}

// clip clips gradData in place and logs the gradient norms whenever
// clipping changed them.
func clip(op string, gradData [][]float64, maxNorm float64,
	log logrus.FieldLogger) error {
	before, after, err := ClipByGlobalNorm(gradData, maxNorm)
	if err != nil {
		return err
	}

	if before != after {
		log.WithFields(logrus.Fields{
			"op":     op,
			"before": before,
			"after":  after,
			"bound":  maxNorm,
		}).Debug("clipped gradients")
	}
	return nil
}

// sameSizes returns an error wrapping ErrShapeMismatch if moments was
// not created for parameters with the sizes of data
func sameSizes(op string, moments, data [][]float64) error {
	if len(moments) != len(data) {
		return &UpdateError{
			Op: op,
			Err: fmt.Errorf("%w: optimizer state holds %d moments, have %d "+
				"parameters", ErrShapeMismatch, len(moments), len(data)),
		}
	}
	for i := range data {
		if len(moments[i]) != len(data[i]) {
			return &UpdateError{
				Op: op,
				Err: fmt.Errorf("%w: moment %d has size %d, parameter has "+
					"size %d", ErrShapeMismatch, i, len(moments[i]),
					len(data[i])),
			}
		}
	}
	return nil
}

// negate negates all gradients in place
func negate(gradData [][]float64) {
	for _, g := range gradData {
		floats.Scale(-1, g)
	}
}

func validateStep(op string, lr, maxNorm float64) error {
	if lr <= 0 {
		return fmt.Errorf("%v: step size must be positive, have %v", op, lr)
	}
	if maxNorm <= 0 {
		return fmt.Errorf("%v: gradient clip must be positive, have %v", op,
			maxNorm)
	}
	return nil
}
