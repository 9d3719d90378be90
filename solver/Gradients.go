package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GradientProvider computes the gradient of some scalar objective with
// respect to a list of parameters. Exactly one gradient is returned per
// parameter, in the same order. A nil gradient denotes a parameter that
// the objective does not depend on, which is treated as a zero
// gradient.
//
// Gradients are computed anew on each call and the returned tensors
// are owned by the caller.
type GradientProvider interface {
	Gradients(wrt G.Nodes) ([]*tensor.Dense, error)
}

// Objective implements a GradientProvider for a scalar cost node of a
// Gorgonia computational graph. Each call to Gradients runs the forward
// and backward passes of the graph with whatever values are currently
// bound to the graph's input nodes.
type Objective struct {
	cost      *G.Node
	wrt       G.Nodes
	reachable map[*G.Node]struct{}
	vm        G.VM
	value     float64
}

// NewObjective returns a new Objective which can compute the gradient
// of cost with respect to each node in wrt. The tape machine of the
// Objective is bound to the dual values of wrt, so that the graph of
// cost must not be given to another tape machine.
func NewObjective(cost *G.Node, wrt G.Nodes) (*Objective, error) {
	if !cost.IsScalar() {
		return nil, fmt.Errorf("newObjective: cost must be a scalar, "+
			"have shape %v", cost.Shape())
	}

	if _, err := G.Grad(cost, wrt...); err != nil {
		return nil, fmt.Errorf("newObjective: could not compute gradient: %w",
			err)
	}

	reachable := make(map[*G.Node]struct{}, len(wrt))
	for _, n := range wrt {
		reachable[n] = struct{}{}
	}

	vm := G.NewTapeMachine(cost.Graph(), G.BindDualValues(wrt...))

	return &Objective{
		cost:      cost,
		wrt:       wrt,
		reachable: reachable,
		vm:        vm,
	}, nil
}

// Evaluate runs the forward and backward pass of the Objective's graph.
// If fn is not nil, it is called after the passes have completed and
// before the tape machine is reset, so that it may read node values.
func (o *Objective) Evaluate(fn func() error) error {
	defer o.vm.Reset()

	if err := o.vm.RunAll(); err != nil {
		return fmt.Errorf("evaluate: could not run graph: %w", err)
	}

	if v, ok := o.cost.Value().Data().(float64); ok {
		o.value = v
	}

	if fn != nil {
		return fn()
	}
	return nil
}

// Gradients implements the GradientProvider interface. Parameters in
// wrt which the Objective was not constructed for receive a nil
// gradient.
func (o *Objective) Gradients(wrt G.Nodes) ([]*tensor.Dense, error) {
	grads := make([]*tensor.Dense, len(wrt))

	err := o.Evaluate(func() error {
		for i, n := range wrt {
			if _, ok := o.reachable[n]; !ok {
				continue
			}

			grad, err := n.Grad()
			if err != nil {
				return fmt.Errorf("gradients: no gradient for %v: %w", n, err)
			}
			dense, ok := grad.(*tensor.Dense)
			if !ok {
				return fmt.Errorf("gradients: unsupported gradient type %T "+
					"for %v", grad, n)
			}
			grads[i] = dense.Clone().(*tensor.Dense)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return grads, nil
}

// Value returns the value of the cost at the last evaluation
func (o *Objective) Value() float64 {
	return o.value
}

// Close releases the resources of the Objective's tape machine
func (o *Objective) Close() error {
	return o.vm.Close()
}
