package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// FCLayer implements a fully connected layer of a feed forward neural
// network. The learnables of an FCLayer are created with the layer, so
// that the layer may be connected to its input after construction.
type FCLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// NewFCLayer adds the learnables of a fully connected layer mapping in
// features to out features to the graph g. Weights are drawn from init
// and biases, if used, start at zero. A nil activation is the identity.
func NewFCLayer(g *G.ExprGraph, in, out int, bias bool, act *Activation,
	init G.InitWFn, name string) *FCLayer {
	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(in, out),
		G.WithName(name+"W"),
		G.WithInit(init),
	)

	var b *G.Node
	if bias {
		b = G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(1, out),
			G.WithName(name+"b"),
			G.WithInit(G.Zeroes()),
		)
	}

	if act == nil {
		act = Identity()
	}

	return &FCLayer{
		weights: weights,
		bias:    b,
		act:     act,
	}
}

// Fwd adds the forward pass of the FCLayer on x to the computational
// graph. The input x must be a matrix with one column per input
// feature of the layer.
func (f *FCLayer) Fwd(x *G.Node) (*G.Node, error) {
	if !x.IsMatrix() || x.Shape()[1] != f.In() {
		return nil, fmt.Errorf("fwd: invalid input shape %v for layer "+
			"with %d inputs", x.Shape(), f.In())
	}

	x, err := G.Mul(x, f.weights)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not multiply weights: %w", err)
	}
	if f.bias != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x, err = G.BroadcastAdd(x, f.bias, nil, []byte{0})
		if err != nil {
			return nil, fmt.Errorf("fwd: could not add bias: %w", err)
		}
	}
	if f.act.IsIdentity() {
		return x, nil
	}
	return f.act.fwd(x)
}

// Learnables returns the weights and, if used, the bias of the layer
func (f *FCLayer) Learnables() G.Nodes {
	if f.bias == nil {
		return G.Nodes{f.weights}
	}
	return G.Nodes{f.weights, f.bias}
}

// In returns the number of input features of the layer
func (f *FCLayer) In() int {
	return f.weights.Shape()[0]
}

// Out returns the number of output features of the layer
func (f *FCLayer) Out() int {
	return f.weights.Shape()[1]
}

func (f *FCLayer) Activation() *Activation {
	return f.act
}

func (f *FCLayer) Bias() *G.Node {
	return f.bias
}

func (f *FCLayer) Weights() *G.Node {
	return f.weights
}
