package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MLP implements a multi-layered perceptron whose forward pass has been
// added to a computational graph on some input node.
type MLP struct {
	g          *G.ExprGraph
	layers     []*FCLayer
	input      *G.Node
	numOutputs int
	numInputs  int
	batchSize  int

	learnables G.Nodes
	prediction *G.Node
}

// NewMLPFromInput returns a new MLP that has a specific node as its
// input node. If multiple input nodes are given, they are first
// concatenated along the feature (column) dimension.
//
// For index i, hiddenSizes[i] is the number of nodes in hidden layer i;
// biases[i] is true if the hidden layer will contain a bias unit and
// false otherwise; and activations[i] is the activation function for
// hidden layer i. If addFinalLayer is true, a final layer with a bias
// and no activation is added so that the network predicts outputs
// values per sample. Otherwise, the last hidden layer must have outputs
// nodes. Learnables are named with the given prefix.
func NewMLPFromInput(inputs []*G.Node, outputs int, hiddenSizes []int,
	biases []bool, init G.InitWFn, activations []*Activation, prefix string,
	addFinalLayer bool) (*MLP, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("newMLPFromInput: no input nodes")
	}

	// Ensure we have one activation per layer
	if len(hiddenSizes) != len(activations) {
		msg := "newMLPFromInput: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}

	// Ensure one bias bool per layer
	if len(hiddenSizes) != len(biases) {
		msg := "newMLPFromInput: invalid number of biases\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	// Concatenate inputs if necessary
	input := inputs[0]
	if len(inputs) > 1 {
		var err error
		if input, err = G.Concat(1, inputs...); err != nil {
			return nil, fmt.Errorf("newMLPFromInput: could not concatenate "+
				"inputs: %w", err)
		}
	}

	if !input.IsMatrix() {
		return nil, fmt.Errorf("newMLPFromInput: input must be a matrix")
	}

	batch := input.Shape()[0]
	features := input.Shape()[1]

	sizes := append([]int(nil), hiddenSizes...)
	useBias := append([]bool(nil), biases...)
	acts := append([]*Activation(nil), activations...)

	// If required, add a final linear layer with no activation to ensure
	// outputs heads are predicted by the network
	if addFinalLayer {
		sizes = append(sizes, outputs)
		useBias = append(useBias, true)
		acts = append(acts, Identity())
	} else if len(sizes) == 0 || outputs != sizes[len(sizes)-1] {
		msg := "newMLPFromInput: claimed output is of size %v but " +
			"final network layer is of size %v"
		last := features
		if len(sizes) > 0 {
			last = sizes[len(sizes)-1]
		}
		return nil, fmt.Errorf(msg, outputs, last)
	}

	layers := make([]*FCLayer, len(sizes))
	in := features
	for i := range sizes {
		name := fmt.Sprintf("%vL%d", prefix, i)
		layers[i] = NewFCLayer(input.Graph(), in, sizes[i], useBias[i],
			acts[i], init, name)
		in = sizes[i]
	}

	net := &MLP{
		g:          input.Graph(),
		layers:     layers,
		input:      input,
		numOutputs: outputs,
		numInputs:  features,
		batchSize:  batch,
	}

	if _, err := net.Fwd(input); err != nil {
		msg := "newMLPFromInput: could not compute forward pass: %w"
		return nil, fmt.Errorf(msg, err)
	}

	return net, nil
}

// NewMultiHeadMLP creates and returns a new multi-layered perceptron
// that has multiple output nodes. The number of outputs nodes is equal
// to outputs. The graph parameter g is populated with the MLP and with
// an input node of shape (batch, features).
//
// The MLP has number of layers equal to len(hiddenSizes) + 1, the last
// of which has a bias unit and no activation.
func NewMultiHeadMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (*MLP, error) {
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	return NewMLPFromInput([]*G.Node{input}, outputs, hiddenSizes, biases,
		init, activations, "", true)
}

// Graph returns the computational graph of the MLP.
func (m *MLP) Graph() *G.ExprGraph {
	return m.g
}

// BatchSize returns the batch size of inputs to the MLP
func (m *MLP) BatchSize() int {
	return m.batchSize
}

// Features returns the number of features in a single input row
func (m *MLP) Features() int {
	return m.numInputs
}

// Outputs returns the number of outputs from the network
func (m *MLP) Outputs() int {
	return m.numOutputs
}

// Input returns the input node of the MLP
func (m *MLP) Input() *G.Node {
	return m.input
}

// SetInput sets the value of the input node before running the forward
// pass. The input is in row major order. SetInput can only be used when
// the MLP was created with a single input node.
func (m *MLP) SetInput(input []float64) error {
	if len(input) != m.numInputs*m.batchSize {
		return fmt.Errorf("setInput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", m.numInputs*m.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(m.input.Shape()...),
	)
	return G.Let(m.input, inputTensor)
}

// Learnables returns the learnable nodes of the MLP, layer by layer
// with each layer's weights before its bias
func (m *MLP) Learnables() G.Nodes {
	if m.learnables == nil {
		learnables := make(G.Nodes, 0, 2*len(m.layers))
		for _, l := range m.layers {
			learnables = append(learnables, l.Learnables()...)
		}
		m.learnables = learnables
	}
	return m.learnables
}

// Fwd performs the forward pass of the MLP on the input node
func (m *MLP) Fwd(input *G.Node) (*G.Node, error) {
	if !input.IsMatrix() || input.Shape()[1] != m.numInputs {
		return nil, fmt.Errorf("fwd: invalid shape for input to neural net:"+
			" \n\twant(%v) \n\thave(%v)", m.numInputs, input.Shape())
	}

	pred := input
	var err error
	for i, l := range m.layers {
		if pred, err = l.Fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %w"
			return nil, fmt.Errorf(msg, i, err)
		}
	}

	m.prediction = pred
	return pred, nil
}

// Prediction returns the node of the computational graph the stores
// the output of the MLP
func (m *MLP) Prediction() *G.Node {
	return m.prediction
}
