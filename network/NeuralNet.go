// Package network implements feed forward neural networks built on
// Gorgonia computational graphs.
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a network whose forward pass has been added to a
// computational graph. Its learnables are the parameters that a solver
// updates, in a fixed order.
type NeuralNet interface {
	Graph() *G.ExprGraph
	BatchSize() int
	Features() int
	Outputs() int
	Input() *G.Node
	SetInput([]float64) error
	Learnables() G.Nodes
	Prediction() *G.Node
}
