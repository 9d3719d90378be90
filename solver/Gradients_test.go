package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestObjectiveGradients(t *testing.T) {
	g := G.NewGraph()
	w := G.NewVector(g, tensor.Float64, G.WithShape(3), G.WithName("w"),
		G.WithValue(tensor.New(
			tensor.WithShape(3),
			tensor.WithBacking([]float64{1, 2, 3}),
		)))
	unused := G.NewVector(g, tensor.Float64, G.WithShape(2),
		G.WithName("unused"), G.WithInit(G.Zeroes()))

	cost := G.Must(G.Sum(G.Must(G.Square(w))))
	obj, err := NewObjective(cost, G.Nodes{w})
	require.NoError(t, err)
	defer obj.Close()

	grads, err := obj.Gradients(G.Nodes{w, unused})
	require.NoError(t, err)
	require.Len(t, grads, 2)

	assert.InDeltaSlice(t, []float64{2, 4, 6}, grads[0].Data(), 1e-12)
	assert.Nil(t, grads[1])
	assert.InDelta(t, 14, obj.Value(), 1e-12)

	// Gradients are recomputed from the current parameter values
	copy(w.Value().Data().([]float64), []float64{0, 0, 1})
	grads, err = obj.Gradients(G.Nodes{w})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 2}, grads[0].Data(), 1e-12)
}

func TestObjectiveRequiresScalarCost(t *testing.T) {
	g := G.NewGraph()
	w := G.NewVector(g, tensor.Float64, G.WithShape(3), G.WithName("w"),
		G.WithInit(G.Zeroes()))

	_, err := NewObjective(G.Must(G.Square(w)), G.Nodes{w})
	assert.Error(t, err)
}

func TestObjectiveWithClippedAdam(t *testing.T) {
	g := G.NewGraph()
	w := G.NewVector(g, tensor.Float64, G.WithShape(2), G.WithName("w"),
		G.WithValue(tensor.New(
			tensor.WithShape(2),
			tensor.WithBacking([]float64{1, -1}),
		)))
	cost := G.Must(G.Sum(G.Must(G.Square(w))))
	obj, err := NewObjective(cost, G.Nodes{w})
	require.NoError(t, err)
	defer obj.Close()

	adam := NewClippedAdam(ClippedAdamConfig{}, false, quietLogger())
	for i := 0; i < 5; i++ {
		require.NoError(t, adam.Update(obj, G.Nodes{w}, G.Nodes{w}, 0.1, 1))
	}

	got := w.Value().Data().([]float64)
	assert.Less(t, got[0], 1.0)
	assert.Greater(t, got[1], -1.0)
}
