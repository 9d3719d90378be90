package network

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestMultiHeadMLPForward(t *testing.T) {
	g := G.NewGraph()
	net, err := NewMultiHeadMLP(2, 2, 1, g, []int{3}, []bool{true}, G.Ones(),
		[]*Activation{Identity()})
	require.NoError(t, err)

	assert.Equal(t, 2, net.Features())
	assert.Equal(t, 2, net.BatchSize())
	assert.Equal(t, 1, net.Outputs())

	learnables := net.Learnables()
	require.Len(t, learnables, 4)
	assert.Equal(t, tensor.Shape{2, 3}, learnables[0].Shape())
	assert.Equal(t, tensor.Shape{1, 3}, learnables[1].Shape())
	assert.Equal(t, tensor.Shape{3, 1}, learnables[2].Shape())
	assert.Equal(t, tensor.Shape{1, 1}, learnables[3].Shape())

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	require.NoError(t, net.SetInput([]float64{1, 2, 3, 4}))
	require.NoError(t, vm.RunAll())

	// Each hidden unit sums its inputs and the output sums the hidden
	// units, so row [1, 2] predicts 3 * 3 = 9
	assert.InDeltaSlice(t, []float64{9, 21}, net.Prediction().Value().Data(),
		1e-12)
}

func TestMLPFromInputsConcatenates(t *testing.T) {
	g := G.NewGraph()
	a := G.NewMatrix(g, tensor.Float64, G.WithShape(1, 2), G.WithName("a"),
		G.WithValue(tensor.New(tensor.WithShape(1, 2),
			tensor.WithBacking([]float64{1, 2}))))
	b := G.NewMatrix(g, tensor.Float64, G.WithShape(1, 1), G.WithName("b"),
		G.WithValue(tensor.New(tensor.WithShape(1, 1),
			tensor.WithBacking([]float64{4}))))

	net, err := NewMLPFromInput([]*G.Node{a, b}, 2, []int{2}, []bool{false},
		G.Ones(), []*Activation{ReLU()}, "enc", false)
	require.NoError(t, err)
	assert.Equal(t, 3, net.Features())
	require.Len(t, net.Learnables(), 1)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	assert.InDeltaSlice(t, []float64{7, 7}, net.Prediction().Value().Data(),
		1e-12)
}

func TestMLPValidation(t *testing.T) {
	g := G.NewGraph()

	_, err := NewMultiHeadMLP(2, 1, 1, g, []int{3}, []bool{true, true},
		G.Zeroes(), []*Activation{ReLU()})
	assert.Error(t, err)

	_, err = NewMultiHeadMLP(2, 1, 1, g, []int{3}, []bool{true},
		G.Zeroes(), nil)
	assert.Error(t, err)

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(1, 2),
		G.WithName("x"), G.WithInit(G.Zeroes()))
	_, err = NewMLPFromInput([]*G.Node{input}, 4, []int{3}, []bool{true},
		G.Zeroes(), []*Activation{ReLU()}, "", false)
	assert.Error(t, err)

	_, err = NewMLPFromInput(nil, 4, nil, nil, G.Zeroes(), nil, "", true)
	assert.Error(t, err)
}

func TestSetInputLength(t *testing.T) {
	g := G.NewGraph()
	net, err := NewMultiHeadMLP(2, 2, 1, g, nil, nil, G.Zeroes(), nil)
	require.NoError(t, err)

	assert.Error(t, net.SetInput([]float64{1, 2, 3}))
	assert.NoError(t, net.SetInput([]float64{1, 2, 3, 4}))
}

func TestActivationText(t *testing.T) {
	for _, name := range []string{"relu", "tanh", "sigmoid", "identity"} {
		act, err := NewActivation(name)
		require.NoError(t, err)
		assert.Equal(t, name, act.String())

		data, err := json.Marshal(act)
		require.NoError(t, err)

		var decoded Activation
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, name, decoded.String())
	}

	_, err := NewActivation("softsign")
	assert.Error(t, err)
	assert.True(t, Identity().IsIdentity())
}
