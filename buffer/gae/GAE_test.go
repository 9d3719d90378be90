package gae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestAdvantages(t *testing.T) {
	tests := []struct {
		name        string
		rewards     []float64
		values      []float64
		lastVal     float64
		gamma       float64
		lambda      float64
		wantAdv     []float64
		wantTargets []float64
	}{
		{
			name:        "monteCarlo",
			rewards:     []float64{1, 1, 1},
			values:      []float64{0, 0, 0},
			gamma:       1,
			lambda:      1,
			wantAdv:     []float64{3, 2, 1},
			wantTargets: []float64{3, 2, 1},
		},
		{
			name:        "discounted",
			rewards:     []float64{1, 1, 1},
			values:      []float64{0, 0, 0},
			gamma:       0.5,
			lambda:      1,
			wantAdv:     []float64{1.75, 1.5, 1},
			wantTargets: []float64{1.75, 1.5, 1},
		},
		{
			// λ = 0 gives one step TD errors
			name:        "td",
			rewards:     []float64{1, 0},
			values:      []float64{0.5, 1},
			lastVal:     2,
			gamma:       0.9,
			lambda:      0,
			wantAdv:     []float64{1 + 0.9*1 - 0.5, 0 + 0.9*2 - 1},
			wantTargets: []float64{1 + 0.9*1, 0.9 * 2},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			adv, targets := Advantages(test.rewards, test.values, test.lastVal,
				test.gamma, test.lambda)
			assert.InDeltaSlice(t, test.wantAdv, adv, 1e-12)
			assert.InDeltaSlice(t, test.wantTargets, targets, 1e-12)
		})
	}
}

func TestStandardize(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	Standardize(x)
	mean, std := stat.MeanStdDev(x, nil)
	assert.InDelta(t, 0, mean, 1e-12)
	assert.InDelta(t, 1, std, 1e-6)

	single := []float64{5}
	Standardize(single)
	assert.InDelta(t, 0, single[0], 1e-12)
}

func TestBuffer(t *testing.T) {
	b, err := New(2, 3, 1, 2, 1, 3, 1, 1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		f := float64(i)
		err := b.Store(
			[]float64{f, f},
			[]float64{f, f, f},
			[]float64{f},
			[][]float64{{f + 1}, {f + 2}},
			1,
			0,
		)
		require.NoError(t, err)
	}

	err = b.Store([]float64{0, 0}, []float64{0, 0, 0}, []float64{0},
		[][]float64{{0}, {0}}, 0, 0)
	assert.True(t, IsFull(err))

	b.FinishPath(0)
	batch, err := b.Get()
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Size())
	r, c := batch.State.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
	require.Len(t, batch.OpponentActions, 2)
	assert.Equal(t, 4.0, batch.OpponentActions[1].At(2, 0))

	assert.InDeltaSlice(t, []float64{3, 2, 1}, batch.ValueTargets, 1e-12)
	assert.InDeltaSlice(t, []float64{3, 2, 1}, batch.Returns, 1e-12)
	assert.InDelta(t, 0, stat.Mean(batch.Advantages, nil), 1e-12)
	assert.Greater(t, batch.Advantages[0], batch.Advantages[2])

	// The buffer is empty after sampling
	_, err = b.Get()
	assert.True(t, IsNotFull(err))
}

func TestBufferBootstrapsAcrossPaths(t *testing.T) {
	b, err := New(1, 1, 1, 0, 0, 2, 1, 1)
	require.NoError(t, err)

	require.NoError(t, b.Store([]float64{0}, []float64{0}, []float64{0}, nil,
		1, 0))
	b.FinishPath(10)
	require.NoError(t, b.Store([]float64{0}, []float64{0}, []float64{0}, nil,
		1, 0))

	// The second path is finished on Get with no bootstrap
	batch, err := b.Get()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{11, 1}, batch.ValueTargets, 1e-12)
	assert.Empty(t, batch.OpponentActions)
}

func TestBufferValidation(t *testing.T) {
	_, err := New(1, 1, 1, 1, 0, 2, 1, 1)
	assert.Error(t, err)

	_, err = New(1, 1, 1, 0, 0, 0, 1, 1)
	assert.Error(t, err)

	_, err = New(1, 1, 1, 0, 0, 2, 1.5, 1)
	assert.Error(t, err)

	b, err := New(1, 1, 1, 1, 1, 2, 1, 1)
	require.NoError(t, err)
	err = b.Store([]float64{0}, []float64{0}, []float64{0}, nil, 0, 0)
	assert.Error(t, err)
	assert.False(t, IsFull(err))
}
