package initwfn

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// DefaultNormCStd is the column norm used for value heads
const DefaultNormCStd = 0.01

// NormCConfig implements a configuration of the column-normalized
// Gaussian initializer. Weights are drawn from a standard normal
// distribution and then each column, holding the incoming weights of
// one output unit, is scaled to have L2 norm Std. Vectors are treated
// as a single column.
type NormCConfig struct {
	Std  float64
	Seed uint64
}

// NewNormC returns a new column-normalized weight initializer
func NewNormC(std float64, seed uint64) (*InitWFn, error) {
	return newInitWFn(NormCConfig{Std: std, Seed: seed})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (n NormCConfig) Type() Type {
	return NormC
}

// Validate returns an error if the column norm is not positive
func (n NormCConfig) Validate() error {
	if n.Std <= 0 {
		return fmt.Errorf("validate: std must be positive, have %v", n.Std)
	}
	return nil
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn. Successive weights created by the returned InitWFn continue
// the same random stream.
func (n NormCConfig) Create() G.InitWFn {
	normal := distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewSource(n.Seed),
	}

	return func(dt tensor.Dtype, s ...int) interface{} {
		rows, cols := 1, 1
		switch len(s) {
		case 0:
		case 1:
			rows = s[0]
		default:
			rows = s[0]
			cols = tensor.Shape(s[1:]).TotalSize()
		}

		weights := make([]float64, rows*cols)
		for i := range weights {
			weights[i] = normal.Rand()
		}
		normalizeColumns(weights, rows, cols, n.Std)

		switch dt {
		case tensor.Float64:
			return weights
		case tensor.Float32:
			out := make([]float32, len(weights))
			for i := range weights {
				out[i] = float32(weights[i])
			}
			return out
		default:
			panic(fmt.Sprintf("normC: unsupported dtype %v", dt))
		}
	}
}

// normalizeColumns scales each column of the row major matrix w so
// that its L2 norm is std.
func normalizeColumns(w []float64, rows, cols int, std float64) {
	for j := 0; j < cols; j++ {
		var sumSquares float64
		for i := 0; i < rows; i++ {
			sumSquares += w[i*cols+j] * w[i*cols+j]
		}
		if sumSquares == 0 {
			continue
		}

		scale := std / math.Sqrt(sumSquares)
		for i := 0; i < rows; i++ {
			w[i*cols+j] *= scale
		}
	}
}
