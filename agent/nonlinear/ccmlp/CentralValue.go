package ccmlp

import (
	"fmt"

	"github.com/samuelfneumann/ccmarl/agent"
	"github.com/samuelfneumann/ccmarl/environment"
	"github.com/samuelfneumann/ccmarl/network"
	"github.com/samuelfneumann/ccmarl/solver"
	"github.com/samuelfneumann/ccmarl/utils/tensorutils"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// opponentEncoder encodes the actions of a single other agent as rows
// of the centralized critic input
type opponentEncoder func(actions *mat.Dense) (*mat.Dense, error)

// newOpponentEncoder returns the encoder of other agents' actions for
// the given action cardinality. Continuous actions are used as is and
// discrete actions are one hot encoded over numOutputs actions.
func newOpponentEncoder(c environment.Cardinality,
	numOutputs int) opponentEncoder {
	if c == environment.Discrete {
		return func(actions *mat.Dense) (*mat.Dense, error) {
			return tensorutils.OneHot(actions, numOutputs)
		}
	}
	return func(actions *mat.Dense) (*mat.Dense, error) {
		return mat.DenseCopyOf(actions), nil
	}
}

// declaredWidth returns the input width of the value head for a global
// state encoded with encodedDim features.
//
// With continuous actions, numOutputs counts a mean and log standard
// deviation per action dimension, so that half of it is the number of
// action dimensions of each other agent. The whole expression is halved
// with integer division, as models trained with this layout expect.
func declaredWidth(c Config, encodedDim int) int {
	if c.CentralInputWidth > 0 {
		return c.CentralInputWidth
	}
	if !c.OpponentActionsInCC {
		return encodedDim
	}

	others := c.NumAgents - 1
	if c.Cardinality == environment.Continuous {
		return encodedDim + c.NumOutputs()*others/2
	}
	return encodedDim + c.NumOutputs()*others
}

// critic holds the centralized value function graph. The opponent
// action input and the loss are added to the graph at the first call
// to the central value function, once the composed input width has
// been checked against the declared width of the value head.
type critic struct {
	qMode         bool
	batch         int
	numOutputs    int
	declaredWidth int
	encodedDim    int
	encode        opponentEncoder

	g         *G.ExprGraph
	state     *G.Node
	encoder   *network.MLP
	encoded   *G.Node
	valueHead *network.FCLayer

	learnables G.Nodes

	// Set when the graph is completed
	wired     bool
	opponents *G.Node // nil if no opponent actions are used
	value     *G.Node
	targets   *G.Node
	taken     *G.Node // one hot actions taken, Q mode only
	objective *solver.Objective

	evaluated bool
}

func newCritic(c Config, act *network.Activation) (*critic, error) {
	g := G.NewGraph()

	state := G.NewMatrix(g, tensor.Float64,
		G.WithShape(c.BatchSize, c.StateDim), G.WithName("state"),
		G.WithInit(G.Zeroes()))

	biases := make([]bool, len(c.CriticHidden))
	acts := make([]*network.Activation, len(c.CriticHidden))
	for i := range biases {
		biases[i] = true
		acts[i] = act
	}
	encodedDim := c.CriticHidden[len(c.CriticHidden)-1]

	encoder, err := network.NewMLPFromInput([]*G.Node{state}, encodedDim,
		c.CriticHidden, biases, c.CriticInit.InitWFn(), acts, "cc_encoder",
		false)
	if err != nil {
		return nil, fmt.Errorf("newCritic: could not construct encoder: %w",
			err)
	}

	outputs := 1
	if c.QMode() {
		outputs = c.NumOutputs()
	}
	width := declaredWidth(c, encodedDim)
	head := network.NewFCLayer(g, width, outputs, true, nil,
		c.ValueHeadInit.InitWFn(), "cc_vf")

	learnables := append(G.Nodes(nil), encoder.Learnables()...)
	learnables = append(learnables, head.Learnables()...)

	return &critic{
		qMode:         c.QMode(),
		batch:         c.BatchSize,
		numOutputs:    c.NumOutputs(),
		declaredWidth: width,
		encodedDim:    encodedDim,
		encode:        newOpponentEncoder(c.Cardinality, c.NumOutputs()),
		g:             g,
		state:         state,
		encoder:       encoder,
		encoded:       encoder.Prediction(),
		valueHead:     head,
		learnables:    learnables,
	}, nil
}

// compose encodes the actions of each other agent and concatenates them
// along the feature dimension. A nil matrix is returned if there are
// no opponent actions.
func (c *critic) compose(opponentActions []*mat.Dense) (*mat.Dense, error) {
	if len(opponentActions) == 0 {
		return nil, nil
	}

	encoded := make([]*mat.Dense, len(opponentActions))
	width := 0
	for i, a := range opponentActions {
		if a == nil {
			return nil, fmt.Errorf("%w: no actions for other agent %d",
				solver.ErrShapeMismatch, i)
		}
		if r, _ := a.Dims(); r != c.batch {
			return nil, fmt.Errorf("%w: %d action rows for other agent %d, "+
				"want %d", solver.ErrShapeMismatch, r, i, c.batch)
		}

		var err error
		if encoded[i], err = c.encode(a); err != nil {
			return nil, fmt.Errorf("%w: other agent %d: %v",
				solver.ErrShapeMismatch, i, err)
		}
		_, col := encoded[i].Dims()
		width += col
	}

	out := mat.NewDense(c.batch, width, nil)
	col := 0
	for _, e := range encoded {
		_, w := e.Dims()
		out.Slice(0, c.batch, col, col+w).(*mat.Dense).Copy(e)
		col += w
	}
	return out, nil
}

// wire completes the critic graph for opponent actions of the given
// width
func (c *critic) wire(opponentWidth int) error {
	x := c.encoded
	var opponents *G.Node
	if opponentWidth > 0 {
		opponents = G.NewMatrix(c.g, tensor.Float64,
			G.WithShape(c.batch, opponentWidth),
			G.WithName("opponent_actions"), G.WithInit(G.Zeroes()))

		var err error
		if x, err = G.Concat(1, c.encoded, opponents); err != nil {
			return fmt.Errorf("could not concatenate opponent actions: %w",
				err)
		}
	}

	value, err := c.valueHead.Fwd(x)
	if err != nil {
		return err
	}

	targets := G.NewVector(c.g, tensor.Float64, G.WithShape(c.batch),
		G.WithName("value_targets"), G.WithInit(G.Zeroes()))

	// Predictions regressed onto the targets
	var pred, taken *G.Node
	if c.qMode {
		taken = G.NewMatrix(c.g, tensor.Float64,
			G.WithShape(c.batch, c.numOutputs), G.WithName("taken_actions"),
			G.WithInit(G.Zeroes()))
		if pred, err = G.HadamardProd(value, taken); err != nil {
			return err
		}
		if pred, err = G.Sum(pred, 1); err != nil {
			return err
		}
	} else {
		if pred, err = G.Reshape(value, tensor.Shape{c.batch}); err != nil {
			return err
		}
	}

	loss, err := G.Sub(pred, targets)
	if err != nil {
		return err
	}
	if loss, err = G.Square(loss); err != nil {
		return err
	}
	if loss, err = G.Mean(loss); err != nil {
		return err
	}

	objective, err := solver.NewObjective(loss, c.learnables)
	if err != nil {
		return err
	}

	c.opponents = opponents
	c.value = value
	c.targets = targets
	c.taken = taken
	c.objective = objective
	c.wired = true
	return nil
}

// centralValue runs the critic on state and the composed opponent
// actions
func (c *critic) centralValue(state *mat.Dense,
	opponentActions []*mat.Dense) (*mat.Dense, error) {
	const op = "centralValueFunction"

	opponents, err := c.compose(opponentActions)
	if err != nil {
		return nil, &solver.UpdateError{Op: op, Err: err}
	}
	opponentWidth := 0
	if opponents != nil {
		_, opponentWidth = opponents.Dims()
	}

	if width := c.encodedDim + opponentWidth; width != c.declaredWidth {
		return nil, &solver.UpdateError{
			Op: op,
			Err: fmt.Errorf("%w: central input has width %d but the value "+
				"head expects %d", solver.ErrShapeMismatch, width,
				c.declaredWidth),
		}
	}

	if !c.wired {
		if err := c.wire(opponentWidth); err != nil {
			return nil, fmt.Errorf("%v: could not build critic: %w", op, err)
		}
	}

	if err := bind(op, c.state, state); err != nil {
		return nil, err
	}
	if opponents != nil {
		if err := bind(op, c.opponents, opponents); err != nil {
			return nil, err
		}
	}

	var value *mat.Dense
	err = c.objective.Evaluate(func() error {
		var err error
		value, err = nodeMat(c.value)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}

	c.evaluated = true
	return value, nil
}

// bindLoss binds value targets, and in Q mode the actions taken, to
// the critic loss. Actions are given as a single column of action
// indices and are ignored unless in Q mode.
func (c *critic) bindLoss(targets []float64, actions *mat.Dense) error {
	const op = "criticLoss"
	if !c.evaluated {
		return fmt.Errorf("%v: %w: loss requested before the central value "+
			"function", op, agent.ErrPrecondition)
	}

	if c.qMode {
		if actions == nil {
			return &solver.UpdateError{
				Op: op,
				Err: fmt.Errorf("%w: action values need the actions "+
					"taken", solver.ErrShapeMismatch),
			}
		}
		taken, err := tensorutils.OneHot(actions, c.numOutputs)
		if err != nil {
			return &solver.UpdateError{
				Op:  op,
				Err: fmt.Errorf("%w: %v", solver.ErrShapeMismatch, err),
			}
		}
		if err := bind(op, c.taken, taken); err != nil {
			return err
		}
	}

	return bindVec(op, c.targets, targets)
}

func (c *critic) close() error {
	if c.objective == nil {
		return nil
	}
	return c.objective.Close()
}
