package ccmlp

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/ccmarl/agent"
	"github.com/samuelfneumann/ccmarl/environment"
	"github.com/samuelfneumann/ccmarl/network"
	"github.com/samuelfneumann/ccmarl/solver"
	"github.com/samuelfneumann/ccmarl/utils/tensorutils"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// actor holds the policy graph along with the policy gradient
// surrogate objective built on it
type actor struct {
	discrete   bool
	numActions int // Number of actions or action dimensions

	g        *G.ExprGraph
	obs      *G.Node
	net      *network.MLP // nil if the actor has no hidden layers
	hidden   *G.Node
	out      *G.Node // logits, or [mean | log std]
	mean     *G.Node
	logStd   *G.Node
	heads    []*network.FCLayer
	actions  *G.Node // one hot [B, K] or raw [B, D]
	adv      *G.Node // [B]
	logProbs *G.Node // [B]

	learnables G.Nodes
	objective  *solver.Objective

	features *mat.Dense
}

func newActor(c Config, spec environment.Spec, act *network.Activation) (
	*actor, error) {
	g := G.NewGraph()
	a := &actor{
		discrete: spec.IsDiscrete(),
		g:        g,
	}
	if a.discrete {
		a.numActions = spec.NumActions()
	} else {
		a.numActions = spec.Dims()
	}

	a.obs = G.NewMatrix(g, tensor.Float64, G.WithShape(c.BatchSize, c.ObsDim),
		G.WithName("obs"), G.WithInit(G.Zeroes()))

	init := c.ActorInit.InitWFn()

	a.hidden = a.obs
	featureDim := c.ObsDim
	if len(c.ActorHidden) > 0 {
		biases := make([]bool, len(c.ActorHidden))
		acts := make([]*network.Activation, len(c.ActorHidden))
		for i := range biases {
			biases[i] = true
			acts[i] = act
		}
		featureDim = c.ActorHidden[len(c.ActorHidden)-1]

		net, err := network.NewMLPFromInput([]*G.Node{a.obs}, featureDim,
			c.ActorHidden, biases, init, acts, "actor", false)
		if err != nil {
			return nil, fmt.Errorf("newActor: %w", err)
		}
		a.net = net
		a.hidden = net.Prediction()
		a.learnables = append(a.learnables, net.Learnables()...)
	}

	var err error
	if a.discrete {
		logits := network.NewFCLayer(g, featureDim, a.numActions, true, nil,
			init, "actorLogits")
		a.heads = []*network.FCLayer{logits}
		if a.out, err = logits.Fwd(a.hidden); err != nil {
			return nil, fmt.Errorf("newActor: %w", err)
		}
	} else {
		// Separate heads for the mean and log standard deviation so that
		// the graph never slices the policy outputs
		mean := network.NewFCLayer(g, featureDim, a.numActions, true, nil,
			init, "actorMean")
		logStd := network.NewFCLayer(g, featureDim, a.numActions, true, nil,
			init, "actorLogStd")
		a.heads = []*network.FCLayer{mean, logStd}

		if a.mean, err = mean.Fwd(a.hidden); err != nil {
			return nil, fmt.Errorf("newActor: %w", err)
		}
		if a.logStd, err = logStd.Fwd(a.hidden); err != nil {
			return nil, fmt.Errorf("newActor: %w", err)
		}
		if a.out, err = G.Concat(1, a.mean, a.logStd); err != nil {
			return nil, fmt.Errorf("newActor: could not concatenate "+
				"heads: %w", err)
		}
	}
	for _, h := range a.heads {
		a.learnables = append(a.learnables, h.Learnables()...)
	}

	if err := a.buildObjective(c.BatchSize); err != nil {
		return nil, fmt.Errorf("newActor: %w", err)
	}
	return a, nil
}

// buildObjective adds the policy gradient surrogate
// mean(log π(a|s) * A) to the actor graph
func (a *actor) buildObjective(batch int) error {
	a.actions = G.NewMatrix(a.g, tensor.Float64,
		G.WithShape(batch, a.numActions), G.WithName("actions"),
		G.WithInit(G.Zeroes()))
	a.adv = G.NewVector(a.g, tensor.Float64, G.WithShape(batch),
		G.WithName("advantages"), G.WithInit(G.Zeroes()))

	var err error
	if a.discrete {
		a.logProbs, err = categoricalLogProb(a.out, a.actions)
	} else {
		a.logProbs, err = gaussianLogProb(a.mean, a.logStd, a.actions)
	}
	if err != nil {
		return fmt.Errorf("buildObjective: %w", err)
	}

	weighted, err := G.HadamardProd(a.logProbs, a.adv)
	if err != nil {
		return fmt.Errorf("buildObjective: could not weight log "+
			"probabilities: %w", err)
	}
	surrogate, err := G.Mean(weighted)
	if err != nil {
		return fmt.Errorf("buildObjective: could not compute mean: %w", err)
	}

	a.objective, err = solver.NewObjective(surrogate, a.learnables)
	if err != nil {
		return fmt.Errorf("buildObjective: %w", err)
	}
	return nil
}

// forward runs the actor graph on obs and caches the actor features
func (a *actor) forward(obs *mat.Dense) (*mat.Dense, error) {
	if err := bind("forward", a.obs, obs); err != nil {
		return nil, err
	}

	var out, features *mat.Dense
	err := a.objective.Evaluate(func() error {
		var err error
		if out, err = nodeMat(a.out); err != nil {
			return err
		}
		features, err = nodeMat(a.hidden)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.features = features
	return out, nil
}

// bindObjective binds actions and advantages to the actor objective.
// Discrete actions are given as a single column of action indices.
func (a *actor) bindObjective(actions *mat.Dense, adv []float64) error {
	const op = "actorObjective"
	if a.features == nil {
		return fmt.Errorf("%v: %w: objective requested before a policy "+
			"forward pass", op, agent.ErrPrecondition)
	}
	if actions == nil {
		return &solver.UpdateError{
			Op:  op,
			Err: fmt.Errorf("%w: no actions given", solver.ErrShapeMismatch),
		}
	}

	encoded := actions
	if a.discrete {
		oneHot, err := tensorutils.OneHot(actions, a.numActions)
		if err != nil {
			return &solver.UpdateError{
				Op:  op,
				Err: fmt.Errorf("%w: %v", solver.ErrShapeMismatch, err),
			}
		}
		encoded = oneHot
	}

	if err := bind(op, a.actions, encoded); err != nil {
		return err
	}
	return bindVec(op, a.adv, adv)
}

// categoricalLogProb returns the log probability of the one hot
// actions under the categorical distribution with the given logits
func categoricalLogProb(logits, actions *G.Node) (*G.Node, error) {
	taken, err := G.HadamardProd(actions, logits)
	if err != nil {
		return nil, fmt.Errorf("categoricalLogProb: %w", err)
	}
	taken, err = G.Sum(taken, 1)
	if err != nil {
		return nil, fmt.Errorf("categoricalLogProb: %w", err)
	}

	lse, err := logSumExp(logits)
	if err != nil {
		return nil, fmt.Errorf("categoricalLogProb: %w", err)
	}
	return G.Sub(taken, lse)
}

// logSumExp computes the numerically stable log of the sum of the
// exponentials of each row of logits
func logSumExp(logits *G.Node) (*G.Node, error) {
	rows := logits.Shape()[0]

	max, err := G.Max(logits, 1)
	if err != nil {
		return nil, fmt.Errorf("logSumExp: could not compute max: %w", err)
	}
	maxCol, err := G.Reshape(max, tensor.Shape{rows, 1})
	if err != nil {
		return nil, fmt.Errorf("logSumExp: %w", err)
	}

	exponent, err := G.BroadcastSub(logits, maxCol, nil, []byte{1})
	if err != nil {
		return nil, fmt.Errorf("logSumExp: could not subtract max: %w", err)
	}
	exponent, err = G.Exp(exponent)
	if err != nil {
		return nil, fmt.Errorf("logSumExp: %w", err)
	}

	sum, err := G.Sum(exponent, 1)
	if err != nil {
		return nil, fmt.Errorf("logSumExp: %w", err)
	}
	log, err := G.Log(sum)
	if err != nil {
		return nil, fmt.Errorf("logSumExp: %w", err)
	}
	return G.Add(max, log)
}

// gaussianLogProb returns the log density of actions under the diagonal
// Gaussian with the given mean and log standard deviation
func gaussianLogProb(mean, logStd, actions *G.Node) (*G.Node, error) {
	diff, err := G.Sub(actions, mean)
	if err != nil {
		return nil, fmt.Errorf("gaussianLogProb: %w", err)
	}
	std, err := G.Exp(logStd)
	if err != nil {
		return nil, fmt.Errorf("gaussianLogProb: %w", err)
	}
	z, err := G.HadamardDiv(diff, std)
	if err != nil {
		return nil, fmt.Errorf("gaussianLogProb: %w", err)
	}
	z, err = G.Square(z)
	if err != nil {
		return nil, fmt.Errorf("gaussianLogProb: %w", err)
	}

	// -0.5 ((a - μ) / σ)² - log σ - log √(2π)
	negativeHalf := G.NewConstant(-0.5)
	exponent, err := G.HadamardProd(negativeHalf, z)
	if err != nil {
		return nil, fmt.Errorf("gaussianLogProb: %w", err)
	}
	logRoot2Pi := G.NewConstant(math.Log(math.Sqrt(2 * math.Pi)))
	norm, err := G.Add(logStd, logRoot2Pi)
	if err != nil {
		return nil, fmt.Errorf("gaussianLogProb: %w", err)
	}
	logProb, err := G.Sub(exponent, norm)
	if err != nil {
		return nil, fmt.Errorf("gaussianLogProb: %w", err)
	}

	return G.Sum(logProb, 1)
}

// nodeMat returns a copy of the value of n as a *mat.Dense
func nodeMat(n *G.Node) (*mat.Dense, error) {
	t, ok := n.Value().(tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("node %v has unsupported value type %T",
			n.Name(), n.Value())
	}
	return tensorutils.ToMat(t)
}
