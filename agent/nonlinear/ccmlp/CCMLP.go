// Package ccmlp implements an actor-critic agent with a centralized
// critic. The actor maps local observations to action distribution
// parameters. The critic encodes the global state, optionally
// concatenated with the actions of the other agents on the team, and
// predicts a state value (or one action value per action with COMA).
package ccmlp

import (
	"fmt"

	"github.com/samuelfneumann/ccmarl/agent"
	"github.com/samuelfneumann/ccmarl/buffer/gae"
	"github.com/samuelfneumann/ccmarl/environment"
	"github.com/samuelfneumann/ccmarl/network"
	"github.com/samuelfneumann/ccmarl/solver"
	"github.com/samuelfneumann/ccmarl/utils/tensorutils"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// CCMLP implements a centralized critic multi-layered perceptron
// agent. The actor and critic live in separate computational graphs,
// so their parameter sets are disjoint.
type CCMLP struct {
	config     Config
	spec       environment.Spec
	numOutputs int
	log        logrus.FieldLogger

	actor  *actor
	critic *critic

	actorUpdater  solver.Updater
	criticUpdater solver.Updater

	registry   *agent.Registry
	trainBatch *gae.Batch
}

var _ agent.Agent = &CCMLP{}

// New returns a new CCMLP
func New(c Config, log logrus.FieldLogger) (*CCMLP, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	c, err := c.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("new: could not set defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	spec, err := c.ActionSpec()
	if err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	act, err := network.NewActivation(c.Activation)
	if err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	a, err := newActor(c, spec, act)
	if err != nil {
		return nil, fmt.Errorf("new: could not construct actor: %w", err)
	}

	cr, err := newCritic(c, act)
	if err != nil {
		return nil, fmt.Errorf("new: could not construct critic: %w", err)
	}

	log = log.WithField("model", "ccmlp")
	log.WithFields(logrus.Fields{
		"cardinality":   c.Cardinality,
		"numOutputs":    c.NumOutputs(),
		"declaredWidth": cr.declaredWidth,
		"qMode":         c.QMode(),
		"solver":        c.Solver.Type,
	}).Debug("constructed model")

	return &CCMLP{
		config:        c,
		spec:          spec,
		numOutputs:    c.NumOutputs(),
		log:           log,
		actor:         a,
		critic:        cr,
		actorUpdater:  c.Solver.Create(true, log.WithField("module", "actor")),
		criticUpdater: c.Solver.Create(false, log.WithField("module", "critic")),
		registry:      agent.NewRegistry(log),
	}, nil
}

// Config returns the configuration of the agent with defaults filled in
func (c *CCMLP) Config() Config {
	return c.config
}

// ActionSpec returns the action specification of the agent
func (c *CCMLP) ActionSpec() environment.Spec {
	return c.spec
}

// NumOutputs returns the number of outputs of the actor per row
func (c *CCMLP) NumOutputs() int {
	return c.numOutputs
}

// Forward runs the actor on a [BatchSize, ObsDim] batch of local
// observations and returns the action distribution parameters: logits
// for discrete actions, or [mean | log std] for continuous actions.
// The features of the actor's hidden layers are cached so that the
// central value function may be computed afterwards.
func (c *CCMLP) Forward(obs *mat.Dense) (*mat.Dense, error) {
	out, err := c.actor.forward(obs)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	return out, nil
}

// Features returns the actor features cached by the last call to
// Forward, or nil if Forward has not been called
func (c *CCMLP) Features() *mat.Dense {
	if c.actor.features == nil {
		return nil
	}
	return mat.DenseCopyOf(c.actor.features)
}

// ActorParameters returns the learnables of the actor
func (c *CCMLP) ActorParameters() G.Nodes {
	return append(G.Nodes(nil), c.actor.learnables...)
}

// CriticParameters returns the learnables of the global state encoder
// followed by those of the value head
func (c *CCMLP) CriticParameters() G.Nodes {
	return append(G.Nodes(nil), c.critic.learnables...)
}

// Parameters returns the learnables of both the actor and critic
func (c *CCMLP) Parameters() G.Nodes {
	params := c.ActorParameters()
	return append(params, c.critic.learnables...)
}

// LinkOtherAgentPolicy binds the policy of another agent on the team
// to id
func (c *CCMLP) LinkOtherAgentPolicy(id string, p agent.Policy) error {
	if err := c.registry.Link(id, p); err != nil {
		return fmt.Errorf("linkOtherAgentPolicy: %w", err)
	}
	return nil
}

// OtherAgentPolicy returns the policy linked under id
func (c *CCMLP) OtherAgentPolicy(id string) (agent.Policy, bool) {
	return c.registry.Lookup(id)
}

// OtherAgents returns the identifiers of all linked policies
func (c *CCMLP) OtherAgents() []string {
	return c.registry.IDs()
}

// SetTrainBatch holds b as the current training batch
func (c *CCMLP) SetTrainBatch(b gae.Batch) {
	c.trainBatch = &b
}

// TrainBatch returns the current training batch, if one has been set
func (c *CCMLP) TrainBatch() (gae.Batch, bool) {
	if c.trainBatch == nil {
		return gae.Batch{}, false
	}
	return *c.trainBatch, true
}

// Actions runs the actor on the observations of the current training
// batch
func (c *CCMLP) Actions() (*mat.Dense, error) {
	if c.trainBatch == nil {
		return nil, fmt.Errorf("actions: %w: no training batch set",
			agent.ErrPrecondition)
	}
	return c.Forward(c.trainBatch.Obs)
}

// Close releases the tape machines of the agent
func (c *CCMLP) Close() error {
	aErr := c.actor.objective.Close()
	cErr := c.critic.close()
	if aErr != nil {
		return fmt.Errorf("close: %w", aErr)
	}
	if cErr != nil {
		return fmt.Errorf("close: %w", cErr)
	}
	return nil
}

// bind sets the value of input node n to m, which must have the shape
// of n
func bind(op string, n *G.Node, m *mat.Dense) error {
	if m == nil {
		return &solver.UpdateError{
			Op:  op,
			Err: fmt.Errorf("%w: no value for %v", solver.ErrShapeMismatch, n.Name()),
		}
	}
	r, col := m.Dims()
	if !n.Shape().Eq(tensor.Shape{r, col}) {
		return &solver.UpdateError{
			Op: op,
			Err: fmt.Errorf("%w: input %v has shape %v, have (%d, %d)",
				solver.ErrShapeMismatch, n.Name(), n.Shape(), r, col),
		}
	}
	if err := G.Let(n, tensorutils.FromMat(m)); err != nil {
		return fmt.Errorf("%v: could not set %v: %w", op, n.Name(), err)
	}
	return nil
}

// bindVec sets the value of input vector n to v
func bindVec(op string, n *G.Node, v []float64) error {
	if !n.Shape().Eq(tensor.Shape{len(v)}) {
		return &solver.UpdateError{
			Op: op,
			Err: fmt.Errorf("%w: input %v has shape %v, have (%d)",
				solver.ErrShapeMismatch, n.Name(), n.Shape(), len(v)),
		}
	}
	if err := G.Let(n, tensorutils.FromSlice(v)); err != nil {
		return fmt.Errorf("%v: could not set %v: %w", op, n.Name(), err)
	}
	return nil
}
