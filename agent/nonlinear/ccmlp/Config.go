package ccmlp

import (
	"fmt"
	"strings"

	"github.com/samuelfneumann/ccmarl/agent"
	"github.com/samuelfneumann/ccmarl/environment"
	"github.com/samuelfneumann/ccmarl/initwfn"
	"github.com/samuelfneumann/ccmarl/network"
	"github.com/samuelfneumann/ccmarl/solver"
	"github.com/sirupsen/logrus"
)

// COMA is the algorithm name which makes the centralized critic predict
// one action value per action instead of a single state value
const COMA = "coma"

// Default hyperparameters
const (
	DefaultLR       = 5e-4
	DefaultGradClip = 10.0
)

// Config implements a configuration of a CCMLP agent
type Config struct {
	NumAgents int // Size of the team, including this agent
	ObsDim    int // Size of local observations
	StateDim  int // Size of the global state seen by the critic
	BatchSize int

	// Cardinality of the action space. Discrete action spaces have
	// NumActions actions and continuous action spaces have ActionDims
	// dimensions.
	Cardinality environment.Cardinality
	NumActions  int
	ActionDims  int

	// OpponentActionsInCC determines whether or not the actions of the
	// other agents are concatenated to the encoded global state
	OpponentActionsInCC bool
	Algorithm           string

	ActorHidden  []int
	CriticHidden []int // The last layer is the width of the encoded state
	Activation   string

	ActorInit     *initwfn.InitWFn
	CriticInit    *initwfn.InitWFn
	ValueHeadInit *initwfn.InitWFn

	// Solver creates the optimizers of the actor and critic, each of
	// which has its own state
	Solver *solver.Solver

	// CentralInputWidth overrides the declared input width of the value
	// head if positive
	CentralInputWidth int

	LR       float64 // Actor learning rate used by Learn
	CriticLR float64 // Critic learning rate used by Learn
	GradClip float64

	Seed uint64
}

// QMode returns whether the critic predicts one value per action
func (c Config) QMode() bool {
	return strings.EqualFold(c.Algorithm, COMA)
}

// NumOutputs returns the number of outputs of the policy network: the
// number of actions for discrete action spaces, and a mean and log
// standard deviation per dimension for continuous action spaces.
func (c Config) NumOutputs() int {
	if c.Cardinality == environment.Discrete {
		return c.NumActions
	}
	return 2 * c.ActionDims
}

// ActionSpec returns the action specification described by c
func (c Config) ActionSpec() (environment.Spec, error) {
	if c.Cardinality == environment.Discrete {
		return environment.NewDiscreteSpec(environment.Action, c.NumActions)
	}
	return environment.NewUnboundedSpec(environment.Action, c.ActionDims)
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.NumAgents < 1 {
		return fmt.Errorf("validate: need at least one agent, have %d",
			c.NumAgents)
	}
	if c.ObsDim <= 0 || c.StateDim <= 0 {
		return fmt.Errorf("validate: observation and state dimensions " +
			"must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("validate: batch size must be positive")
	}

	switch c.Cardinality {
	case environment.Discrete:
		if c.NumActions < 1 {
			return fmt.Errorf("validate: need at least one action, have %d",
				c.NumActions)
		}
	case environment.Continuous:
		if c.ActionDims < 1 {
			return fmt.Errorf("validate: need at least one action "+
				"dimension, have %d", c.ActionDims)
		}
		if c.QMode() {
			return fmt.Errorf("validate: %v requires discrete actions", COMA)
		}
	default:
		return fmt.Errorf("validate: invalid cardinality %q", c.Cardinality)
	}

	if len(c.CriticHidden) == 0 {
		return fmt.Errorf("validate: critic needs at least one hidden layer")
	}
	for _, h := range append(append([]int(nil), c.ActorHidden...),
		c.CriticHidden...) {
		if h <= 0 {
			return fmt.Errorf("validate: hidden layer sizes must be "+
				"positive, have %d", h)
		}
	}

	if _, err := network.NewActivation(c.Activation); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if c.CentralInputWidth < 0 {
		return fmt.Errorf("validate: central input width must be "+
			"non-negative, have %d", c.CentralInputWidth)
	}
	if c.LR < 0 || c.CriticLR < 0 || c.GradClip < 0 {
		return fmt.Errorf("validate: learning rates and gradient clip " +
			"must be non-negative")
	}

	if c.Solver != nil {
		if c.Solver.Config == nil {
			return fmt.Errorf("validate: solver %v has no configuration",
				c.Solver.Type)
		}
		if err := c.Solver.Validate(); err != nil {
			return fmt.Errorf("validate: %w", err)
		}
	}

	return nil
}

// withDefaults returns a copy of c with every unset optional field
// filled in
func (c Config) withDefaults() (Config, error) {
	var err error
	if c.Activation == "" {
		c.Activation = "relu"
	}
	if c.ActorInit == nil {
		if c.ActorInit, err = initwfn.NewGlorotU(1.0); err != nil {
			return c, err
		}
	}
	if c.CriticInit == nil {
		if c.CriticInit, err = initwfn.NewGlorotU(1.0); err != nil {
			return c, err
		}
	}
	if c.ValueHeadInit == nil {
		c.ValueHeadInit, err = initwfn.NewNormC(initwfn.DefaultNormCStd,
			c.Seed)
		if err != nil {
			return c, err
		}
	}
	if c.Solver == nil {
		if c.Solver, err = solver.NewDefaultAdam(); err != nil {
			return c, err
		}
	}
	if c.LR == 0 {
		c.LR = DefaultLR
	}
	if c.CriticLR == 0 {
		c.CriticLR = c.LR
	}
	if c.GradClip == 0 {
		c.GradClip = DefaultGradClip
	}
	return c, nil
}

// CreateAgent creates a new CCMLP agent from the Config
func (c Config) CreateAgent(log logrus.FieldLogger) (agent.Agent, error) {
	a, err := New(c, log)
	if err != nil {
		return nil, err
	}
	return a, nil
}
