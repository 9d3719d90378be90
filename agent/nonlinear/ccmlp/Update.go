package ccmlp

import (
	"fmt"

	"github.com/samuelfneumann/ccmarl/agent"
	"github.com/samuelfneumann/ccmarl/buffer/gae"
	"github.com/samuelfneumann/ccmarl/solver"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// CentralValueFunction returns the centralized critic's predictions
// for a [BatchSize, StateDim] batch of global states. If the agent uses
// opponent actions, opponentActions holds one matrix per other agent:
// [BatchSize, ActionDims] raw actions for continuous action spaces, or
// a single column of action indices for discrete action spaces.
//
// The result has a single column of state values, or one column per
// action in COMA mode. Forward must have been called first.
func (c *CCMLP) CentralValueFunction(state *mat.Dense,
	opponentActions []*mat.Dense) (*mat.Dense, error) {
	if c.actor.features == nil {
		return nil, fmt.Errorf("centralValueFunction: %w: value function "+
			"called before a policy forward pass", agent.ErrPrecondition)
	}
	if !c.config.OpponentActionsInCC {
		opponentActions = nil
	}
	return c.critic.centralValue(state, opponentActions)
}

// StateValues returns the centralized critic's state values as a
// [BatchSize] vector. It takes the arguments of CentralValueFunction
// and fails with an error wrapping agent.ErrPrecondition in COMA mode,
// where the critic predicts one value per action.
func (c *CCMLP) StateValues(state *mat.Dense,
	opponentActions []*mat.Dense) ([]float64, error) {
	if c.config.QMode() {
		return nil, fmt.Errorf("stateValues: %w: critic predicts action "+
			"values", agent.ErrPrecondition)
	}
	v, err := c.CentralValueFunction(state, opponentActions)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, v), nil
}

// ActorObjective binds actions and advantages for the observations of
// the last call to Forward and returns the policy gradient surrogate
// mean(log π(a|s) * A). Discrete actions are given as a single column
// of action indices.
func (c *CCMLP) ActorObjective(actions *mat.Dense, advantages []float64) (
	*solver.Objective, error) {
	if err := c.actor.bindObjective(actions, advantages); err != nil {
		return nil, err
	}
	return c.actor.objective, nil
}

// CriticLoss binds value targets for the inputs of the last call to
// CentralValueFunction and returns the mean squared error of the
// critic. In COMA mode, actions holds the index of each action taken
// and the value of that action is regressed onto its target.
func (c *CCMLP) CriticLoss(targets []float64, actions *mat.Dense) (
	*solver.Objective, error) {
	if err := c.critic.bindLoss(targets, actions); err != nil {
		return nil, err
	}
	return c.critic.objective, nil
}

// UpdateActor takes one gradient ascent step on objective with respect
// to the actor parameters
func (c *CCMLP) UpdateActor(objective solver.GradientProvider, lr,
	gradClip float64) error {
	err := c.actorUpdater.Update(objective, c.Parameters(),
		c.ActorParameters(), lr, gradClip)
	if err != nil {
		return fmt.Errorf("updateActor: %w", err)
	}
	return nil
}

// UpdateCritic takes one gradient descent step on loss with respect to
// the critic parameters
func (c *CCMLP) UpdateCritic(loss solver.GradientProvider, lr,
	gradClip float64) error {
	err := c.criticUpdater.Update(loss, c.Parameters(),
		c.CriticParameters(), lr, gradClip)
	if err != nil {
		return fmt.Errorf("updateCritic: %w", err)
	}
	return nil
}

// Stats summarizes a call to Learn
type Stats struct {
	ActorObjective float64 // Surrogate objective before the actor step
	CriticLoss     float64 // Critic loss before the critic step
}

// Learn holds b as the training batch and takes one critic step
// followed by one actor step on it, using the learning rates and
// gradient clip of the agent's Config
func (c *CCMLP) Learn(b gae.Batch) (Stats, error) {
	c.SetTrainBatch(b)

	if _, err := c.Actions(); err != nil {
		return Stats{}, fmt.Errorf("learn: %w", err)
	}
	if _, err := c.CentralValueFunction(b.State, b.OpponentActions); err != nil {
		return Stats{}, fmt.Errorf("learn: %w", err)
	}

	loss, err := c.CriticLoss(b.ValueTargets, b.Actions)
	if err != nil {
		return Stats{}, fmt.Errorf("learn: %w", err)
	}
	if err := c.UpdateCritic(loss, c.config.CriticLR,
		c.config.GradClip); err != nil {
		return Stats{}, fmt.Errorf("learn: %w", err)
	}

	objective, err := c.ActorObjective(b.Actions, b.Advantages)
	if err != nil {
		return Stats{}, fmt.Errorf("learn: %w", err)
	}
	if err := c.UpdateActor(objective, c.config.LR,
		c.config.GradClip); err != nil {
		return Stats{}, fmt.Errorf("learn: %w", err)
	}

	stats := Stats{
		ActorObjective: objective.Value(),
		CriticLoss:     loss.Value(),
	}
	c.log.WithFields(logrus.Fields{
		"actorObjective": stats.ActorObjective,
		"criticLoss":     stats.CriticLoss,
		"batch":          b.Size(),
	}).Debug("learned")

	return stats, nil
}
