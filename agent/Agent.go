// Package agent defines the interfaces shared by agents that learn with
// a centralized critic
package agent

import (
	"github.com/samuelfneumann/ccmarl/solver"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Policy, which chooses actions, a
// CentralizedCritic, which estimates values from information
// unavailable to the Policy, and a Learner, which updates both.
type Agent interface {
	Policy
	CentralizedCritic
	Learner

	// LinkOtherAgentPolicy records the policy of another agent on the
	// same team
	LinkOtherAgentPolicy(id string, p Policy) error
}

// Policy represents a policy that an agent can have. Policies of other
// agents are linked to an Agent so that it can query them.
type Policy interface {
	// Forward runs the policy on a batch of observations, one per row,
	// and returns the policy outputs for each row
	Forward(obs *mat.Dense) (*mat.Dense, error)

	// Parameters returns all learnables of the agent owning the policy
	Parameters() G.Nodes
}

// CentralizedCritic estimates values from global state and, optionally,
// the actions of other agents
type CentralizedCritic interface {
	CentralValueFunction(state *mat.Dense,
		opponentActions []*mat.Dense) (*mat.Dense, error)
	CriticParameters() G.Nodes
}

// Learner implements a learning algorithm that defines how the actor
// and critic weights are updated.
type Learner interface {
	// UpdateActor ascends the objective with respect to the actor's
	// learnables
	UpdateActor(objective solver.GradientProvider, lr, gradClip float64) error

	// UpdateCritic descends the loss with respect to the critic's
	// learnables
	UpdateCritic(loss solver.GradientProvider, lr, gradClip float64) error
}
