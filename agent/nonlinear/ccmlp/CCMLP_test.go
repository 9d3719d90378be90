package ccmlp

import (
	"io"
	"math"
	"testing"

	"github.com/samuelfneumann/ccmarl/agent"
	"github.com/samuelfneumann/ccmarl/buffer/gae"
	"github.com/samuelfneumann/ccmarl/environment"
	"github.com/samuelfneumann/ccmarl/initwfn"
	"github.com/samuelfneumann/ccmarl/solver"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const batch = 2

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func discreteConfig(t *testing.T) Config {
	s, err := solver.NewClippedAdamSolver(0, 0, 0)
	require.NoError(t, err)
	return Config{
		NumAgents:           3,
		ObsDim:              4,
		StateDim:            6,
		BatchSize:           batch,
		Cardinality:         environment.Discrete,
		NumActions:          5,
		OpponentActionsInCC: true,
		ActorHidden:         []int{8},
		CriticHidden:        []int{7},
		Solver:              s,
		Seed:                1,
	}
}

// solvers returns one Solver of each type
func solvers(t *testing.T) []*solver.Solver {
	adam, err := solver.NewDefaultAdam()
	require.NoError(t, err)
	clipped, err := solver.NewClippedAdamSolver(0, 0, 0)
	require.NoError(t, err)
	return []*solver.Solver{adam, clipped}
}

func continuousConfig(t *testing.T) Config {
	c := discreteConfig(t)
	c.NumAgents = 2
	c.Cardinality = environment.Continuous
	c.NumActions = 0
	c.ActionDims = 2
	return c
}

func newModel(t *testing.T, c Config) *CCMLP {
	m, err := New(c, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func obs() *mat.Dense {
	return mat.NewDense(batch, 4, []float64{
		0.1, 0.2, 0.3, 0.4,
		-0.5, 0.6, -0.7, 0.8,
	})
}

func state() *mat.Dense {
	return mat.NewDense(batch, 6, []float64{
		1, 0, 1, 0, 1, 0,
		0, 1, 0, 1, 0, 1,
	})
}

func indices(i ...float64) *mat.Dense {
	return mat.NewDense(len(i), 1, i)
}

func snapshot(nodes G.Nodes) [][]float64 {
	out := make([][]float64, len(nodes))
	for i, n := range nodes {
		data := n.Value().(*tensor.Dense).Data().([]float64)
		out[i] = append([]float64(nil), data...)
	}
	return out
}

func TestDeclaredWidth(t *testing.T) {
	tests := []struct {
		name   string
		config func(Config) Config
		want   int
	}{
		{
			name:   "discrete",
			config: func(c Config) Config { return c },
			want:   7 + 5*2,
		},
		{
			name: "noOpponentActions",
			config: func(c Config) Config {
				c.OpponentActionsInCC = false
				return c
			},
			want: 7,
		},
		{
			name: "continuous",
			config: func(c Config) Config {
				c.Cardinality = environment.Continuous
				c.ActionDims = 2
				return c
			},
			want: 7 + 4*2/2,
		},
		{
			name: "continuousFourAgents",
			config: func(c Config) Config {
				c.Cardinality = environment.Continuous
				c.ActionDims = 1
				c.NumAgents = 4
				return c
			},
			want: 7 + 3,
		},
		{
			name: "override",
			config: func(c Config) Config {
				c.CentralInputWidth = 30
				return c
			},
			want: 30,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := test.config(discreteConfig(t))
			assert.Equal(t, test.want, declaredWidth(c, 7))
		})
	}
}

func TestCentralValueBeforeForward(t *testing.T) {
	m := newModel(t, discreteConfig(t))

	_, err := m.CentralValueFunction(state(),
		[]*mat.Dense{indices(0, 1), indices(2, 3)})
	require.Error(t, err)
	assert.True(t, agent.IsPrecondition(err))
}

func TestCentralValueDiscrete(t *testing.T) {
	m := newModel(t, discreteConfig(t))

	out, err := m.Forward(obs())
	require.NoError(t, err)
	r, c := out.Dims()
	assert.Equal(t, batch, r)
	assert.Equal(t, 5, c)

	v, err := m.CentralValueFunction(state(),
		[]*mat.Dense{indices(0, 1), indices(2, 4)})
	require.NoError(t, err)
	r, c = v.Dims()
	assert.Equal(t, batch, r)
	assert.Equal(t, 1, c)

	// Different opponent actions give different values for the same
	// state
	w, err := m.CentralValueFunction(state(),
		[]*mat.Dense{indices(3, 3), indices(3, 3)})
	require.NoError(t, err)
	assert.False(t, mat.Equal(v, w))
}

func TestStateValues(t *testing.T) {
	m := newModel(t, discreteConfig(t))
	_, err := m.Forward(obs())
	require.NoError(t, err)

	opp := []*mat.Dense{indices(0, 1), indices(2, 4)}
	v, err := m.CentralValueFunction(state(), opp)
	require.NoError(t, err)

	values, err := m.StateValues(state(), opp)
	require.NoError(t, err)
	require.Len(t, values, batch)
	for i := range values {
		assert.InDelta(t, v.At(i, 0), values[i], 1e-12)
	}

	c := discreteConfig(t)
	c.Algorithm = COMA
	q := newModel(t, c)
	_, err = q.Forward(obs())
	require.NoError(t, err)
	_, err = q.StateValues(state(), opp)
	assert.True(t, agent.IsPrecondition(err))
}

func TestCentralValueWidthMismatch(t *testing.T) {
	c := discreteConfig(t)
	c.CentralInputWidth = 30

	// The mismatch is only detected once the input is composed
	m := newModel(t, c)
	_, err := m.Forward(obs())
	require.NoError(t, err)

	_, err = m.CentralValueFunction(state(),
		[]*mat.Dense{indices(0, 1), indices(2, 3)})
	require.Error(t, err)
	assert.True(t, solver.IsShapeMismatch(err))
}

func TestCentralValueMissingOpponent(t *testing.T) {
	m := newModel(t, discreteConfig(t))
	_, err := m.Forward(obs())
	require.NoError(t, err)

	_, err = m.CentralValueFunction(state(), []*mat.Dense{indices(0, 1)})
	require.Error(t, err)
	assert.True(t, solver.IsShapeMismatch(err))
}

func TestCentralValueInvalidOpponentAction(t *testing.T) {
	m := newModel(t, discreteConfig(t))
	_, err := m.Forward(obs())
	require.NoError(t, err)

	_, err = m.CentralValueFunction(state(),
		[]*mat.Dense{indices(0, 5), indices(2, 3)})
	require.Error(t, err)
	assert.True(t, solver.IsShapeMismatch(err))

	_, err = m.CentralValueFunction(state(),
		[]*mat.Dense{indices(0, 1), indices(2)})
	require.Error(t, err)
	assert.True(t, solver.IsShapeMismatch(err))
}

func TestCentralValueQMode(t *testing.T) {
	for _, s := range solvers(t) {
		t.Run(string(s.Type), func(t *testing.T) {
			c := discreteConfig(t)
			c.Algorithm = "COMA"
			c.Solver = s
			m := newModel(t, c)

			_, err := m.Forward(obs())
			require.NoError(t, err)

			v, err := m.CentralValueFunction(state(),
				[]*mat.Dense{indices(0, 1), indices(2, 3)})
			require.NoError(t, err)
			r, col := v.Dims()
			assert.Equal(t, batch, r)
			assert.Equal(t, 5, col)

			// The taken actions are needed to regress action values
			_, err = m.CriticLoss([]float64{1, 1}, nil)
			assert.True(t, solver.IsShapeMismatch(err))

			before := snapshot(m.CriticParameters())
			loss, err := m.CriticLoss([]float64{1, 1}, indices(0, 4))
			require.NoError(t, err)
			require.NoError(t, m.UpdateCritic(loss, 0.01, 1))
			assert.NotEqual(t, before, snapshot(m.CriticParameters()))
		})
	}
}

func TestCentralValueContinuous(t *testing.T) {
	m := newModel(t, continuousConfig(t))

	out, err := m.Forward(obs())
	require.NoError(t, err)
	_, c := out.Dims()
	assert.Equal(t, 4, c)

	opp := mat.NewDense(batch, 2, []float64{0.5, -0.5, 1, 2})
	v, err := m.CentralValueFunction(state(), []*mat.Dense{opp})
	require.NoError(t, err)
	_, c = v.Dims()
	assert.Equal(t, 1, c)
}

func TestCentralValueNoOpponentActions(t *testing.T) {
	c := discreteConfig(t)
	c.OpponentActionsInCC = false
	m := newModel(t, c)

	_, err := m.Forward(obs())
	require.NoError(t, err)

	// Opponent actions are ignored
	v, err := m.CentralValueFunction(state(),
		[]*mat.Dense{indices(0, 1), indices(2, 3)})
	require.NoError(t, err)
	_, col := v.Dims()
	assert.Equal(t, 1, col)
}

func TestParameters(t *testing.T) {
	m := newModel(t, discreteConfig(t))

	actor := m.ActorParameters()
	critic := m.CriticParameters()

	// Encoder weights and bias, then value head weights and bias
	require.Len(t, critic, 4)
	assert.Equal(t, "cc_vfW", critic[2].Name())
	assert.Equal(t, tensor.Shape{17, 1}, critic[2].Shape())

	all := m.Parameters()
	assert.Len(t, all, len(actor)+len(critic))

	seen := make(map[*G.Node]bool)
	for _, n := range actor {
		seen[n] = true
	}
	for _, n := range critic {
		assert.False(t, seen[n], "%v shared by actor and critic", n.Name())
	}
}

func TestObjectivePreconditions(t *testing.T) {
	m := newModel(t, discreteConfig(t))

	_, err := m.ActorObjective(indices(0, 1), []float64{1, 1})
	assert.True(t, agent.IsPrecondition(err))

	_, err = m.Forward(obs())
	require.NoError(t, err)

	_, err = m.CriticLoss([]float64{1, 1}, nil)
	assert.True(t, agent.IsPrecondition(err))

	_, err = m.Actions()
	assert.True(t, agent.IsPrecondition(err))
}

func TestActorObjectiveDiscrete(t *testing.T) {
	zeroes, err := initwfn.NewZeroes()
	require.NoError(t, err)

	c := discreteConfig(t)
	c.ActorInit = zeroes
	m := newModel(t, c)

	_, err = m.Forward(obs())
	require.NoError(t, err)

	// A uniform policy gives log π = -log K for every action
	obj, err := m.ActorObjective(indices(0, 4), []float64{1, 2})
	require.NoError(t, err)
	require.NoError(t, obj.Evaluate(nil))
	assert.InDelta(t, -math.Log(5)*1.5, obj.Value(), 1e-9)

	_, err = m.ActorObjective(indices(0, 4), []float64{1})
	assert.True(t, solver.IsShapeMismatch(err))
}

func TestActorObjectiveContinuous(t *testing.T) {
	zeroes, err := initwfn.NewZeroes()
	require.NoError(t, err)

	c := continuousConfig(t)
	c.ActorInit = zeroes
	m := newModel(t, c)

	_, err = m.Forward(obs())
	require.NoError(t, err)

	// Standard normal log density summed over dimensions
	actions := mat.NewDense(batch, 2, []float64{0, 1, 2, 0})
	obj, err := m.ActorObjective(actions, []float64{1, 1})
	require.NoError(t, err)
	require.NoError(t, obj.Evaluate(nil))

	logRoot2Pi := math.Log(math.Sqrt(2 * math.Pi))
	row0 := -0.5 - 2*logRoot2Pi
	row1 := -2.0 - 2*logRoot2Pi
	assert.InDelta(t, (row0+row1)/2, obj.Value(), 1e-9)
}

func TestUpdateCriticOnlyChangesCritic(t *testing.T) {
	for _, s := range solvers(t) {
		t.Run(string(s.Type), func(t *testing.T) {
			c := discreteConfig(t)
			c.Solver = s
			m := newModel(t, c)

			_, err := m.Forward(obs())
			require.NoError(t, err)
			_, err = m.CentralValueFunction(state(),
				[]*mat.Dense{indices(0, 1), indices(2, 3)})
			require.NoError(t, err)

			actorBefore := snapshot(m.ActorParameters())
			criticBefore := snapshot(m.CriticParameters())

			loss, err := m.CriticLoss([]float64{1, -1}, nil)
			require.NoError(t, err)
			require.NoError(t, m.UpdateCritic(loss, 0.01, 1))

			assert.Equal(t, actorBefore, snapshot(m.ActorParameters()))
			assert.NotEqual(t, criticBefore, snapshot(m.CriticParameters()))
		})
	}
}

func TestUpdateActorOnlyChangesActor(t *testing.T) {
	for _, s := range solvers(t) {
		t.Run(string(s.Type), func(t *testing.T) {
			c := discreteConfig(t)
			c.Solver = s
			m := newModel(t, c)

			_, err := m.Forward(obs())
			require.NoError(t, err)

			actorBefore := snapshot(m.ActorParameters())
			criticBefore := snapshot(m.CriticParameters())

			obj, err := m.ActorObjective(indices(0, 1), []float64{1, -1})
			require.NoError(t, err)
			require.NoError(t, m.UpdateActor(obj, 0.01, 1))

			assert.NotEqual(t, actorBefore, snapshot(m.ActorParameters()))
			assert.Equal(t, criticBefore, snapshot(m.CriticParameters()))
		})
	}
}

// Both solver types take the same steps on identically initialized
// models
func TestUpdateSolversAgree(t *testing.T) {
	const eps = solver.DefaultClippedAdamEpsilon
	adam, err := solver.NewAdam(eps, 0, 0, 1)
	require.NoError(t, err)
	clipped, err := solver.NewClippedAdamSolver(eps, 0, 0)
	require.NoError(t, err)

	var params [][][]float64
	for _, s := range []*solver.Solver{adam, clipped} {
		c := discreteConfig(t)
		c.Solver = s
		c.ActorInit, err = initwfn.NewNormC(1, 7)
		require.NoError(t, err)
		m := newModel(t, c)

		for i := 0; i < 2; i++ {
			_, err := m.Forward(obs())
			require.NoError(t, err)
			obj, err := m.ActorObjective(indices(0, 1), []float64{1, -1})
			require.NoError(t, err)
			require.NoError(t, m.UpdateActor(obj, 0.01, 1))
		}
		params = append(params, snapshot(m.ActorParameters()))
	}

	for i := range params[0] {
		for j := range params[0][i] {
			assert.InDelta(t, params[1][i][j], params[0][i][j], 1e-9)
		}
	}
}

func TestUpdateInvalidStepLeavesParameters(t *testing.T) {
	for _, s := range solvers(t) {
		t.Run(string(s.Type), func(t *testing.T) {
			c := discreteConfig(t)
			c.Solver = s
			m := newModel(t, c)

			_, err := m.Forward(obs())
			require.NoError(t, err)
			before := snapshot(m.ActorParameters())

			obj, err := m.ActorObjective(indices(0, 1), []float64{1, -1})
			require.NoError(t, err)
			assert.Error(t, m.UpdateActor(obj, -1, 1))
			assert.Equal(t, before, snapshot(m.ActorParameters()))
		})
	}
}

func learnBatch() gae.Batch {
	return gae.Batch{
		Obs:             obs(),
		State:           state(),
		Actions:         indices(0, 3),
		OpponentActions: []*mat.Dense{indices(1, 2), indices(4, 0)},
		Advantages:      []float64{1, -1},
		ValueTargets:    []float64{1, -1},
		Returns:         []float64{1, -1},
	}
}

func TestLearn(t *testing.T) {
	for _, s := range solvers(t) {
		t.Run(string(s.Type), func(t *testing.T) {
			c := discreteConfig(t)
			c.Solver = s
			c.CriticLR = 0.01
			m := newModel(t, c)

			b := learnBatch()
			first, err := m.Learn(b)
			require.NoError(t, err)

			var last Stats
			for i := 0; i < 50; i++ {
				last, err = m.Learn(b)
				require.NoError(t, err)
			}
			assert.Less(t, last.CriticLoss, first.CriticLoss)

			held, ok := m.TrainBatch()
			require.True(t, ok)
			assert.Equal(t, b.Advantages, held.Advantages)

			actions, err := m.Actions()
			require.NoError(t, err)
			_, col := actions.Dims()
			assert.Equal(t, 5, col)
		})
	}
}

func TestLinkOtherAgentPolicy(t *testing.T) {
	a := newModel(t, discreteConfig(t))
	b := newModel(t, discreteConfig(t))
	d := newModel(t, discreteConfig(t))

	require.NoError(t, a.LinkOtherAgentPolicy("agent_1", b))
	require.NoError(t, a.LinkOtherAgentPolicy("agent_1", b))
	require.NoError(t, a.LinkOtherAgentPolicy("agent_2", d))

	err := a.LinkOtherAgentPolicy("agent_1", d)
	require.Error(t, err)
	assert.True(t, agent.IsDuplicateRegistration(err))

	p, ok := a.OtherAgentPolicy("agent_1")
	require.True(t, ok)
	assert.Same(t, b, p)
	assert.Equal(t, []string{"agent_1", "agent_2"}, a.OtherAgents())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		config func(Config) Config
	}{
		{"noAgents", func(c Config) Config { c.NumAgents = 0; return c }},
		{"noActions", func(c Config) Config { c.NumActions = 0; return c }},
		{"noCritic", func(c Config) Config { c.CriticHidden = nil; return c }},
		{"badCardinality", func(c Config) Config {
			c.Cardinality = "Mixed"
			return c
		}},
		{"badActivation", func(c Config) Config {
			c.Activation = "swish"
			return c
		}},
		{"comaContinuous", func(c Config) Config {
			c.Cardinality = environment.Continuous
			c.ActionDims = 1
			c.Algorithm = COMA
			return c
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := test.config(discreteConfig(t))
			assert.Error(t, c.Validate())

			_, err := c.CreateAgent(quietLogger())
			assert.Error(t, err)
		})
	}

	a, err := discreteConfig(t).CreateAgent(quietLogger())
	require.NoError(t, err)
	assert.Len(t, a.CriticParameters(), 4)
}
