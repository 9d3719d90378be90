package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/samuelfneumann/ccmarl/agent/nonlinear/ccmlp"
	"github.com/samuelfneumann/ccmarl/buffer/gae"
	"github.com/samuelfneumann/ccmarl/config"
	"github.com/samuelfneumann/ccmarl/environment"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Length of the synthetic episodes
const episodeLength = 8

func main() {
	path := flag.String("config", "", "path to a .toml or .json run "+
		"configuration")
	flag.Parse()

	log := logrus.New()
	if err := run(*path, log); err != nil {
		log.WithError(err).Error("run failed")
		os.Exit(1)
	}
}

func run(path string, log *logrus.Logger) error {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return err
		}
	}

	level, err := logrus.ParseLevel(cfg.Train.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	team, err := newTeam(cfg, log)
	if err != nil {
		return err
	}
	defer closeTeam(team, log)

	rng := rand.New(rand.NewSource(cfg.Train.Seed))
	for iter := 0; iter < cfg.Train.Iterations; iter++ {
		for i, a := range team {
			b, err := collect(a, cfg, rng)
			if err != nil {
				return fmt.Errorf("agent %d: %w", i, err)
			}

			stats, err := a.Learn(b)
			if err != nil {
				return fmt.Errorf("agent %d: %w", i, err)
			}

			log.WithFields(logrus.Fields{
				"iteration":      iter,
				"agent":          agentID(i),
				"actorObjective": stats.ActorObjective,
				"criticLoss":     stats.CriticLoss,
			}).Info("updated agent")
		}
	}
	return nil
}

func agentID(i int) string {
	return fmt.Sprintf("agent_%d", i)
}

// newTeam creates one agent per team member and links the policy of
// every agent into all others
func newTeam(cfg config.Run, log logrus.FieldLogger) ([]*ccmlp.CCMLP, error) {
	c, err := cfg.Agent.CCMLP(cfg.Train.Seed)
	if err != nil {
		return nil, err
	}

	team := make([]*ccmlp.CCMLP, c.NumAgents)
	for i := range team {
		c.Seed = cfg.Train.Seed + uint64(i)
		if team[i], err = ccmlp.New(c, log.WithField("agent",
			agentID(i))); err != nil {
			return nil, err
		}
	}

	for i, a := range team {
		for j, other := range team {
			if i == j {
				continue
			}
			if err := a.LinkOtherAgentPolicy(agentID(j), other); err != nil {
				return nil, err
			}
		}
	}
	return team, nil
}

// closeTeam releases every agent of the team, logging the agents that
// could not be closed
func closeTeam(team []*ccmlp.CCMLP, log logrus.FieldLogger) {
	for i, a := range team {
		if err := a.Close(); err != nil {
			log.WithError(err).WithField("agent", agentID(i)).Warn(
				"could not close agent")
		}
	}
}

// collect fills a GAE buffer with one batch of synthetic transitions,
// evaluating the central value function of a on them
func collect(a *ccmlp.CCMLP, cfg config.Run, rng *rand.Rand) (gae.Batch,
	error) {
	c := a.Config()
	n := c.BatchSize
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}

	actDim := 1
	if c.Cardinality == environment.Continuous {
		actDim = c.ActionDims
	}
	opponents := 0
	if c.OpponentActionsInCC {
		opponents = c.NumAgents - 1
	}

	sample := func(rows, cols int) *mat.Dense {
		data := make([]float64, rows*cols)
		for i := range data {
			data[i] = normal.Rand()
		}
		return mat.NewDense(rows, cols, data)
	}
	actions := func() *mat.Dense {
		if c.Cardinality == environment.Continuous {
			return sample(n, actDim)
		}
		act := mat.NewDense(n, 1, nil)
		for i := 0; i < n; i++ {
			act.Set(i, 0, float64(rng.Intn(c.NumActions)))
		}
		return act
	}

	obs := sample(n, c.ObsDim)
	state := sample(n, c.StateDim)
	act := actions()
	opp := make([]*mat.Dense, opponents)
	for i := range opp {
		opp[i] = actions()
	}

	if _, err := a.Forward(obs); err != nil {
		return gae.Batch{}, err
	}
	// In COMA mode the value of the taken action is stored
	var values []float64
	if c.QMode() {
		q, err := a.CentralValueFunction(state, opp)
		if err != nil {
			return gae.Batch{}, err
		}
		values = make([]float64, n)
		for t := range values {
			values[t] = q.At(t, int(act.At(t, 0)))
		}
	} else {
		var err error
		if values, err = a.StateValues(state, opp); err != nil {
			return gae.Batch{}, err
		}
	}

	buf, err := gae.New(c.ObsDim, c.StateDim, actDim, opponents, actDim, n,
		cfg.Train.Lambda, cfg.Train.Gamma)
	if err != nil {
		return gae.Batch{}, err
	}

	for t := 0; t < n; t++ {
		oppRows := make([][]float64, opponents)
		for i := range oppRows {
			oppRows[i] = opp[i].RawRowView(t)
		}

		// The reward depends on the global state so that the critic has
		// something to learn
		rew := state.At(t, 0) + 0.1*normal.Rand()

		err := buf.Store(obs.RawRowView(t), state.RawRowView(t),
			act.RawRowView(t), oppRows, rew, values[t])
		if err != nil {
			return gae.Batch{}, err
		}
		if (t+1)%episodeLength == 0 {
			buf.FinishPath(0)
		}
	}

	return buf.Get()
}
