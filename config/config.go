// Package config loads run configurations of centralized critic teams
// from TOML or JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/samuelfneumann/ccmarl/agent/nonlinear/ccmlp"
	"github.com/samuelfneumann/ccmarl/environment"
	"github.com/samuelfneumann/ccmarl/initwfn"
	"github.com/samuelfneumann/ccmarl/solver"
	"github.com/sirupsen/logrus"
)

// Run describes a training run of a team of agents
type Run struct {
	Agent AgentConfig `toml:"agent" json:"agent"`
	Train TrainConfig `toml:"train" json:"train"`
}

// AgentConfig is the file layout of the configuration shared by every
// agent of the team
type AgentConfig struct {
	NumAgents           int     `toml:"num_agents" json:"num_agents"`
	ObsDim              int     `toml:"obs_dim" json:"obs_dim"`
	StateDim            int     `toml:"state_dim" json:"state_dim"`
	BatchSize           int     `toml:"batch_size" json:"batch_size"`
	Cardinality         string  `toml:"cardinality" json:"cardinality"`
	NumActions          int     `toml:"num_actions" json:"num_actions"`
	ActionDims          int     `toml:"action_dims" json:"action_dims"`
	OpponentActionsInCC bool    `toml:"opponent_actions_in_cc" json:"opponent_actions_in_cc"`
	Algorithm           string  `toml:"algorithm" json:"algorithm"`
	ActorHidden         []int   `toml:"actor_hidden" json:"actor_hidden"`
	CriticHidden        []int   `toml:"critic_hidden" json:"critic_hidden"`
	Activation          string  `toml:"activation" json:"activation"`
	ActorInit           string  `toml:"actor_init" json:"actor_init"`
	CriticInit          string  `toml:"critic_init" json:"critic_init"`
	Solver              string  `toml:"solver" json:"solver"`
	Epsilon             float64 `toml:"epsilon" json:"epsilon"`
	CentralInputWidth   int     `toml:"central_input_width" json:"central_input_width"`
	LR                  float64 `toml:"lr" json:"lr"`
	CriticLR            float64 `toml:"critic_lr" json:"critic_lr"`
	GradClip            float64 `toml:"grad_clip" json:"grad_clip"`
}

// TrainConfig configures the demo training loop
type TrainConfig struct {
	Iterations int     `toml:"iterations" json:"iterations"`
	Lambda     float64 `toml:"lambda" json:"lambda"`
	Gamma      float64 `toml:"gamma" json:"gamma"`
	Seed       uint64  `toml:"seed" json:"seed"`
	LogLevel   string  `toml:"log_level" json:"log_level"`
}

// Default returns the default run configuration: three agents with
// five discrete actions and opponent actions in the critic, trained
// with the gradient clipped Adam engine.
func Default() Run {
	return Run{
		Agent: AgentConfig{
			NumAgents:           3,
			ObsDim:              8,
			StateDim:            12,
			BatchSize:           32,
			Cardinality:         string(environment.Discrete),
			NumActions:          5,
			OpponentActionsInCC: true,
			ActorHidden:         []int{64, 64},
			CriticHidden:        []int{64},
			Activation:          "relu",
			ActorInit:           string(initwfn.GlorotU),
			CriticInit:          string(initwfn.GlorotU),
			Solver:              string(solver.ClippedAdamType),
			LR:                  ccmlp.DefaultLR,
			GradClip:            ccmlp.DefaultGradClip,
		},
		Train: TrainConfig{
			Iterations: 10,
			Lambda:     0.95,
			Gamma:      0.99,
			Seed:       1,
			LogLevel:   "info",
		},
	}
}

// Load reads the run configuration at path, a .toml or .json file, on
// top of the defaults and validates it
func Load(path string) (Run, error) {
	var (
		cfg Run
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		cfg, err = loadTOML(path)
	case ".json":
		cfg, err = loadJSON(path)
	default:
		return Run{}, fmt.Errorf("load: unsupported config extension %q", ext)
	}
	if err != nil {
		return Run{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Run{}, fmt.Errorf("load: %w", err)
	}
	return cfg, nil
}

func loadTOML(path string) (Run, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Run{}, fmt.Errorf("load: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Run{}, fmt.Errorf("load: unknown keys %v", undecoded)
	}

	// The critic follows the actor's step size unless set
	if meta.IsDefined("agent", "lr") && !meta.IsDefined("agent", "critic_lr") {
		cfg.Agent.CriticLR = cfg.Agent.LR
	}
	return cfg, nil
}

func loadJSON(path string) (Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Run{}, fmt.Errorf("load: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Run{}, fmt.Errorf("load: %w", err)
	}
	return cfg, nil
}

// Validate checks a Run for errors
func (r Run) Validate() error {
	c, err := r.Agent.CCMLP(r.Train.Seed)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate: agent: %w", err)
	}

	if r.Train.Iterations <= 0 {
		return fmt.Errorf("validate: iterations must be positive, have %d",
			r.Train.Iterations)
	}
	if r.Train.Lambda < 0 || r.Train.Lambda > 1 ||
		r.Train.Gamma < 0 || r.Train.Gamma > 1 {
		return fmt.Errorf("validate: λ and ℽ must be in [0, 1]")
	}
	if _, err := logrus.ParseLevel(r.Train.LogLevel); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

// CCMLP returns the agent configuration as a ccmlp.Config, seeding
// random initializers with seed
func (a AgentConfig) CCMLP(seed uint64) (ccmlp.Config, error) {
	actorInit, err := initwfn.New(initwfn.Type(a.ActorInit), seed)
	if err != nil {
		return ccmlp.Config{}, fmt.Errorf("ccmlp: actor init: %w", err)
	}
	criticInit, err := initwfn.New(initwfn.Type(a.CriticInit), seed)
	if err != nil {
		return ccmlp.Config{}, fmt.Errorf("ccmlp: critic init: %w", err)
	}

	var s *solver.Solver
	switch solver.Type(a.Solver) {
	case solver.Adam:
		s, err = solver.NewAdam(a.Epsilon, 0, 0, 0)
	case solver.ClippedAdamType:
		s, err = solver.NewClippedAdamSolver(a.Epsilon, 0, 0)
	default:
		err = fmt.Errorf("unknown solver %q", a.Solver)
	}
	if err != nil {
		return ccmlp.Config{}, fmt.Errorf("ccmlp: %w", err)
	}

	return ccmlp.Config{
		NumAgents:           a.NumAgents,
		ObsDim:              a.ObsDim,
		StateDim:            a.StateDim,
		BatchSize:           a.BatchSize,
		Cardinality:         environment.Cardinality(a.Cardinality),
		NumActions:          a.NumActions,
		ActionDims:          a.ActionDims,
		OpponentActionsInCC: a.OpponentActionsInCC,
		Algorithm:           a.Algorithm,
		ActorHidden:         append([]int(nil), a.ActorHidden...),
		CriticHidden:        append([]int(nil), a.CriticHidden...),
		Activation:          a.Activation,
		ActorInit:           actorInit,
		CriticInit:          criticInit,
		Solver:              s,
		CentralInputWidth:   a.CentralInputWidth,
		LR:                  a.LR,
		CriticLR:            a.CriticLR,
		GradClip:            a.GradClip,
		Seed:                seed,
	}, nil
}
