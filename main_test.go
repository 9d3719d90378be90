package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/ccmarl/config"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[agent]
num_agents = 2
obs_dim = 3
state_dim = 4
batch_size = 8
actor_hidden = [4]
critic_hidden = [4]

[train]
iterations = 2
`), 0o644))

	log, hook := test.NewNullLogger()
	require.NoError(t, run(path, log))

	updates := 0
	for _, e := range hook.AllEntries() {
		// Lower levels are more severe
		assert.Greater(t, e.Level, logrus.WarnLevel, e.Message)
		if e.Message == "updated agent" {
			updates++
		}
	}
	assert.Equal(t, 2*2, updates)
}

func TestCloseTeam(t *testing.T) {
	log, hook := test.NewNullLogger()
	team, err := newTeam(config.Default(), log)
	require.NoError(t, err)
	require.Len(t, team, 3)

	closeTeam(team, log)
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, "could not close agent", e.Message)
	}
}
