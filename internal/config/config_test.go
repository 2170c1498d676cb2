package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileReturnsErrNotFound(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "planning:\n  max_repair_rounds: [this is not an int\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadAppliesDefaultsWhenFieldsOmitted(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "delivery:\n  intent_verbs: []\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Planning.MaxRepairRounds)
	assert.Equal(t, 2, cfg.Planning.MaxReplanRounds)
	assert.Equal(t, 30_000, cfg.Executor.DefaultDeadlineMs)
	assert.Equal(t, "file", cfg.Session.Store)
}

func TestLoadPreservesExplicitNonZeroValues(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "planning:\n  max_repair_rounds: 5\nexecutor:\n  default_deadline_ms: 1000\nsession:\n  store: mongo\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Planning.MaxRepairRounds)
	assert.Equal(t, 1000, cfg.Executor.DefaultDeadlineMs)
	assert.Equal(t, "mongo", cfg.Session.Store)
}

func TestLoadRejectsIntentVerbsWithoutRequiredTool(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "delivery:\n  intent_verbs: [\"send\", \"email\"]\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "required_tool")
}

func TestLoadRejectsNegativePlanningRounds(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "planning:\n  max_repair_rounds: -1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidSessionStore(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "session:\n  store: redis\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "session.store")
}

func TestLoadRejectsInvalidModelConstraintPattern(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "models:\n  constraints:\n    - pattern: \"[invalid\"\n      temperature: 0.2\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestTemperatureForPrefersMatchingConstraintOverAgentDefault(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Models: ModelsConfig{
			Constraints: []ModelConstraint{
				{Pattern: "^o1", Temperature: 1.0, Reason: "reasoning models ignore temperature"},
			},
			AgentDefaults: map[string]AgentModelDefault{
				"planner": {Temperature: 0.3},
			},
		},
	}
	require.NoError(t, cfg.Validate())

	temp, reason := cfg.TemperatureFor("planner", "o1-preview", 0.7)
	assert.Equal(t, 1.0, temp)
	assert.Equal(t, "reasoning models ignore temperature", reason)
}

func TestTemperatureForFallsBackToAgentDefaultThenBase(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Models: ModelsConfig{
			AgentDefaults: map[string]AgentModelDefault{
				"critic": {Temperature: 0.1},
			},
		},
	}
	require.NoError(t, cfg.Validate())

	temp, reason := cfg.TemperatureFor("critic", "claude-3-5-sonnet", 0.7)
	assert.Equal(t, 0.1, temp)
	assert.Equal(t, "agent_default", reason)

	temp, reason = cfg.TemperatureFor("finalizer", "claude-3-5-sonnet", 0.7)
	assert.Equal(t, 0.7, temp)
	assert.Empty(t, reason)
}

func TestModelConstraintMatchesRequiresCompileFirst(t *testing.T) {
	t.Parallel()
	c := ModelConstraint{Pattern: "^gpt-4"}
	assert.False(t, c.Matches("gpt-4o"))

	require.NoError(t, c.Compile())
	assert.True(t, c.Matches("gpt-4o"))
	assert.False(t, c.Matches("claude-3"))
}
