package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	assert.Equal(t, "parallel-cheapest-insertion", d.ConstructionStrategy)
	assert.Equal(t, "simulated-annealing", d.Metaheuristic)
	assert.Equal(t, 30.0, d.TimeLimitSeconds)
	assert.Equal(t, "km", d.DistanceUnit)
	assert.Equal(t, 1, d.Starts)
}

func TestLoadWithoutEnv(t *testing.T) {
	t.Setenv("SOLVER_DEFAULTS", "")
	d, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), d)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solver.yaml")
	body := "metaheuristic: guided-local-search\ntimeLimitSeconds: 5\ndistanceUnit: mi\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("SOLVER_DEFAULTS", path)

	d, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "guided-local-search", d.Metaheuristic)
	assert.Equal(t, 5.0, d.TimeLimitSeconds)
	assert.Equal(t, "mi", d.DistanceUnit)
	// Untouched keys keep their built-in values.
	assert.Equal(t, "parallel-cheapest-insertion", d.ConstructionStrategy)
}

func TestLoadMissingFileFails(t *testing.T) {
	t.Setenv("SOLVER_DEFAULTS", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml: ["), 0o600))
	t.Setenv("SOLVER_DEFAULTS", path)
	_, err := Load()
	require.Error(t, err)
}
