package scenarios

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/doser/core/events"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		sc, err := Load(f)
		require.NoError(t, err, f)
		t.Run(sc.Name, func(t *testing.T) {
			RunScenario(t, sc)
		})
	}
}

func TestTimeoutScenarioReportsNoIterations(t *testing.T) {
	sc, err := Load("unstable_flush.yaml")
	require.NoError(t, err)
	res := RunScenario(t, sc)
	assert.Equal(t, events.OutcomeTimeout, res.Outcome)
	assert.Zero(t, res.Iterations)
}

func TestControllerOverrides(t *testing.T) {
	cfg := ControllerDef{DisableFeedback: true, FlushingTime: 4 * time.Second}.ToConfig()
	assert.True(t, cfg.DisableFeedback)
	assert.Equal(t, 4*time.Second, cfg.FlushingTime)
	assert.Equal(t, 100, cfg.MaxIterations)
}

func TestLoadDefaultsLiquidName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\ncontroller:\n  flushing_time: 2s\nliquid:\n  target: 1\n"), 0o644))
	sc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "water", sc.Liquid.Name)
	assert.Equal(t, 2*time.Second, sc.Controller.FlushingTime)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load("no-file.yaml")
	assert.Error(t, err)

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(":"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	unnamed := filepath.Join(dir, "unnamed.yaml")
	require.NoError(t, os.WriteFile(unnamed, []byte("liquid:\n  target: 1\n"), 0o644))
	_, err = Load(unnamed)
	assert.Error(t, err)

	outcome := filepath.Join(dir, "outcome.yaml")
	require.NoError(t, os.WriteFile(outcome, []byte("name: x\nexpected:\n  outcome: spilled\n"), 0o644))
	_, err = Load(outcome)
	assert.ErrorContains(t, err, "spilled")
}
