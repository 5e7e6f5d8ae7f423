package cli

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/qmdock/internal/errors"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestNewRootCommandStructure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "qmdock", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"evaluate", "optimize", "analyze"} {
		assert.True(t, names[want], want)
	}

	for _, flag := range []string{"output", "log-level", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestEvaluateJSON(t *testing.T) {
	out, _, err := run(t, "evaluate", "--site", "0,0,0", "--candidate", "0,0,0.1", "-o", "json")
	require.NoError(t, err)

	var res map[string]float64
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.InDelta(t, 0.5, res["confidence_score"], 1e-9)
	assert.InDelta(t, math.Ln2, res["binding_energy"], 1e-6)
	assert.InDelta(t, 1.0, res["electrostatic_component"]+res["van_der_waals_component"], 1e-9)
}

func TestEvaluateText(t *testing.T) {
	out, _, err := run(t, "evaluate", "--site", "0,0,0", "--candidate", "0,0,0.1")
	require.NoError(t, err)
	assert.Contains(t, out, "Binding energy:")
	assert.Contains(t, out, "Confidence:        0.500000")
}

func TestEvaluateFromXYZFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.xyz")
	require.NoError(t, os.WriteFile(path, []byte("1\nsite\nC 0.0 0.0 0.0\n"), 0o644))

	out, _, err := run(t, "evaluate", "--site", path, "--candidate", "0,0,0.1", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "confidence_score")
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing candidate", []string{"evaluate", "--site", "0,0,0"}},
		{"malformed site", []string{"evaluate", "--site", "0,0", "--candidate", "0,0,0"}},
		{"bad output format", []string{"evaluate", "--site", "0,0,0", "--candidate", "0,0,0", "-o", "yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestMalformedCoordinatesAreCallerErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"short site", []string{"evaluate", "--site", "0,0", "--candidate", "0,0,0"}},
		{"NaN candidate", []string{"evaluate", "--site", "0,0,0", "--candidate", "NaN,0,0"}},
		{"infinite candidate", []string{"evaluate", "--site", "0,0,0", "--candidate", "Inf,0,0"}},
		{"missing file", []string{"evaluate", "--site", "missing.xyz", "--candidate", "0,0,0"}},
		{"NaN optimize site", []string{"optimize", "--site", "0,NaN,0", "--candidate", "0,0,0"}},
		{"NaN analyze candidate", []string{"analyze", "egfr", "--candidate", "0,0,-Inf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := run(t, append(tt.args, "-o", "json")...)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)
			assert.Equal(t, 2, exitCode(err))
			assert.Empty(t, stdout)
		})
	}
}

func TestOptimize(t *testing.T) {
	args := []string{"optimize",
		"--site", "0.2,0.1,0.1;-0.1,0.2,0.1",
		"--candidate", "0,0,0.1;0.2,0.1,0",
		"--iterations", "4", "--seed", "3", "-o", "json"}

	out, _, err := run(t, args...)
	require.NoError(t, err)

	var res struct {
		Final float64 `json:"final_binding_energy"`
		Path  []struct {
			Energy float64 `json:"energy"`
		} `json:"optimization_path"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Path, 4)

	lowest := math.Inf(1)
	for _, p := range res.Path {
		lowest = math.Min(lowest, p.Energy)
	}
	assert.Equal(t, lowest, res.Final)

	again, _, err := run(t, args...)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestOptimizeText(t *testing.T) {
	out, _, err := run(t, "optimize", "--site", "0,0,0", "--candidate", "0,0,0.1", "--iterations", "2", "--seed", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Final energy:")
	assert.Contains(t, out, "Iter  Energy")
}

func TestOptimizeRejectsNegativeIterations(t *testing.T) {
	_, _, err := run(t, "optimize", "--site", "0,0,0", "--candidate", "0,0,0.1", "--iterations", "-1")
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestAnalyze(t *testing.T) {
	out, _, err := run(t, "analyze", "egfr", "--iterations", "2", "--seed", "5", "--workers", "3", "-o", "json")
	require.NoError(t, err)

	var report struct {
		Panel      string                     `json:"panel"`
		Category   string                     `json:"category"`
		Candidates map[string]json.RawMessage `json:"candidates"`
		Metrics    map[string]json.RawMessage `json:"breakthrough_metrics"`
		Ranking    []string                   `json:"ranking"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "egfr", report.Panel)
	assert.Equal(t, "cancer", report.Category)
	assert.Len(t, report.Candidates, 3)
	assert.Len(t, report.Metrics, 3)
	assert.ElementsMatch(t, []string{"T790M", "L858R", "C797S"}, report.Ranking)
}

func TestAnalyzeText(t *testing.T) {
	out, _, err := run(t, "analyze", "spike", "--targets", "ACE2", "--iterations", "1", "--seed", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Panel spike (covid)")
	assert.Contains(t, out, "ACE2")
}

func TestAnalyzeErrors(t *testing.T) {
	_, _, err := run(t, "analyze", "kras")
	assert.ErrorIs(t, err, errors.ErrUnknownPanel)

	_, _, err = run(t, "analyze", "egfr", "--targets", "G12C", "--iterations", "1")
	assert.ErrorIs(t, err, errors.ErrUnknownTarget)

	_, _, err = run(t, "analyze")
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 2, exitCode(errors.Wrap(errors.ErrUnknownPanel, "x")))
	assert.Equal(t, 2, exitCode(errors.Wrap(errors.ErrInvalidInput, "point 0")))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestVerboseLogsToStderr(t *testing.T) {
	_, stderr, err := run(t, "-v", "optimize", "--site", "0,0,0", "--candidate", "0,0,0.1", "--iterations", "1", "--seed", "1")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Search completed")
}
