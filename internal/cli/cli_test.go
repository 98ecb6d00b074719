package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniper-lake/CoLoRS/internal/app"
)

func TestParseNoArgsPrintsUsage(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	config, shouldExit, err := Parse(nil, &out)

	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, config)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseHelpFlag(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	config, shouldExit, err := Parse([]string{"-h"}, &out)

	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, config)
	assert.Contains(t, out.String(), "CONFIG_PATH")
}

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	config, shouldExit, err := Parse([]string{"--config", "cohort.hcl"}, &out)

	require.NoError(t, err)
	assert.False(t, shouldExit)
	require.NotNil(t, config)
	assert.Equal(t, "cohort.hcl", config.ConfigPath)
	assert.Equal(t, "colors-out", config.OutDir)
	assert.Equal(t, app.BackendLocal, config.Backend)
	assert.Equal(t, "json", config.LogFormat)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, 0, config.Workers)
}

func TestParsePositionalConfigPath(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	config, _, err := Parse([]string{"runs/cohort.hcl"}, &out)

	require.NoError(t, err)
	require.NotNil(t, config)
	assert.Equal(t, "runs/cohort.hcl", config.ConfigPath)
}

func TestParseAllFlags(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	config, _, err := Parse([]string{
		"--config", "cohort.hcl",
		"--out-dir", "/data/run7",
		"--backend", "awsbatch",
		"--log-format", "text",
		"--log-level", "debug",
		"--workers", "12",
	}, &out)

	require.NoError(t, err)
	require.NotNil(t, config)
	assert.Equal(t, "/data/run7", config.OutDir)
	assert.Equal(t, app.BackendAWSBatch, config.Backend)
	assert.Equal(t, "text", config.LogFormat)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, 12, config.Workers)
}

func TestParseInvalidInputs(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--config", "c.hcl", "--no-such-flag"}},
		{"bad log format", []string{"--config", "c.hcl", "--log-format", "yaml"}},
		{"bad log level", []string{"--config", "c.hcl", "--log-level", "loud"}},
		{"bad backend", []string{"--config", "c.hcl", "--backend", "slurm"}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			config, shouldExit, err := Parse(tc.args, &out)

			assert.Nil(t, config)
			assert.False(t, shouldExit)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}
