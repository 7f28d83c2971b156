package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	require.NotNil(t, cmd)
	assert.Equal(t, "ruvltra-code", cmd.Use)
	assert.Equal(t, "1.0.0", cmd.Version)

	commands := cmd.Commands()
	assert.Len(t, commands, 4)

	names := make(map[string]bool)
	for _, c := range commands {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["status"])
	assert.True(t, names["scale"])
	assert.True(t, names["sona-stats"])

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestBuildServeCommand(t *testing.T) {
	cmd := buildServeCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "serve", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestBuildStatusCommand(t *testing.T) {
	cmd := buildStatusCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "status", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestBuildScaleCommand(t *testing.T) {
	cmd := buildScaleCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "scale", cmd.Use)

	targetFlag := cmd.Flags().Lookup("target")
	require.NotNil(t, targetFlag)
	assert.Equal(t, "2", targetFlag.DefValue)
}

func TestBuildSonaStatsCommand(t *testing.T) {
	cmd := buildSonaStatsCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "sona-stats", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestStatusCommandRunsAgainstTransientPool(t *testing.T) {
	cmd := buildStatusCommand()
	err := cmd.RunE(cmd, nil)
	require.NoError(t, err)
}

func TestScaleCommandRunsAgainstTransientPool(t *testing.T) {
	cmd := buildScaleCommand()
	require.NoError(t, cmd.Flags().Set("target", "3"))
	err := cmd.RunE(cmd, nil)
	require.NoError(t, err)
}

func TestSonaStatsCommandRunsAgainstTransientPool(t *testing.T) {
	cmd := buildSonaStatsCommand()
	err := cmd.RunE(cmd, nil)
	require.NoError(t, err)
}
