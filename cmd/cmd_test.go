// File: cmd/cmd_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealCommandFlags(t *testing.T) {
	cmd := newHealCmd()

	for _, name := range []string{"url", "scenario", "step", "strategy", "locator", "action", "kind", "message", "value", "policy", "destructive"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag --%s must exist", name)
	}
}

func TestHealCommandFlagDefaults(t *testing.T) {
	cmd := newHealCmd()

	strategy, err := cmd.Flags().GetString("strategy")
	require.NoError(t, err)
	assert.Equal(t, "CSS", strategy)

	policy, err := cmd.Flags().GetString("policy")
	require.NoError(t, err)
	assert.Equal(t, "SUGGEST", policy, "the default policy must be the conservative one")

	action, err := cmd.Flags().GetString("action")
	require.NoError(t, err)
	assert.Equal(t, "CLICK", action)
}

func TestRootCommandHasHealSubcommand(t *testing.T) {
	names := make([]string, 0, len(rootCmd.Commands()))
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "heal")
}
