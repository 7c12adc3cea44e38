package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"deploy", "status", "destroy", "envs", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestOpenStore_CreatesAndLocks(t *testing.T) {
	statePath = filepath.Join(t.TempDir(), "state.db")

	store, release, err := openStore()
	require.NoError(t, err)
	assert.Equal(t, statePath, store.Path())
	assert.FileExists(t, statePath + ".lock")

	// The lock is exclusive while held.
	_, _, err = openStore()
	require.Error(t, err)

	release()
	assert.NoFileExists(t, statePath + ".lock")
}

func TestCmdContext_FallsBackWithoutExecute(t *testing.T) {
	cmd := &cobra.Command{Use: "bare"}
	require.Nil(t, cmd.Context())
	assert.NotNil(t, cmdContext(cmd))

	ctx := context.WithValue(context.Background(), ctxKey{}, "set")
	cmd.SetContext(ctx)
	assert.Equal(t, ctx, cmdContext(cmd))
}

type ctxKey struct{}

func TestRunEnvs_EmptyDatabase(t *testing.T) {
	statePath = filepath.Join(t.TempDir(), "state.db")

	// Invoked directly, without Execute, the command has no context of its
	// own; the run helpers must still reach the store safely.
	require.Nil(t, envsCmd.Context())
	assert.NoError(t, runEnvs(envsCmd, nil))
}

func TestRunDeploy_MissingConfig(t *testing.T) {
	statePath = filepath.Join(t.TempDir(), "state.db")
	deployConfig = filepath.Join(t.TempDir(), "nope.yaml")
	deployEnv = "prod"

	err := runDeploy(deployCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
