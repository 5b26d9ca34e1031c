package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_InvalidConfig(t *testing.T) {
	t.Setenv("TICK_PERIOD_MS", "banana")

	_, _, err := runCLI(t, "serve", "--db", filepath.Join(t.TempDir(), "warden.db"),
		"--listen", "127.0.0.1:0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "TICK_PERIOD_MS")
}

func TestServe_BadDatabasePath(t *testing.T) {
	_, _, err := runCLI(t, "serve", "--db", t.TempDir(), "--listen", "127.0.0.1:0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServe_StartsAndStopsOnCancel(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{
		"serve",
		"--db", filepath.Join(t.TempDir(), "warden.db"),
		"--listen", "127.0.0.1:0",
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "listening")
}
