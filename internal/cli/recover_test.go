package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverMissingDatabaseFlag(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRecoverCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestRecoverReSchedulesIncompleteFlow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ambit.db")

	runBuf := &bytes.Buffer{}
	runCmd := NewRunCommand(&RootOptions{Format: "json"})
	runCmd.SetOut(runBuf)
	runCmd.SetErr(runBuf)
	runCmd.SetArgs([]string{"--db", dbPath, "--flow", "signup-7", "--name", "Ada", "--email", "ada@example.com"})
	require.NoError(t, runCmd.Execute())
	assert.Contains(t, runBuf.String(), "waiting_for_signal")

	buf := &bytes.Buffer{}
	cmd := NewRecoverCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--wait", "50ms"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "signup-7")
}

func TestRecoverEmptyLog(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ambit.db")

	buf := &bytes.Buffer{}
	cmd := NewRecoverCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), `"flow_count":0`)
}
