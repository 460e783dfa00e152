package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceMissingFlowFlag(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "ambit.db")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow")
}

func TestTraceUnknownFlowID(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ambit.db")

	runBuf := &bytes.Buffer{}
	runCmd := NewRunCommand(&RootOptions{Format: "json"})
	runCmd.SetOut(runBuf)
	runCmd.SetErr(runBuf)
	runCmd.SetArgs([]string{"--db", dbPath, "--flow", "signup-5", "--name", "Ada", "--email", "ada@example.com"})
	require.NoError(t, runCmd.Execute())

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--flow", "does-not-exist"})

	err := cmd.Execute()
	require.Error(t, err)
}

func TestTraceShowsLoggedRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ambit.db")

	runBuf := &bytes.Buffer{}
	runCmd := NewRunCommand(&RootOptions{Format: "json"})
	runCmd.SetOut(runBuf)
	runCmd.SetErr(runBuf)
	runCmd.SetArgs([]string{"--db", dbPath, "--flow", "signup-6", "--name", "Ada", "--email", "ada@example.com"})
	require.NoError(t, runCmd.Execute())

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--flow", "signup-6"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "CreateUserRecord")
	assert.Contains(t, output, "SendWelcomeEmail")
	assert.Contains(t, output, "ConfirmEmailAddress")
}
