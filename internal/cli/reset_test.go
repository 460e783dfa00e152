package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambit-run/ambit/internal/store"
)

func TestResetClearsExecutionLog(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ambit.db")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = st.LogInvocationStart(context.Background(), "F1", 0, "Hello", "Flow", nil, store.StatusPending, nil, 1000)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	buf := &bytes.Buffer{}
	cmd := NewResetCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "reset")

	st2, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st2.Close()
	rows, err := st2.GetIncompleteFlows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestResetMissingDatabaseFlag(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewResetCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
