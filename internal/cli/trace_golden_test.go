package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/ambit-run/ambit/internal/durable"
	"github.com/ambit-run/ambit/internal/store"
)

// TestTraceGoldenOutput pins the trace command's JSON shape against a
// golden file. Rows are seeded directly at fixed timestamps so the
// output is reproducible across runs.
func TestTraceGoldenOutput(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ambit.db")

	st, err := store.Open(dbPath)
	require.NoError(t, err)

	ctx := context.Background()
	params, err := durable.EncodeArgs(nil)
	require.NoError(t, err)

	_, err = st.LogInvocationStart(ctx, "signup-golden", 0, "Signup", "Flow", nil, store.StatusPending, params, 1_700_000_000_000)
	require.NoError(t, err)
	_, err = st.LogInvocationStart(ctx, "signup-golden", 1, "Signup", "CreateUserRecord", nil, store.StatusPending, params, 1_700_000_000_000)
	require.NoError(t, err)
	_, err = st.LogInvocationCompletion(ctx, "signup-golden", 1, []byte(`1234`))
	require.NoError(t, err)

	delay := int64(10_000)
	_, err = st.LogInvocationStart(ctx, "signup-golden", 2, "Signup", "SendWelcomeEmail", &delay, store.StatusPending, params, 1_700_000_000_000)
	require.NoError(t, err)
	_, err = st.LogInvocationCompletion(ctx, "signup-golden", 2, []byte(`null`))
	require.NoError(t, err)

	_, err = st.LogInvocationStart(ctx, "signup-golden", 3, "Signup", "ConfirmEmailAddress", nil, store.StatusWaitingForSignal, params, 1_700_000_010_000)
	require.NoError(t, err)

	require.NoError(t, st.Close())

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--flow", "signup-golden"})

	require.NoError(t, cmd.Execute())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "trace-signup", buf.Bytes())
}
