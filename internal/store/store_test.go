package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestGetInvocationUnknownReturnsNil(t *testing.T) {
	st := openTestStore(t)
	inv, err := st.GetInvocation(context.Background(), "unknown-flow", 0)
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestLogInvocationStartInsertsThenIncrementsAttempts(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	inv, err := st.LogInvocationStart(ctx, "flow-1", 0, "Signup", "SignUp", nil, StatusPending, []byte(`[]`), 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.Attempts)
	assert.Equal(t, int64(1000), inv.Timestamp)
	assert.Equal(t, StatusPending, inv.Status)

	// Retry: attempts increments, everything else is immutable.
	inv2, err := st.LogInvocationStart(ctx, "flow-1", 0, "Signup", "SignUp", nil, StatusPending, []byte(`["ignored"]`), 9999)
	require.NoError(t, err)
	assert.Equal(t, 2, inv2.Attempts)
	assert.Equal(t, int64(1000), inv2.Timestamp, "timestamp must not change on retry")
	assert.Equal(t, []byte(`[]`), inv2.Parameters, "parameters must not change on retry")
}

func TestLogInvocationCompletionMissingTarget(t *testing.T) {
	st := openTestStore(t)
	_, err := st.LogInvocationCompletion(context.Background(), "nope", 0, []byte(`1`))
	assert.ErrorIs(t, err, ErrMissingCompletionTarget)
}

func TestLogInvocationCompletionMarksComplete(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	_, err := st.LogInvocationStart(ctx, "flow-1", 1, "Signup", "Say", nil, StatusPending, []byte(`["World",0]`), 1000)
	require.NoError(t, err)

	inv, err := st.LogInvocationCompletion(ctx, "flow-1", 1, []byte(`0`))
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, inv.Status)
	assert.Equal(t, []byte(`0`), inv.ReturnValue)
}

func TestGetLatestInvocation(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	_, err := st.LogInvocationStart(ctx, "flow-1", 0, "Signup", "SignUp", nil, StatusPending, nil, 1000)
	require.NoError(t, err)
	_, err = st.LogInvocationStart(ctx, "flow-1", 1, "Signup", "Create", nil, StatusPending, nil, 1001)
	require.NoError(t, err)

	latest, err := st.GetLatestInvocation(ctx, "flow-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 1, latest.Step)
}

func TestGetIncompleteFlowsOrderedByTimestamp(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	_, err := st.LogInvocationStart(ctx, "f2", 0, "Signup", "SignUp", nil, StatusPending, nil, 2000)
	require.NoError(t, err)
	_, err = st.LogInvocationStart(ctx, "f1", 0, "Signup", "SignUp", nil, StatusPending, nil, 1000)
	require.NoError(t, err)
	_, err = st.LogInvocationStart(ctx, "f3", 0, "Signup", "SignUp", nil, StatusPending, nil, 3000)
	require.NoError(t, err)
	_, err = st.LogInvocationCompletion(ctx, "f3", 0, []byte(`null`))
	require.NoError(t, err)

	flows, err := st.GetIncompleteFlows(ctx)
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, "f1", flows[0].FlowID)
	assert.Equal(t, "f2", flows[1].FlowID)
}

func TestResetClearsAllRows(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	_, err := st.LogInvocationStart(ctx, "flow-1", 0, "Signup", "SignUp", nil, StatusPending, nil, 1000)
	require.NoError(t, err)

	require.NoError(t, st.Reset(ctx))

	inv, err := st.GetInvocation(ctx, "flow-1", 0)
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestDelayMSRoundTrips(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	delay := int64(10000)
	inv, err := st.LogInvocationStart(ctx, "flow-1", 1, "Signup", "SendWelcomeEmail", &delay, StatusPending, nil, 1000)
	require.NoError(t, err)
	require.NotNil(t, inv.DelayMS)
	assert.Equal(t, delay, *inv.DelayMS)
}
