package durable

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambit-run/ambit/internal/store"
)

func TestNewHandleNoImplementation(t *testing.T) {
	st := newTestStore(t)
	engine := New(st, WithClock(NewFakeClock(0)))

	_, err := engine.NewHandle("flow-1", "DoesNotExist")
	require.Error(t, err)
	assert.True(t, IsNoImplementation(err))
}

func TestNewFlowIDUsesConfiguredGenerator(t *testing.T) {
	st := newTestStore(t)
	gen := NewFixedGenerator("flow-a", "flow-b")
	engine := New(st, WithClock(NewFakeClock(0)), WithIDGenerator(gen))

	assert.Equal(t, "flow-a", engine.NewFlowID())
	assert.Equal(t, "flow-b", engine.NewFlowID())
}

// TestRecoverIncompleteFlowsSchedulesOnlyPending exercises the
// recovery-on-startup scenario: two pending flows are scheduled
// (ordered by timestamp), a complete one is ignored.
func TestRecoverIncompleteFlowsSchedulesOnlyPending(t *testing.T) {
	ctx := withCallMode(context.Background(), ModeRun)
	st := newTestStore(t)
	clock := NewFakeClock(0)
	engine := New(st, WithClock(clock))

	var mu sync.Mutex
	var recovered []string

	engine.RegisterFlow("Hello", func(ctx context.Context, d *Dispatcher, args ...any) (any, error) {
		mu.Lock()
		recovered = append(recovered, d.ID())
		mu.Unlock()
		return nil, nil
	})

	params, err := EncodeArgs(nil)
	require.NoError(t, err)

	_, err = st.LogInvocationStart(ctx, "F1", 0, "Hello", "Flow", nil, store.StatusPending, params, 1000)
	require.NoError(t, err)
	_, err = st.LogInvocationStart(ctx, "F2", 0, "Hello", "Flow", nil, store.StatusPending, params, 2000)
	require.NoError(t, err)
	_, err = st.LogInvocationStart(ctx, "F3", 0, "Hello", "Flow", nil, store.StatusPending, params, 3000)
	require.NoError(t, err)
	_, err = st.LogInvocationCompletion(ctx, "F3", 0, []byte(`null`))
	require.NoError(t, err)

	require.NoError(t, engine.RecoverIncompleteFlows(ctx))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(recovered) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"F1", "F2"}, recovered)
}

func TestRecoverIncompleteFlowsSkipsUnregisteredClassName(t *testing.T) {
	ctx := withCallMode(context.Background(), ModeRun)
	st := newTestStore(t)
	engine := New(st, WithClock(NewFakeClock(0)))

	params, err := EncodeArgs(nil)
	require.NoError(t, err)
	_, err = st.LogInvocationStart(ctx, "F1", 0, "Ghost", "Flow", nil, store.StatusPending, params, 1000)
	require.NoError(t, err)

	require.NoError(t, engine.RecoverIncompleteFlows(ctx))
}
