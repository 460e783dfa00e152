package durable

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSwallowsFlowPause(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	engine := New(st, WithClock(NewFakeClock(0)))
	handle, err := newTestHandle(engine, "flow-1", "Signup")
	require.NoError(t, err)

	confirm := func(ts time.Time) (string, error) { return "", nil }

	err = handle.Run(ctx, func(ctx context.Context, d *Dispatcher) error {
		_, err := d.Await(ctx, "ConfirmEmailAddress", confirm, time.Time{})
		return err
	})
	require.NoError(t, err, "an await-step pause is swallowed by Run")
}

func TestRunPropagatesOtherErrors(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	engine := New(st, WithClock(NewFakeClock(0)))
	handle, err := newTestHandle(engine, "flow-1", "Signup")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = handle.Run(ctx, func(ctx context.Context, d *Dispatcher) error {
		_, err := d.Step(ctx, "Fail", func() error { return boom })
		return err
	})
	assert.ErrorIs(t, err, boom)
}

func TestExecuteDoesNotSwallowPause(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	engine := New(st, WithClock(NewFakeClock(0)))
	handle, err := newTestHandle(engine, "flow-1", "Signup")
	require.NoError(t, err)

	confirm := func(ts time.Time) (string, error) { return "", nil }

	_, err = handle.Execute(ctx, func(ctx context.Context, d *Dispatcher) (any, error) {
		return d.Await(ctx, "ConfirmEmailAddress", confirm, time.Time{})
	})
	assert.True(t, IsFlowPause(err))
}

func TestSignalThenResumeDeliversPayload(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	engine := New(st, WithClock(NewFakeClock(0)))
	handle, err := newTestHandle(engine, "flow-1", "Signup")
	require.NoError(t, err)

	confirm := func(ts time.Time) (string, error) { return ts.Format(time.RFC3339), nil }

	err = handle.Run(ctx, func(ctx context.Context, d *Dispatcher) error {
		_, err := d.Await(ctx, "ConfirmEmailAddress", confirm, time.Time{})
		return err
	})
	require.NoError(t, err)

	signalTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, handle.Signal(signalTime))

	err = handle.Resume(ctx, func(ctx context.Context, d *Dispatcher) error {
		v, err := d.Await(ctx, "ConfirmEmailAddress", confirm, time.Time{})
		if err != nil {
			return err
		}
		assert.Equal(t, signalTime.Format(time.RFC3339), v)
		return nil
	})
	require.NoError(t, err)
}

func TestRunAsyncDeliversResultOnChannel(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	engine := New(st, WithClock(NewFakeClock(0)))
	handle, err := newTestHandle(engine, "flow-1", "Signup")
	require.NoError(t, err)

	done := handle.RunAsync(ctx, func(ctx context.Context, d *Dispatcher) error {
		_, err := d.Step(ctx, "NoOp", func() error { return nil })
		return err
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunAsync did not complete in time")
	}
}

func newTestHandle(engine *Engine, flowID, className string) (*FlowHandle, error) {
	engine.RegisterFlow(className, func(ctx context.Context, d *Dispatcher, args ...any) (any, error) {
		return nil, nil
	})
	return engine.NewHandle(flowID, className)
}
