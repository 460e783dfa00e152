package durable

import (
	"context"
	"errors"
)

// FlowHandle is the caller-facing façade for one (flow implementation,
// flowId) pair. It owns no mutable flow state beyond its bound
// dispatcher: establishing the call-mode is the handle's entire job.
type FlowHandle struct {
	engine     *Engine
	flowID     string
	className  string
	dispatcher *Dispatcher
}

// ID returns the flow id this handle is bound to.
func (h *FlowHandle) ID() string {
	return h.flowID
}

// Action is user code driving one or more Dispatcher calls for a single
// invocation of a flow handle.
type Action func(ctx context.Context, d *Dispatcher) error

// ValueAction is like Action but returns a value, for Execute.
type ValueAction func(ctx context.Context, d *Dispatcher) (any, error)

// Run sets call-mode Run and invokes action against the bound dispatcher.
// An await-step reaching WaitingForSignal in Run mode is an expected
// control-flow outcome, not an error, and is swallowed; any other error
// propagates.
func (h *FlowHandle) Run(ctx context.Context, action Action) error {
	err := action(withCallMode(ctx, ModeRun), h.dispatcher)
	if errors.Is(err, ErrFlowPause) {
		return nil
	}
	return err
}

// Execute is like Run but returns fn's result. It does not swallow
// ErrFlowPause: a top-level flow expected to return a value is not
// expected to pause mid-flight.
func (h *FlowHandle) Execute(ctx context.Context, fn ValueAction) (any, error) {
	return fn(withCallMode(ctx, ModeRun), h.dispatcher)
}

// RunAsync is Run on a background goroutine. The returned channel
// receives exactly one value.
func (h *FlowHandle) RunAsync(ctx context.Context, action Action) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- h.Run(ctx, action)
	}()
	return done
}

// AsyncResult carries the outcome of an ExecuteAsync call.
type AsyncResult struct {
	Value any
	Err   error
}

// ExecuteAsync is Execute on a background goroutine.
func (h *FlowHandle) ExecuteAsync(ctx context.Context, fn ValueAction) <-chan AsyncResult {
	done := make(chan AsyncResult, 1)
	go func() {
		v, err := h.Execute(ctx, fn)
		done <- AsyncResult{Value: v, Err: err}
	}()
	return done
}

// Resume sets call-mode Resume and invokes action against the bound
// dispatcher. The action is expected to call the specific Step/Await
// that is WaitingForSignal for this flow: the dispatcher locates the
// anchor row by latest-step lookup regardless of currentStep, so the
// action need not reconstruct the preceding call sequence.
func (h *FlowHandle) Resume(ctx context.Context, action Action) error {
	return action(withCallMode(ctx, ModeResume), h.dispatcher)
}

// Signal delivers args to this flow's rendezvous slot. It does not
// itself resume execution: a waiting Resume call (or the next one
// issued) consumes the payload.
func (h *FlowHandle) Signal(args ...any) error {
	encoded, err := EncodeArgs(args)
	if err != nil {
		return err
	}
	h.engine.rendezvous.Signal(h.flowID, encoded)
	return nil
}
