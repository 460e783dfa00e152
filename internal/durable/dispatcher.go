package durable

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/ambit-run/ambit/internal/store"
)

type stepKind int

const (
	kindFlow stepKind = iota
	kindStep
	kindAwait
)

// Dispatcher intercepts every step call for one flow and decides its
// fate: replay, execute, wait-for-signal, delay-then-execute, or abort.
// It holds the per-flow state the decision algorithm needs: flowId and
// currentStep.
//
// A Dispatcher is bound to exactly one flow and must not be shared across
// goroutines driving the same flow concurrently: currentStep is not safe
// for that.
type Dispatcher struct {
	engine    *Engine
	flowID    string
	className string

	mu          sync.Mutex
	currentStep int
}

func newDispatcher(engine *Engine, flowID, className string) *Dispatcher {
	return &Dispatcher{engine: engine, flowID: flowID, className: className}
}

// ID returns the flow id this dispatcher is bound to.
func (d *Dispatcher) ID() string {
	return d.flowID
}

// Step intercepts an immediate (no-delay) step call.
//
// fn must be a plain Go function value returning either (error) for a
// void step, or (T, error) for a value-returning step. args are passed
// to fn positionally on execution, or substituted from the durable log
// on replay.
func (d *Dispatcher) Step(ctx context.Context, methodName string, fn any, args ...any) (any, error) {
	paramTypes, returnType, err := describeFn(fn)
	if err != nil {
		return nil, err
	}
	return d.dispatch(ctx, kindStep, methodName, 0, paramTypes, returnType,
		func(a []any) (any, error) { return callFn(fn, a) }, args)
}

// StepDelayed intercepts a step call that must not begin its body until
// delay has elapsed since the step's first recorded start. The delay is
// a minimum wait, not a maximum; it is never re-applied on replay.
func (d *Dispatcher) StepDelayed(ctx context.Context, methodName string, delay time.Duration, fn any, args ...any) (any, error) {
	paramTypes, returnType, err := describeFn(fn)
	if err != nil {
		return nil, err
	}
	return d.dispatch(ctx, kindStep, methodName, delay, paramTypes, returnType,
		func(a []any) (any, error) { return callFn(fn, a) }, args)
}

// Await intercepts a step that pauses for an external signal. On first
// encounter in Run mode, the row is stored WaitingForSignal and the flow
// aborts with ErrFlowPause; a later Resume call re-enters here, consumes
// the rendezvous payload in place of args, and runs the body.
func (d *Dispatcher) Await(ctx context.Context, methodName string, fn any, args ...any) (any, error) {
	paramTypes, returnType, err := describeFn(fn)
	if err != nil {
		return nil, err
	}
	return d.dispatch(ctx, kindAwait, methodName, 0, paramTypes, returnType,
		func(a []any) (any, error) { return callFn(fn, a) }, args)
}

// Flow intercepts the flow-entry call: the one call per flow, if any,
// that is forced to step 0 regardless of what currentStep already holds.
// fn receives the dispatcher itself, so it can call further Step,
// StepDelayed and Await calls to implement the rest of the flow's body;
// those calls are numbered 1, 2, 3... as they are first intercepted.
//
// The flow-entry call is optional-but-preferred: a flow whose caller
// drives individual Step/Await calls directly, with no enclosing Flow
// call, is equally valid. The first such call simply becomes step 0.
func (d *Dispatcher) Flow(ctx context.Context, methodName string, fn FlowFunc, args ...any) (any, error) {
	anyType := reflect.TypeOf((*any)(nil)).Elem()
	paramTypes := make([]reflect.Type, len(args))
	for i := range paramTypes {
		paramTypes[i] = anyType
	}
	return d.dispatch(ctx, kindFlow, methodName, 0, paramTypes, anyType,
		func(a []any) (any, error) { return fn(ctx, d, a...) }, args)
}

func (d *Dispatcher) currentStepLocked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentStep
}

func (d *Dispatcher) advance(step int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if step+1 > d.currentStep {
		d.currentStep = step + 1
	}
}

// dispatch implements the decision algorithm in full: anchor lookup,
// structural-drift check, replay, rendezvous resume, remaining-delay
// retry, WaitingForSignal write, pause-on-await-in-Run, execution, and
// completion recording.
func (d *Dispatcher) dispatch(
	ctx context.Context,
	kind stepKind,
	methodName string,
	declaredDelay time.Duration,
	paramTypes []reflect.Type,
	returnType reflect.Type,
	call func(args []any) (any, error),
	args []any,
) (any, error) {
	mode := callModeFromContext(ctx)

	step := d.currentStepLocked()
	if kind == kindFlow {
		step = 0
	}

	var anchor *store.Invocation
	var err error
	if mode == ModeResume {
		anchor, err = d.engine.store.GetLatestInvocation(ctx, d.flowID)
		if err != nil {
			return nil, fmt.Errorf("durable: resume: read latest invocation: %w", err)
		}
		if anchor != nil {
			step = anchor.Step
		}
	} else {
		anchor, err = d.engine.store.GetInvocation(ctx, d.flowID, step)
		if err != nil {
			return nil, fmt.Errorf("durable: read invocation: %w", err)
		}
	}

	effectiveArgs := args
	var remainingDelay time.Duration

	if anchor != nil {
		if anchor.ClassName != d.className || anchor.MethodName != methodName {
			return nil, newStructuralDriftError(d.flowID, step, anchor.ClassName, anchor.MethodName, d.className, methodName)
		}

		if anchor.Status == store.StatusComplete {
			rv, err := DecodeReturn(anchor.ReturnValue, returnType)
			if err != nil {
				return nil, fmt.Errorf("durable: decode replayed return: %w", err)
			}
			d.advance(step)
			return reflectValueOrNil(rv), nil
		}

		if anchor.Status == store.StatusWaitingForSignal && mode == ModeResume {
			payload, err := d.engine.rendezvous.Await(ctx, d.flowID)
			if err != nil {
				return nil, fmt.Errorf("durable: await signal: %w", err)
			}
			effectiveArgs, err = decodePayloadArgs(payload, paramTypes)
			if err != nil {
				return nil, err
			}
		}

		remainingDelay = remainingWait(declaredDelay, anchor.Timestamp, d.engine.clock.NowMS())
	} else {
		remainingDelay = declaredDelay
	}

	status := store.StatusPending
	if mode == ModeAwait || (kind == kindAwait && mode != ModeResume) {
		status = store.StatusWaitingForSignal
	}

	var delayPtr *int64
	if declaredDelay > 0 {
		ms := declaredDelay.Milliseconds()
		delayPtr = &ms
	}

	encodedArgs, err := EncodeArgs(effectiveArgs)
	if err != nil {
		return nil, fmt.Errorf("durable: encode args: %w", err)
	}

	if _, err := d.engine.store.LogInvocationStart(
		ctx, d.flowID, step, d.className, methodName, delayPtr, status, encodedArgs, d.engine.clock.NowMS(),
	); err != nil {
		return nil, fmt.Errorf("durable: log invocation start: %w", err)
	}

	if kind == kindFlow {
		// The flow-entry row occupies step 0 for the lifetime of the
		// flow; its body's first nested Step/StepDelayed/Await call
		// must not collide with that row, so children start at 1
		// before the body (which is `call` below) runs.
		d.advance(step)
	}

	if status == store.StatusWaitingForSignal {
		if mode == ModeRun {
			return nil, ErrFlowPause
		}
		if mode == ModeAwait {
			payload, err := d.engine.rendezvous.Await(ctx, d.flowID)
			if err != nil {
				return nil, fmt.Errorf("durable: await signal: %w", err)
			}
			effectiveArgs, err = decodePayloadArgs(payload, paramTypes)
			if err != nil {
				return nil, err
			}
		}
	}

	if remainingDelay > 0 {
		d.engine.clock.Sleep(remainingDelay)
	}

	result, err := call(effectiveArgs)
	if err != nil {
		return nil, err
	}

	encodedReturn, err := EncodeReturn(result)
	if err != nil {
		return nil, fmt.Errorf("durable: encode return: %w", err)
	}
	if _, err := d.engine.store.LogInvocationCompletion(ctx, d.flowID, step, encodedReturn); err != nil {
		if errors.Is(err, store.ErrMissingCompletionTarget) {
			return nil, &DispatchError{
				Code:    ErrCodeMissingCompletionTarget,
				Message: "no invocation row to complete",
				FlowID:  d.flowID,
				Step:    step,
			}
		}
		return nil, fmt.Errorf("durable: log invocation completion: %w", err)
	}

	d.advance(step)
	if step == 0 {
		d.engine.rendezvous.Release(d.flowID)
	}
	return result, nil
}

func remainingWait(declared time.Duration, anchorTimestampMS, nowMS int64) time.Duration {
	if declared <= 0 {
		return 0
	}
	elapsed := time.Duration(nowMS-anchorTimestampMS) * time.Millisecond
	rem := declared - elapsed
	if rem < 0 {
		return 0
	}
	return rem
}

func decodePayloadArgs(payload []byte, paramTypes []reflect.Type) ([]any, error) {
	values, err := DecodeArgs(payload, paramTypes)
	if err != nil {
		return nil, fmt.Errorf("durable: decode signal payload: %w", err)
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v.Interface()
	}
	return out, nil
}

func reflectValueOrNil(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

// describeFn validates that fn is a function returning (error) or
// (T, error), and returns its parameter types and declared return type
// (nil for the void case).
func describeFn(fn any) (paramTypes []reflect.Type, returnType reflect.Type, err error) {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		return nil, nil, fmt.Errorf("durable: step target must be a function, got %T", fn)
	}
	if t.IsVariadic() {
		return nil, nil, fmt.Errorf("durable: step target must not be variadic")
	}

	switch t.NumOut() {
	case 1:
		returnType = nil
	case 2:
		returnType = t.Out(0)
	default:
		return nil, nil, fmt.Errorf("durable: step target must return (error) or (T, error), got %d return values", t.NumOut())
	}
	if !isErrorType(t.Out(t.NumOut() - 1)) {
		return nil, nil, fmt.Errorf("durable: step target's last return value must be error")
	}

	paramTypes = make([]reflect.Type, t.NumIn())
	for i := range paramTypes {
		paramTypes[i] = t.In(i)
	}
	return paramTypes, returnType, nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func isErrorType(t reflect.Type) bool {
	return t == errorType
}

// callFn invokes fn (a plain Go function value validated by describeFn)
// with args via reflection, translating its (T, error)/(error) return
// shape into a single (any, error) pair.
func callFn(fn any, args []any) (any, error) {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.NumIn() != len(args) {
		return nil, fmt.Errorf("durable: argument count mismatch calling %s: got %d, want %d", ft, len(args), ft.NumIn())
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		paramType := ft.In(i)
		if a == nil {
			in[i] = reflect.Zero(paramType)
			continue
		}
		av := reflect.ValueOf(a)
		if av.Type() == paramType {
			in[i] = av
		} else if av.Type().ConvertibleTo(paramType) {
			in[i] = av.Convert(paramType)
		} else {
			return nil, fmt.Errorf("durable: cannot pass %s as argument %d of type %s", av.Type(), i, paramType)
		}
	}

	out := fv.Call(in)
	switch len(out) {
	case 1:
		if errVal := out[0]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
		return nil, nil
	case 2:
		var callErr error
		if errVal := out[1]; !errVal.IsNil() {
			callErr = errVal.Interface().(error)
		}
		if callErr != nil {
			return nil, callErr
		}
		return out[0].Interface(), nil
	default:
		return nil, fmt.Errorf("durable: unexpected return shape calling %s", ft)
	}
}
