package durable

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ambit-run/ambit/internal/store"
)

// FlowFunc is a registered flow implementation. Dispatcher.Flow invokes
// it as the flow-entry call (step 0); it receives the dispatcher bound
// to its flowId so it can in turn call Step, StepDelayed and Await.
type FlowFunc func(ctx context.Context, d *Dispatcher, args ...any) (any, error)

// Engine is the embeddable entry point: it owns the log store, the
// rendezvous registry, the flow implementation registry, and the clock.
// An embedder constructs one Engine and threads it through its own code;
// nothing about it requires a process-wide singleton.
type Engine struct {
	store      *store.Store
	rendezvous *Rendezvous
	clock      Clock
	logger     *slog.Logger
	idGen      IDGenerator

	mu    sync.RWMutex
	flows map[string]FlowFunc
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the default system clock. Tests use this to make
// delay and timestamp behavior deterministic.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithIDGenerator overrides the default UUIDv7 flow-id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.idGen = g }
}

// New constructs an Engine bound to the given log store.
func New(st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		rendezvous: NewRendezvous(),
		clock:      SystemClock,
		logger:     slog.Default(),
		idGen:      UUIDv7Generator{},
		flows:      make(map[string]FlowFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterFlow binds a flow implementation to className. The Flow Factory
// (NewHandle) and the Recovery Scheduler both look up implementations by
// this name, which is persisted verbatim as the log row's class_name.
func (e *Engine) RegisterFlow(className string, fn FlowFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flows[className] = fn
}

func (e *Engine) lookupFlow(className string) (FlowFunc, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.flows[className]
	if !ok {
		return nil, newNoImplementationError(className)
	}
	return fn, nil
}

// NewFlowID generates a fresh flow id using the engine's configured
// generator.
func (e *Engine) NewFlowID() string {
	return e.idGen.Generate()
}

// Store exposes the underlying log store for diagnostics (e.g. tests
// inspecting logged rows).
func (e *Engine) Store() *store.Store {
	return e.store
}

// NewHandle implements the Flow Factory: given a className already bound
// via RegisterFlow and a flowId, it returns a Flow Handle wrapping a
// dispatcher for that flow.
func (e *Engine) NewHandle(flowID, className string) (*FlowHandle, error) {
	if _, err := e.lookupFlow(className); err != nil {
		return nil, err
	}
	return &FlowHandle{
		engine:     e,
		flowID:     flowID,
		className:  className,
		dispatcher: newDispatcher(e, flowID, className),
	}, nil
}

// RecoverIncompleteFlows implements the Recovery Scheduler: it scans the
// log store for step-0 rows not yet Complete and re-invokes each one's
// registered flow function, passing the logged parameters, on its own
// goroutine. Recovery is at-most-once per call; it does not poll.
//
// Idempotent and safe to call at startup: a flow already fully resolved
// by the time this runs simply replays to completion and exits quietly.
func (e *Engine) RecoverIncompleteFlows(ctx context.Context) error {
	incomplete, err := e.store.GetIncompleteFlows(ctx)
	if err != nil {
		return fmt.Errorf("durable: recover incomplete flows: %w", err)
	}

	for _, inv := range incomplete {
		inv := inv

		fn, err := e.lookupFlow(inv.ClassName)
		if err != nil {
			e.logger.Error("recovery: no implementation registered",
				"flow_id", inv.FlowID, "class_name", inv.ClassName, "error", err)
			continue
		}

		args, err := DecodeArgsNative(inv.Parameters)
		if err != nil {
			e.logger.Error("recovery: failed to decode flow arguments",
				"flow_id", inv.FlowID, "error", err)
			continue
		}

		handle := &FlowHandle{
			engine:     e,
			flowID:     inv.FlowID,
			className:  inv.ClassName,
			dispatcher: newDispatcher(e, inv.FlowID, inv.ClassName),
		}
		methodName := inv.MethodName

		go func() {
			err := handle.Run(ctx, func(ctx context.Context, d *Dispatcher) error {
				_, err := d.Flow(ctx, methodName, fn, args...)
				return err
			})
			if err != nil {
				e.logger.Error("recovery: flow failed",
					"flow_id", inv.FlowID, "class_name", inv.ClassName, "error", err)
			}
		}()
	}

	return nil
}
