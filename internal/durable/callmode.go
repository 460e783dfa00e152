package durable

import "context"

// CallMode indicates why the user invoked a dispatcher method. It is the
// ambient, per-logical-task context value that must follow the call chain
// into every Step/StepDelayed/Await call within one flow invocation.
type CallMode int

const (
	// ModeRun is the ordinary, externally-triggered invocation path.
	ModeRun CallMode = iota
	// ModeResume follows a delivered signal; the dispatcher re-reads the
	// flow's latest row rather than trusting the caller's step count.
	ModeResume
	// ModeAwait is used internally: an await-step waits on the rendezvous
	// slot for its signal (blocking until one arrives) and then executes
	// inline. Never set by caller code directly.
	ModeAwait
)

func (m CallMode) String() string {
	switch m {
	case ModeRun:
		return "Run"
	case ModeResume:
		return "Resume"
	case ModeAwait:
		return "Await"
	default:
		return "Unknown"
	}
}

type callModeKey struct{}

// withCallMode returns a context carrying mode.
func withCallMode(ctx context.Context, mode CallMode) context.Context {
	return context.WithValue(ctx, callModeKey{}, mode)
}

// callModeFromContext returns the mode carried by ctx, defaulting to
// ModeRun if none was set (a Dispatcher method called outside a Flow
// Handle invocation behaves as an ordinary run).
func callModeFromContext(ctx context.Context) CallMode {
	if m, ok := ctx.Value(callModeKey{}).(CallMode); ok {
		return m
	}
	return ModeRun
}
