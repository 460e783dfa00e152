// Package signup is a worked example of a durable flow: a four-step
// signup scenario (create a user record, send a welcome email after a
// delay, wait for the user to confirm their address, finalize the
// account) that gives the CLI's run/signal/trace/recover commands a
// concrete flow to drive.
package signup

import (
	"context"
	"fmt"
	"time"

	"github.com/ambit-run/ambit/internal/durable"
)

// ClassName is the className every signup invocation is logged under.
const ClassName = "Signup"

// EntryMethod is the method name the flow-entry row is logged under.
const EntryMethod = "Flow"

// ConfirmMethod is the method name of the await-step, used directly by
// Resume since resuming bypasses the flow entry entirely.
const ConfirmMethod = "ConfirmEmailAddress"

// WelcomeEmailDelay is the minimum wait between CreateUserRecord
// completing and SendWelcomeEmail's body executing.
const WelcomeEmailDelay = 10 * time.Second

// User is the signup request.
type User struct {
	Name  string
	Email string
}

// CreateUserRecord is the first step: it allocates a user id for the
// signup request. In a real embedder this would insert into an
// application database; the example stands in with a fixed id so the
// flow is reproducible without external state.
func CreateUserRecord(user User) (int, error) {
	if user.Email == "" {
		return 0, fmt.Errorf("signup: user %q has no email address", user.Name)
	}
	return 1234, nil
}

// SendWelcomeEmail is the second step, declared with WelcomeEmailDelay.
// It has no return value: a void step.
func SendWelcomeEmail(userID int, email string) error {
	return nil
}

// ConfirmEmailAddress is the await-step: it pauses until an external
// signal delivers the confirmation timestamp, then returns it formatted.
// confirmedAt is whatever the call site passes; on a genuine resume the
// dispatcher substitutes the signalled value before invoking this body,
// so the zero time passed by callers is never actually observed here.
func ConfirmEmailAddress(confirmedAt time.Time) (string, error) {
	return confirmedAt.Format(time.RFC3339), nil
}

// FinalizeSignup is the closing step: it marks the account active.
func FinalizeSignup(userID int) (string, error) {
	return fmt.Sprintf("user %d activated", userID), nil
}

// Flow is the flow body: one continuous sequence of step dispatches
// under a single dispatcher. It is re-entered from the top on every
// Run call for this flowId; already-completed steps replay instantly
// and the first incomplete one either executes or pauses the flow.
func Flow(ctx context.Context, d *durable.Dispatcher, user User) (string, error) {
	userIDVal, err := d.Step(ctx, "CreateUserRecord", CreateUserRecord, user)
	if err != nil {
		return "", err
	}
	userID := userIDVal.(int)

	if _, err := d.StepDelayed(ctx, "SendWelcomeEmail", WelcomeEmailDelay, SendWelcomeEmail, userID, user.Email); err != nil {
		return "", err
	}

	if _, err := d.Await(ctx, ConfirmMethod, ConfirmEmailAddress, time.Time{}); err != nil {
		return "", err
	}

	resultVal, err := d.Step(ctx, "FinalizeSignup", FinalizeSignup, userID)
	if err != nil {
		return "", err
	}
	return resultVal.(string), nil
}

func flowFunc(ctx context.Context, d *durable.Dispatcher, args ...any) (any, error) {
	user, err := userFromArg(args[0])
	if err != nil {
		return nil, err
	}
	return Flow(ctx, d, user)
}

// userFromArg accepts either a User value (the normal in-process call
// site) or the map[string]any shape DecodeArgsNative produces when the
// Recovery Scheduler decodes a persisted flow-entry argument without
// knowing its static Go type.
func userFromArg(arg any) (User, error) {
	switch v := arg.(type) {
	case User:
		return v, nil
	case map[string]any:
		name, _ := v["Name"].(string)
		email, _ := v["Email"].(string)
		return User{Name: name, Email: email}, nil
	default:
		return User{}, fmt.Errorf("signup: expected a User argument, got %T", arg)
	}
}

// Register binds the signup flow under ClassName so the Flow Factory and
// the Recovery Scheduler can both look it up by name.
func Register(engine *durable.Engine) {
	engine.RegisterFlow(ClassName, flowFunc)
}

// Start begins (or replays, if already in progress) a signup for user.
// It returns the flow's final result once FinalizeSignup completes, or
// a durable.ErrFlowPause-wrapped error (checkable with IsFlowPause) if
// the flow reached ConfirmEmailAddress and is now waiting on a signal.
func Start(ctx context.Context, handle *durable.FlowHandle, user User) (string, error) {
	v, err := handle.Execute(ctx, func(ctx context.Context, d *durable.Dispatcher) (any, error) {
		return d.Flow(ctx, EntryMethod, flowFunc, user)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Confirm delivers the confirmation timestamp and resumes the step
// directly: it bypasses the flow entry entirely, since Resume mode
// locates the WaitingForSignal row by its own latest-step lookup
// regardless of the handle's current position.
func Confirm(ctx context.Context, handle *durable.FlowHandle, confirmedAt time.Time) (string, error) {
	if err := handle.Signal(confirmedAt); err != nil {
		return "", err
	}

	var result string
	err := handle.Resume(ctx, func(ctx context.Context, d *durable.Dispatcher) error {
		v, err := d.Await(ctx, ConfirmMethod, ConfirmEmailAddress, time.Time{})
		if err != nil {
			return err
		}
		result = v.(string)
		return nil
	})
	return result, err
}
