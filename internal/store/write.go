package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingCompletionTarget is returned by LogInvocationCompletion when no
// row exists for (flowID, step).
var ErrMissingCompletionTarget = errors.New("store: no invocation to complete")

// LogInvocationStart upserts the row for (flowID, step).
//
// If the row is absent, it is inserted with attempts=1 and the given
// values. If the row is already present, only attempts is incremented:
// timestamp, class_name, method_name, delay_ms and parameters are left
// exactly as they were on first start (invariant: identity is immutable
// after first start). Returns the row as it stands after the write.
func (s *Store) LogInvocationStart(
	ctx context.Context,
	flowID string,
	step int,
	className, methodName string,
	delayMS *int64,
	status Status,
	parameters []byte,
	nowMS int64,
) (Invocation, error) {
	if !status.Valid() {
		return Invocation{}, fmt.Errorf("store: invalid status %q", status)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_log
			(flow_id, step, timestamp, class_name, method_name, delay_ms, status, attempts, parameters)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(flow_id, step) DO UPDATE SET attempts = attempts + 1
	`,
		flowID, step, nowMS, className, methodName, delayMS, string(status), string(parameters),
	)
	if err != nil {
		return Invocation{}, fmt.Errorf("log invocation start: %w", err)
	}

	inv, err := s.GetInvocation(ctx, flowID, step)
	if err != nil {
		return Invocation{}, fmt.Errorf("log invocation start: re-read: %w", err)
	}
	if inv == nil {
		return Invocation{}, fmt.Errorf("log invocation start: row vanished for flow %s step %d", flowID, step)
	}
	return *inv, nil
}

// LogInvocationCompletion marks (flowID, step) Complete with the given
// return value. Returns ErrMissingCompletionTarget if the row doesn't
// exist: the dispatcher treats that as a fatal bug, never a retry path.
func (s *Store) LogInvocationCompletion(ctx context.Context, flowID string, step int, returnValue []byte) (Invocation, error) {
	// An empty return value (a void step) is stored as NULL.
	var ret any
	if len(returnValue) > 0 {
		ret = string(returnValue)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE execution_log
		SET status = 'Complete', return_value = ?
		WHERE flow_id = ? AND step = ?
	`, ret, flowID, step)
	if err != nil {
		return Invocation{}, fmt.Errorf("log invocation completion: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return Invocation{}, fmt.Errorf("log invocation completion: rows affected: %w", err)
	}
	if n == 0 {
		return Invocation{}, ErrMissingCompletionTarget
	}

	inv, err := s.GetInvocation(ctx, flowID, step)
	if err != nil {
		return Invocation{}, fmt.Errorf("log invocation completion: re-read: %w", err)
	}
	if inv == nil {
		return Invocation{}, fmt.Errorf("log invocation completion: row vanished for flow %s step %d", flowID, step)
	}
	return *inv, nil
}

// Reset drops and recreates the execution_log table. Administrative/test
// use only; never called from the dispatcher's normal operation.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS execution_log"); err != nil {
		return fmt.Errorf("reset: drop table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("reset: recreate schema: %w", err)
	}
	return nil
}
