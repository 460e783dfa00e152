package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetInvocation returns the row for (flowID, step), or nil if absent.
func (s *Store) GetInvocation(ctx context.Context, flowID string, step int) (*Invocation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT flow_id, step, timestamp, class_name, method_name, delay_ms, status, attempts, parameters, return_value
		FROM execution_log
		WHERE flow_id = ? AND step = ?
	`, flowID, step)

	inv, err := scanInvocation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invocation: %w", err)
	}
	return inv, nil
}

// GetLatestInvocation returns the row with the highest step for flowID,
// or nil if the flow has no rows at all.
func (s *Store) GetLatestInvocation(ctx context.Context, flowID string) (*Invocation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT flow_id, step, timestamp, class_name, method_name, delay_ms, status, attempts, parameters, return_value
		FROM execution_log
		WHERE flow_id = ?
		ORDER BY step DESC
		LIMIT 1
	`, flowID)

	inv, err := scanInvocation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest invocation: %w", err)
	}
	return inv, nil
}

// GetIncompleteFlows returns all step-0 rows whose status isn't Complete,
// ordered by timestamp ascending: the Recovery Scheduler's work list.
func (s *Store) GetIncompleteFlows(ctx context.Context) ([]Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_id, step, timestamp, class_name, method_name, delay_ms, status, attempts, parameters, return_value
		FROM execution_log
		WHERE step = 0 AND status != 'Complete'
		ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("get incomplete flows: %w", err)
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		inv, err := scanInvocationRows(rows)
		if err != nil {
			return nil, fmt.Errorf("get incomplete flows: scan: %w", err)
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get incomplete flows: iterate: %w", err)
	}
	if out == nil {
		out = []Invocation{}
	}
	return out, nil
}

// GetFlowRows returns every row logged for flowID, ordered by step
// ascending: the full timeline a trace command walks.
func (s *Store) GetFlowRows(ctx context.Context, flowID string) ([]Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_id, step, timestamp, class_name, method_name, delay_ms, status, attempts, parameters, return_value
		FROM execution_log
		WHERE flow_id = ?
		ORDER BY step ASC
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("get flow rows: %w", err)
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		inv, err := scanInvocationRows(rows)
		if err != nil {
			return nil, fmt.Errorf("get flow rows: scan: %w", err)
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get flow rows: iterate: %w", err)
	}
	if out == nil {
		out = []Invocation{}
	}
	return out, nil
}

// scanner abstracts over *sql.Row and *sql.Rows so both call sites share
// the same column-list/scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row scanner) (*Invocation, error) {
	return scan(row)
}

func scanInvocationRows(rows *sql.Rows) (*Invocation, error) {
	return scan(rows)
}

func scan(s scanner) (*Invocation, error) {
	var inv Invocation
	var delayMS sql.NullInt64
	var params, ret sql.NullString

	if err := s.Scan(
		&inv.FlowID, &inv.Step, &inv.Timestamp, &inv.ClassName, &inv.MethodName,
		&delayMS, &inv.Status, &inv.Attempts, &params, &ret,
	); err != nil {
		return nil, err
	}

	if delayMS.Valid {
		inv.DelayMS = &delayMS.Int64
	}
	if params.Valid {
		inv.Parameters = []byte(params.String)
	}
	if ret.Valid {
		inv.ReturnValue = []byte(ret.String)
	}
	return &inv, nil
}
