// Package undo implements a call-scoped compensation log.
//
// Forward steps push a compensating action after they commit. If a later step
// fails, Rollback runs the recorded actions in reverse commit order. A Log is
// owned by a single call and must not be shared between goroutines.
package undo

import (
	"context"
	"errors"
	"fmt"

	"github.com/containerd/log"
)

// Func reverses one committed step.
type Func func(ctx context.Context) error

type action struct {
	name string
	fn   Func
}

// Log records compensating actions in commit order.
type Log struct {
	actions []action
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// Push records the compensation for a step that just committed.
func (l *Log) Push(name string, fn Func) {
	l.actions = append(l.actions, action{name: name, fn: fn})
}

// Len returns the number of pending compensations.
func (l *Log) Len() int {
	return len(l.actions)
}

// Discard drops all pending compensations. Call it once the whole sequence
// has committed.
func (l *Log) Discard() {
	l.actions = nil
}

// Rollback runs every pending compensation exactly once, most recent first.
// A failing action does not stop the others; all failures are logged and
// returned. The log is empty afterwards.
func (l *Log) Rollback(ctx context.Context) *Result {
	result := &Result{}
	logger := log.G(ctx)

	for i := len(l.actions) - 1; i >= 0; i-- {
		a := l.actions[i]
		logger.WithField("action", a.name).Debug("rollback: executing action")
		if err := a.fn(ctx); err != nil {
			logger.WithError(err).WithField("action", a.name).Warn("rollback action failed")
			result.add(a.name, err)
		}
	}
	l.actions = nil

	if result.HasErrors() {
		logger.WithField("failed_actions", result.FailedActions()).Warn("rollback completed with errors")
	}
	return result
}

// WrapFunc annotates the error that triggered a rollback. It sees the
// rollback outcome but must not replace cause with it.
type WrapFunc func(cause error, res *Result) error

// RollbackAndWrap rolls back and then returns cause passed through wrap.
// Rollback failures never replace cause.
func (l *Log) RollbackAndWrap(ctx context.Context, cause error, wrap WrapFunc) error {
	res := l.Rollback(ctx)
	if wrap == nil {
		return cause
	}
	return wrap(cause, res)
}

// ActionError records the failure of one compensation.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("undo %s: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Result collects the failures of a rollback.
type Result struct {
	Errors []*ActionError
}

func (r *Result) add(name string, err error) {
	r.Errors = append(r.Errors, &ActionError{Action: name, Err: err})
}

// HasErrors reports whether any compensation failed.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// FailedActions returns the names of failed compensations in execution order.
func (r *Result) FailedActions() []string {
	names := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		names = append(names, e.Action)
	}
	return names
}

// Err returns the failures as a single error, or nil.
func (r *Result) Err() error {
	if !r.HasErrors() {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, e)
	}
	return fmt.Errorf("rollback completed with errors: %w", errors.Join(errs...))
}
