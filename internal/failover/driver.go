package failover

import (
	"context"
	"fmt"
)

// Operation performs one attempt against a single endpoint. It blocks until
// the attempt resolves and must honour ctx cancellation.
type Operation[E, T any] func(ctx context.Context, endpoint E) (T, error)

// Outcome is the terminal result delivered by Driver.Go.
type Outcome[T any] struct {
	Item T
	Err  error
}

type state int

const (
	stateIdle state = iota
	stateAttempting
	stateSucceeded
	stateExhausted
	stateCanceled
)

func (s state) terminal() bool {
	return s == stateSucceeded || s == stateExhausted || s == stateCanceled
}

// Driver tries an Operation against endpoints one at a time, in order, and
// stops at the first success. When every endpoint fails the result is an
// Errors holding each failure in attempt order.
//
// A Driver serves one logical call. It is not safe for concurrent use; once
// it has produced an outcome further calls to Run return that same outcome
// without invoking the operation again.
type Driver[E, T any] struct {
	seq   *Sequencer[E]
	op    Operation[E, T]
	state state
	errs  Errors
	item  T
	err   error
}

// New builds a Driver over a snapshot of endpoints.
func New[E, T any](endpoints []E, op Operation[E, T]) *Driver[E, T] {
	seq := NewSequencer(endpoints)
	return &Driver[E, T]{
		seq:  seq,
		op:   op,
		errs: make(Errors, 0, seq.Remaining()),
	}
}

// Run drives the attempts to a terminal outcome. Failures that come back
// immediately are drained in the same loop; the only place Run blocks is
// inside the operation itself.
//
// If ctx is done when an attempt fails, no further endpoints are tried and
// the returned error wraps both ctx.Err() and the Errors gathered so far.
func (d *Driver[E, T]) Run(ctx context.Context) (T, error) {
	for !d.state.terminal() {
		endpoint, ok := d.seq.Next()
		if !ok {
			d.state = stateExhausted
			d.err = d.errs
			break
		}

		d.state = stateAttempting
		item, err := d.op(ctx, endpoint)
		if err == nil {
			d.state = stateSucceeded
			d.item = item
			break
		}

		d.errs = append(d.errs, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			d.state = stateCanceled
			d.err = fmt.Errorf("failover stopped after %d attempts: %w: %w", len(d.errs), ctxErr, d.errs)
			break
		}
		d.state = stateIdle
	}

	if d.state == stateSucceeded {
		return d.item, nil
	}
	var zero T
	return zero, d.err
}

// Go runs the driver on its own goroutine. The returned channel receives
// exactly one Outcome, or nothing if an attempt never resolves.
func (d *Driver[E, T]) Go(ctx context.Context) <-chan Outcome[T] {
	ch := make(chan Outcome[T], 1)
	go func() {
		item, err := d.Run(ctx)
		ch <- Outcome[T]{Item: item, Err: err}
	}()
	return ch
}

// Attempts reports how many endpoints have failed so far.
func (d *Driver[E, T]) Attempts() int {
	return len(d.errs)
}

// FirstOK runs op against endpoints in order and returns the first success.
func FirstOK[E, T any](ctx context.Context, endpoints []E, op Operation[E, T]) (T, error) {
	return New(endpoints, op).Run(ctx)
}
