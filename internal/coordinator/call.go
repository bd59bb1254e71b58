package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// errCallTimeout marks a collaborator call that outlived its timeout.
var errCallTimeout = errors.New("collaborator call timed out")

// invoke runs call with an optional timeout.
//
// With a timeout the call runs on its own goroutine under a derived deadline.
// If the collaborator ignores the deadline the coordinator stops waiting when
// the timer fires or the caller cancels; the late result is dropped into a
// buffered channel and discarded.
func invoke[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return protect(ctx, call)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := protect(callCtx, call)
		done <- outcome{val: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return o.val, fmt.Errorf("%w: %w", errCallTimeout, o.err)
		}
		return o.val, o.err
	case <-timer.C:
		var zero T
		return zero, fmt.Errorf("%w: %w", errCallTimeout, context.DeadlineExceeded)
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// protect converts a collaborator panic into an error.
func protect[T any](ctx context.Context, call func(context.Context) (T, error)) (val T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("collaborator panicked: %v", p)
		}
	}()
	return call(ctx)
}
