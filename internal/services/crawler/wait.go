package crawler

import (
	"context"
	"fmt"
	"time"
)

// pollCondition evaluates pred every interval until it holds or maxWait
// passes. pred and the sleeps between polls run under a context bounded by
// maxWait, so a stalled evaluation ends with the wait. beforePoll, when
// set, runs ahead of every evaluation. A maxWait of zero checks once.
func pollCondition(ctx context.Context, pred func(ctx context.Context) bool, maxWait, interval time.Duration, beforePoll func()) error {
	if maxWait <= 0 {
		if beforePoll != nil {
			beforePoll()
		}
		if pred(ctx) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w after %s", ErrWaitTimeout, maxWait)
	}

	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	for {
		if beforePoll != nil {
			beforePoll()
		}
		if pred(waitCtx) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if waitCtx.Err() != nil {
			return fmt.Errorf("%w after %s", ErrWaitTimeout, maxWait)
		}
		if err := sleepCtx(waitCtx, interval); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
