package airsense

import (
	"context"
	"time"
)

// Delayer suspends the caller between a bus write and the following read.
type Delayer interface {
	Delay(ctx context.Context, d time.Duration) error
}

// DelayFunc adapts an ordinary function to the Delayer interface.
type DelayFunc func(ctx context.Context, d time.Duration) error

func (f DelayFunc) Delay(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// SleepDelay blocks the calling goroutine for the whole duration and ignores
// cancellation.
var SleepDelay Delayer = DelayFunc(func(_ context.Context, d time.Duration) error {
	time.Sleep(d)
	return nil
})

// TimerDelay parks the caller on a timer and returns ctx.Err() as soon as the
// context is done. A transaction interrupted this way is left half-completed.
var TimerDelay Delayer = DelayFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
})
