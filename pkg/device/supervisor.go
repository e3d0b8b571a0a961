package device

import (
	"context"
	"sync"
	"time"
)

// Supervisor serializes privileged calls against device state.
type Supervisor interface {
	Call(ctx context.Context, fn func() error) error
}

// Direct is a Supervisor which runs calls on the caller's goroutine
// under a mutex.
type Direct struct {
	lock sync.Mutex
}

// Call implements Supervisor.
func (d *Direct) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	return fn()
}

// Sleeper waits for a duration unless the context is done first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// NoSleep only checks the context, used by tests and simulations.
func NoSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}
