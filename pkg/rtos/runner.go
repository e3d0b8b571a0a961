package rtos

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/golang/glog"
)

// ErrForcedExit is returned by Wait when a second stop signal arrives
// before every task returned.
var ErrForcedExit = errors.New("forced exit")

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun gives a board service or device thread a name for the logs.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// Runner starts board services and device threads on their own
// goroutines and gathers how each of them ended.
type Runner struct {
	// Context is handed to tasks started with Go.
	Context context.Context
	// Runners lists the tasks started so far.
	Runners []Runnable

	errCh  chan error
	exitCh chan struct{}
}

// NewRunner creates a Runner for a board powered up from the command line.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a Runner whose tasks stop with ctx.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{
		Context: ctx,
		errCh:   make(chan error, 1),
		exitCh:  make(chan struct{}),
	}
}

// HandleSignals powers the board down on SIGINT or SIGTERM. A second
// signal makes Wait give up on tasks still running.
func (r *Runner) HandleSignals() *Runner {
	ctx, cancel := context.WithCancel(r.Context)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	r.Context = ctx
	go func() {
		sig := <-sigCh
		glog.Infof("%v: powering down", sig)
		cancel()
		<-sigCh
		glog.Error("power down interrupted, leaving tasks behind")
		close(r.exitCh)
	}()
	return r
}

// Go starts tasks with the Runner's context.
func (r *Runner) Go(tasks ...Runnable) *Runner {
	return r.GoWith(r.Context, tasks...)
}

// GoWith starts tasks with ctx. Unnamed tasks are numbered in start order.
func (r *Runner) GoWith(ctx context.Context, tasks ...Runnable) *Runner {
	for _, task := range tasks {
		name := strconv.Itoa(len(r.Runners))
		if named, ok := task.(Named); ok {
			name = named.Name()
		}
		r.Runners = append(r.Runners, task)
		glog.V(4).Infof("%s: started", name)
		go r.run(ctx, task, name)
	}
	return r
}

func (r *Runner) run(ctx context.Context, task Runnable, name string) {
	err := task.Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		glog.V(4).Infof("%s: returned", name)
	default:
		glog.Errorf("%s: %v", name, err)
	}
	r.errCh <- err
}

// Wait blocks until every started task returned. Cancellations are not
// failures; the other errors come back as one AggregatedError.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for range r.Runners {
		select {
		case <-r.exitCh:
			return ErrForcedExit
		case err := <-r.errCh:
			if !errors.Is(err, context.Canceled) {
				errs.Add(err)
			}
		}
	}
	return errs.Aggregate()
}

// RunWithContextCancel runs a blocking call that takes no context, such
// as a read on a serial stream. When ctx is done, onCancel is expected
// to unblock fn, for example by closing the stream, and
// context.Canceled is returned once fn came back.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		if onCancel != nil {
			onCancel()
		}
		<-errCh
		return context.Canceled
	case err := <-errCh:
		return err
	}
}
