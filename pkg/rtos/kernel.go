package rtos

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"
	"go.uber.org/atomic"
)

// ErrKernelStopped indicates the kernel is no longer dispatching calls.
var ErrKernelStopped = errors.New("kernel stopped")

// Kernel dispatches supervisor calls one at a time on its own goroutine,
// so privileged device code never interleaves.
type Kernel struct {
	calls callList
	lock  sync.Mutex

	wakeUpCh  chan struct{}
	stoppedCh chan struct{}
	started   bool
	stopped   bool
}

type callList struct {
	head *callItem
	tail *callItem
}

// callItem states
const (
	callPending int32 = iota
	callRunning
	callAbandoned
)

type callItem struct {
	ctx    context.Context
	fn     func() error
	doneCh chan error
	state  atomic.Int32
	next   *callItem
}

func (l *callList) append(item *callItem) {
	if l.head == nil {
		l.head = item
	} else {
		l.tail.next = item
	}
	l.tail = item
}

func (l *callList) splice(src *callList) {
	l.head, l.tail, src.head, src.tail = src.head, src.tail, nil, nil
}

// NewKernel creates a Kernel. It doesn't dispatch until Run.
func NewKernel() *Kernel {
	return &Kernel{
		wakeUpCh:  make(chan struct{}, 1),
		stoppedCh: make(chan struct{}),
	}
}

// Call implements device.Supervisor. It blocks until fn has run on the
// kernel goroutine. If ctx is done before fn starts, the call is dropped
// and ctx.Err() returned; once fn started Call waits for it to finish.
// Calls made from within a supervisor call deadlock.
func (k *Kernel) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	item := &callItem{ctx: ctx, fn: fn, doneCh: make(chan error, 1)}
	k.lock.Lock()
	if k.stopped {
		k.lock.Unlock()
		return ErrKernelStopped
	}
	k.calls.append(item)
	k.lock.Unlock()
	k.wakeUp()

	select {
	case err := <-item.doneCh:
		return err
	case <-ctx.Done():
		if item.state.CompareAndSwap(callPending, callAbandoned) {
			return ctx.Err()
		}
		return <-item.doneCh
	case <-k.stoppedCh:
		select {
		case err := <-item.doneCh:
			return err
		default:
			return ErrKernelStopped
		}
	}
}

// Name implements Named.
func (k *Kernel) Name() string {
	return "kernel"
}

// Run implements Runnable.
func (k *Kernel) Run(ctx context.Context) error {
	k.lock.Lock()
	if k.started {
		k.lock.Unlock()
		return errors.New("kernel already running")
	}
	k.started = true
	k.lock.Unlock()

	defer k.stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-k.wakeUpCh:
			k.runPending()
		}
	}
}

func (k *Kernel) wakeUp() {
	select {
	case k.wakeUpCh <- struct{}{}:
	default:
	}
}

func (k *Kernel) runPending() {
	var pending callList
	k.lock.Lock()
	pending.splice(&k.calls)
	k.lock.Unlock()
	for item := pending.head; item != nil; item = item.next {
		if !item.state.CompareAndSwap(callPending, callRunning) {
			continue
		}
		if err := item.ctx.Err(); err != nil {
			item.doneCh <- err
			continue
		}
		item.doneCh <- k.invoke(item.fn)
	}
}

func (k *Kernel) invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("supervisor call panic: %v", r)
			err = errors.New("supervisor call panicked")
		}
	}()
	return fn()
}

func (k *Kernel) stop() {
	k.lock.Lock()
	k.stopped = true
	var pending callList
	pending.splice(&k.calls)
	k.lock.Unlock()
	for item := pending.head; item != nil; item = item.next {
		item.doneCh <- ErrKernelStopped
	}
	close(k.stoppedCh)
	glog.V(4).Info("kernel stopped")
}
