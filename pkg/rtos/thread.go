package rtos

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/rtdev.go/pkg/device"
)

// Errors
var (
	ErrThreadExists  = errors.New("thread already exists")
	ErrTooManyThread = errors.New("too many threads")
)

// maxThreads is bounded by the width of device.ClientID.
const maxThreads = 255

// ThreadFunc is the body of a thread.
type ThreadFunc func(ctx context.Context, t *Thread) error

// Thread is an application thread with a stable client identity and
// a set of event flags.
type Thread struct {
	name string
	id   device.ClientID
	fn   ThreadFunc

	lock    sync.Mutex
	flags   int32
	notifyC chan struct{}
}

// Name implements Named.
func (t *Thread) Name() string {
	return t.name
}

// ID returns the client identity used for device arbitration.
func (t *Thread) ID() device.ClientID {
	return t.id
}

// Run implements Runnable.
func (t *Thread) Run(ctx context.Context) error {
	if t.fn == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return t.fn(ctx, t)
}

// Set sets event flags and wakes up a waiting thread.
// It returns the flags before the change.
func (t *Thread) Set(flags int32) int32 {
	t.lock.Lock()
	prev := t.flags
	t.flags |= flags
	ch := t.notifyC
	t.notifyC = nil
	t.lock.Unlock()
	if ch != nil {
		close(ch)
	}
	glog.V(4).Infof("thread[%s] signal set 0x%x", t.name, flags)
	return prev
}

// Clear clears event flags and returns the flags before the change.
func (t *Thread) Clear(flags int32) int32 {
	t.lock.Lock()
	defer t.lock.Unlock()
	prev := t.flags
	t.flags &^= flags
	return prev
}

// Flags returns current event flags.
func (t *Thread) Flags() int32 {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.flags
}

// Wait blocks until all of flags are set, then clears them.
// If flags is 0, any flag wakes it up and all flags are cleared.
func (t *Thread) Wait(ctx context.Context, flags int32) (int32, error) {
	for {
		t.lock.Lock()
		if (flags == 0 && t.flags != 0) || (flags != 0 && t.flags&flags == flags) {
			got := t.flags
			if flags == 0 {
				t.flags = 0
			} else {
				got &= flags
				t.flags &^= flags
			}
			t.lock.Unlock()
			return got, nil
		}
		if t.notifyC == nil {
			t.notifyC = make(chan struct{})
		}
		ch := t.notifyC
		t.lock.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ch:
		}
	}
}

// Threads is the registry of threads, resolving thread handles into
// client identities.
type Threads struct {
	lock    sync.RWMutex
	threads []*Thread
	byName  map[string]*Thread
}

// NewThreads creates an empty registry.
func NewThreads() *Threads {
	return &Threads{byName: make(map[string]*Thread)}
}

// Spawn registers a thread. The first thread gets client 1.
// The thread doesn't start until it's run, usually by Runner.Go.
func (ts *Threads) Spawn(name string, fn ThreadFunc) (*Thread, error) {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	if _, ok := ts.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrThreadExists, name)
	}
	if len(ts.threads) >= maxThreads {
		return nil, ErrTooManyThread
	}
	t := &Thread{
		name: name,
		id:   device.ClientID(len(ts.threads) + 1),
		fn:   fn,
	}
	ts.threads = append(ts.threads, t)
	ts.byName[name] = t
	glog.V(2).Infof("thread[%s] registered as %s", name, t.id)
	return t, nil
}

// MustSpawn is Spawn which panics on error.
func (ts *Threads) MustSpawn(name string, fn ThreadFunc) *Thread {
	t, err := ts.Spawn(name, fn)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup finds a thread by name.
func (ts *Threads) Lookup(name string) *Thread {
	ts.lock.RLock()
	defer ts.lock.RUnlock()
	return ts.byName[name]
}

// ClientOf resolves a thread handle to its client identity.
// Unknown handles resolve to device.NoClient.
func (ts *Threads) ClientOf(t *Thread) device.ClientID {
	if t == nil {
		return device.NoClient
	}
	ts.lock.RLock()
	defer ts.lock.RUnlock()
	if int(t.id) < 1 || int(t.id) > len(ts.threads) || ts.threads[t.id-1] != t {
		return device.NoClient
	}
	return t.id
}

// ByID finds the thread with the client identity.
func (ts *Threads) ByID(id device.ClientID) *Thread {
	ts.lock.RLock()
	defer ts.lock.RUnlock()
	if id == device.NoClient || int(id) > len(ts.threads) {
		return nil
	}
	return ts.threads[id-1]
}

// All returns registered threads in spawn order.
func (ts *Threads) All() []*Thread {
	ts.lock.RLock()
	defer ts.lock.RUnlock()
	return append([]*Thread(nil), ts.threads...)
}

// Runnables returns all threads as Runnables for Runner.Go.
func (ts *Threads) Runnables() []Runnable {
	threads := ts.All()
	runners := make([]Runnable, len(threads))
	for n, t := range threads {
		runners[n] = t
	}
	return runners
}
