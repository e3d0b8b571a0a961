package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/rtdev.go/pkg/diag"
)

// OpError wraps the error of a gated operation with its context.
type OpError struct {
	Device string
	Op     string
	Client ClientID
	Err    error
}

// Error implements error.
func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s by %s: %v", e.Device, e.Op, e.Client, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error {
	return e.Err
}

// Gate arbitrates a device class between clients. The ownership token
// is drawn from a single-block pool on the first open and returned on
// the final close.
type Gate struct {
	name       string
	supervisor Supervisor
	reporter   diag.Reporter
	pool       *Arena

	lock  sync.Mutex
	token *Token
}

// NewGate creates a Gate. A nil supervisor means Direct.
func NewGate(name string, sup Supervisor) *Gate {
	if sup == nil {
		sup = &Direct{}
	}
	return &Gate{
		name:       name,
		supervisor: sup,
		reporter:   diag.Discard,
		pool:       NewArena(name+".sync", 1, func() Block { return &Token{} }),
	}
}

// WithReporter sets the diagnostic reporter.
func (g *Gate) WithReporter(r diag.Reporter) *Gate {
	if r == nil {
		r = diag.Discard
	}
	g.reporter = r
	return g
}

// Name returns the device class name.
func (g *Gate) Name() string {
	return g.name
}

// Owner returns the current owner, NoClient if the device is free. It
// doesn't go through the supervisor, so it also works once the kernel
// stopped.
func (g *Gate) Owner() ClientID {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.token == nil {
		return NoClient
	}
	return g.token.Owner()
}

// Reserved indicates the token block is allocated.
func (g *Gate) Reserved() bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.token != nil
}

// Open claims the device for id and calls configure. first is true when
// this open reserved the device, and configure is expected to bring up
// the hardware then. Reopening by the owner runs configure again.
func (g *Gate) Open(ctx context.Context, id ClientID, configure func(first bool) error) error {
	err := g.supervisor.Call(ctx, func() error {
		first, prev, err := g.claim(id)
		if err != nil || configure == nil {
			return err
		}
		if err := configure(first); err != nil {
			g.lock.Lock()
			if prev == NoClient {
				g.token.Reset()
			}
			if first {
				g.unreserveLocked()
			}
			g.lock.Unlock()
			return err
		}
		return nil
	})
	return g.complete("open", id, err)
}

func (g *Gate) claim(id ClientID) (first bool, prev ClientID, err error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.token == nil {
		b, err := g.pool.Alloc()
		if err != nil {
			return false, NoClient, err
		}
		g.token, first = b.(*Token), true
	}
	prev = g.token.Owner()
	if err = g.token.Claim(id); err != nil && first {
		g.unreserveLocked()
	}
	return
}

// Do runs fn only if id owns the device.
func (g *Gate) Do(ctx context.Context, id ClientID, op string, fn func() error) error {
	err := g.supervisor.Call(ctx, func() error {
		if err := g.check(id); err != nil {
			return err
		}
		return fn()
	})
	return g.complete(op, id, err)
}

// Close runs teardown for the owner. If teardown returns true the token
// is reset and its block returned to the pool.
func (g *Gate) Close(ctx context.Context, id ClientID, teardown func() (bool, error)) error {
	err := g.supervisor.Call(ctx, func() error {
		if err := g.check(id); err != nil {
			return err
		}
		release := true
		if teardown != nil {
			var err error
			if release, err = teardown(); err != nil {
				return err
			}
		}
		if release {
			g.lock.Lock()
			g.unreserveLocked()
			g.lock.Unlock()
		}
		return nil
	})
	return g.complete("close", id, err)
}

func (g *Gate) check(id ClientID) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.token == nil {
		return ErrNotOpen
	}
	return g.token.Check(id)
}

func (g *Gate) unreserveLocked() {
	if g.token == nil {
		return
	}
	if err := g.pool.Free(g.token); err != nil {
		glog.Errorf("%s: free token: %v", g.name, err)
	}
	g.token = nil
}

func (g *Gate) complete(op string, id ClientID, err error) error {
	ev := &diag.Event{
		Device: g.name,
		Client: uint32(id),
		Op:     op,
		Result: ResultOf(err).String(),
	}
	if err != nil {
		ev.Message = err.Error()
		ev.Severity = diag.SeverityWarning
		if op == "open" {
			switch ResultOf(err) {
			case NegotiationFailed, PoolExhausted, Failed:
				ev.Severity = diag.SeverityError
			}
		}
		g.reporter.Report(ev)
		if _, ok := err.(*OpError); ok {
			return err
		}
		return &OpError{Device: g.name, Op: op, Client: id, Err: err}
	}
	if op == "open" || op == "close" {
		g.reporter.Report(ev)
	}
	glog.V(4).Infof("%s %s by %s ok", g.name, op, id)
	return nil
}
