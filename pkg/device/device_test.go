package device

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/rtdev.go/pkg/diag"
)

type testBlock struct {
	val int
}

func (b *testBlock) Reset() { b.val = 0 }

func TestArena(t *testing.T) {
	a := NewArena("test", 2, func() Block { return &testBlock{} })
	require.Equal(t, 2, a.Cap())

	b1, err := a.Alloc()
	require.NoError(t, err)
	b1.(*testBlock).val = 5
	b2, err := a.Alloc()
	require.NoError(t, err)
	require.NotSame(t, b1, b2)
	require.Equal(t, 2, a.InUse())

	_, err = a.Alloc()
	require.ErrorIs(t, err, ErrPoolExhausted)
	var poolErr *PoolError
	require.True(t, errors.As(err, &poolErr))
	require.Equal(t, "test", poolErr.Pool)

	require.NoError(t, a.Free(b1))
	require.Zero(t, b1.(*testBlock).val)
	require.ErrorIs(t, a.Free(b1), ErrForeignBlock)
	require.ErrorIs(t, a.Free(&testBlock{}), ErrForeignBlock)

	b3, err := a.Alloc()
	require.NoError(t, err)
	require.Same(t, b1, b3)

	a.Reinit()
	require.Zero(t, a.InUse())
}

func TestToken(t *testing.T) {
	var tok Token
	require.True(t, tok.IsFree())
	require.ErrorIs(t, tok.Claim(NoClient), ErrInvalidClient)
	require.NoError(t, tok.Claim(1))
	require.NoError(t, tok.Claim(1))
	require.ErrorIs(t, tok.Claim(2), ErrBusy)
	require.ErrorIs(t, tok.Check(2), ErrNotOwner)
	require.ErrorIs(t, tok.Release(2), ErrNotOwner)
	require.Equal(t, ClientID(1), tok.Owner())
	require.NoError(t, tok.Release(1))
	require.True(t, tok.IsFree())
	require.ErrorIs(t, tok.Check(NoClient), ErrNotOwner)
}

func TestGateOwnership(t *testing.T) {
	ctx := context.Background()
	var inits, configs int
	var events []*diag.Event
	g := NewGate("dev", nil).WithReporter(diag.ReportFunc(func(ev *diag.Event) {
		events = append(events, ev)
	}))
	open := func(first bool) error {
		if first {
			inits++
		}
		configs++
		return nil
	}

	require.ErrorIs(t, g.Do(ctx, 1, "write", func() error { return nil }), ErrNotOpen)

	require.NoError(t, g.Open(ctx, 1, open))
	require.NoError(t, g.Open(ctx, 1, open))
	require.Equal(t, 1, inits)
	require.Equal(t, 2, configs)
	require.Equal(t, ClientID(1), g.Owner())

	err := g.Open(ctx, 2, open)
	require.ErrorIs(t, err, ErrBusy)
	require.Equal(t, Busy, ResultOf(err))
	require.Equal(t, 2, configs)

	mutated := false
	err = g.Do(ctx, 2, "write", func() error { mutated = true; return nil })
	require.ErrorIs(t, err, ErrNotOwner)
	require.False(t, mutated)
	require.ErrorIs(t, g.Close(ctx, 2, nil), ErrNotOwner)

	require.NoError(t, g.Do(ctx, 1, "write", func() error { mutated = true; return nil }))
	require.True(t, mutated)

	require.NoError(t, g.Close(ctx, 1, nil))
	require.False(t, g.Reserved())
	require.Equal(t, NoClient, g.Owner())

	require.NoError(t, g.Open(ctx, 2, open))
	require.Equal(t, 2, inits)
	require.Equal(t, ClientID(2), g.Owner())

	require.True(t, len(events) > 2)
	require.Equal(t, "write", events[0].Op)
	require.Equal(t, "not-open", events[0].Result)
	require.Equal(t, diag.SeverityWarning, events[0].Severity)
	require.Equal(t, "open", events[1].Op)
	require.Equal(t, "ok", events[1].Result)
}

func TestGateOpenFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	g := NewGate("dev", nil)
	initErr := &NegotiationError{Op: "phy", Attempts: 10}
	err := g.Open(ctx, 1, func(first bool) error { return initErr })
	require.ErrorIs(t, err, ErrNegotiation)
	require.Equal(t, NegotiationFailed, ResultOf(err))
	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	require.Equal(t, "open", opErr.Op)
	require.False(t, g.Reserved())

	require.NoError(t, g.Open(ctx, 2, func(first bool) error { return nil }))
	require.Equal(t, ClientID(2), g.Owner())

	// a failed reconfigure by the owner keeps ownership.
	require.Error(t, g.Open(ctx, 2, func(first bool) error { return errors.New("bad") }))
	require.Equal(t, ClientID(2), g.Owner())
}

func TestGateCloseKeepsOwnership(t *testing.T) {
	ctx := context.Background()
	g := NewGate("dev", nil)
	require.NoError(t, g.Open(ctx, 1, nil))
	require.NoError(t, g.Close(ctx, 1, func() (bool, error) { return false, nil }))
	require.Equal(t, ClientID(1), g.Owner())
	require.NoError(t, g.Close(ctx, 1, func() (bool, error) { return true, nil }))
	require.Equal(t, NoClient, g.Owner())
}

type stoppableSupervisor struct {
	Direct
	stopped bool
}

var errSupervisorStopped = errors.New("supervisor stopped")

func (s *stoppableSupervisor) Call(ctx context.Context, fn func() error) error {
	if s.stopped {
		return errSupervisorStopped
	}
	return s.Direct.Call(ctx, fn)
}

func TestGateOwnerAfterSupervisorStopped(t *testing.T) {
	ctx := context.Background()
	sup := &stoppableSupervisor{}
	g := NewGate("dev", sup)
	require.NoError(t, g.Open(ctx, 3, nil))
	sup.stopped = true
	require.Equal(t, ClientID(3), g.Owner())
	require.True(t, g.Reserved())
	require.ErrorIs(t, g.Close(ctx, 3, nil), errSupervisorStopped)
	require.Equal(t, ClientID(3), g.Owner())
}

func TestGateConcurrentOpen(t *testing.T) {
	ctx := context.Background()
	g := NewGate("dev", nil)
	var wg sync.WaitGroup
	results := make([]error, 8)
	for n := range results {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = g.Open(ctx, ClientID(n+1), nil)
		}(n)
	}
	wg.Wait()
	var owners int
	for _, err := range results {
		if err == nil {
			owners++
		} else {
			require.ErrorIs(t, err, ErrBusy)
		}
	}
	require.Equal(t, 1, owners)
}

func TestResultOf(t *testing.T) {
	testCases := []struct {
		err    error
		expect Result
	}{
		{nil, OK},
		{ErrNotOwner, NotOwner},
		{&PoolError{Err: ErrPoolExhausted}, PoolExhausted},
		{&OpError{Err: ErrBufferOverrun}, Overrun},
		{&NegotiationError{Op: "baud"}, NegotiationFailed},
		{errors.New("other"), Failed},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expect, ResultOf(tc.err))
	}
	require.Equal(t, "not-owner", NotOwner.String())
}
