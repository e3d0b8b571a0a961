package rtos

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/rtdev.go/pkg/device"
)

func runKernel(t *testing.T) (*Kernel, context.CancelFunc, chan error) {
	k := NewKernel()
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() { doneCh <- k.Run(ctx) }()
	return k, cancel, doneCh
}

func TestKernelSerializesCalls(t *testing.T) {
	k, cancel, doneCh := runKernel(t)
	var counter, concurrent, maxConcurrent int
	var lock sync.Mutex
	var wg sync.WaitGroup
	for n := 0; n < 20; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, k.Call(context.Background(), func() error {
				lock.Lock()
				concurrent++
				if concurrent > maxConcurrent {
					maxConcurrent = concurrent
				}
				lock.Unlock()
				counter++
				lock.Lock()
				concurrent--
				lock.Unlock()
				return nil
			}))
		}()
	}
	wg.Wait()
	require.Equal(t, 20, counter)
	require.Equal(t, 1, maxConcurrent)

	expected := errors.New("failed")
	require.Equal(t, expected, k.Call(context.Background(), func() error { return expected }))
	require.Error(t, k.Call(context.Background(), func() error { panic("boom") }))

	cancel()
	require.Equal(t, context.Canceled, <-doneCh)
	require.Equal(t, ErrKernelStopped, k.Call(context.Background(), func() error { return nil }))
}

func TestKernelAsGateSupervisor(t *testing.T) {
	k, cancel, _ := runKernel(t)
	defer cancel()
	g := device.NewGate("dev", k)
	ctx := context.Background()
	require.NoError(t, g.Open(ctx, 1, nil))
	require.ErrorIs(t, g.Open(ctx, 2, nil), device.ErrBusy)
	require.Equal(t, device.ClientID(1), g.Owner())
	require.NoError(t, g.Close(ctx, 1, nil))
}

func TestKernelCanceledCall(t *testing.T) {
	k := NewKernel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, context.Canceled, k.Call(ctx, func() error { return nil }))
}

func TestKernelDropsQueuedCallOnDeadline(t *testing.T) {
	k, cancel, _ := runKernel(t)
	defer cancel()

	startedCh, releaseCh := make(chan struct{}), make(chan struct{})
	firstCh := make(chan error, 1)
	go func() {
		firstCh <- k.Call(context.Background(), func() error {
			close(startedCh)
			<-releaseCh
			return nil
		})
	}()
	<-startedCh

	ctx, cancelCall := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelCall()
	ran := false
	start := time.Now()
	err := k.Call(ctx, func() error {
		ran = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)

	close(releaseCh)
	require.NoError(t, <-firstCh)
	// the queue is drained before this one runs.
	require.NoError(t, k.Call(context.Background(), func() error { return nil }))
	require.False(t, ran)
}

func TestThreadsRegistry(t *testing.T) {
	ts := NewThreads()
	t1 := ts.MustSpawn("uart", nil)
	t2 := ts.MustSpawn("eth", nil)
	require.Equal(t, device.ClientID(1), ts.ClientOf(t1))
	require.Equal(t, device.ClientID(2), ts.ClientOf(t2))
	require.Equal(t, device.NoClient, ts.ClientOf(&Thread{name: "stranger", id: 1}))
	require.Equal(t, device.NoClient, ts.ClientOf(nil))
	require.Same(t, t2, ts.Lookup("eth"))
	require.Same(t, t1, ts.ByID(1))
	require.Nil(t, ts.ByID(device.NoClient))
	require.Nil(t, ts.ByID(9))
	_, err := ts.Spawn("uart", nil)
	require.ErrorIs(t, err, ErrThreadExists)
	require.Len(t, ts.Runnables(), 2)
}

func TestThreadSignals(t *testing.T) {
	th := &Thread{name: "t"}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		th.Set(0x01)
		th.Set(0x02)
	}()
	got, err := th.Wait(ctx, 0x03)
	require.NoError(t, err)
	require.Equal(t, int32(0x03), got)
	require.Zero(t, th.Flags())

	th.Set(0x04)
	got, err = th.Wait(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, int32(0x04), got)

	th.Set(0x01)
	require.Equal(t, int32(0x01), th.Clear(0x01))
	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	_, err = th.Wait(short, 0x01)
	require.Equal(t, context.DeadlineExceeded, err)
}

func TestRunnerAggregatesErrors(t *testing.T) {
	expected := errors.New("thread failed")
	r := NewRunner()
	r.Go(
		NamedRun("ok", RunFunc(func(ctx context.Context) error { return nil })),
		NamedRun("bad", RunFunc(func(ctx context.Context) error { return expected })),
		RunFunc(func(ctx context.Context) error { return context.Canceled }),
	)
	err := r.Wait()
	require.Error(t, err)
	require.True(t, errors.Is(err, expected))
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	errs.Add(errors.New("a"), errors.New("b"))
	require.Equal(t, "Multiple errors:\na\nb", errs.Aggregate().Error())
}

func TestRunWithContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	unblockCh := make(chan struct{})
	go cancel()
	err := RunWithContextCancel(ctx, func() { close(unblockCh) }, func() error {
		<-unblockCh
		return errors.New("stream closed")
	})
	require.Equal(t, context.Canceled, err)

	expected := errors.New("read failed")
	require.Equal(t, expected, RunWithContextCancel(context.Background(), nil, func() error { return expected }))
}
