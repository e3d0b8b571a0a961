package touch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/periph/conn/gpio"

	"github.com/robotalks/rtdev.go/pkg/device"
	"github.com/robotalks/rtdev.go/pkg/lcd"
	"github.com/robotalks/rtdev.go/pkg/rtos"
)

type sample struct {
	pt      Point
	pressed bool
}

type fakeSampler struct {
	inits   int
	samples []sample
	err     error
}

func (s *fakeSampler) Init() error {
	s.inits++
	return nil
}

func (s *fakeSampler) Sample() (Point, bool, error) {
	if s.err != nil {
		return Point{}, false, s.err
	}
	if len(s.samples) == 0 {
		return Point{}, false, nil
	}
	r := s.samples[0]
	s.samples = s.samples[1:]
	return r.pt, r.pressed, nil
}

func toRaw(p Point) Point {
	return Point{X: 10*p.X + 100, Y: 12*p.Y + 200}
}

func calibrationSamples() []sample {
	var s []sample
	for _, t := range DefaultTargets {
		s = append(s, sample{}, sample{pt: toRaw(t), pressed: true}, sample{pt: toRaw(t), pressed: true}, sample{})
	}
	return s
}

func TestMatrix(t *testing.T) {
	var raw [3]Point
	for n, p := range DefaultTargets {
		raw[n] = toRaw(p)
	}
	m, err := NewMatrix(DefaultTargets, raw)
	require.NoError(t, err)
	for _, p := range []Point{{0, 0}, {100, 50}, {319, 239}, {160, 120}} {
		require.Equal(t, p, m.Map(toRaw(p)))
	}

	_, err = NewMatrix(DefaultTargets, [3]Point{{1, 1}, {2, 2}, {3, 3}})
	require.ErrorIs(t, err, ErrDegenerate)
}

func TestCalibrateAndDraw(t *testing.T) {
	ctx := context.Background()
	s := &fakeSampler{samples: calibrationSamples()}
	rec := lcd.NewRecorder()
	d := New(device.NewGate("touch", nil), s, rec).WithSleeper(device.NoSleep)

	require.NoError(t, d.Open(ctx, 5))
	require.Equal(t, 1, s.inits)
	require.Equal(t, 1, rec.Inits())
	require.NotNil(t, d.Matrix())
	// a red and a black cross per target
	require.Len(t, rec.Commands(), 12)

	s.samples = []sample{{pt: toRaw(Point{X: 200, Y: 100}), pressed: true}}
	pt, pressed, err := d.Write(ctx, 5)
	require.NoError(t, err)
	require.True(t, pressed)
	require.Equal(t, Point{X: 200, Y: 100}, pt)
	drawn := rec.Commands()
	last := drawn[len(drawn)-1]
	require.Equal(t, lcd.FillRect, last.Op)
	require.Equal(t, uint16(200), last.X)
	require.Equal(t, uint16(100), last.Y)

	_, pressed, err = d.Write(ctx, 5)
	require.NoError(t, err)
	require.False(t, pressed)
	require.Len(t, rec.Commands(), len(drawn))

	_, _, err = d.Write(ctx, 6)
	require.ErrorIs(t, err, device.ErrNotOwner)

	require.NoError(t, d.Close(ctx, 5))
	require.False(t, d.Gate().Reserved())
}

func TestCalibrateCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d := New(device.NewGate("touch", nil), &fakeSampler{}, lcd.NewRecorder())
	err := d.Open(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, d.Gate().Reserved())
}

func TestPresetCalibration(t *testing.T) {
	m := &Matrix{An: 1, En: 1, Divider: 1}
	rec := lcd.NewRecorder()
	d := New(device.NewGate("touch", nil), &fakeSampler{}, rec)
	d.SetCalibration(m)
	require.NoError(t, d.Open(context.Background(), 1))
	require.Same(t, m, d.Matrix())
	require.Empty(t, rec.Commands())
}

func TestSamplerError(t *testing.T) {
	s := &fakeSampler{err: errors.New("spi fault")}
	d := New(device.NewGate("touch", nil), s, lcd.NewRecorder()).WithSleeper(device.NoSleep)
	require.Error(t, d.Open(context.Background(), 1))
	require.False(t, d.Gate().Reserved())
}

func TestCalibrationLeavesKernelServing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	k := rtos.NewKernel()
	go k.Run(ctx)

	d := New(device.NewGate("touch", k), &fakeSampler{}, lcd.NewRecorder())
	touchCtx, stopTouch := context.WithCancel(ctx)
	openCh := make(chan error, 1)
	go func() { openCh <- d.Open(touchCtx, 1) }()
	require.Eventually(t, func() bool { return d.Gate().Owner() == 1 }, time.Second, time.Millisecond)

	// the panel waits for a touch, another class still gets through.
	other := device.NewGate("uart", k)
	require.NoError(t, other.Open(ctx, 2, nil))
	short, cancelShort := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancelShort()
	require.NoError(t, other.Do(short, 2, "read", func() error { return nil }))

	_, _, err := d.Write(ctx, 1)
	require.ErrorIs(t, err, ErrNotCalibrated)

	stopTouch()
	require.ErrorIs(t, <-openCh, context.Canceled)
	require.False(t, d.Gate().Reserved())
	require.Equal(t, device.ClientID(2), other.Owner())
}

type fakeSPI struct {
	values map[byte]int
	txs    int
}

func (c *fakeSPI) Tx(w, r []byte) error {
	c.txs++
	v := c.values[w[0]] << 3
	r[1], r[2] = byte(v>>8), byte(v)
	return nil
}

type fakePen gpio.Level

func (p fakePen) Read() gpio.Level {
	return gpio.Level(p)
}

func TestADS7846(t *testing.T) {
	conn := &fakeSPI{values: map[byte]int{CmdReadX: 1000, CmdReadY: 2000}}
	a := &ADS7846{Conn: conn, Samples: 4}
	require.NoError(t, a.Init())
	require.Equal(t, 1, conn.txs)

	pt, pressed, err := a.Sample()
	require.NoError(t, err)
	require.True(t, pressed)
	require.Equal(t, Point{X: 1000, Y: 2000}, pt)
	require.Equal(t, 9, conn.txs)

	a.Pen = fakePen(gpio.High)
	_, pressed, err = a.Sample()
	require.NoError(t, err)
	require.False(t, pressed)
	require.Equal(t, 9, conn.txs)

	a.Pen = nil
	conn.values = map[byte]int{}
	_, pressed, err = a.Sample()
	require.NoError(t, err)
	require.False(t, pressed)
	require.NoError(t, a.Close())
}
