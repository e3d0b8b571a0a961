// Package touch implements the touch panel device class. Opening it
// calibrates the panel against the LCD, and each write samples a touch
// and plots it.
package touch

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rtdev.go/pkg/device"
	"github.com/robotalks/rtdev.go/pkg/lcd"
)

// ErrNotCalibrated is returned when sampling before calibration is done.
var ErrNotCalibrated = errors.New("touch panel not calibrated")

// Calibration defaults
const (
	CrossSize    = 10
	PollInterval = 20 * time.Millisecond
)

// DefaultTargets are the display points touched during calibration.
var DefaultTargets = [3]Point{
	{X: lcd.Width * 15 / 100, Y: lcd.Height * 15 / 100},
	{X: lcd.Width / 2, Y: lcd.Height * 85 / 100},
	{X: lcd.Width * 85 / 100, Y: lcd.Height / 2},
}

// Calibrate draws a cross at each target, waits for a press and a
// release, then solves the matrix.
func Calibrate(ctx context.Context, s Sampler, disp lcd.Display, targets [3]Point, sleep device.Sleeper) (*Matrix, error) {
	if sleep == nil {
		sleep = device.Sleep
	}
	var raw [3]Point
	for n, t := range targets {
		if err := drawCross(disp, t, lcd.Red); err != nil {
			return nil, err
		}
		pt, err := waitPress(ctx, s, sleep)
		if err != nil {
			return nil, err
		}
		raw[n] = pt
		glog.V(2).Infof("touch: target %s sampled %s", t, pt)
		if err := drawCross(disp, t, lcd.Black); err != nil {
			return nil, err
		}
		if err := waitRelease(ctx, s, sleep); err != nil {
			return nil, err
		}
	}
	return NewMatrix(targets, raw)
}

func drawCross(disp lcd.Display, at Point, color lcd.Color) error {
	h := &lcd.Command{
		Op:     lcd.DrawFastLine,
		X:      clamp(at.X-CrossSize, lcd.Width),
		Y:      clamp(at.Y, lcd.Height),
		Length: 2 * CrossSize,
		Color:  color,
	}
	if err := disp.Exec(h); err != nil {
		return err
	}
	v := &lcd.Command{
		Op:       lcd.DrawFastLine,
		X:        clamp(at.X, lcd.Width),
		Y:        clamp(at.Y-CrossSize, lcd.Height),
		Length:   2 * CrossSize,
		Color:    color,
		Vertical: true,
	}
	return disp.Exec(v)
}

func waitPress(ctx context.Context, s Sampler, sleep device.Sleeper) (Point, error) {
	for {
		pt, pressed, err := s.Sample()
		if err != nil {
			return pt, err
		}
		if pressed {
			return pt, nil
		}
		if err := sleep(ctx, PollInterval); err != nil {
			return pt, err
		}
	}
}

func waitRelease(ctx context.Context, s Sampler, sleep device.Sleeper) error {
	for {
		_, pressed, err := s.Sample()
		if err != nil || !pressed {
			return err
		}
		if err := sleep(ctx, PollInterval); err != nil {
			return err
		}
	}
}

func clamp(v, max int) uint16 {
	switch {
	case v < 0:
		return 0
	case v >= max:
		return uint16(max - 1)
	}
	return uint16(v)
}

// Driver is the touch panel device class.
type Driver struct {
	gate    *device.Gate
	sampler Sampler
	display lcd.Display
	sleep   device.Sleeper
	targets [3]Point
	matrix  *Matrix
	preset  bool
}

// New creates a Driver drawing on display.
func New(gate *device.Gate, sampler Sampler, display lcd.Display) *Driver {
	return &Driver{
		gate:    gate,
		sampler: sampler,
		display: display,
		sleep:   device.Sleep,
		targets: DefaultTargets,
	}
}

// WithSleeper sets the Sleeper used while polling the panel.
func (d *Driver) WithSleeper(s device.Sleeper) *Driver {
	d.sleep = s
	return d
}

// SetCalibration installs a known matrix so open skips calibration.
// A nil matrix restores calibration on open.
func (d *Driver) SetCalibration(m *Matrix) {
	d.matrix, d.preset = m, m != nil
}

// Gate returns the arbitration gate.
func (d *Driver) Gate() *device.Gate {
	return d.gate
}

// Matrix returns the current calibration.
func (d *Driver) Matrix() *Matrix {
	return d.matrix
}

// Open claims the panel for id, initializes the sampler and the display
// and calibrates. Calibration blocks until three touches or ctx is done.
// It runs outside the supervisor while id holds the panel, so other
// device classes keep being served.
func (d *Driver) Open(ctx context.Context, id device.ClientID) error {
	var first, calibrate bool
	err := d.gate.Open(ctx, id, func(f bool) error {
		if err := d.sampler.Init(); err != nil {
			return err
		}
		if err := d.display.Init(); err != nil {
			return err
		}
		first, calibrate = f, !d.preset
		if calibrate {
			d.matrix = nil
		}
		return nil
	})
	if err != nil || !calibrate {
		return err
	}
	m, err := Calibrate(ctx, d.sampler, d.display, d.targets, d.sleep)
	if err != nil {
		if first {
			if cerr := d.gate.Close(context.Background(), id, nil); cerr != nil {
				glog.Warningf("touch: release after failed calibration: %v", cerr)
			}
		}
		return &device.OpError{Device: d.gate.Name(), Op: "calibrate", Client: id, Err: err}
	}
	return d.gate.Do(context.Background(), id, "calibrate", func() error {
		d.matrix = m
		return nil
	})
}

// Write samples the panel once. When pressed, the mapped point is drawn
// and returned with true.
func (d *Driver) Write(ctx context.Context, id device.ClientID) (pt Point, pressed bool, err error) {
	err = d.gate.Do(ctx, id, "write", func() error {
		if d.matrix == nil {
			return ErrNotCalibrated
		}
		raw, down, err := d.sampler.Sample()
		if err != nil || !down {
			return err
		}
		pt, pressed = d.matrix.Map(raw), true
		return d.display.Exec(&lcd.Command{
			Op:     lcd.FillRect,
			X:      clamp(pt.X, lcd.Width),
			Y:      clamp(pt.Y, lcd.Height),
			Width:  2,
			Height: 2,
			Color:  lcd.White,
		})
	})
	return
}

// Close releases the panel.
func (d *Driver) Close(ctx context.Context, id device.ClientID) error {
	return d.gate.Close(ctx, id, nil)
}
