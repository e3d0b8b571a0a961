// Package lcd implements the LCD device class. The owner draws through a
// command block allocated on open.
package lcd

import (
	"context"
	"errors"
	"fmt"

	"github.com/robotalks/rtdev.go/pkg/device"
)

// DefaultRotation is the landscape rotation used at power up.
const DefaultRotation = 3

// Errors
var (
	ErrInvalidRotation = errors.New("rotation must be 0..3")
	ErrInvalidOp       = errors.New("invalid lcd op")
)

// Driver is the LCD device class.
type Driver struct {
	gate    *device.Gate
	display Display
	pool    *device.Arena
	cmd     *Command
}

// New creates a Driver.
func New(gate *device.Gate, display Display) *Driver {
	return &Driver{
		gate:    gate,
		display: display,
		pool:    device.NewArena(gate.Name()+".cmd", 1, func() device.Block { return &Command{} }),
	}
}

// Gate returns the arbitration gate.
func (d *Driver) Gate() *device.Gate {
	return d.gate
}

// Display returns the display.
func (d *Driver) Display() Display {
	return d.display
}

// Open claims the LCD for id, initializes the display, fills it with
// color and applies rotation. It returns the command block to draw with.
func (d *Driver) Open(ctx context.Context, id device.ClientID, color Color, rotation uint8) (cmd *Command, err error) {
	if rotation > 3 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRotation, rotation)
	}
	err = d.gate.Open(ctx, id, func(first bool) error {
		if err := d.display.Init(); err != nil {
			return err
		}
		d.pool.Reinit()
		b, err := d.pool.Alloc()
		if err != nil {
			return err
		}
		d.cmd = b.(*Command)
		if err := d.display.FillScreen(color); err != nil {
			return err
		}
		return d.display.SetRotation(rotation)
	})
	if err != nil {
		return nil, err
	}
	return d.cmd, nil
}

// Write executes cmd on the display.
func (d *Driver) Write(ctx context.Context, id device.ClientID, cmd *Command) error {
	return d.gate.Do(ctx, id, "write", func() error {
		if cmd == nil || !cmd.Op.Valid() {
			return ErrInvalidOp
		}
		return d.display.Exec(cmd)
	})
}

// Close clears the command block and releases the LCD.
func (d *Driver) Close(ctx context.Context, id device.ClientID) error {
	return d.gate.Close(ctx, id, func() (bool, error) {
		if d.cmd != nil {
			if err := d.pool.Free(d.cmd); err != nil {
				return false, err
			}
			d.cmd = nil
		}
		return true, nil
	})
}
