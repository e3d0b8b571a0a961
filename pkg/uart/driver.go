// Package uart implements the UART device class: four ports behind one
// ownership token, interrupt driven line reception and transmission.
package uart

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/rtdev.go/pkg/device"
)

// NumPorts is the number of UARTs.
const NumPorts = 4

// Binder is implemented by Registers which raise interrupts into the
// port they are attached to.
type Binder interface {
	Bind(*Port)
}

// Driver is the UART device class.
type Driver struct {
	gate  *device.Gate
	pclk  uint32
	ports [NumPorts]*Port
}

// New creates a Driver. pclk is the peripheral clock divided by 16.
func New(gate *device.Gate, pclk uint32) *Driver {
	if pclk == 0 {
		pclk = DefaultPCLK
	}
	return &Driver{gate: gate, pclk: pclk}
}

// Attach wires registers to port index.
func (d *Driver) Attach(index int, regs Registers) (*Port, error) {
	if index < 0 || index >= NumPorts {
		return nil, fmt.Errorf("invalid uart index %d", index)
	}
	p := NewPort(index, regs)
	if b, ok := regs.(Binder); ok {
		b.Bind(p)
	}
	d.ports[index] = p
	return p, nil
}

// Gate returns the arbitration gate.
func (d *Driver) Gate() *device.Gate {
	return d.gate
}

// Port returns the port at index.
func (d *Driver) Port(index int) (*Port, error) {
	if index < 0 || index >= NumPorts {
		return nil, fmt.Errorf("invalid uart index %d", index)
	}
	if p := d.ports[index]; p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("uart%d not attached", index)
}

// Open claims the UART class for id and configures the port.
// A baud rate without an acceptable divisor fails the open.
func (d *Driver) Open(ctx context.Context, id device.ClientID, index int, baud uint32) error {
	port, err := d.Port(index)
	if err != nil {
		return err
	}
	return d.gate.Open(ctx, id, func(first bool) error {
		div, err := SearchDivisor(d.pclk, baud)
		if err != nil {
			return err
		}
		d.resetPorts()
		if err := port.Configure(div); err != nil {
			return err
		}
		glog.V(2).Infof("uart%d: configured %s", index, div)
		return nil
	})
}

// Write starts transmitting data on the port. It waits, bounded by ctx,
// while an earlier transmission on the same port is in flight.
func (d *Driver) Write(ctx context.Context, id device.ClientID, index int, data []byte) error {
	port, err := d.Port(index)
	if err != nil {
		return err
	}
	for {
		var started bool
		err := d.gate.Do(ctx, id, "write", func() (err error) {
			started, err = port.TryWrite(data)
			return
		})
		if err != nil || started {
			return err
		}
		if err := port.WaitTxIdle(ctx); err != nil {
			return err
		}
	}
}

// Flush waits until the port finishes transmitting.
func (d *Driver) Flush(ctx context.Context, id device.ClientID, index int) error {
	port, err := d.Port(index)
	if err != nil {
		return err
	}
	if err := d.gate.Do(ctx, id, "flush", func() error { return nil }); err != nil {
		return err
	}
	return port.WaitTxIdle(ctx)
}

// Read copies a completed line into dest without blocking.
// (0, nil) means no line has completed yet.
func (d *Driver) Read(ctx context.Context, id device.ClientID, index int, dest []byte) (n int, err error) {
	port, err := d.Port(index)
	if err != nil {
		return 0, err
	}
	err = d.gate.Do(ctx, id, "read", func() (err error) {
		n, err = port.Read(dest)
		return
	})
	return
}

// ReadLine blocks until a line is read or ctx is done.
func (d *Driver) ReadLine(ctx context.Context, id device.ClientID, index int, dest []byte) (int, error) {
	port, err := d.Port(index)
	if err != nil {
		return 0, err
	}
	for {
		n, err := d.Read(ctx, id, index, dest)
		if err != nil || n > 0 {
			return n, err
		}
		if err := port.WaitRx(ctx); err != nil {
			return 0, err
		}
	}
}

// Close releases the UART class and resets all port cursors.
func (d *Driver) Close(ctx context.Context, id device.ClientID) error {
	return d.gate.Close(ctx, id, func() (bool, error) {
		d.resetPorts()
		return true, nil
	})
}

func (d *Driver) resetPorts() {
	for _, p := range d.ports {
		if p != nil {
			p.Reset()
		}
	}
}
