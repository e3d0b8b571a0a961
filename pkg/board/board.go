// Package board assembles the device classes of a board: one supervisor
// shared by every gate, the diagnostic channel, and the host resources
// standing in for the peripherals.
package board

import (
	"context"
	"fmt"
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"periph.io/x/periph/host"

	"github.com/robotalks/rtdev.go/pkg/device"
	"github.com/robotalks/rtdev.go/pkg/diag"
	"github.com/robotalks/rtdev.go/pkg/diag/mqtt"
	"github.com/robotalks/rtdev.go/pkg/eth"
	"github.com/robotalks/rtdev.go/pkg/file"
	"github.com/robotalks/rtdev.go/pkg/lcd"
	"github.com/robotalks/rtdev.go/pkg/rtos"
	"github.com/robotalks/rtdev.go/pkg/touch"
	"github.com/robotalks/rtdev.go/pkg/uart"
)

// Board is the set of device classes sharing one supervisor.
type Board struct {
	Name     string
	Kernel   *rtos.Kernel
	Threads  *rtos.Threads
	Reporter diag.Reporter

	UART  *uart.Driver
	Eth   *eth.Driver
	File  *file.Driver
	LCD   *lcd.Driver
	Touch *touch.Driver

	Stack     *eth.NetStack
	Display   *lcd.Recorder
	Terminals [uart.NumPorts]*uart.Terminal

	runnables []rtos.Runnable
	closers   []func() error
}

// MachineID returns the machine ID, or the host name when it's not
// available.
func MachineID() string {
	id, err := machineid.ID()
	if err == nil {
		return id
	}
	glog.Warningf("machine id: %v", err)
	if name, err := os.Hostname(); err == nil {
		return name
	}
	return "rtdev"
}

// NewBoard assembles a Board from the config.
func (c *Config) NewBoard() (*Board, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	b := &Board{
		Name:    c.Name,
		Threads: rtos.NewThreads(),
	}
	if b.Name == "" {
		b.Name = MachineID()
	}

	mux := (&diag.Mux{}).Add(diag.LogReporter{})
	if c.MQTTBrokerURL != "" {
		q, err := mqtt.NewQueueFromURL(c.MQTTBrokerURL)
		if err != nil {
			return nil, fmt.Errorf("invalid MQTT broker URL: %w", err)
		}
		if err := q.Connect(); err != nil {
			return nil, fmt.Errorf("connect MQTT broker: %w", err)
		}
		b.closers = append(b.closers, q.Close)
		r := mqtt.NewReporter(q, b.Name)
		mux.Add(r)
		b.runnables = append(b.runnables, r)
	}
	b.Reporter = diag.Stamp(b.Name, mux)

	var sup device.Supervisor = &device.Direct{}
	if !c.Direct {
		b.Kernel = rtos.NewKernel()
		sup = b.Kernel
		b.runnables = append(b.runnables, b.Kernel)
	}
	gate := func(name string) *device.Gate {
		return device.NewGate(name, sup).WithReporter(b.Reporter)
	}

	if c.CardDetectPin != "" || c.TouchSPI != "" {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("periph host init: %w", err)
		}
	}

	b.UART = uart.New(gate("uart"), uint32(c.PCLK))
	for n := 0; n < uart.NumPorts; n++ {
		var hal *uart.StreamHAL
		if n < len(c.SerialDevices) && c.SerialDevices[n] != "" {
			h, err := uart.OpenSerial(c.SerialDevices[n])
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("uart%d: %w", n, err)
			}
			b.closers = append(b.closers, h.Close)
			hal = h
		} else {
			b.Terminals[n] = uart.NewTerminal()
			hal = uart.NewStreamHAL(fmt.Sprintf("uart%d", n), b.Terminals[n])
		}
		if _, err := b.UART.Attach(n, hal); err != nil {
			b.Close()
			return nil, err
		}
		b.runnables = append(b.runnables, hal)
	}

	b.Stack = eth.NewNetStack(eth.NewController(SimMAC{}, NewSimPHY()))
	b.Stack.Host = c.EthHost
	b.Eth = eth.New(gate("eth"), b.Stack, eth.Config{CloseAfterWrite: c.CloseAfterWrite})
	b.closers = append(b.closers, b.Stack.Close)

	var card file.CardDetector = file.AlwaysInserted{}
	if c.CardDetectPin != "" {
		d, err := file.OpenPinDetector(c.CardDetectPin)
		if err != nil {
			b.Close()
			return nil, err
		}
		card = d
	}
	if err := os.MkdirAll(c.SDRoot, 0755); err != nil {
		b.Close()
		return nil, err
	}
	b.File = file.New(gate("file"), file.NewDirFS(c.SDRoot), card)

	b.Display = lcd.NewRecorder()
	display := &lcd.LogDisplay{Display: b.Display, Name: "lcd"}
	b.LCD = lcd.New(gate("lcd"), display)

	var sampler touch.Sampler = NewSimTouch()
	if c.TouchSPI != "" {
		a, err := touch.OpenADS7846(c.TouchSPI, c.TouchPenPin)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, a.Close)
		sampler = a
	}
	b.Touch = touch.New(gate("touch"), sampler, display)

	if c.TerminalAddr != "" {
		b.runnables = append(b.runnables, NewTerminalServer(c.TerminalAddr, b.Terminals[:]))
	}
	return b, nil
}

// Runnables returns the background runners of the board: the kernel,
// the interrupt pumps, the event publisher and the terminal server.
func (b *Board) Runnables() []rtos.Runnable {
	return append([]rtos.Runnable(nil), b.runnables...)
}

// Spawn creates an application thread.
func (b *Board) Spawn(name string, fn rtos.ThreadFunc) (*rtos.Thread, error) {
	return b.Threads.Spawn(name, fn)
}

// Serve runs the board runners until ctx is done.
func (b *Board) Serve(ctx context.Context) error {
	return rtos.NewRunnerWith(ctx).Go(b.Runnables()...).Wait()
}

// Run runs the board runners and the threads. The runners are stopped
// once every thread has returned.
func (b *Board) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	services := rtos.NewRunnerWith(ctx).Go(b.Runnables()...)
	err := rtos.NewRunnerWith(ctx).Go(b.Threads.Runnables()...).Wait()
	cancel()
	return (&rtos.AggregatedError{}).Add(err, services.Wait()).Aggregate()
}

// Close releases host resources.
func (b *Board) Close() error {
	errs := &rtos.AggregatedError{}
	for n := len(b.closers) - 1; n >= 0; n-- {
		errs.Add(b.closers[n]())
	}
	b.closers = nil
	return errs.Aggregate()
}
