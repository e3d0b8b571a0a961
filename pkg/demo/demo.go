// Package demo runs the device hand-off chain: UART echo, Ethernet
// server, file store, LCD and touch panel threads, each waking up the
// next with a signal once it has released its device.
package demo

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rtdev.go/pkg/board"
	"github.com/robotalks/rtdev.go/pkg/device"
	"github.com/robotalks/rtdev.go/pkg/eth"
	"github.com/robotalks/rtdev.go/pkg/file"
	"github.com/robotalks/rtdev.go/pkg/lcd"
	"github.com/robotalks/rtdev.go/pkg/rtos"
	"github.com/robotalks/rtdev.go/pkg/uart"
)

// SignalNext is the flag a thread waits on before taking its device.
const SignalNext = 0x01

// Config of the chain.
type Config struct {
	UARTPort     int
	Baud         uint
	UARTTrigger  string
	EthPort      uint
	EthTrigger   string
	Delay        time.Duration
	TouchSamples int
	PollInterval time.Duration
}

var defaultConfig = Config{
	UARTPort:     0,
	Baud:         115200,
	UARTTrigger:  "next thread",
	EthPort:      8080,
	EthTrigger:   "next feature",
	Delay:        500 * time.Millisecond,
	TouchSamples: 10,
	PollInterval: 50 * time.Millisecond,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.UARTPort, "demo-uart", defaultConfig.UARTPort, "UART port of the echo thread.")
	flag.UintVar(&defaultConfig.Baud, "demo-baud", defaultConfig.Baud, "Baud rate of the echo thread.")
	flag.StringVar(&defaultConfig.UARTTrigger, "demo-uart-trigger", defaultConfig.UARTTrigger, "Line handing over from UART to Ethernet.")
	flag.UintVar(&defaultConfig.EthPort, "demo-eth-port", defaultConfig.EthPort, "Local port of the Ethernet server.")
	flag.StringVar(&defaultConfig.EthTrigger, "demo-eth-trigger", defaultConfig.EthTrigger, "Message handing over from Ethernet to the file store.")
	flag.DurationVar(&defaultConfig.Delay, "demo-delay", defaultConfig.Delay, "Delay between steps.")
	flag.IntVar(&defaultConfig.TouchSamples, "demo-touches", defaultConfig.TouchSamples, "Touches to plot, 0 for until stopped.")
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Demo is the chain of threads on a board.
type Demo struct {
	Config *Config
	Board  *board.Board

	UART, Eth, File, LCD, Touch *rtos.Thread
}

// New spawns the threads of the chain on b.
func (c *Config) New(b *board.Board) (*Demo, error) {
	if c.EthPort > 0xffff {
		return nil, fmt.Errorf("invalid port %d", c.EthPort)
	}
	d := &Demo{Config: c, Board: b}
	spawns := []struct {
		name string
		fn   rtos.ThreadFunc
		th   **rtos.Thread
	}{
		{"uart", d.runUART, &d.UART},
		{"ethernet", d.runEth, &d.Eth},
		{"lcd", d.runLCD, &d.LCD},
		{"touch", d.runTouch, &d.Touch},
		{"file", d.runFile, &d.File},
	}
	for _, s := range spawns {
		th, err := b.Spawn(s.name, s.fn)
		if err != nil {
			return nil, err
		}
		*s.th = th
	}
	return d, nil
}

func (d *Demo) sleep(ctx context.Context) error {
	return device.Sleep(ctx, d.Config.Delay)
}

func (d *Demo) runUART(ctx context.Context, th *rtos.Thread) error {
	u, port := d.Board.UART, d.Config.UARTPort
	if err := u.Open(ctx, th.ID(), port, uint32(d.Config.Baud)); err != nil {
		return err
	}
	if err := u.Write(ctx, th.ID(), port, []byte("Hello UART, checking the serial port on the board\n")); err != nil {
		return err
	}
	buf := make([]byte, uart.BufferSize)
	for {
		n, err := u.ReadLine(ctx, th.ID(), port, buf)
		if errors.Is(err, device.ErrBufferOverrun) {
			glog.Warningf("uart%d: line dropped", port)
			continue
		}
		if err != nil {
			return err
		}
		line := string(buf[:n])
		if strings.TrimSpace(line) == d.Config.UARTTrigger {
			d.Eth.Set(SignalNext)
			return u.Close(ctx, th.ID())
		}
		if err := u.Write(ctx, th.ID(), port, buf[:n]); err != nil {
			return err
		}
		if err := d.sleep(ctx); err != nil {
			return err
		}
	}
}

func (d *Demo) runEth(ctx context.Context, th *rtos.Thread) error {
	if _, err := th.Wait(ctx, SignalNext); err != nil {
		return err
	}
	e := d.Board.Eth
	conn, err := e.Open(ctx, th.ID())
	if err != nil {
		return err
	}
	conn.Role, conn.LocalPort = eth.RoleServer, uint16(d.Config.EthPort)
	greeted := false
	buf := make([]byte, eth.FragSize)
	for {
		if err := e.Connect(ctx, th.ID(), conn, 0); err != nil {
			return err
		}
		if e.Status()&eth.StatusConnected == 0 {
			greeted = false
		} else if !greeted {
			if err := e.Write(ctx, th.ID(), []byte("Ethernet configured\n")); err != nil && !errors.Is(err, eth.ErrNotConnected) {
				return err
			}
			greeted = true
		}
		n, err := e.Read(ctx, th.ID(), buf)
		if err != nil && !errors.Is(err, device.ErrBufferOverrun) {
			return err
		}
		if n > 0 && strings.TrimSpace(string(buf[:n])) == d.Config.EthTrigger {
			d.File.Set(SignalNext)
			return e.Close(ctx, th.ID(), conn)
		}
		if err := device.Sleep(ctx, d.Config.PollInterval); err != nil {
			return err
		}
	}
}

// File store paths written by the file thread.
const (
	FirstFile = "/FILE.TXT"
	Directory = "/FOLDER"
	DirFile   = "/FOLDER/FILE_DIR.TXT"
)

func (d *Demo) runFile(ctx context.Context, th *rtos.Thread) error {
	if _, err := th.Wait(ctx, SignalNext); err != nil {
		return err
	}
	f, id := d.Board.File, th.ID()
	if err := f.Open(ctx, id); err != nil {
		return err
	}
	writes := []struct {
		op   file.WriteOp
		text string
		name string
	}{
		{file.NewFile, "FIRST FILE FROM THE BOARD\r\n", FirstFile},
		{file.Mkdir, "", Directory},
		{file.NewFile, "FILE IN A DIRECTORY CALLED FOLDER\r\n", DirFile},
	}
	for _, w := range writes {
		err := f.Write(ctx, id, w.op, w.text, w.name)
		if errors.Is(err, fs.ErrExist) {
			glog.Infof("%s: %s exists", w.op, w.name)
			continue
		}
		if err != nil {
			return err
		}
	}
	for _, name := range []string{FirstFile, DirFile} {
		out, err := f.Read(ctx, id, file.ReadFile, name)
		if err != nil {
			return err
		}
		glog.Infof("%s: %q", name, out)
	}
	out, err := f.Read(ctx, id, file.ShowFiles, "/")
	if err != nil {
		return err
	}
	glog.Infof("files:\n%s", out)
	if err := f.Close(ctx, id, file.FreeMem, ""); err != nil {
		return err
	}
	if err := d.sleep(ctx); err != nil {
		return err
	}
	d.LCD.Set(SignalNext)
	return nil
}

func (d *Demo) runLCD(ctx context.Context, th *rtos.Thread) error {
	if _, err := th.Wait(ctx, SignalNext); err != nil {
		return err
	}
	cmd, err := d.Board.LCD.Open(ctx, th.ID(), lcd.Red, lcd.DefaultRotation)
	if err != nil {
		return err
	}
	cmd.Op = lcd.FillCircle
	cmd.X, cmd.Y = 120, 160
	cmd.Radius = 100
	cmd.Color, cmd.BColor = lcd.Yellow, lcd.Yellow
	if err := d.Board.LCD.Write(ctx, th.ID(), cmd); err != nil {
		return err
	}
	if err := d.sleep(ctx); err != nil {
		return err
	}
	d.Touch.Set(SignalNext)
	return d.Board.LCD.Close(ctx, th.ID())
}

func (d *Demo) runTouch(ctx context.Context, th *rtos.Thread) error {
	if _, err := th.Wait(ctx, SignalNext); err != nil {
		return err
	}
	t := d.Board.Touch
	if err := t.Open(ctx, th.ID()); err != nil {
		return err
	}
	for n := 0; d.Config.TouchSamples <= 0 || n < d.Config.TouchSamples; {
		pt, pressed, err := t.Write(ctx, th.ID())
		if err != nil {
			return err
		}
		if pressed {
			glog.Infof("touch at %s", pt)
			n++
		}
		if err := device.Sleep(ctx, d.Config.PollInterval); err != nil {
			return err
		}
	}
	return t.Close(ctx, th.ID())
}
