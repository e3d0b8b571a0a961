package uart

import (
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/rtdev.go/pkg/cli/sh"
	"github.com/robotalks/rtdev.go/pkg/device"
	"github.com/robotalks/rtdev.go/pkg/uart"
)

var (
	// OpenCmd opens a UART port.
	OpenCmd = ishell.Cmd{
		Name:    "uart.open",
		Aliases: []string{"uo"},
		Help:    "INDEX BAUD",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			index, err := sh.ArgUint(c, 0, 8)
			if err != nil {
				c.Err(fmt.Errorf("Invalid INDEX: %v", err))
				return
			}
			baud, err := sh.ArgUint(c, 1, 32)
			if err != nil {
				c.Err(fmt.Errorf("Invalid BAUD: %v", err))
				return
			}
			ctx, cancel := s.Context()
			defer cancel()
			s.Result(c, nil, s.Board.UART.Open(ctx, id, int(index), uint32(baud)))
		}),
	}

	// WriteCmd transmits text on a UART port.
	WriteCmd = ishell.Cmd{
		Name:    "uart.write",
		Aliases: []string{"uw"},
		Help:    "INDEX TEXT...",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			index, err := sh.ArgUint(c, 0, 8)
			if err != nil {
				c.Err(fmt.Errorf("Invalid INDEX: %v", err))
				return
			}
			text := strings.Join(c.Args[1:], " ") + "\r\n"
			ctx, cancel := s.Context()
			defer cancel()
			s.Result(c, nil, s.Board.UART.Write(ctx, id, int(index), []byte(text)))
		}),
	}

	// ReadCmd waits for a line on a UART port.
	ReadCmd = ishell.Cmd{
		Name:    "uart.read",
		Aliases: []string{"ur"},
		Help:    "INDEX",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			index, err := sh.ArgUint(c, 0, 8)
			if err != nil {
				c.Err(fmt.Errorf("Invalid INDEX: %v", err))
				return
			}
			buf := make([]byte, uart.BufferSize)
			ctx, cancel := s.Context()
			defer cancel()
			n, err := s.Board.UART.ReadLine(ctx, id, int(index), buf)
			s.Result(c, buf[:n], err)
		}),
	}

	// CloseCmd releases the UARTs.
	CloseCmd = ishell.Cmd{
		Name:    "uart.close",
		Aliases: []string{"uc"},
		Help:    "",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			ctx, cancel := s.Context()
			defer cancel()
			s.Result(c, nil, s.Board.UART.Close(ctx, id))
		}),
	}

	// PortsCmd lists host serial devices.
	PortsCmd = ishell.Cmd{
		Name: "uart.ports",
		Help: "",
		Func: func(c *ishell.Context) {
			ports, err := uart.SerialPorts()
			if err != nil {
				c.Err(err)
				return
			}
			for _, p := range ports {
				c.Println(p)
			}
		},
	}
)

func init() {
	sh.AddCmds(
		&OpenCmd,
		&WriteCmd,
		&ReadCmd,
		&CloseCmd,
		&PortsCmd,
	)
}
