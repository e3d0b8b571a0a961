package eth

import (
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/rtdev.go/pkg/cli/sh"
	"github.com/robotalks/rtdev.go/pkg/device"
	"github.com/robotalks/rtdev.go/pkg/eth"
)

const connsKey = "eth.conns"

func conns(s *sh.Shell) map[uint8]*eth.Conn {
	m, _ := s.Value(connsKey).(map[uint8]*eth.Conn)
	if m == nil {
		m = make(map[uint8]*eth.Conn)
		s.SetValue(connsKey, m)
	}
	return m
}

var (
	// OpenCmd allocates a connection record as NUM.
	OpenCmd = ishell.Cmd{
		Name:    "eth.open",
		Aliases: []string{"eo"},
		Help:    "NUM",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			num, err := sh.ArgUint(c, 0, 8)
			if err != nil {
				c.Err(fmt.Errorf("Invalid NUM: %v", err))
				return
			}
			ctx, cancel := s.Context()
			defer cancel()
			conn, err := s.Board.Eth.Open(ctx, id)
			if err == nil {
				conn.Num = uint8(num)
				conns(s)[uint8(num)] = conn
			}
			s.Result(c, nil, err)
		}),
	}

	// ConnectCmd drives connection NUM as server or client.
	ConnectCmd = ishell.Cmd{
		Name:    "eth.connect",
		Aliases: []string{"ec"},
		Help:    "NUM server PORT | NUM client IP PORT",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			num, err := sh.ArgUint(c, 0, 8)
			if err != nil || len(c.Args) < 3 {
				c.Err(fmt.Errorf("NUM and role expected"))
				return
			}
			conn := conns(s)[uint8(num)]
			if conn == nil {
				c.Err(fmt.Errorf("connection %d not open", num))
				return
			}
			switch c.Args[1] {
			case "server":
				port, err := sh.ArgUint(c, 2, 16)
				if err != nil {
					c.Err(fmt.Errorf("Invalid PORT: %v", err))
					return
				}
				conn.Role, conn.LocalPort = eth.RoleServer, uint16(port)
			case "client":
				port, err := sh.ArgUint(c, 3, 16)
				if err != nil {
					c.Err(fmt.Errorf("Invalid PORT: %v", err))
					return
				}
				conn.Role = eth.RoleClient
				if err := conn.SetRemote(c.Args[2], uint16(port)); err != nil {
					c.Err(err)
					return
				}
			default:
				c.Err(fmt.Errorf("unknown role %q", c.Args[1]))
				return
			}
			ctx, cancel := s.Context()
			defer cancel()
			s.Result(c, nil, s.Board.Eth.Connect(ctx, id, conn, uint8(num)))
		}),
	}

	// WriteCmd sends text on the socket.
	WriteCmd = ishell.Cmd{
		Name:    "eth.write",
		Aliases: []string{"ew"},
		Help:    "TEXT...",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			ctx, cancel := s.Context()
			defer cancel()
			text := strings.Join(c.Args, " ") + "\r\n"
			s.Result(c, nil, s.Board.Eth.Write(ctx, id, []byte(text)))
		}),
	}

	// ReadCmd prints pending data.
	ReadCmd = ishell.Cmd{
		Name:    "eth.read",
		Aliases: []string{"er"},
		Help:    "",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			ctx, cancel := s.Context()
			defer cancel()
			buf := make([]byte, eth.FragSize)
			n, err := s.Board.Eth.Read(ctx, id, buf)
			s.Result(c, buf[:n], err)
		}),
	}

	// StatusCmd prints the socket status and connections.
	StatusCmd = ishell.Cmd{
		Name:    "eth.status",
		Aliases: []string{"es"},
		Help:    "",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			ctx, cancel := s.Context()
			defer cancel()
			list, err := s.Board.Eth.Connections(ctx, id)
			if err != nil {
				s.Result(c, nil, err)
				return
			}
			c.Printf("status: %s\n", s.Board.Eth.Status())
			for n := range list {
				c.Println(list[n].String())
			}
		}),
	}

	// CloseCmd closes connection NUM.
	CloseCmd = ishell.Cmd{
		Name:    "eth.close",
		Aliases: []string{"ecl"},
		Help:    "NUM",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			num, err := sh.ArgUint(c, 0, 8)
			if err != nil {
				c.Err(fmt.Errorf("Invalid NUM: %v", err))
				return
			}
			ctx, cancel := s.Context()
			defer cancel()
			m := conns(s)
			err = s.Board.Eth.Close(ctx, id, m[uint8(num)])
			if err == nil {
				delete(m, uint8(num))
			}
			s.Result(c, nil, err)
		}),
	}
)

func init() {
	sh.AddCmds(
		&OpenCmd,
		&ConnectCmd,
		&WriteCmd,
		&ReadCmd,
		&StatusCmd,
		&CloseCmd,
	)
}
