package touch

import (
	"github.com/abiosoft/ishell"

	"github.com/robotalks/rtdev.go/pkg/cli/sh"
	"github.com/robotalks/rtdev.go/pkg/device"
)

var (
	// OpenCmd opens and calibrates the touch panel.
	OpenCmd = ishell.Cmd{
		Name:    "touch.open",
		Aliases: []string{"to"},
		Help:    "",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			ctx, cancel := s.Context()
			defer cancel()
			s.Result(c, nil, s.Board.Touch.Open(ctx, id))
		}),
	}

	// SampleCmd samples the panel once and plots the touch.
	SampleCmd = ishell.Cmd{
		Name:    "touch.sample",
		Aliases: []string{"tw"},
		Help:    "",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			ctx, cancel := s.Context()
			defer cancel()
			pt, pressed, err := s.Board.Touch.Write(ctx, id)
			if err != nil || !pressed {
				s.Result(c, "released", err)
				return
			}
			s.Result(c, pt.String(), nil)
		}),
	}

	// CloseCmd releases the touch panel.
	CloseCmd = ishell.Cmd{
		Name:    "touch.close",
		Aliases: []string{"tc"},
		Help:    "",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			ctx, cancel := s.Context()
			defer cancel()
			s.Result(c, nil, s.Board.Touch.Close(ctx, id))
		}),
	}
)

func init() {
	sh.AddCmds(
		&OpenCmd,
		&SampleCmd,
		&CloseCmd,
	)
}
